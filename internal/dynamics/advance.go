// Package dynamics advances a car by one fixed step: steering, drivetrain,
// load transfer, tire forces and the blended kinematic/dynamic integrator.
package dynamics

import (
	"math"

	"github.com/OCAP2/vehicledyn/internal/drivetrain"
	"github.com/OCAP2/vehicledyn/internal/load"
	"github.com/OCAP2/vehicledyn/internal/steering"
	"github.com/OCAP2/vehicledyn/internal/telemetry"
	"github.com/OCAP2/vehicledyn/internal/tire"
	"github.com/OCAP2/vehicledyn/internal/util"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// StopSpeed is where creep damping snaps the car to rest.
const StopSpeed = 0.02 // m/s

// plan is the outcome of the force phase, consumed by either integration path.
type plan struct {
	in     core.Input
	res    drivetrain.Resolution
	forces tire.Forces
	loads  core.AxleLoads
	steer  float64 // effective road-wheel angle
	blend  float64

	bodyVel mgl64.Vec2 // desired body-frame velocity after the step
	yawRate float64    // desired yaw rate after the step
}

// Advance steps st by dt with the direct integrator and returns the step's
// diagnostics. A rigid-body mode in p is integrated directly because no world
// is involved.
func Advance(st *core.VehicleState, p core.VehicleParameters, gb drivetrain.Gearbox, in core.Input, surf core.SurfaceInfo, dt float64) core.Diagnostics {
	kind := DynamicOnly
	if p.Backend.Mode == core.BackendKinematic {
		kind = Kinematic
	}
	if !validDt(dt) {
		return idle(st, p, gb, kind)
	}
	pl := forcePhase(st, p, gb, in, surf, dt, kind)
	integrateDirect(st, pl, dt)
	postProcess(st, p, pl, dt)
	return finish(st, p, pl, kind)
}

func validDt(dt float64) bool {
	return dt > 0 && !math.IsNaN(dt) && !math.IsInf(dt, 0)
}

// idle reports the current state without advancing it.
func idle(st *core.VehicleState, p core.VehicleParameters, gb drivetrain.Gearbox, kind BackendKind) core.Diagnostics {
	pl := plan{
		res: drivetrain.Resolution{
			Gear:  gb.Gear(),
			Phase: drivetrain.PhaseOf(gb.Gear(), st.Direction, st.Speed(), p.NeutralStopSpeed),
		},
		loads:   st.Loads,
		steer:   steering.Effective(st.SteerAngle, st.Direction, p),
		bodyVel: st.BodyVelocity,
		yawRate: st.YawRate,
	}
	return telemetry.Build(frame(st, pl, kind), p)
}

// forcePhase runs everything up to the integration and updates the steering,
// direction, load and filter state of st.
func forcePhase(st *core.VehicleState, p core.VehicleParameters, gb drivetrain.Gearbox, in core.Input, surface core.SurfaceInfo, dt float64, kind BackendKind) plan {
	in = in.Sanitize()
	surf := surface.Friction(p)
	vx, vy, r := st.BodyVelocity.X(), st.BodyVelocity.Y(), st.YawRate
	speed := st.Speed()

	st.SteerAngle, st.Filter = steering.Update(st.SteerAngle, st.Filter, p, in.Steer, speed, dt)
	res := drivetrain.Resolve(st, p, in, gb, dt)
	delta := steering.Effective(st.SteerAngle, st.Direction, p)

	st.PrevLoads = st.Loads
	st.Loads = load.Compute(p, speed, st.Filter.LongAccel, p.Gravity)

	forces := tire.Solve(tire.AxleInputs{
		Params:     p,
		Surface:    surf,
		Loads:      st.Loads,
		VX:         vx,
		VY:         vy,
		YawRate:    r,
		Steer:      delta,
		DriveForce: res.DriveForce,
		BrakeForce: res.Brake * p.BrakeForce,
		Dt:         dt,
	})

	commanded := load.Commanded(p, surf, vx, res.DriveForce, forces.Brake)
	st.Filter.LongAccel = load.FilterAccel(st.Filter.LongAccel, commanded, p.AccelFilterTau, dt)

	// Front axle forces rotated into the body frame.
	sin, cos := math.Sincos(delta)
	fxf := forces.Front.Longitudinal*cos - forces.Front.Lateral*sin
	fyf := forces.Front.Longitudinal*sin + forces.Front.Lateral*cos
	resist := -util.Sign(vx) * (surf.Drag*vx*vx + surf.RollingResistance*math.Abs(vx))

	sumFx := fxf + forces.Rear.Longitudinal + resist
	sumFy := fyf + forces.Rear.Lateral
	ax := sumFx/p.Mass + r*vy
	ay := sumFy/p.Mass - r*vx

	damping := p.YawDamping
	if st.Direction < 0 {
		damping *= p.ReverseYawDampingScale
	}
	yawAcc := (p.CGToFront*fyf-p.CGToRear*forces.Rear.Lateral)/p.YawInertia - damping*r

	rKin := vx / p.Wheelbase * math.Tan(delta)
	vyKin := rKin * p.CGToRear

	w := util.Smoothstep(0, p.KinematicBlendSpeed, speed)
	if kind == Kinematic {
		w = 0
	}

	nextVx := vx + ax*dt
	if vx != 0 && util.Sign(nextVx) != util.Sign(vx) && util.Sign(res.DriveForce) != -util.Sign(vx) {
		nextVx = 0
	}
	nextVy := w*(vy+ay*dt) + (1-w)*vyKin
	nextR := w*(r+yawAcc*dt) + (1-w)*rKin

	return plan{
		in:      in,
		res:     res,
		forces:  forces,
		loads:   st.Loads,
		steer:   delta,
		blend:   w,
		bodyVel: mgl64.Vec2{util.Finite(nextVx, 0), util.Finite(nextVy, 0)},
		yawRate: util.ClampAbs(util.Finite(nextR, 0), p.MaxYawRate),
	}
}

// integrateDirect is the explicit Euler path.
func integrateDirect(st *core.VehicleState, pl plan, dt float64) {
	st.BodyVelocity = pl.bodyVel
	st.YawRate = pl.yawRate
	st.Heading = wrapAngle(st.Heading + st.YawRate*dt)
	st.Velocity = st.ToWorld(st.BodyVelocity)
	st.Position = st.Position.Add(st.Velocity.Mul(dt))
}

// postProcess applies the yaw and speed caps, creep damping and the neutral
// stop, in that order, to the integrated state.
func postProcess(st *core.VehicleState, p core.VehicleParameters, pl plan, dt float64) {
	v := st.BodyVelocity
	r := util.ClampAbs(util.Finite(st.YawRate, 0), p.MaxYawRate)

	limit := p.MaxSpeed
	if drivingBackward(pl.res) {
		limit = math.Min(limit, p.MaxReverseSpeed)
	}
	if speed := v.Len(); speed > limit {
		v = v.Mul(limit / speed)
	}

	released := pl.in.Throttle <= drivetrain.PedalDeadzone && pl.in.Brake <= drivetrain.PedalDeadzone
	if released && v.Len() < p.CreepSpeed {
		k := math.Exp(-p.CreepDamping * dt)
		v = v.Mul(k)
		r *= k
		if v.Len() < StopSpeed {
			v = mgl64.Vec2{}
			r = 0
		}
	}

	if pl.res.Phase == core.PhaseNeutral {
		v = mgl64.Vec2{}
		r = 0
	}

	st.BodyVelocity = v
	st.YawRate = r
	st.Velocity = st.ToWorld(v)
}

// drivingBackward reports whether reverse gear is pushing the car backward.
// A car merely sliding backward is limited by MaxSpeed alone.
func drivingBackward(res drivetrain.Resolution) bool {
	return res.Gear < 0 && res.Phase == core.PhaseReverse && res.DriveForce < 0
}

func finish(st *core.VehicleState, p core.VehicleParameters, pl plan, kind BackendKind) core.Diagnostics {
	st.Tick++
	d := telemetry.Build(frame(st, pl, kind), p)
	st.Skid = d.Skid
	return d
}

func frame(st *core.VehicleState, pl plan, kind BackendKind) telemetry.Frame {
	return telemetry.Frame{
		Tick:       st.Tick,
		Resolution: pl.res,
		Forces:     pl.forces,
		Loads:      pl.loads,
		SteerAngle: pl.steer,
		Blend:      pl.blend,
		Speed:      st.Speed(),
		VX:         st.BodyVelocity.X(),
		Direction:  st.Direction,
		Backend:    IntegrationBackend{Kind: kind}.Mode(),
	}
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Package tire implements the axle tire force model: slip angles, load
// sensitive friction, a saturating longitudinal response and the combined
// slip traction ellipse.
package tire

import (
	"math"

	"github.com/OCAP2/vehicledyn/internal/util"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/samber/lo"
)

const (
	minSlipSpeed  = 0.5 // m/s, slip angle denominator floor
	minNormalLoad = 1.0 // N
	minForceLimit = 1e-6

	// MuFactorMin and MuFactorMax bound the load sensitivity multiplier.
	MuFactorMin = 0.5
	MuFactorMax = 1.5

	// MinWheelspinGrip is the rear lateral grip left under full wheelspin.
	MinWheelspinGrip = 0.2
)

// SlipAngles returns the front and rear axle slip angles in radians. delta is
// the effective road-wheel angle.
func SlipAngles(vx, vy, r, lf, lr, delta, maxSlip float64) (front, rear float64) {
	denom := math.Max(math.Abs(vx), minSlipSpeed)
	front = math.Atan2(vy+lf*r, denom) - delta*util.Sign(vx)
	rear = math.Atan2(vy-lr*r, denom)
	return util.ClampAbs(front, maxSlip), util.ClampAbs(rear, maxSlip)
}

// EffectiveMu scales a base friction coefficient down as the axle load rises
// above its reference.
func EffectiveMu(base, k, fz, fzRef float64) float64 {
	fzRef = util.Floor(fzRef, minNormalLoad)
	factor := util.Clamp(1-k*(fz/fzRef-1), MuFactorMin, MuFactorMax)
	return base * factor
}

// CorneringStiffness is the linear lateral stiffness that reaches the
// friction limit at the saturation slip angle.
func CorneringStiffness(mu, fz, saturation float64) float64 {
	return mu * fz / util.Floor(saturation, 1e-3)
}

// LateralForce is the linear tire force clipped to the friction limit.
func LateralForce(alpha, mu, fz, saturation float64) float64 {
	limit := mu * fz
	return util.ClampAbs(-CorneringStiffness(mu, fz, saturation)*alpha, limit)
}

// SlipResponse maps a normalized longitudinal demand to the delivered force
// fraction. It is linear up to peak and saturates smoothly towards 1 beyond.
// excess is how far past peak the demand went.
func SlipResponse(s, peak, falloff float64) (f, excess float64) {
	a := math.Abs(s)
	if a <= peak {
		return s, 0
	}
	excess = a - peak
	f = peak + (1-peak)*math.Tanh(excess/util.Floor(falloff, 1e-3))
	return math.Copysign(f, s), excess
}

// Ellipse limits a force pair to the traction ellipse with semi-axes xMax and
// yMax. An overloaded axle first gives up lateral force in proportion to
// blend; anything still outside is projected onto the boundary. utilization
// is the normalized demand after the lateral attenuation.
func Ellipse(fx, fy, xMax, yMax, blend float64) (outX, outY, utilization float64) {
	xMax = math.Max(xMax, minForceLimit)
	yMax = math.Max(yMax, minForceLimit)
	nx, ny := fx/xMax, fy/yMax
	n := math.Hypot(nx, ny)
	if n > 1 {
		ny *= math.Max(0, 1-blend*(n-1))
		n = math.Hypot(nx, ny)
		if n > 1 {
			nx /= n
			ny /= n
		}
	}
	return nx * xMax, ny * yMax, n
}

// AxleInputs is everything Solve needs for one step.
type AxleInputs struct {
	Params  core.VehicleParameters
	Surface core.SurfaceFriction
	Loads   core.AxleLoads

	VX, VY, YawRate float64 // body frame
	Steer           float64 // effective road-wheel angle, rad

	DriveForce float64 // signed, rear axle
	BrakeForce float64 // magnitude, split by BrakeFrontShare
	Dt         float64
}

// Forces are the solved forces of both axles in their wheel frames.
type Forces struct {
	Front core.AxleForces
	Rear  core.AxleForces
	// Brake is the brake magnitude after the no-reversal cap.
	Brake float64
}

// MaxExcess is the larger longitudinal excess of the two axles.
func (f Forces) MaxExcess() float64 {
	return math.Max(f.Front.Excess, f.Rear.Excess)
}

// MaxSlipAngle is the larger slip angle magnitude of the two axles.
func (f Forces) MaxSlipAngle() float64 {
	return math.Max(math.Abs(f.Front.SlipAngle), math.Abs(f.Rear.SlipAngle))
}

// Solve computes both axles' forces under the traction ellipse.
func Solve(in AxleInputs) Forces {
	p := in.Params
	fzf := util.Floor(in.Loads.Front, minNormalLoad)
	fzr := util.Floor(in.Loads.Rear, minNormalLoad)
	weight := p.Mass * p.Gravity
	refF := weight * p.CGToRear / p.Wheelbase
	refR := weight * p.CGToFront / p.Wheelbase

	alphaF, alphaR := SlipAngles(in.VX, in.VY, in.YawRate, p.CGToFront, p.CGToRear, in.Steer, p.MaxSlipAngle)

	brake := math.Max(in.BrakeForce, 0)
	if in.Dt > 0 {
		brake = math.Min(brake, p.Mass*math.Abs(in.VX)/in.Dt)
	}
	dir := util.Sign(in.VX)
	frontBrake := -dir * brake * p.BrakeFrontShare
	rearBrake := -dir * brake * (1 - p.BrakeFrontShare)

	front := solveAxle(axle{
		fz:       fzf,
		muLat:    EffectiveMu(in.Surface.MuLat, p.LoadSensitivityLat, fzf, refF),
		muLong:   EffectiveMu(in.Surface.MuLong, p.LoadSensitivityLong, fzf, refF),
		alpha:    alphaF,
		demandFx: frontBrake,
		blend:    p.FrontEllipseBlend,
	}, p, false)
	rear := solveAxle(axle{
		fz:       fzr,
		muLat:    EffectiveMu(in.Surface.MuLat, p.LoadSensitivityLat, fzr, refR),
		muLong:   EffectiveMu(in.Surface.MuLong, p.LoadSensitivityLong, fzr, refR),
		alpha:    alphaR,
		demandFx: in.DriveForce + rearBrake,
		blend:    p.RearEllipseBlend,
	}, p, true)

	return Forces{Front: front, Rear: rear, Brake: brake}
}

type axle struct {
	fz, muLat, muLong float64
	alpha             float64
	demandFx          float64
	blend             float64
}

func solveAxle(a axle, p core.VehicleParameters, driven bool) core.AxleForces {
	xMax := a.muLong * a.fz
	s := a.demandFx / math.Max(xMax, minForceLimit)
	f, excess := SlipResponse(s, p.SlipPeak, p.SlipFalloff)
	fx := f * xMax

	muLat := a.muLat
	if driven {
		muLat *= math.Max(MinWheelspinGrip, 1-p.WheelspinGripLoss*excess)
	}
	fy := LateralForce(a.alpha, muLat, a.fz, p.SlipAngleSaturation)

	fx, fy, used := Ellipse(fx, fy, xMax, muLat*a.fz, a.blend)
	return core.AxleForces{
		Longitudinal: fx,
		Lateral:      fy,
		SlipAngle:    a.alpha,
		SlipRatio:    lo.Clamp(s, -10, 10),
		Utilization:  used,
		Excess:       excess,
	}
}

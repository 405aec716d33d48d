package tire

import (
	"math"
	"math/rand"
	"testing"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params() core.VehicleParameters {
	return core.NewParametersBuilder(core.DefaultParameters()).Build()
}

func staticLoads(p core.VehicleParameters) core.AxleLoads {
	w := p.Mass * p.Gravity
	return core.AxleLoads{Front: w * p.CGToRear / p.Wheelbase, Rear: w * p.CGToFront / p.Wheelbase}
}

func TestSlipAngles(t *testing.T) {
	tests := []struct {
		name         string
		vx, vy, r, d float64
		front, rear  float64
	}{
		{name: "straight", vx: 20, front: 0, rear: 0},
		{name: "left steer forward", vx: 20, d: 0.1, front: -0.1, rear: 0},
		{name: "left steer reversing", vx: -5, d: 0.1, front: 0.1, rear: 0},
		{name: "side slip", vx: 10, vy: 10, front: math.Pi / 4, rear: math.Pi / 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, r := SlipAngles(tt.vx, tt.vy, tt.r, 1.2, 1.4, tt.d, 1.2)
			assert.InDelta(t, tt.front, f, 1e-12)
			assert.InDelta(t, tt.rear, r, 1e-12)
		})
	}
}

func TestSlipAngles_LowSpeedFloorAndClamp(t *testing.T) {
	f, r := SlipAngles(0, 3, 0, 1.2, 1.4, 0, 0.5)

	assert.Equal(t, 0.5, f)
	assert.Equal(t, 0.5, r)
	assert.False(t, math.IsNaN(f))
}

func TestEffectiveMu(t *testing.T) {
	tests := []struct {
		name     string
		fz       float64
		expected float64
	}{
		{"at reference", 1000, 1.0},
		{"heavier", 2000, 0.9},
		{"lighter", 500, 1.05},
		{"clamped high load", 1e7, 0.5},
		{"zero load", 0, 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EffectiveMu(1.0, 0.1, tt.fz, 1000), 1e-12)
		})
	}

	assert.InDelta(t, 1.5, EffectiveMu(1.0, 5, 0, 1000), 1e-12)
}

func TestLateralForce(t *testing.T) {
	sat := 8 * math.Pi / 180
	fz := 5000.0

	small := LateralForce(sat/2, 1, fz, sat)
	assert.InDelta(t, -fz/2, small, 1e-9)

	saturated := LateralForce(-1, 1, fz, sat)
	assert.InDelta(t, fz, saturated, 1e-9)
}

func TestSlipResponse(t *testing.T) {
	f, excess := SlipResponse(0.5, 0.85, 0.3)
	assert.Equal(t, 0.5, f)
	assert.Equal(t, 0.0, excess)

	f, excess = SlipResponse(-2, 0.85, 0.3)
	assert.Less(t, f, -0.85)
	assert.GreaterOrEqual(t, f, -1.0)
	assert.InDelta(t, 1.15, excess, 1e-12)

	prev := 0.0
	for s := 0.0; s < 5; s += 0.01 {
		f, _ := SlipResponse(s, 0.85, 0.3)
		assert.GreaterOrEqual(t, f, prev-1e-12, "monotonic at s=%v", s)
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}
}

func TestEllipse_Bound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		xMax := 100 + rng.Float64()*9000
		yMax := 100 + rng.Float64()*9000
		fx := (rng.Float64()*2 - 1) * 3 * xMax
		fy := (rng.Float64()*2 - 1) * 3 * yMax
		blend := rng.Float64()

		ox, oy, _ := Ellipse(fx, fy, xMax, yMax, blend)

		n := (ox/xMax)*(ox/xMax) + (oy/yMax)*(oy/yMax)
		require.LessOrEqual(t, n, 1+1e-9, "fx=%v fy=%v", fx, fy)
		assert.GreaterOrEqual(t, ox*fx, 0.0, "longitudinal sign preserved")
		assert.GreaterOrEqual(t, oy*fy, 0.0, "lateral sign preserved")
	}
}

func TestEllipse_InsideUntouched(t *testing.T) {
	ox, oy, u := Ellipse(300, 400, 1000, 1000, 0.5)

	assert.InDelta(t, 300, ox, 1e-9)
	assert.InDelta(t, 400, oy, 1e-9)
	assert.InDelta(t, 0.5, u, 1e-12)
}

func TestEllipse_LateralGivesWayFirst(t *testing.T) {
	ox, oy, u := Ellipse(1000, 1000, 1000, 1000, 1)

	assert.Greater(t, ox, oy)
	assert.InDelta(t, 1, math.Hypot(ox/1000, oy/1000), 1e-9)
	assert.Greater(t, u, 1.0)

	// With no blend the overload is shared proportionally.
	ox, oy, _ = Ellipse(1000, 1000, 1000, 1000, 0)
	assert.InDelta(t, ox, oy, 1e-9)
}

func TestSolve_StraightCruise(t *testing.T) {
	p := params()

	f := Solve(AxleInputs{
		Params:  p,
		Surface: p.Road,
		Loads:   staticLoads(p),
		VX:      20,
		Dt:      1.0 / 60,
	})

	assert.Equal(t, 0.0, f.Front.Longitudinal)
	assert.Equal(t, 0.0, f.Rear.Longitudinal)
	assert.InDelta(t, 0, f.Front.Lateral, 1e-12)
	assert.InDelta(t, 0, f.Rear.Lateral, 1e-12)
}

func TestSolve_BrakeSplitAndOpposesMotion(t *testing.T) {
	p := params()

	f := Solve(AxleInputs{
		Params:     p,
		Surface:    p.Road,
		Loads:      staticLoads(p),
		VX:         20,
		BrakeForce: 4000,
		Dt:         1.0 / 60,
	})

	assert.Less(t, f.Front.Longitudinal, 0.0)
	assert.Less(t, f.Rear.Longitudinal, 0.0)
	assert.InDelta(t, -4000*p.BrakeFrontShare, f.Front.Longitudinal, 1e-6)
	assert.Equal(t, 4000.0, f.Brake)

	rev := Solve(AxleInputs{
		Params:     p,
		Surface:    p.Road,
		Loads:      staticLoads(p),
		VX:         -3,
		BrakeForce: 4000,
		Dt:         1.0 / 60,
	})
	assert.Greater(t, rev.Front.Longitudinal, 0.0)
}

func TestSolve_BrakeCappedNearStandstill(t *testing.T) {
	p := params()
	dt := 1.0 / 60

	f := Solve(AxleInputs{
		Params:     p,
		Surface:    p.Road,
		Loads:      staticLoads(p),
		VX:         0.01,
		BrakeForce: p.BrakeForce,
		Dt:         dt,
	})

	assert.InDelta(t, p.Mass*0.01/dt, f.Brake, 1e-9)

	still := Solve(AxleInputs{Params: p, Surface: p.Road, Loads: staticLoads(p), BrakeForce: p.BrakeForce, Dt: dt})
	assert.Equal(t, 0.0, still.Brake)
}

func TestSolve_WheelspinCostsRearGrip(t *testing.T) {
	p := params()
	base := AxleInputs{
		Params:  p,
		Surface: p.Road,
		Loads:   staticLoads(p),
		VX:      10,
		VY:      2,
		Dt:      1.0 / 60,
	}
	spin := base
	spin.DriveForce = 50000

	calm := Solve(base)
	wild := Solve(spin)

	assert.Greater(t, wild.Rear.Excess, 0.0)
	assert.Less(t, math.Abs(wild.Rear.Lateral), math.Abs(calm.Rear.Lateral))
	assert.Equal(t, 0.0, calm.MaxExcess())
}

func TestSolve_FiniteUnderRandomInputs(t *testing.T) {
	p := params()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		in := AxleInputs{
			Params:     p,
			Surface:    p.Grass,
			Loads:      staticLoads(p),
			VX:         rng.Float64()*60 - 10,
			VY:         rng.Float64()*10 - 5,
			YawRate:    rng.Float64()*4 - 2,
			Steer:      rng.Float64() - 0.5,
			DriveForce: rng.Float64() * 20000,
			BrakeForce: rng.Float64() * p.BrakeForce,
			Dt:         1.0 / 60,
		}
		f := Solve(in)
		for _, a := range []core.AxleForces{f.Front, f.Rear} {
			assert.False(t, math.IsNaN(a.Longitudinal))
			assert.False(t, math.IsNaN(a.Lateral))
		}
		assert.LessOrEqual(t, f.MaxSlipAngle(), p.MaxSlipAngle)
	}
}

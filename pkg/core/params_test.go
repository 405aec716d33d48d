package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_DerivesGeometry(t *testing.T) {
	p := NewParametersBuilder(DefaultParameters()).Build()

	assert.InDelta(t, 2.6, p.Wheelbase, 1e-12)
	assert.InDelta(t, 1200*(4.2*4.2+1.8*1.8)/12, p.YawInertia, 1e-9)
	assert.Equal(t, BackendDynamic, p.Backend.Mode)
}

func TestBuild_Floors(t *testing.T) {
	p := NewParametersBuilder(VehicleParameters{}).
		Mass(0).
		Geometry(0, 0, -1).
		Footprint(0, 0).
		Steering(5, 0).
		BackendMode("warp").
		MaxSpeed(0, 50).
		Build()

	assert.Equal(t, 1.0, p.Mass)
	assert.GreaterOrEqual(t, p.Wheelbase, 0.5)
	assert.GreaterOrEqual(t, p.YawInertia, 1.0)
	assert.Equal(t, 0.0, p.CGHeight)
	assert.Equal(t, 1.4, p.MaxSteerAngle)
	assert.Greater(t, p.SteerRate, 0.0)
	assert.Equal(t, 9.81, p.Gravity)
	assert.Equal(t, 1.0, p.ReverseSteerFactor)
	assert.Equal(t, BackendDynamic, p.Backend.Mode)
	assert.Equal(t, 8, p.Backend.VelocityIterations)
	assert.Equal(t, 3, p.Backend.PositionIterations)
	assert.Equal(t, 1.0, p.MaxSpeed)
	assert.Equal(t, p.MaxSpeed, p.MaxReverseSpeed)
	assert.Equal(t, 8.0, p.MaxYawRate)
	assert.GreaterOrEqual(t, p.Road.MuLat, 0.05)
	assert.Greater(t, p.AccelFilterTau, 0.0)
	assert.GreaterOrEqual(t, p.ReverseEntrySpeed, p.DirectionBand)
}

func TestBuild_NaNSafe(t *testing.T) {
	base := DefaultParameters()
	base.SlipPeak = math.NaN()
	base.BrakeFrontShare = math.NaN()

	p := NewParametersBuilder(base).Build()

	assert.Equal(t, 0.05, p.SlipPeak)
	assert.Equal(t, 0.0, p.BrakeFrontShare)
}

func TestBuild_DoesNotMutateBase(t *testing.T) {
	base := DefaultParameters()
	b := NewParametersBuilder(base)
	b.Mass(5000)
	p := b.Build()

	assert.Equal(t, 5000.0, p.Mass)
	assert.Equal(t, 1200.0, base.Mass)
}

func TestAdaptiveSteering_SetsFlag(t *testing.T) {
	p := NewParametersBuilder(DefaultParameters()).
		AdaptiveSteering(SteeringProfile{LowSpeedLock: 0.5, HighSpeedLock: 0.9}).
		Build()

	assert.True(t, p.Steering.Adaptive)
	assert.LessOrEqual(t, p.Steering.HighSpeedLock, p.Steering.LowSpeedLock)
}

func TestBodyDensity(t *testing.T) {
	p := NewParametersBuilder(DefaultParameters()).Build()
	assert.InDelta(t, 1200/(1.8*4.2), p.BodyDensity(), 1e-12)

	p.Backend.Density = 3
	assert.Equal(t, 3.0, p.BodyDensity())
}

func TestNewVehicleState_StaticLoads(t *testing.T) {
	p := NewParametersBuilder(DefaultParameters()).Build()
	st := NewVehicleState(p, mgl64.Vec2{1, 2}, 0.5)

	assert.Equal(t, 1, st.Direction)
	assert.InDelta(t, p.Mass*p.Gravity, st.Loads.Total(), 1e-9)
	assert.Greater(t, st.Loads.Front, st.Loads.Rear, "CG sits ahead of the midpoint")
	assert.Equal(t, st.Loads, st.PrevLoads)
	assert.Equal(t, 0.0, st.Speed())
}

func TestFrameRotation(t *testing.T) {
	st := VehicleState{Heading: math.Pi / 2}

	world := st.ToWorld(mgl64.Vec2{1, 0})
	assert.InDelta(t, 0, world.X(), 1e-12)
	assert.InDelta(t, 1, world.Y(), 1e-12)

	body := st.ToBody(world)
	require.InDelta(t, 1, body.X(), 1e-12)
	assert.InDelta(t, 0, body.Y(), 1e-12)

	fwd := st.Forward()
	assert.InDelta(t, 1, fwd.Y(), 1e-12)
}

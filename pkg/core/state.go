// pkg/core/state.go
package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyHandle references a body owned by a rigid-body world. Zero means none.
type BodyHandle uint64

// AxleLoads are the front and rear axle normal forces in newtons.
type AxleLoads struct {
	Front float64 `json:"front"`
	Rear  float64 `json:"rear"`
}

// Total returns the summed normal load.
func (l AxleLoads) Total() float64 {
	return l.Front + l.Rear
}

// FilterState holds the low-pass filters carried between steps.
type FilterState struct {
	LongAccel float64 `json:"longAccel"` // filtered commanded longitudinal acceleration, m/s^2
	Speed     float64 `json:"speed"`     // filtered speed used by adaptive steering, m/s
	Lock      float64 `json:"lock"`      // active adaptive steer lock, rad
}

// VehicleState is the mutable per-car simulation state.
type VehicleState struct {
	Position     mgl64.Vec2 `json:"position"`     // world frame, m
	Heading      float64    `json:"heading"`      // rad, counter-clockwise from +X
	Velocity     mgl64.Vec2 `json:"velocity"`     // world frame, m/s
	BodyVelocity mgl64.Vec2 `json:"bodyVelocity"` // X forward, Y left, m/s
	YawRate      float64    `json:"yawRate"`      // rad/s, positive counter-clockwise
	SteerAngle   float64    `json:"steerAngle"`   // rad, filtered, positive left

	// Direction is +1 moving forward or -1 reversing. It only changes when
	// BodyVelocity.X() leaves the configured hysteresis band.
	Direction int `json:"direction"`

	Loads     AxleLoads   `json:"loads"`
	PrevLoads AxleLoads   `json:"prevLoads"`
	Filter    FilterState `json:"filter"`

	ReverseHold bool    `json:"reverseHold"`
	Skid        float64 `json:"skid"`

	Body BodyHandle `json:"-"`
	Tick uint64     `json:"tick"`
}

// NewVehicleState returns a car at rest with static axle loads.
func NewVehicleState(p VehicleParameters, position mgl64.Vec2, heading float64) VehicleState {
	weight := p.Mass * p.Gravity
	static := AxleLoads{
		Front: weight * p.CGToRear / p.Wheelbase,
		Rear:  weight * p.CGToFront / p.Wheelbase,
	}
	return VehicleState{
		Position:  position,
		Heading:   heading,
		Direction: 1,
		Loads:     static,
		PrevLoads: static,
	}
}

// Speed is the magnitude of the planar velocity.
func (s *VehicleState) Speed() float64 {
	return math.Hypot(s.BodyVelocity.X(), s.BodyVelocity.Y())
}

// Forward returns the unit vector the car points along.
func (s *VehicleState) Forward() mgl64.Vec2 {
	return mgl64.Vec2{math.Cos(s.Heading), math.Sin(s.Heading)}
}

// ToWorld rotates a body-frame vector into the world frame.
func (s *VehicleState) ToWorld(v mgl64.Vec2) mgl64.Vec2 {
	return Rotate(v, s.Heading)
}

// ToBody rotates a world-frame vector into the body frame.
func (s *VehicleState) ToBody(v mgl64.Vec2) mgl64.Vec2 {
	return Rotate(v, -s.Heading)
}

// Rotate rotates v counter-clockwise by angle.
func Rotate(v mgl64.Vec2, angle float64) mgl64.Vec2 {
	return mgl64.Rotate2D(angle).Mul2x1(v)
}

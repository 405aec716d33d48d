// Package rigidbody owns the optional rigid-body world used for collision
// response between cars.
package rigidbody

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrBodyCreation is returned when the engine cannot create a body.
	ErrBodyCreation = errors.New("rigid body creation failed")
	// ErrStaleHandle is returned for handles issued before the last rebuild.
	ErrStaleHandle = errors.New("stale body handle")
	// ErrUnknownCar is returned when no body is registered for a car ID.
	ErrUnknownCar = errors.New("no body registered for car")
)

// BodyParams describes the collider of one car.
type BodyParams struct {
	Width          float64
	Length         float64
	Density        float64
	Friction       float64
	Restitution    float64
	LinearDamping  float64
	AngularDamping float64
}

// SolverConfig tunes the constraint solver.
type SolverConfig struct {
	VelocityIterations int `json:"velocityIterations" mapstructure:"velocityIterations"`
	PositionIterations int `json:"positionIterations" mapstructure:"positionIterations"`
}

// DefaultSolverConfig mirrors the usual Box2D recommendation.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{VelocityIterations: 8, PositionIterations: 3}
}

func (c SolverConfig) withDefaults() SolverConfig {
	def := DefaultSolverConfig()
	if c.VelocityIterations < 1 {
		c.VelocityIterations = def.VelocityIterations
	}
	if c.PositionIterations < 1 {
		c.PositionIterations = def.PositionIterations
	}
	return c
}

// BodyRef is an engine-specific body reference.
type BodyRef any

// Engine is the rigid-body backend collaborator. Implementations need not be
// safe for concurrent use; World serializes every call.
type Engine interface {
	CreateBody(pos mgl64.Vec2, angle float64, params BodyParams) (BodyRef, error)
	DestroyBody(ref BodyRef)
	ApplyForce(ref BodyRef, force, point mgl64.Vec2)
	ApplyTorque(ref BodyRef, torque float64)
	Step(dt float64, velocityIterations, positionIterations int)
	Transform(ref BodyRef) (pos mgl64.Vec2, angle float64)
	Velocity(ref BodyRef) (linear mgl64.Vec2, angular float64)
	SetVelocity(ref BodyRef, linear mgl64.Vec2, angular float64)
	Mass(ref BodyRef) float64
	Inertia(ref BodyRef) float64
	WorldCenter(ref BodyRef) mgl64.Vec2
}

// EngineFactory builds a fresh engine.
type EngineFactory func(SolverConfig) (Engine, error)

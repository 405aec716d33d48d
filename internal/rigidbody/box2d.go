package rigidbody

import (
	"fmt"

	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"
)

type box2dEngine struct {
	world *box2d.B2World
}

// NewBox2D is the default EngineFactory: a zero-gravity top-down Box2D world.
func NewBox2D(SolverConfig) (Engine, error) {
	w := box2d.MakeB2World(box2d.MakeB2Vec2(0, 0))
	return &box2dEngine{world: &w}, nil
}

func toB2(v mgl64.Vec2) box2d.B2Vec2 {
	return box2d.MakeB2Vec2(v.X(), v.Y())
}

func fromB2(v box2d.B2Vec2) mgl64.Vec2 {
	return mgl64.Vec2{v.X, v.Y}
}

func (e *box2dEngine) body(ref BodyRef) *box2d.B2Body {
	b, _ := ref.(*box2d.B2Body)
	return b
}

// CreateBody builds a dynamic box with its long axis on body X. Box2D
// assertion panics are reported as ErrBodyCreation.
func (e *box2dEngine) CreateBody(pos mgl64.Vec2, angle float64, p BodyParams) (ref BodyRef, err error) {
	if p.Width <= 0 || p.Length <= 0 || p.Density <= 0 {
		return nil, fmt.Errorf("%w: footprint %.2fx%.2f density %.2f", ErrBodyCreation, p.Length, p.Width, p.Density)
	}
	defer func() {
		if r := recover(); r != nil {
			ref = nil
			err = fmt.Errorf("%w: %v", ErrBodyCreation, r)
		}
	}()

	bd := box2d.MakeB2BodyDef()
	bd.Type = box2d.B2BodyType.B2_dynamicBody
	bd.Position = toB2(pos)
	bd.Angle = angle
	bd.LinearDamping = p.LinearDamping
	bd.AngularDamping = p.AngularDamping
	bd.AllowSleep = false

	body := e.world.CreateBody(&bd)
	if body == nil {
		return nil, fmt.Errorf("%w: world is locked", ErrBodyCreation)
	}

	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(p.Length/2, p.Width/2)

	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Density = p.Density
	fd.Friction = p.Friction
	fd.Restitution = p.Restitution
	body.CreateFixtureFromDef(&fd)

	return body, nil
}

func (e *box2dEngine) DestroyBody(ref BodyRef) {
	if b := e.body(ref); b != nil {
		e.world.DestroyBody(b)
	}
}

func (e *box2dEngine) ApplyForce(ref BodyRef, force, point mgl64.Vec2) {
	if b := e.body(ref); b != nil {
		b.ApplyForce(toB2(force), toB2(point), true)
	}
}

func (e *box2dEngine) ApplyTorque(ref BodyRef, torque float64) {
	if b := e.body(ref); b != nil {
		b.ApplyTorque(torque, true)
	}
}

func (e *box2dEngine) Step(dt float64, velocityIterations, positionIterations int) {
	e.world.Step(dt, velocityIterations, positionIterations)
}

func (e *box2dEngine) Transform(ref BodyRef) (mgl64.Vec2, float64) {
	b := e.body(ref)
	if b == nil {
		return mgl64.Vec2{}, 0
	}
	return fromB2(b.GetPosition()), b.GetAngle()
}

func (e *box2dEngine) Velocity(ref BodyRef) (mgl64.Vec2, float64) {
	b := e.body(ref)
	if b == nil {
		return mgl64.Vec2{}, 0
	}
	return fromB2(b.GetLinearVelocity()), b.GetAngularVelocity()
}

func (e *box2dEngine) SetVelocity(ref BodyRef, linear mgl64.Vec2, angular float64) {
	if b := e.body(ref); b != nil {
		b.SetLinearVelocity(toB2(linear))
		b.SetAngularVelocity(angular)
	}
}

func (e *box2dEngine) Mass(ref BodyRef) float64 {
	if b := e.body(ref); b != nil {
		return b.GetMass()
	}
	return 0
}

func (e *box2dEngine) Inertia(ref BodyRef) float64 {
	if b := e.body(ref); b != nil {
		return b.GetInertia()
	}
	return 0
}

func (e *box2dEngine) WorldCenter(ref BodyRef) mgl64.Vec2 {
	if b := e.body(ref); b != nil {
		return fromB2(b.GetWorldCenter())
	}
	return mgl64.Vec2{}
}

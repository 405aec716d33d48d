package dynamics

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/OCAP2/vehicledyn/internal/drivetrain"
	"github.com/OCAP2/vehicledyn/internal/rigidbody"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dependencies holds the collaborators shared by every simulator.
type Dependencies struct {
	World      *rigidbody.World
	Logger     *slog.Logger
	OnFallback FallbackFunc
}

// FallbackFunc is told when a car leaves the rigid-body backend.
type FallbackFunc func(carID uint, err error)

// Simulator owns the state of one car and drives it through the two-phase
// step used by the race scheduler: Prepare for all cars, one world step, then
// Complete for all cars.
type Simulator struct {
	ID      uint
	State   core.VehicleState
	Params  core.VehicleParameters
	Gearbox drivetrain.Gearbox

	world      *rigidbody.World
	log        *slog.Logger
	metrics    *instruments
	onFallback FallbackFunc

	backend      IntegrationBackend
	fallbackOnce sync.Once

	pending  plan
	prepared bool
	direct   bool // pending step was integrated without the world
	last     core.Diagnostics
}

// NewSimulator resolves the backend for the car and returns a simulator ready
// to step. A rigid-body request that fails falls back to DynamicOnly.
func NewSimulator(id uint, p core.VehicleParameters, st core.VehicleState, gb drivetrain.Gearbox, deps Dependencies) *Simulator {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	m, err := newInstruments()
	if err != nil {
		log.Warn("dynamics metrics unavailable", "error", err)
	}
	s := &Simulator{
		ID:         id,
		State:      st,
		Params:     p,
		Gearbox:    gb,
		world:      deps.World,
		log:        log.With("car", id),
		metrics:    m,
		onFallback: deps.OnFallback,
	}
	s.resolve()
	return s
}

// Backend returns the resolved integration backend.
func (s *Simulator) Backend() IntegrationBackend {
	return s.backend
}

// Diagnostics returns the record of the last completed step.
func (s *Simulator) Diagnostics() core.Diagnostics {
	return s.last
}

// SetParameters swaps the vehicle parameters and re-resolves the backend.
func (s *Simulator) SetParameters(p core.VehicleParameters) {
	s.release()
	s.Params = p
	s.fallbackOnce = sync.Once{}
	s.resolve()
}

func (s *Simulator) resolve() {
	b, err := ResolveBackend(s.Params.Backend.Mode, s.world, s.ID, &s.State, s.Params)
	s.backend = b
	if err != nil {
		s.fallback(err)
	}
}

func (s *Simulator) fallback(err error) {
	s.backend = IntegrationBackend{Kind: DynamicOnly}
	s.State.Body = 0
	s.fallbackOnce.Do(func() {
		s.log.Warn("rigid-body backend unavailable, integrating directly", "error", err)
		if s.metrics != nil {
			s.metrics.fallbacks.Add(context.Background(), 1)
		}
		if s.onFallback != nil {
			s.onFallback(s.ID, err)
		}
	})
}

func (s *Simulator) release() {
	if s.backend.Kind == RigidBodyAssisted && s.world != nil {
		_ = s.world.Unregister(s.ID)
	}
	s.State.Body = 0
}

// Despawn releases the car's body. The simulator must not be stepped again.
func (s *Simulator) Despawn() {
	s.release()
	s.backend = IntegrationBackend{Kind: DynamicOnly}
}

// Prepare runs the force phase. Rigid-body cars push their force and torque
// into the world; every other backend integrates immediately. Prepare only
// touches this car's state and is safe to call for different cars in
// parallel.
func (s *Simulator) Prepare(in core.Input, surf core.SurfaceInfo, dt float64) {
	s.prepared = true
	s.direct = true
	if !validDt(dt) {
		s.pending = plan{}
		s.last = idle(&s.State, s.Params, s.Gearbox, s.backend.Kind)
		s.prepared = false
		return
	}

	s.pending = forcePhase(&s.State, s.Params, s.Gearbox, in, surf, dt, s.backend.Kind)

	if s.backend.Kind == RigidBodyAssisted {
		err := s.pushToWorld(dt)
		if err == nil {
			s.direct = false
			return
		}
		s.fallback(err)
	}
	integrateDirect(&s.State, s.pending, dt)
}

func (s *Simulator) pushToWorld(dt float64) error {
	err := s.applyDesired(dt)
	if errors.Is(err, rigidbody.ErrStaleHandle) {
		h, rerr := s.world.Resolve(s.ID)
		if rerr != nil {
			return rerr
		}
		s.backend.Handle = h
		s.State.Body = h
		err = s.applyDesired(dt)
	}
	return err
}

func (s *Simulator) applyDesired(dt float64) error {
	body, err := s.world.State(s.backend.Handle)
	if err != nil {
		return err
	}
	heading := s.State.Heading + s.pending.yawRate*dt
	desired := core.Rotate(s.pending.bodyVel, heading)
	force := desired.Sub(body.Velocity).Mul(body.Mass / dt)
	torque := body.Inertia * (s.pending.yawRate - body.AngularVelocity) / dt
	if err := s.world.ApplyForce(s.backend.Handle, force); err != nil {
		return err
	}
	return s.world.ApplyTorque(s.backend.Handle, torque)
}

// Complete finishes the step after the world has stepped: it reads back the
// body, post-processes the velocity and writes it back to the body.
func (s *Simulator) Complete(dt float64) core.Diagnostics {
	if !s.prepared {
		return s.last
	}
	s.prepared = false

	if !s.direct {
		if err := s.readBack(); err != nil {
			s.fallback(err)
			integrateDirect(&s.State, s.pending, dt)
			s.direct = true
		}
	}
	postProcess(&s.State, s.Params, s.pending, dt)
	if !s.direct {
		if err := s.world.SetVelocity(s.backend.Handle, s.State.Velocity, s.State.YawRate); err != nil {
			s.fallback(err)
		}
	}

	s.last = finish(&s.State, s.Params, s.pending, s.backend.Kind)
	if s.metrics != nil {
		s.metrics.steps.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("backend", s.backend.Kind.String())))
	}
	return s.last
}

func (s *Simulator) readBack() error {
	body, err := s.world.State(s.backend.Handle)
	if err != nil {
		return err
	}
	s.State.Position = body.Position
	s.State.Heading = wrapAngle(body.Angle)
	s.State.Velocity = body.Velocity
	s.State.BodyVelocity = s.State.ToBody(body.Velocity)
	s.State.YawRate = body.AngularVelocity
	return nil
}

// Step advances this car alone. Rigid-body cars step the shared world, so
// Step is only meant for single-car use such as tests and tools.
func (s *Simulator) Step(in core.Input, surf core.SurfaceInfo, dt float64) core.Diagnostics {
	s.Prepare(in, surf, dt)
	if s.prepared && !s.direct {
		s.world.Step(dt)
	}
	return s.Complete(dt)
}

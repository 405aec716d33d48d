// Package race runs every car of a session on one fixed-step clock.
package race

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/dispatcher"
	"github.com/OCAP2/vehicledyn/internal/drivetrain"
	"github.com/OCAP2/vehicledyn/internal/dynamics"
	"github.com/OCAP2/vehicledyn/internal/gearbox"
	"github.com/OCAP2/vehicledyn/internal/rigidbody"
	"github.com/OCAP2/vehicledyn/internal/session"
	"github.com/OCAP2/vehicledyn/internal/worker"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidTickRate is returned for a non-positive tick rate.
	ErrInvalidTickRate = errors.New("tick rate must be positive")
	// ErrUnknownCar is returned for a car ID that is not racing.
	ErrUnknownCar = errors.New("unknown car")
)

// Driver produces the input of one car.
type Driver interface {
	InputAt(simTime time.Duration) (core.Input, core.SurfaceInfo)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(simTime time.Duration) (core.Input, core.SurfaceInfo)

// InputAt calls f.
func (f DriverFunc) InputAt(simTime time.Duration) (core.Input, core.SurfaceInfo) {
	return f(simTime)
}

// Recorder receives the race records. *dispatcher.Dispatcher implements it.
type Recorder interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// TickRecorder stores per-tick timing.
type TickRecorder interface {
	RecordTick(tick uint64, cars int, took time.Duration) error
}

// Dependencies holds the collaborators of the scheduler
type Dependencies struct {
	World          *rigidbody.World
	Recorder       Recorder
	SessionContext *session.Context
	Ticks          TickRecorder
	Logger         *slog.Logger
}

// CarSpec describes a car to spawn.
type CarSpec struct {
	Name    string
	AI      bool
	Params  core.VehicleParameters
	Gearbox drivetrain.Gearbox // nil uses gearbox.DefaultConfig
	Spawn   mgl64.Vec2
	Heading float64
	Driver  Driver
}

type car struct {
	info    core.CarInfo
	sim     *dynamics.Simulator
	driver  Driver
	input   core.Input
	surface core.SurfaceInfo
}

// Scheduler steps all cars once per tick: Prepare for every car in parallel,
// one world step, then Complete for every car in spawn order.
type Scheduler struct {
	deps   Dependencies
	cfg    config.SimConfig
	dt     float64
	log    *slog.Logger
	tickMs metric.Float64Histogram

	mu     sync.Mutex
	tick   uint64
	nextID uint
	cars   map[uint]*car
	order  []uint

	eventsMu sync.Mutex
	events   []core.CarEvent

	dropped atomic.Uint64
}

// New creates a scheduler for the given simulation settings.
func New(cfg config.SimConfig, deps Dependencies) (*Scheduler, error) {
	dt := cfg.Dt()
	if dt <= 0 || math.IsInf(dt, 0) {
		return nil, ErrInvalidTickRate
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Scheduler{
		deps:   deps,
		cfg:    cfg,
		dt:     dt,
		log:    deps.Logger.With("component", "race"),
		nextID: 1,
		cars:   make(map[uint]*car),
	}
	h, err := newTickHistogram()
	if err != nil {
		s.log.Warn("race metrics unavailable", "error", err)
	}
	s.tickMs = h
	return s, nil
}

// Dt returns the step length in seconds.
func (s *Scheduler) Dt() float64 {
	return s.dt
}

// Tick returns the number of completed ticks.
func (s *Scheduler) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// SimTime returns the simulated time of the last completed tick.
func (s *Scheduler) SimTime() time.Duration {
	return s.simTime(s.Tick())
}

func (s *Scheduler) simTime(tick uint64) time.Duration {
	return time.Duration(math.Round(float64(tick) * s.dt * float64(time.Second)))
}

// Dropped returns the samples discarded because the recorder queue was full.
func (s *Scheduler) Dropped() uint64 {
	return s.dropped.Load()
}

// Cars returns the racing cars in spawn order.
func (s *Scheduler) Cars() []core.CarInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.order, func(id uint, _ int) core.CarInfo { return s.cars[id].info })
}

// State returns the state and last diagnostics of a car.
func (s *Scheduler) State(id uint) (core.VehicleState, core.Diagnostics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cars[id]
	if !ok {
		return core.VehicleState{}, core.Diagnostics{}, fmt.Errorf("%w: %d", ErrUnknownCar, id)
	}
	return c.sim.State, c.sim.Diagnostics(), nil
}

// Spawn adds a car at its spawn pose and registers it with the recorder. A
// race-wide backend override replaces the vehicle's own mode.
func (s *Scheduler) Spawn(spec CarSpec) (core.CarInfo, error) {
	if spec.Driver == nil {
		return core.CarInfo{}, errors.New("spawn: car has no driver")
	}
	params := spec.Params
	if s.cfg.Backend != "" {
		params = core.NewParametersBuilder(params).BackendMode(s.cfg.Backend).Build()
	}
	gb := spec.Gearbox
	if gb == nil {
		gb = gearbox.New(gearbox.DefaultConfig())
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	tick := s.tick

	st := core.NewVehicleState(params, spec.Spawn, spec.Heading)
	sim := dynamics.NewSimulator(id, params, st, gb, dynamics.Dependencies{
		World:      s.deps.World,
		Logger:     s.log,
		OnFallback: s.onFallback,
	})
	info := core.CarInfo{
		ID:      id,
		Name:    spec.Name,
		Kind:    params.Kind,
		AI:      spec.AI,
		Backend: sim.Backend().Mode(),
		Spawn:   spec.Spawn,
		Heading: spec.Heading,
		Params:  params,
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("car-%d", id)
	}
	s.cars[id] = &car{info: info, sim: sim, driver: spec.Driver}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.record(worker.CommandAddCar, info)
	s.queueEvent(core.CarEvent{CarID: id, Type: core.EventSpawn, Message: string(info.Backend)})
	s.flushEvents(tick)
	s.log.Info("car spawned", "car", id, "kind", info.Kind, "backend", info.Backend, "ai", info.AI)
	return info, nil
}

// Despawn removes a car and releases its body.
func (s *Scheduler) Despawn(id uint) error {
	s.mu.Lock()
	c, ok := s.cars[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownCar, id)
	}
	c.sim.Despawn()
	delete(s.cars, id)
	s.order = lo.Without(s.order, id)
	tick := s.tick
	s.mu.Unlock()

	s.queueEvent(core.CarEvent{CarID: id, Type: core.EventDespawn})
	s.flushEvents(tick)
	return nil
}

// SetSolver rebuilds the rigid-body world with a new solver configuration.
// Cars re-resolve their bodies on the next tick.
func (s *Scheduler) SetSolver(solver rigidbody.SolverConfig) error {
	if s.deps.World == nil {
		return fmt.Errorf("set solver: %w: no world", rigidbody.ErrBodyCreation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.World.Rebuild(solver); err != nil {
		return err
	}
	for _, id := range s.order {
		if s.cars[id].sim.Backend().Kind == dynamics.RigidBodyAssisted {
			s.queueEvent(core.CarEvent{
				CarID: id,
				Type:  core.EventSolverRebuild,
				Value: float64(s.deps.World.Generation()),
			})
		}
	}
	s.flushEvents(s.tick)
	return nil
}

func (s *Scheduler) onFallback(carID uint, err error) {
	s.queueEvent(core.CarEvent{CarID: carID, Type: core.EventBackendFallback, Message: err.Error()})
}

func (s *Scheduler) queueEvent(e core.CarEvent) {
	s.eventsMu.Lock()
	s.events = append(s.events, e)
	s.eventsMu.Unlock()
}

func (s *Scheduler) flushEvents(tick uint64) {
	s.eventsMu.Lock()
	events := s.events
	s.events = nil
	s.eventsMu.Unlock()

	for _, e := range events {
		e.Tick = tick
		e.SimTime = s.simTime(tick)
		s.record(worker.CommandEvent, e)
	}
}

func (s *Scheduler) record(command string, payload any) {
	if s.deps.Recorder == nil {
		return
	}
	_, err := s.deps.Recorder.Dispatch(dispatcher.Event{Command: command, Payload: payload})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrQueueFull) && command == worker.CommandSample:
		s.dropped.Add(1)
	default:
		s.log.Warn("failed to record", "command", command, "error", err)
	}
}

// Step runs one tick.
func (s *Scheduler) Step() error {
	start := time.Now()

	s.mu.Lock()
	tick := s.tick + 1
	simTime := s.simTime(s.tick)
	cars := lo.Map(s.order, func(id uint, _ int) *car { return s.cars[id] })

	for _, c := range cars {
		c.input, c.surface = c.driver.InputAt(simTime)
		if c.info.AI {
			c.input = s.cfg.Launch.Apply(c.input, c.sim.State.Speed(), s.pathClear(c, cars))
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, c := range cars {
		g.Go(func() error {
			c.sim.Prepare(c.input, c.surface, s.dt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("tick %d: %w", tick, err)
	}

	if s.deps.World != nil {
		s.deps.World.Step(s.dt)
	}

	endTime := s.simTime(tick)
	for _, c := range cars {
		diag := c.sim.Complete(s.dt)
		diag.Tick = tick
		st := c.sim.State
		s.record(worker.CommandSample, core.Sample{
			CarID:    c.info.ID,
			Tick:     tick,
			SimTime:  endTime,
			Position: st.Position,
			Heading:  st.Heading,
			Velocity: st.Velocity,
			YawRate:  st.YawRate,
			Diag:     diag,
		})
		if diag.Shift != 0 {
			s.queueEvent(core.CarEvent{
				CarID:   c.info.ID,
				Type:    core.EventShift,
				Message: fmt.Sprintf("gear %d", diag.Gear),
				Value:   float64(diag.Gear),
			})
		}
		c.info.Backend = c.sim.Backend().Mode()
	}
	s.tick = tick
	s.mu.Unlock()

	s.flushEvents(tick)
	if sc := s.deps.SessionContext; sc != nil {
		sc.SetTick(tick)
	}

	took := time.Since(start)
	if s.tickMs != nil {
		s.tickMs.Record(context.Background(), float64(took.Microseconds())/1000)
	}
	if s.deps.Ticks != nil {
		if err := s.deps.Ticks.RecordTick(tick, len(cars), took); err != nil {
			s.log.Debug("failed to record tick timing", "error", err)
		}
	}
	if s.cfg.LogEvery > 0 && tick%uint64(s.cfg.LogEvery) == 0 {
		s.log.Info("race tick", "tick", tick, "simTime", endTime, "cars", len(cars), "took", took, "dropped", s.Dropped())
	}
	return nil
}

// pathClear reports whether no other car sits in front of c within a few
// car lengths.
func (s *Scheduler) pathClear(c *car, cars []*car) bool {
	forward := c.sim.State.Forward()
	lookahead := max(3*c.info.Params.Length, 5)
	corridor := c.info.Params.Width
	for _, other := range cars {
		if other == c {
			continue
		}
		d := other.sim.State.Position.Sub(c.sim.State.Position)
		along := d.Dot(forward)
		lateral := math.Abs(d.X()*forward.Y() - d.Y()*forward.X())
		if along > 0 && along < lookahead && lateral < corridor {
			return false
		}
	}
	return true
}

// Run steps the race until duration of simulated time has passed or ctx is
// done. A zero duration runs until ctx is done. When realtime is set each tick
// waits for the wall clock.
func (s *Scheduler) Run(ctx context.Context, duration time.Duration, realtime bool) error {
	var ticks uint64
	if duration > 0 {
		ticks = uint64(math.Ceil(duration.Seconds()/s.dt - 1e-9))
	}

	var pace *time.Ticker
	if realtime {
		pace = time.NewTicker(time.Duration(s.dt * float64(time.Second)))
		defer pace.Stop()
	}

	for n := uint64(0); ticks == 0 || n < ticks; n++ {
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

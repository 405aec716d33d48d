package rigidbody

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// BodyState is the read-back of one body after a step.
type BodyState struct {
	Position        mgl64.Vec2
	Angle           float64
	Velocity        mgl64.Vec2
	AngularVelocity float64
	Mass            float64
	Inertia         float64
}

type slot struct {
	carID  uint
	ref    BodyRef
	params BodyParams
	live   bool
}

// World is the shared rigid-body context. The engine is created on the first
// Register and replaced wholesale by Rebuild.
type World struct {
	mu         sync.Mutex
	factory    EngineFactory
	solver     SolverConfig
	engine     Engine
	generation uint32
	slots      []slot
	byCar      map[uint]core.BodyHandle
	log        *slog.Logger
}

// NewWorld returns an empty world. A nil factory selects Box2D.
func NewWorld(factory EngineFactory, solver SolverConfig, log *slog.Logger) *World {
	if factory == nil {
		factory = NewBox2D
	}
	if log == nil {
		log = slog.Default()
	}
	return &World{
		factory: factory,
		solver:  solver.withDefaults(),
		byCar:   make(map[uint]core.BodyHandle),
		log:     log,
	}
}

func makeHandle(generation uint32, index int) core.BodyHandle {
	return core.BodyHandle(uint64(generation)<<32 | uint64(index+1))
}

func splitHandle(h core.BodyHandle) (generation uint32, index int) {
	return uint32(uint64(h) >> 32), int(uint32(h)) - 1
}

func (w *World) ensureEngine() error {
	if w.engine != nil {
		return nil
	}
	engine, err := w.factory(w.solver)
	if err != nil {
		return fmt.Errorf("%w: engine: %w", ErrBodyCreation, err)
	}
	w.engine = engine
	w.generation++
	return nil
}

// lookup resolves a handle to its slot. Callers hold mu.
func (w *World) lookup(h core.BodyHandle) (*slot, error) {
	gen, idx := splitHandle(h)
	if w.engine == nil || gen != w.generation {
		return nil, ErrStaleHandle
	}
	if idx < 0 || idx >= len(w.slots) || !w.slots[idx].live {
		return nil, ErrStaleHandle
	}
	return &w.slots[idx], nil
}

// Register creates a body for carID and returns its handle. Registering an
// already known car replaces its body.
func (w *World) Register(carID uint, pos mgl64.Vec2, angle float64, params BodyParams) (core.BodyHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureEngine(); err != nil {
		return 0, err
	}
	if old, ok := w.byCar[carID]; ok {
		w.destroyLocked(old)
	}

	ref, err := w.engine.CreateBody(pos, angle, params)
	if err != nil {
		return 0, fmt.Errorf("car %d: %w", carID, err)
	}

	index := len(w.slots)
	for i := range w.slots {
		if !w.slots[i].live {
			index = i
			break
		}
	}
	s := slot{carID: carID, ref: ref, params: params, live: true}
	if index == len(w.slots) {
		w.slots = append(w.slots, s)
	} else {
		w.slots[index] = s
	}

	h := makeHandle(w.generation, index)
	w.byCar[carID] = h
	return h, nil
}

// Unregister destroys the body of carID.
func (w *World) Unregister(carID uint) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, ok := w.byCar[carID]
	if !ok {
		return ErrUnknownCar
	}
	w.destroyLocked(h)
	delete(w.byCar, carID)
	return nil
}

func (w *World) destroyLocked(h core.BodyHandle) {
	s, err := w.lookup(h)
	if err != nil {
		return
	}
	w.engine.DestroyBody(s.ref)
	*s = slot{}
}

// Resolve returns the current handle for carID.
func (w *World) Resolve(carID uint) (core.BodyHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, ok := w.byCar[carID]
	if !ok {
		return 0, ErrUnknownCar
	}
	return h, nil
}

// ApplyForce applies a world-frame force at the body's centre of mass.
func (w *World) ApplyForce(h core.BodyHandle, force mgl64.Vec2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.lookup(h)
	if err != nil {
		return err
	}
	w.engine.ApplyForce(s.ref, force, w.engine.WorldCenter(s.ref))
	return nil
}

// ApplyTorque applies a torque about the body's centre of mass.
func (w *World) ApplyTorque(h core.BodyHandle, torque float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.lookup(h)
	if err != nil {
		return err
	}
	w.engine.ApplyTorque(s.ref, torque)
	return nil
}

// Step advances every body once. It must not be called concurrently with
// itself.
func (w *World) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.engine == nil || dt <= 0 {
		return
	}
	w.engine.Step(dt, w.solver.VelocityIterations, w.solver.PositionIterations)
}

// State reads back the pose, velocity and mass properties of a body.
func (w *World) State(h core.BodyHandle) (BodyState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.lookup(h)
	if err != nil {
		return BodyState{}, err
	}
	return w.stateLocked(s), nil
}

func (w *World) stateLocked(s *slot) BodyState {
	pos, angle := w.engine.Transform(s.ref)
	vel, omega := w.engine.Velocity(s.ref)
	return BodyState{
		Position:        pos,
		Angle:           angle,
		Velocity:        vel,
		AngularVelocity: omega,
		Mass:            w.engine.Mass(s.ref),
		Inertia:         w.engine.Inertia(s.ref),
	}
}

// SetVelocity overwrites a body's velocities.
func (w *World) SetVelocity(h core.BodyHandle, linear mgl64.Vec2, angular float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.lookup(h)
	if err != nil {
		return err
	}
	w.engine.SetVelocity(s.ref, linear, angular)
	return nil
}

// Rebuild replaces the engine and re-registers every live car from its last
// pose and velocity. Handles issued before the rebuild become stale. On error
// the previous engine stays in place.
func (w *World) Rebuild(solver SolverConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	solver = solver.withDefaults()
	engine, err := w.factory(solver)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	type snapshot struct {
		carID  uint
		params BodyParams
		state  BodyState
	}
	var snaps []snapshot
	for i := range w.slots {
		s := &w.slots[i]
		if !s.live {
			continue
		}
		snaps = append(snaps, snapshot{carID: s.carID, params: s.params, state: w.stateLocked(s)})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].carID < snaps[j].carID })

	slots := make([]slot, 0, len(snaps))
	byCar := make(map[uint]core.BodyHandle, len(snaps))
	generation := w.generation + 1
	for _, sn := range snaps {
		ref, err := engine.CreateBody(sn.state.Position, sn.state.Angle, sn.params)
		if err != nil {
			return fmt.Errorf("rebuild car %d: %w", sn.carID, err)
		}
		engine.SetVelocity(ref, sn.state.Velocity, sn.state.AngularVelocity)
		byCar[sn.carID] = makeHandle(generation, len(slots))
		slots = append(slots, slot{carID: sn.carID, ref: ref, params: sn.params, live: true})
	}

	w.engine = engine
	w.solver = solver
	w.generation = generation
	w.slots = slots
	w.byCar = byCar
	w.log.Info("rigid-body world rebuilt",
		"generation", generation,
		"bodies", len(slots),
		"velocityIterations", solver.VelocityIterations,
		"positionIterations", solver.PositionIterations)
	return nil
}

// Len returns the number of live bodies.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byCar)
}

// Generation returns the current engine generation. Zero means not built.
func (w *World) Generation() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Solver returns the active solver configuration.
func (w *World) Solver() SolverConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.solver
}

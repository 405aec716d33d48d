package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/OCAP2/vehicledyn/internal/cache"
	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/dispatcher"
	"github.com/OCAP2/vehicledyn/internal/gearbox"
	"github.com/OCAP2/vehicledyn/internal/logging"
	"github.com/OCAP2/vehicledyn/internal/monitor"
	"github.com/OCAP2/vehicledyn/internal/race"
	"github.com/OCAP2/vehicledyn/internal/report"
	"github.com/OCAP2/vehicledyn/internal/rigidbody"
	"github.com/OCAP2/vehicledyn/internal/scenario"
	"github.com/OCAP2/vehicledyn/internal/session"
	"github.com/OCAP2/vehicledyn/internal/storage"
	"github.com/OCAP2/vehicledyn/internal/storage/memory"
	"github.com/OCAP2/vehicledyn/internal/worker"
	"github.com/OCAP2/vehicledyn/pkg/core"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// laneWidth separates cars spawned side by side.
const laneWidth = 4.0

type runOptions struct {
	scenario string
	vehicle  string
	cars     int
	ai       bool
	duration time.Duration
	ticks    uint64
	realtime bool
	repeat   int
	name     string
	track    string
	tag      string
	origin   []float64
	plotDir  string
	upload   bool
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	configDir := commonFlags(fs)
	fs.String("storage.type", "memory", "storage backend (memory, sqlite, postgres, websocket, influx)")
	fs.Float64("sim.tickRate", 60, "simulation tick rate in Hz")
	fs.String("sim.backend", "", "force every car onto one backend (kinematic, dynamic, rigidbody)")

	var opts runOptions
	fs.StringVarP(&opts.scenario, "scenario", "s", "launch", "built-in scenario ("+strings.Join(scenario.Names(), ", ")+") or path to a JSON script")
	fs.StringVarP(&opts.vehicle, "vehicle", "v", config.DefaultKind, "vehicle kind from the catalog")
	fs.IntVarP(&opts.cars, "cars", "n", 1, "number of cars")
	fs.BoolVar(&opts.ai, "ai", false, "drive the cars as AI (enables launch assist)")
	fs.DurationVarP(&opts.duration, "duration", "d", 0, "simulated time to run, 0 runs to the end of the scenario")
	fs.Uint64Var(&opts.ticks, "ticks", 0, "number of ticks to run, overrides --duration")
	fs.BoolVar(&opts.realtime, "realtime", false, "pace ticks to the wall clock")
	fs.IntVar(&opts.repeat, "repeat", 1, "number of sessions to run back to back")
	fs.StringVar(&opts.name, "name", "", "session name, defaults to the scenario name")
	fs.StringVar(&opts.track, "track", "testpad", "track name")
	fs.StringVar(&opts.tag, "tag", "", "session tag, defaults to defaultTag")
	fs.Float64SliceVar(&opts.origin, "origin", nil, "geo reference of the local origin as lat,lon")
	fs.StringVar(&opts.plotDir, "plot", "", "render charts to this directory (memory storage only)")
	fs.BoolVar(&opts.upload, "upload", false, "upload the recording to the dashboard")

	if err := loadConfig(fs, configDir, args); err != nil {
		return err
	}
	if opts.cars < 1 {
		return fmt.Errorf("--cars must be at least 1")
	}
	if len(opts.origin) != 0 && len(opts.origin) != 2 {
		return fmt.Errorf("--origin takes lat,lon")
	}

	script, err := loadScript(opts.scenario)
	if err != nil {
		return err
	}
	catalog, err := config.LoadCatalog()
	if err != nil {
		return err
	}
	if viper.ConfigFileUsed() != "" {
		catalog.Watch()
	}

	backend, err := initStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionCtx := session.NewContext()
	SlogManager.SetContextProvider(sessionCtx.Attrs)
	Logger = SlogManager.Logger()

	workerManager := worker.NewManager(worker.Dependencies{
		CarCache:   cache.NewCarCache(),
		LogManager: SlogManager,
	}, backend)

	for i := 0; i < opts.repeat; i++ {
		if catalog.Pending() {
			if err := catalog.Reload(); err != nil {
				Logger.Warn("Vehicle catalog reload failed, keeping previous table", "error", err)
			} else {
				Logger.Info("Vehicle catalog reloaded", "kinds", catalog.Kinds())
			}
		}

		if err := runSession(ctx, opts, script, catalog, backend, workerManager, sessionCtx, i); err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func loadScript(name string) (scenario.Script, error) {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return scenario.LoadFile(name)
	}
	if _, err := os.Stat(name); err == nil {
		return scenario.LoadFile(name)
	}
	return scenario.Builtin(name)
}

func runDuration(opts runOptions, script scenario.Script, dt float64) (time.Duration, error) {
	switch {
	case opts.ticks > 0:
		return time.Duration(math.Round(float64(opts.ticks) * dt * float64(time.Second))), nil
	case opts.duration > 0:
		return opts.duration, nil
	case script.End() > 0:
		return script.End(), nil
	default:
		return 0, fmt.Errorf("scenario %q has no length, set --duration or --ticks", script.Name)
	}
}

func runSession(
	ctx context.Context,
	opts runOptions,
	script scenario.Script,
	catalog *config.Catalog,
	backend storage.Backend,
	workerManager *worker.Manager,
	sessionCtx *session.Context,
	index int,
) error {
	simCfg := config.GetSimConfig()

	vehicle, err := catalog.Get(opts.vehicle)
	if err != nil {
		return err
	}

	name := opts.name
	if name == "" {
		name = script.Name
	}
	if opts.repeat > 1 {
		name = fmt.Sprintf("%s #%d", name, index+1)
	}
	sess := session.New(name, opts.track, simCfg.TickRate)
	sess.Scenario = script.Name
	sess.Tag = opts.tag
	if sess.Tag == "" {
		sess.Tag = viper.GetString("defaultTag")
	}
	if len(opts.origin) == 2 {
		sess.Origin = core.GeoOrigin{Latitude: opts.origin[0], Longitude: opts.origin[1]}
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(ZeroLog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	workerManager.Reset()
	workerManager.RegisterHandlers(d)

	if err := backend.StartSession(&sess); err != nil {
		d.Close()
		return fmt.Errorf("failed to start session: %w", err)
	}
	sessionCtx.SetSession(sess)
	Logger.Info("Session started", "name", sess.Name, "scenario", script.Name, "vehicle", opts.vehicle, "cars", opts.cars)

	deps := race.Dependencies{
		World:          rigidbody.NewWorld(nil, simCfg.Solver, Logger),
		Recorder:       d,
		SessionContext: sessionCtx,
		Logger:         Logger,
	}
	if ticks, ok := backend.(race.TickRecorder); ok {
		deps.Ticks = ticks
	}
	scheduler, err := race.New(simCfg, deps)
	if err != nil {
		d.Close()
		return err
	}

	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager:     SlogManager,
		SessionContext: sessionCtx,
		WorkerManager:  workerManager,
		Dispatcher:     d,
		Race:           scheduler,
		OutputDir:      viper.GetString("logsDir"),
		Interval:       simCfg.Status,
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Status monitor not started", "error", err)
	}

	for i := 0; i < opts.cars; i++ {
		_, err := scheduler.Spawn(race.CarSpec{
			Name:    fmt.Sprintf("%s-%d", opts.vehicle, i+1),
			AI:      opts.ai,
			Params:  vehicle.Params,
			Gearbox: gearbox.New(vehicle.Gearbox),
			Spawn:   mgl64.Vec2{0, float64(i) * laneWidth},
			Driver:  script,
		})
		if err != nil {
			monitorService.Stop()
			d.Close()
			return fmt.Errorf("failed to spawn car %d: %w", i+1, err)
		}
	}

	duration, err := runDuration(opts, script, scheduler.Dt())
	if err != nil {
		monitorService.Stop()
		d.Close()
		return err
	}

	started := time.Now()
	runErr := scheduler.Run(ctx, duration, opts.realtime)
	if errors.Is(runErr, context.Canceled) {
		Logger.Info("Run interrupted", "tick", scheduler.Tick())
		runErr = nil
	}

	summary := summarize(scheduler)
	for _, c := range scheduler.Cars() {
		if err := scheduler.Despawn(c.ID); err != nil {
			Logger.Warn("Failed to despawn car", "car", c.ID, "error", err)
		}
	}

	monitorService.Stop()
	d.Close()
	if err := monitorService.WriteStatus(monitorService.GetStatus()); err != nil {
		Logger.Warn("Failed to write final status", "error", err)
	}

	if err := backend.EndSession(); err != nil {
		Logger.Error("Failed to end session in storage backend", "error", err)
		return err
	}
	Logger.Info("Session recorded",
		"ticks", scheduler.Tick(),
		"simTime", scheduler.SimTime(),
		"wall", time.Since(started),
		"samples", workerManager.Samples(),
		"events", workerManager.Events(),
		"dropped", scheduler.Dropped()+workerManager.Dropped(),
	)
	fmt.Print(summary)

	if u, ok := backend.(storage.Uploadable); ok && u.GetExportedFilePath() != "" {
		fmt.Println("recording:", u.GetExportedFilePath())
	}
	if opts.plotDir != "" {
		if err := plotSession(backend, opts, index); err != nil {
			Logger.Warn("Failed to render charts", "error", err)
		}
	}
	if opts.upload {
		// an interrupted run still uploads what it recorded
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := uploadRecording(uctx, backend); err != nil {
			Logger.Error("Upload failed", "error", err)
		}
	}
	return runErr
}

func plotSession(backend storage.Backend, opts runOptions, index int) error {
	mem, ok := backend.(*memory.Backend)
	if !ok {
		return fmt.Errorf("charts need memory storage, have %s", viper.GetString("storage.type"))
	}
	dir := opts.plotDir
	if opts.repeat > 1 {
		dir = filepath.Join(dir, fmt.Sprintf("session_%d", index+1))
	}
	paths, err := report.Render(mem.Export(), dir, report.DefaultOptions())
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println("chart:", p)
	}
	return nil
}

func summarize(scheduler *race.Scheduler) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d ticks, %.2fs simulated\n", scheduler.Tick(), scheduler.SimTime().Seconds())
	for _, c := range scheduler.Cars() {
		state, diag, err := scheduler.State(c.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "  %-12s %-13s pos=(%.2f, %.2f) heading=%.1fdeg speed=%.2fm/s gear=%d skid=%.2f\n",
			c.Name, diag.Backend, state.Position.X(), state.Position.Y(),
			state.Heading*180/math.Pi, diag.Speed, diag.Gear, diag.Skid)
	}
	return b.String()
}

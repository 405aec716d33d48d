// Package gearbox is the reference transmission: an engine torque curve,
// gear ratios, a rev limiter and RPM-based automatic shifting.
package gearbox

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/OCAP2/vehicledyn/internal/drivetrain"
)

// TorquePoint is one sample of the engine torque curve.
type TorquePoint struct {
	RPM    float64 `json:"rpm" mapstructure:"rpm"`
	Torque float64 `json:"torque" mapstructure:"torque"` // N*m
}

// Config describes an engine and transmission.
type Config struct {
	Ratios       []float64     `json:"ratios" mapstructure:"ratios"` // forward gears, first gear first
	ReverseRatio float64       `json:"reverseRatio" mapstructure:"reverseRatio"`
	FinalDrive   float64       `json:"finalDrive" mapstructure:"finalDrive"`
	Efficiency   float64       `json:"efficiency" mapstructure:"efficiency"`
	WheelRadius  float64       `json:"wheelRadius" mapstructure:"wheelRadius"` // m
	IdleRPM      float64       `json:"idleRpm" mapstructure:"idleRpm"`
	RedlineRPM   float64       `json:"redlineRpm" mapstructure:"redlineRpm"`
	UpshiftRPM   float64       `json:"upshiftRpm" mapstructure:"upshiftRpm"`
	DownshiftRPM float64       `json:"downshiftRpm" mapstructure:"downshiftRpm"`
	ShiftDelay   float64       `json:"shiftDelay" mapstructure:"shiftDelay"` // s between automatic shifts
	TorqueCurve  []TorquePoint `json:"torqueCurve" mapstructure:"torqueCurve"`
}

// DefaultConfig is a six-speed road car.
func DefaultConfig() Config {
	return Config{
		Ratios:       []float64{3.626, 2.188, 1.541, 1.213, 1.0, 0.767},
		ReverseRatio: 3.437,
		FinalDrive:   4.1,
		Efficiency:   0.9,
		WheelRadius:  0.33,
		IdleRPM:      800,
		RedlineRPM:   7000,
		UpshiftRPM:   6200,
		DownshiftRPM: 2500,
		ShiftDelay:   0.3,
		TorqueCurve: []TorquePoint{
			{0, 0},
			{800, 100},
			{1000, 140},
			{3000, 205},
			{6000, 210},
			{7000, 180},
		},
	}
}

var _ drivetrain.Gearbox = (*Automatic)(nil)

// Automatic implements drivetrain.Gearbox. Gear -1 is reverse and 0 neutral.
type Automatic struct {
	cfg      Config
	gear     int
	rpm      float64
	cooldown float64
	auto     bool
	prevUp   bool
	prevDown bool
}

// New returns a gearbox in first gear with automatic shifting.
func New(cfg Config) *Automatic {
	def := DefaultConfig()
	if len(cfg.Ratios) == 0 {
		cfg.Ratios = def.Ratios
		cfg.ReverseRatio = def.ReverseRatio
	}
	if cfg.WheelRadius <= 0 {
		cfg.WheelRadius = 0.33
	}
	if cfg.FinalDrive <= 0 {
		cfg.FinalDrive = 1
	}
	if cfg.Efficiency <= 0 {
		cfg.Efficiency = 1
	}
	if len(cfg.TorqueCurve) == 0 {
		cfg.TorqueCurve = def.TorqueCurve
	}
	cfg.TorqueCurve = slices.Clone(cfg.TorqueCurve)
	slices.SortFunc(cfg.TorqueCurve, func(a, b TorquePoint) int { return cmp.Compare(a.RPM, b.RPM) })
	if cfg.IdleRPM <= 0 {
		cfg.IdleRPM = def.IdleRPM
	}
	if cfg.UpshiftRPM <= 0 {
		cfg.UpshiftRPM = def.UpshiftRPM
	}
	if cfg.DownshiftRPM <= 0 || cfg.DownshiftRPM >= cfg.UpshiftRPM {
		cfg.DownshiftRPM = cfg.UpshiftRPM * 0.4
	}
	return &Automatic{cfg: cfg, gear: 1, rpm: cfg.IdleRPM, auto: true}
}

// Gear returns the selected gear.
func (a *Automatic) Gear() int { return a.gear }

// RPM returns the engine speed from the last update.
func (a *Automatic) RPM() float64 { return a.rpm }

// Shift moves the selector. With automatic shifting active a downshift from
// neutral or any forward gear selects reverse and an upshift from reverse
// selects first.
func (a *Automatic) Shift(delta int) bool {
	if delta == 0 {
		return false
	}
	top := len(a.cfg.Ratios)
	next := a.gear
	switch {
	case a.auto && delta < 0:
		next = -1
	case a.auto && a.gear < 0:
		next = 1
	default:
		next = min(max(a.gear+delta, -1), top)
	}
	if next == a.gear {
		return false
	}
	a.gear = next
	a.cooldown = a.cfg.ShiftDelay
	return true
}

// Update tracks engine speed and performs automatic or sequential shifts.
func (a *Automatic) Update(dt float64, in drivetrain.GearboxInput) {
	a.auto = in.Auto
	a.cooldown = math.Max(a.cooldown-dt, 0)

	if !in.Auto {
		if in.ShiftUp && !a.prevUp {
			a.Shift(1)
		}
		if in.ShiftDown && !a.prevDown {
			a.Shift(-1)
		}
	}
	a.prevUp, a.prevDown = in.ShiftUp, in.ShiftDown

	a.rpm = a.engineRPM(in.Speed, a.gear)
	if in.Auto {
		a.autoShift(in)
		a.rpm = a.engineRPM(in.Speed, a.gear)
	}
}

func (a *Automatic) autoShift(in drivetrain.GearboxInput) {
	if a.gear == 0 && in.Throttle > drivetrain.PedalDeadzone {
		a.gear = 1
		return
	}
	if a.gear <= 0 || a.cooldown > 0 {
		return
	}
	// rolling against a forward gear spins the engine from |speed| only
	against := in.Speed < 0
	switch {
	case !against && a.rpm > a.cfg.UpshiftRPM && a.gear < len(a.cfg.Ratios):
		a.gear++
		a.cooldown = a.cfg.ShiftDelay
	case a.rpm < a.cfg.DownshiftRPM && a.gear > 1:
		a.gear--
		a.cooldown = a.cfg.ShiftDelay
	}
}

// DriveForce is the tractive force at the wheels, negative in reverse. It is
// zero in neutral and at the rev limiter.
func (a *Automatic) DriveForce(speed, throttle float64) float64 {
	ratio := a.ratio(a.gear)
	if ratio == 0 || throttle <= 0 {
		return 0
	}
	rpm := a.engineRPM(speed, a.gear)
	if a.cfg.RedlineRPM > 0 && rpm >= a.cfg.RedlineRPM {
		return 0
	}
	torque := Lookup(a.cfg.TorqueCurve, rpm) * math.Min(throttle, 1)
	force := torque * ratio * a.cfg.FinalDrive * a.cfg.Efficiency / a.cfg.WheelRadius
	if a.gear < 0 {
		return -force
	}
	return force
}

func (a *Automatic) ratio(gear int) float64 {
	switch {
	case gear < 0:
		return a.cfg.ReverseRatio
	case gear == 0:
		return 0
	default:
		return a.cfg.Ratios[gear-1]
	}
}

func (a *Automatic) engineRPM(speed float64, gear int) float64 {
	wheel := math.Abs(speed) / a.cfg.WheelRadius
	rpm := wheel * a.ratio(gear) * a.cfg.FinalDrive * 60 / (2 * math.Pi)
	return math.Max(rpm, a.cfg.IdleRPM)
}

// Lookup linearly interpolates the torque curve, which must be sorted by RPM.
// Outside the table it returns zero.
func Lookup(curve []TorquePoint, rpm float64) float64 {
	i := sort.Search(len(curve), func(i int) bool { return curve[i].RPM >= rpm })
	switch {
	case i == len(curve):
		return 0
	case curve[i].RPM == rpm:
		return curve[i].Torque
	case i == 0:
		return 0
	}
	lo, hi := curve[i-1], curve[i]
	return lo.Torque + (hi.Torque-lo.Torque)*(rpm-lo.RPM)/(hi.RPM-lo.RPM)
}

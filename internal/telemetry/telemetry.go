// Package telemetry derives the per-step diagnostics record.
package telemetry

import (
	"math"

	"github.com/OCAP2/vehicledyn/internal/drivetrain"
	"github.com/OCAP2/vehicledyn/internal/tire"
	"github.com/OCAP2/vehicledyn/internal/util"
	"github.com/OCAP2/vehicledyn/pkg/core"
)

// SkidMinSpeed is the speed below which no skid is reported.
const SkidMinSpeed = 2.0 // m/s

const (
	slipWeight   = 0.65
	excessWeight = 0.35
	slipOnset    = 0.6 // fraction of the saturation angle
	slipFull     = 1.6
)

// Skid returns the skid intensity in [0,1] for a finished step.
func Skid(d core.Diagnostics, p core.VehicleParameters) float64 {
	if d.Direction < 0 || d.VX < 0 || d.Speed < SkidMinSpeed {
		return 0
	}
	sat := util.Floor(p.SlipAngleSaturation, 1e-3)
	slip := math.Max(math.Abs(d.Front.SlipAngle), math.Abs(d.Rear.SlipAngle)) / sat
	excess := math.Max(d.Front.Excess, d.Rear.Excess)
	s := slipWeight*util.Smoothstep(slipOnset, slipFull, slip) + excessWeight*util.Clamp(excess, 0, 1)
	return util.Clamp(s, 0, 1)
}

// Frame is the raw material of one step's diagnostics.
type Frame struct {
	Tick       uint64
	Resolution drivetrain.Resolution
	Forces     tire.Forces
	Loads      core.AxleLoads
	SteerAngle float64
	Blend      float64
	Speed      float64
	VX         float64
	Direction  int
	Backend    core.BackendMode
}

// Build assembles the diagnostics record, skid included.
func Build(f Frame, p core.VehicleParameters) core.Diagnostics {
	d := core.Diagnostics{
		Tick:        f.Tick,
		Front:       f.Forces.Front,
		Rear:        f.Forces.Rear,
		Loads:       f.Loads,
		DriveForce:  f.Resolution.DriveForce,
		BrakeForce:  f.Forces.Brake,
		Throttle:    f.Resolution.Throttle,
		Brake:       f.Resolution.Brake,
		SteerAngle:  f.SteerAngle,
		BlendWeight: f.Blend,
		Speed:       f.Speed,
		VX:          f.VX,
		Direction:   f.Direction,
		Phase:       f.Resolution.Phase,
		Gear:        f.Resolution.Gear,
		Shift:       f.Resolution.Shift,
		Backend:     f.Backend,
	}
	d.Skid = Skid(d, p)
	return d
}

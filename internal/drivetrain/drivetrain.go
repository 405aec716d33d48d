// Package drivetrain resolves the direction state machine and couples the
// pedals to the gearbox collaborator.
package drivetrain

import (
	"math"

	"github.com/OCAP2/vehicledyn/internal/util"
	"github.com/OCAP2/vehicledyn/pkg/core"
)

// PedalDeadzone is the pedal travel below which a pedal counts as released.
const PedalDeadzone = 0.05

// minExitRamp is the brake fraction applied at the start of an exit-reverse hold.
const minExitRamp = 0.25

// Resolution is the outcome of one drivetrain step.
type Resolution struct {
	Throttle   float64
	Brake      float64
	DriveForce float64
	Phase      core.Phase
	Gear       int
	Shift      int // net gear change during this step
}

// UpdateDirection applies the hysteresis band to the persistent direction sign.
func UpdateDirection(direction int, vx, band float64) int {
	switch {
	case vx > band:
		return 1
	case vx < -band:
		return -1
	case direction == 0:
		return 1
	default:
		return direction
	}
}

// PhaseOf classifies the current state.
func PhaseOf(gear, direction int, speed, neutralStopSpeed float64) core.Phase {
	switch {
	case gear == 0 && speed < neutralStopSpeed:
		return core.PhaseNeutral
	case direction < 0:
		return core.PhaseReverse
	default:
		return core.PhaseForward
	}
}

// Resolve updates the direction sign and reverse hold in st, applies the pedal
// overrides and consults gb for the drive force.
func Resolve(st *core.VehicleState, p core.VehicleParameters, in core.Input, gb Gearbox, dt float64) Resolution {
	in = in.Sanitize()
	vx := st.BodyVelocity.X()
	st.Direction = UpdateDirection(st.Direction, vx, p.DirectionBand)

	startGear := gb.Gear()
	auto := !in.Manual
	throttle, brake := in.Throttle, in.Brake
	pressed := func(v float64) bool { return v > PedalDeadzone }

	if auto && gb.Gear() < 0 {
		throttle, brake = reverseGearPedals(st, p, throttle, brake, vx, gb)
	} else {
		st.ReverseHold = false
	}

	if auto && gb.Gear() >= 0 && pressed(brake) && !pressed(throttle) &&
		math.Abs(vx) <= p.ReverseEntrySpeed && gb.Gear() == startGear {
		gb.Shift(-1)
	}

	if dir := gearDirection(gb.Gear()); dir != 0 && pressed(throttle) && vx*float64(dir) < -p.DirectionBand {
		brake = math.Max(brake, throttle)
		throttle = 0
	}

	gb.Update(dt, GearboxInput{
		Throttle:  throttle,
		Brake:     brake,
		Speed:     vx,
		Auto:      auto,
		ShiftUp:   in.ShiftUp,
		ShiftDown: in.ShiftDown,
	})

	gear := gb.Gear()
	drive := util.Finite(gb.DriveForce(vx, throttle), 0)
	if gear < 0 {
		drive *= p.ReverseTorqueScale
	}

	return Resolution{
		Throttle:   throttle,
		Brake:      brake,
		DriveForce: drive,
		Phase:      PhaseOf(gear, st.Direction, st.Speed(), p.NeutralStopSpeed),
		Gear:       gear,
		Shift:      gear - startGear,
	}
}

// reverseGearPedals maps the pedals while an automatic box sits in reverse:
// brake drives backward and throttle brings the car to rest before shifting
// back into first.
func reverseGearPedals(st *core.VehicleState, p core.VehicleParameters, throttle, brake, vx float64, gb Gearbox) (float64, float64) {
	if throttle <= PedalDeadzone {
		st.ReverseHold = false
		return brake, 0
	}

	if vx < -p.ReverseEntrySpeed || st.ReverseHold {
		st.ReverseHold = true
		ramp := util.Clamp(math.Abs(vx)/p.ReverseEntrySpeed, minExitRamp, 1)
		if math.Abs(vx) < p.DirectionBand {
			gb.Shift(1)
			st.ReverseHold = false
			return throttle, brake
		}
		return 0, throttle * ramp
	}

	gb.Shift(1)
	return throttle, brake
}

func gearDirection(gear int) int {
	switch {
	case gear > 0:
		return 1
	case gear < 0:
		return -1
	default:
		return 0
	}
}

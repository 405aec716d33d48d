// Package steering turns the normalized steer command into a road-wheel angle.
package steering

import (
	"math"

	"github.com/OCAP2/vehicledyn/internal/util"
	"github.com/OCAP2/vehicledyn/pkg/core"
)

// Limits returns the lock and slew rate active for the given filtered speed.
func Limits(p core.VehicleParameters, filteredSpeed float64) (lock, rate float64) {
	if !p.Steering.Adaptive {
		return p.MaxSteerAngle, p.SteerRate
	}
	s := p.Steering
	lock = s.HighSpeedLock + (s.LowSpeedLock-s.HighSpeedLock)*math.Exp(-filteredSpeed/s.FalloffSpeed)
	rate = s.BaseRate / (1 + s.RateFalloff*filteredSpeed)
	return lock, rate
}

// Update advances the steering angle by one step. steer is in [-1,1], speed is
// the car's planar speed. The returned angle never exceeds the active lock,
// which is recorded in filter.Lock in adaptive mode, and never moves by more
// than the active rate times dt.
func Update(angle float64, filter core.FilterState, p core.VehicleParameters, steer, speed, dt float64) (float64, core.FilterState) {
	angle = util.Finite(angle, 0)
	steer = util.Clamp(util.Finite(steer, 0), -1, 1)
	if dt <= 0 {
		return angle, filter
	}

	if p.Steering.Adaptive {
		alpha := util.LowPassAlpha(dt, p.Steering.FilterTau)
		filter.Speed += (math.Abs(speed) - filter.Speed) * alpha
		filter.Speed = util.Finite(filter.Speed, 0)
	}

	lock, rate := Limits(p, filter.Speed)
	if p.Steering.Adaptive {
		// the active lock may shrink by at most rate*dt per step
		if filter.Lock > lock {
			lock = math.Max(lock, filter.Lock-rate*dt)
		}
		filter.Lock = lock
	}
	target := steer * lock
	desired := target
	if p.Steering.Adaptive && math.Abs(target) < math.Abs(angle) {
		desired -= angle * p.Steering.ReturnGain * dt
	}

	step := util.ClampAbs(desired-angle, rate*dt)
	return util.ClampAbs(angle+step, lock), filter
}

// Effective is the angle the tires see. Reversing scales it down.
func Effective(angle float64, direction int, p core.VehicleParameters) float64 {
	if direction < 0 {
		return angle * p.ReverseSteerFactor
	}
	return angle
}

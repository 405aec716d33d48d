package drivetrain

import "github.com/OCAP2/vehicledyn/pkg/core"

// LaunchAssist keeps a stalled AI car moving. It is applied by the caller on
// the input before the physics step and never inside it.
type LaunchAssist struct {
	MinThrottle float64 `json:"minThrottle" mapstructure:"minThrottle"`
	Speed       float64 `json:"speed" mapstructure:"speed"` // m/s below which the assist engages
}

// Enabled reports whether the assist does anything.
func (a LaunchAssist) Enabled() bool {
	return a.MinThrottle > 0 && a.Speed > 0
}

// Apply raises the throttle to MinThrottle when the car is slow, the path
// ahead is clear and the driver is not braking.
func (a LaunchAssist) Apply(in core.Input, speed float64, pathClear bool) core.Input {
	if !a.Enabled() || !pathClear || speed >= a.Speed || in.Brake > PedalDeadzone {
		return in
	}
	if in.Throttle < a.MinThrottle {
		in.Throttle = a.MinThrottle
	}
	return in
}

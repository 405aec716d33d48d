// pkg/core/diagnostics.go
package core

// Phase is the drivetrain direction state.
type Phase uint8

const (
	PhaseForward Phase = iota
	PhaseNeutral
	PhaseReverse
)

func (p Phase) String() string {
	switch p {
	case PhaseForward:
		return "forward"
	case PhaseNeutral:
		return "neutral"
	case PhaseReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// AxleForces are the tire forces of one axle in the wheel frame.
type AxleForces struct {
	Longitudinal float64 `json:"fx"`
	Lateral      float64 `json:"fy"`
	SlipAngle    float64 `json:"slipAngle"`
	SlipRatio    float64 `json:"slipRatio"`
	Utilization  float64 `json:"utilization"` // combined-slip ellipse norm after attenuation
	Excess       float64 `json:"excess"`      // normalized demand beyond the slip peak
}

// Diagnostics is the per-step debug record of one car.
type Diagnostics struct {
	Tick        uint64      `json:"tick"`
	Front       AxleForces  `json:"front"`
	Rear        AxleForces  `json:"rear"`
	Loads       AxleLoads   `json:"loads"`
	DriveForce  float64     `json:"driveForce"`
	BrakeForce  float64     `json:"brakeForce"`
	Throttle    float64     `json:"throttle"` // pedal value after drivetrain overrides
	Brake       float64     `json:"brake"`
	SteerAngle  float64     `json:"steerAngle"`
	BlendWeight float64     `json:"blendWeight"` // 1 fully dynamic, 0 fully kinematic
	Speed       float64     `json:"speed"`
	VX          float64     `json:"vx"` // body-frame longitudinal speed
	Direction   int         `json:"direction"`
	Phase       Phase       `json:"phase"`
	Gear        int         `json:"gear"`
	Shift       int         `json:"shift,omitempty"` // shift issued by the drivetrain this step
	Backend     BackendMode `json:"backend"`
	Skid        float64     `json:"skid"`
}

// pkg/core/input.go
package core

import "math"

// Input is one step of normalized driver commands.
type Input struct {
	Throttle  float64 `json:"throttle"` // [0,1]
	Brake     float64 `json:"brake"`    // [0,1]
	Steer     float64 `json:"steer"`    // [-1,1], positive left
	ShiftUp   bool    `json:"shiftUp,omitempty"`
	ShiftDown bool    `json:"shiftDown,omitempty"`
	Manual    bool    `json:"manual,omitempty"`
}

// Sanitize clamps every axis into range. Non-finite values become zero.
func (in Input) Sanitize() Input {
	in.Throttle = clampFinite(in.Throttle, 0, 1)
	in.Brake = clampFinite(in.Brake, 0, 1)
	in.Steer = clampFinite(in.Steer, -1, 1)
	return in
}

// SurfaceInfo classifies the ground under the car.
type SurfaceInfo struct {
	OnRoad bool `json:"onRoad"`
}

// Road is the drivable surface.
var Road = SurfaceInfo{OnRoad: true}

// Friction selects the coefficient set for this surface.
func (s SurfaceInfo) Friction(p VehicleParameters) SurfaceFriction {
	if s.OnRoad {
		return p.Road
	}
	return p.Grass
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(math.Max(v, lo), hi)
}

// pkg/core/session.go
package core

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// GeoOrigin anchors the local track frame on the globe. Zero means the track
// is not geo-referenced.
type GeoOrigin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether no origin was configured.
func (o GeoOrigin) IsZero() bool {
	return o.Latitude == 0 && o.Longitude == 0
}

// Session is one recorded run of the simulator
type Session struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Track     string    `json:"track"`
	Origin    GeoOrigin `json:"origin"`
	Scenario  string    `json:"scenario,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	StartTime time.Time `json:"startTime"`
	TickRate  float64   `json:"tickRate"` // Hz
}

// CarInfo is a registered car
type CarInfo struct {
	ID      uint              `json:"id"`
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	AI      bool              `json:"ai"`
	Backend BackendMode       `json:"backend"`
	Spawn   mgl64.Vec2        `json:"spawn"`
	Heading float64           `json:"heading"`
	Params  VehicleParameters `json:"params"`
}

// Sample is one recorded step of one car
type Sample struct {
	CarID    uint          `json:"carId"`
	Tick     uint64        `json:"tick"`
	SimTime  time.Duration `json:"simTime"`
	Position mgl64.Vec2    `json:"position"`
	Heading  float64       `json:"heading"`
	Velocity mgl64.Vec2    `json:"velocity"`
	YawRate  float64       `json:"yawRate"`
	Diag     Diagnostics   `json:"diag"`
}

// Car event types.
const (
	EventSpawn           = "spawn"
	EventDespawn         = "despawn"
	EventShift           = "shift"
	EventBackendFallback = "backendFallback"
	EventSolverRebuild   = "solverRebuild"
)

// CarEvent is a discrete occurrence attached to one car
type CarEvent struct {
	CarID   uint          `json:"carId"`
	Tick    uint64        `json:"tick"`
	SimTime time.Duration `json:"simTime"`
	Type    string        `json:"type"`
	Message string        `json:"message,omitempty"`
	Value   float64       `json:"value"`
}

// UploadMetadata contains session metadata for dashboard upload
type UploadMetadata struct {
	SessionID   string
	TrackName   string
	SessionName string
	Scenario    string
	Duration    float64 // seconds
	TickRate    float64 // Hz
	Cars        int
	Tag         string
}

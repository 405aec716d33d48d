package streaming

import (
	"encoding/json"

	"github.com/OCAP2/vehicledyn/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeAddCar       = "add_car"
	TypeSample       = "sample"
	TypeCarEvent     = "car_event"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a run and the cars already on track.
type StartSessionPayload struct {
	Session *core.Session  `json:"session"`
	Cars    []core.CarInfo `json:"cars,omitempty"`
}

// EndSessionPayload closes a run.
type EndSessionPayload struct {
	SessionID string  `json:"sessionId"`
	Ticks     uint64  `json:"ticks"`
	Duration  float64 `json:"duration"` // seconds
}

// SamplePayload is the trimmed per-step record the overlay draws from.
type SamplePayload struct {
	CarID       uint       `json:"carId"`
	Tick        uint64     `json:"tick"`
	Time        float64    `json:"time"` // seconds since session start
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Heading     float64    `json:"heading"`
	Speed       float64    `json:"speed"`
	Gear        int        `json:"gear"`
	Phase       string     `json:"phase"`
	Skid        float64    `json:"skid"`
	BlendWeight float64    `json:"blendWeight"`
	Utilization [2]float64 `json:"utilization"` // front, rear
}

// NewSamplePayload flattens a core sample for the wire.
func NewSamplePayload(s *core.Sample) SamplePayload {
	return SamplePayload{
		CarID:       s.CarID,
		Tick:        s.Tick,
		Time:        s.SimTime.Seconds(),
		X:           s.Position.X(),
		Y:           s.Position.Y(),
		Heading:     s.Heading,
		Speed:       s.Diag.Speed,
		Gear:        s.Diag.Gear,
		Phase:       s.Diag.Phase.String(),
		Skid:        s.Diag.Skid,
		BlendWeight: s.Diag.BlendWeight,
		Utilization: [2]float64{s.Diag.Front.Utilization, s.Diag.Rear.Utilization},
	}
}

// Marshal wraps payload in an envelope of the given type.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

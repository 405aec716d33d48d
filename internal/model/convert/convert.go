// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/OCAP2/vehicledyn/internal/geo"
	"github.com/OCAP2/vehicledyn/internal/model"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	id, _ := uuid.Parse(s.UUID)
	return core.Session{
		ID:        id,
		Name:      s.Name,
		Track:     s.Track,
		Origin:    geo.OriginFromAnchor(s.Origin),
		Scenario:  s.Scenario,
		Tag:       s.Tag,
		StartTime: s.StartTime,
		TickRate:  s.TickRate,
	}
}

// CarToCore converts a GORM Car to a core.CarInfo.
// GORM Car.CarID maps to core CarInfo.ID.
func CarToCore(c model.Car, o geo.Origin) core.CarInfo {
	var params core.VehicleParameters
	if len(c.Params) > 0 {
		_ = json.Unmarshal(c.Params, &params)
	}
	return core.CarInfo{
		ID:      c.CarID,
		Name:    c.Name,
		Kind:    c.Kind,
		AI:      c.AI,
		Backend: core.BackendMode(c.Backend),
		Spawn:   o.Local(c.Spawn),
		Heading: c.Heading,
		Params:  params,
	}
}

// SampleToCore converts a GORM Sample to a core.Sample. The diagnostics come
// from the JSON column; the scalar columns are only a query index.
func SampleToCore(s model.Sample, o geo.Origin) core.Sample {
	var diag core.Diagnostics
	if len(s.Diagnostics) > 0 {
		_ = json.Unmarshal(s.Diagnostics, &diag)
	}
	return core.Sample{
		CarID:    s.CarID,
		Tick:     s.Tick,
		SimTime:  seconds(s.SimTime),
		Position: o.Local(s.Position),
		Heading:  s.Heading,
		Velocity: mgl64.Vec2{s.VX, s.VY},
		YawRate:  s.YawRate,
		Diag:     diag,
	}
}

// CarEventToCore converts a GORM CarEvent to a core.CarEvent.
func CarEventToCore(e model.CarEvent) core.CarEvent {
	return core.CarEvent{
		CarID:   e.CarID,
		Tick:    e.Tick,
		SimTime: seconds(e.SimTime),
		Type:    e.Type,
		Message: e.Message,
		Value:   e.Value,
	}
}

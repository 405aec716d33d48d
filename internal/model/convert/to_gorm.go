package convert

import (
	"encoding/json"
	"time"

	"github.com/OCAP2/vehicledyn/internal/geo"
	"github.com/OCAP2/vehicledyn/internal/model"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"gorm.io/datatypes"
)

// toJSON marshals v for a datatypes.JSON column, falling back to fallback.
func toJSON(v any, fallback string) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(fallback)
	}
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session, o geo.Origin) model.Session {
	return model.Session{
		UUID:      s.ID.String(),
		Name:      s.Name,
		Track:     s.Track,
		Scenario:  s.Scenario,
		Tag:       s.Tag,
		Latitude:  s.Origin.Latitude,
		Longitude: s.Origin.Longitude,
		Origin:    o.Anchor(),
		StartTime: s.StartTime,
		TickRate:  s.TickRate,
	}
}

// CoreToCar converts a core.CarInfo to a GORM model.Car.
// core.CarInfo.ID maps to GORM Car.CarID; the row ID is assigned on insert.
func CoreToCar(c core.CarInfo, o geo.Origin) model.Car {
	return model.Car{
		JoinTime: time.Now(),
		CarID:    c.ID,
		Name:     c.Name,
		Kind:     c.Kind,
		AI:       c.AI,
		Backend:  string(c.Backend),
		Spawn:    o.Point(c.Spawn),
		Heading:  c.Heading,
		Params:   toJSON(c.Params, "{}"),
	}
}

// CoreToSample converts a core.Sample to a GORM model.Sample.
func CoreToSample(s core.Sample, o geo.Origin) model.Sample {
	d := s.Diag
	return model.Sample{
		CarID:       s.CarID,
		Tick:        s.Tick,
		SimTime:     s.SimTime.Seconds(),
		Position:    o.Point(s.Position),
		Heading:     s.Heading,
		VX:          s.Velocity.X(),
		VY:          s.Velocity.Y(),
		YawRate:     s.YawRate,
		Speed:       d.Speed,
		SteerAngle:  d.SteerAngle,
		Throttle:    d.Throttle,
		Brake:       d.Brake,
		Gear:        d.Gear,
		Phase:       d.Phase.String(),
		Backend:     string(d.Backend),
		BlendWeight: d.BlendWeight,
		Skid:        d.Skid,

		FrontUtilization: d.Front.Utilization,
		RearUtilization:  d.Rear.Utilization,
		FrontLoad:        d.Loads.Front,
		RearLoad:         d.Loads.Rear,

		Diagnostics: toJSON(d, "{}"),
	}
}

// CoreToCarEvent converts a core.CarEvent to a GORM model.CarEvent.
func CoreToCarEvent(e core.CarEvent) model.CarEvent {
	return model.CarEvent{
		Time:    time.Now(),
		CarID:   e.CarID,
		Tick:    e.Tick,
		SimTime: e.SimTime.Seconds(),
		Type:    e.Type,
		Message: e.Message,
		Value:   e.Value,
	}
}

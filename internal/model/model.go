package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SimInfo{},
	&Session{},
	&Car{},
	&Sample{},
	&CarEvent{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SimInfo describes the simulator build that wrote the database
type SimInfo struct {
	gorm.Model
	Name    string `json:"name" gorm:"size:64"`
	Version string `json:"version" gorm:"size:64"`
}

func (*SimInfo) TableName() string {
	return "sim_infos"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one recorded run of the simulator
type Session struct {
	gorm.Model
	UUID      string       `json:"uuid" gorm:"size:36;uniqueIndex:idx_session_uuid"`
	Name      string       `json:"name" gorm:"size:127"`
	Track     string       `json:"track" gorm:"size:127"`
	Scenario  string       `json:"scenario" gorm:"size:64"`
	Tag       string       `json:"tag" gorm:"size:127"`
	Latitude  float64      `json:"latitude" gorm:"-"`
	Longitude float64      `json:"longitude" gorm:"-"`
	Origin    geom.Point   `json:"origin"` // geographic anchor of the track frame, EPSG:3857
	StartTime time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime   sql.NullTime `json:"endTime"`
	TickRate  float64      `json:"tickRate"`
	Ticks     uint64       `json:"ticks"`
	Cars      []Car
}

func (*Session) TableName() string {
	return "sessions"
}

// Car is a car registered in a session
type Car struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	JoinTime  time.Time      `json:"joinTime"`
	SessionID uint           `json:"sessionId" gorm:"uniqueIndex:idx_car_session_car"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	CarID     uint           `json:"carId" gorm:"uniqueIndex:idx_car_session_car"` // simulator car ID
	Name      string         `json:"name" gorm:"size:64"`
	Kind      string         `json:"kind" gorm:"size:64"`
	AI        bool           `json:"ai"`
	Backend   string         `json:"backend" gorm:"size:16"`
	Spawn     geom.Point     `json:"spawn"`
	Heading   float64        `json:"heading"`
	Params    datatypes.JSON `json:"params" gorm:"default:'{}'"` // VehicleParameters snapshot
}

func (*Car) TableName() string {
	return "cars"
}

// Sample is one recorded step of one car. The scalar columns carry the
// values most queries need; Diagnostics keeps the full record.
type Sample struct {
	ID          uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID   uint       `json:"sessionId" gorm:"index:idx_sample_session_id"`
	CarID       uint       `json:"carId" gorm:"index:idx_sample_car_id"`
	Tick        uint64     `json:"tick" gorm:"index:idx_sample_tick"`
	SimTime     float64    `json:"simTime"` // seconds since session start
	Position    geom.Point `json:"position"`
	Heading     float64    `json:"heading"`
	VX          float64    `json:"vx"`
	VY          float64    `json:"vy"`
	YawRate     float64    `json:"yawRate"`
	Speed       float64    `json:"speed"`
	SteerAngle  float64    `json:"steerAngle"`
	Throttle    float64    `json:"throttle"`
	Brake       float64    `json:"brake"`
	Gear        int        `json:"gear"`
	Phase       string     `json:"phase" gorm:"size:8"`
	Backend     string     `json:"backend" gorm:"size:16"`
	BlendWeight float64    `json:"blendWeight"`
	Skid        float64    `json:"skid"`

	FrontUtilization float64 `json:"frontUtilization"`
	RearUtilization  float64 `json:"rearUtilization"`
	FrontLoad        float64 `json:"frontLoad"`
	RearLoad         float64 `json:"rearLoad"`

	Diagnostics datatypes.JSON `json:"diagnostics" gorm:"default:'{}'"`
}

func (*Sample) TableName() string {
	return "samples"
}

// CarEvent is a discrete occurrence attached to one car
type CarEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_carevent_session_id"`
	CarID     uint      `json:"carId" gorm:"index:idx_carevent_car_id"`
	Tick      uint64    `json:"tick"`
	SimTime   float64   `json:"simTime"`
	Type      string    `json:"type" gorm:"size:32;index:idx_carevent_type"`
	Message   string    `json:"message" gorm:"size:255"`
	Value     float64   `json:"value"`
}

func (*CarEvent) TableName() string {
	return "car_events"
}

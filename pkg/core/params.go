// pkg/core/params.go
package core

import "math"

// BackendMode selects how a car's state is integrated.
type BackendMode string

const (
	BackendKinematic BackendMode = "kinematic"
	BackendDynamic   BackendMode = "dynamic"
	BackendRigidBody BackendMode = "rigidbody"
)

// SteeringProfile is the optional speed-adaptive ("touch") steering setup.
type SteeringProfile struct {
	Adaptive      bool    `json:"adaptive" mapstructure:"adaptive"`
	LowSpeedLock  float64 `json:"lowSpeedLock" mapstructure:"lowSpeedLock"`   // rad, lock limit at standstill
	HighSpeedLock float64 `json:"highSpeedLock" mapstructure:"highSpeedLock"` // rad, asymptotic lock limit at speed
	FalloffSpeed  float64 `json:"falloffSpeed" mapstructure:"falloffSpeed"`   // m/s, e-folding speed of the lock limit
	BaseRate      float64 `json:"baseRate" mapstructure:"baseRate"`           // rad/s at standstill
	RateFalloff   float64 `json:"rateFalloff" mapstructure:"rateFalloff"`     // 1/(m/s)
	ReturnGain    float64 `json:"returnGain" mapstructure:"returnGain"`       // 1/s, return-to-center strength
	FilterTau     float64 `json:"filterTau" mapstructure:"filterTau"`         // s, speed low-pass time constant
}

// SurfaceFriction is one coefficient set, selected by SurfaceInfo.
type SurfaceFriction struct {
	MuLat             float64 `json:"muLat" mapstructure:"muLat"`
	MuLong            float64 `json:"muLong" mapstructure:"muLong"`
	Drag              float64 `json:"drag" mapstructure:"drag"`                           // N per (m/s)^2
	RollingResistance float64 `json:"rollingResistance" mapstructure:"rollingResistance"` // N per m/s
}

// BackendConfig holds integration backend selection and rigid-body tuning.
type BackendConfig struct {
	Mode               BackendMode `json:"mode" mapstructure:"mode"`
	Density            float64     `json:"density" mapstructure:"density"` // 0 derives density from Mass and footprint
	LinearDamping      float64     `json:"linearDamping" mapstructure:"linearDamping"`
	AngularDamping     float64     `json:"angularDamping" mapstructure:"angularDamping"`
	Restitution        float64     `json:"restitution" mapstructure:"restitution"`
	Friction           float64     `json:"friction" mapstructure:"friction"`
	VelocityIterations int         `json:"velocityIterations" mapstructure:"velocityIterations"`
	PositionIterations int         `json:"positionIterations" mapstructure:"positionIterations"`
}

// VehicleParameters describes one vehicle kind. Values are built once through
// ParametersBuilder and never mutated afterwards.
type VehicleParameters struct {
	Kind string `json:"kind" mapstructure:"kind"`

	Mass       float64 `json:"mass" mapstructure:"mass"`
	Wheelbase  float64 `json:"wheelbase" mapstructure:"wheelbase"`
	CGToFront  float64 `json:"cgToFront" mapstructure:"cgToFront"`
	CGToRear   float64 `json:"cgToRear" mapstructure:"cgToRear"`
	CGHeight   float64 `json:"cgHeight" mapstructure:"cgHeight"`
	Width      float64 `json:"width" mapstructure:"width"`
	Length     float64 `json:"length" mapstructure:"length"`
	YawInertia float64 `json:"yawInertia" mapstructure:"yawInertia"`
	Gravity    float64 `json:"gravity" mapstructure:"gravity"`

	MaxSteerAngle      float64         `json:"maxSteerAngle" mapstructure:"maxSteerAngle"`
	SteerRate          float64         `json:"steerRate" mapstructure:"steerRate"`
	ReverseSteerFactor float64         `json:"reverseSteerFactor" mapstructure:"reverseSteerFactor"`
	Steering           SteeringProfile `json:"steering" mapstructure:"steering"`

	BrakeForce      float64 `json:"brakeForce" mapstructure:"brakeForce"`
	BrakeFrontShare float64 `json:"brakeFrontShare" mapstructure:"brakeFrontShare"`

	Road      SurfaceFriction `json:"road" mapstructure:"road"`
	Grass     SurfaceFriction `json:"grass" mapstructure:"grass"`
	Downforce float64         `json:"downforce" mapstructure:"downforce"`

	SlipPeak            float64 `json:"slipPeak" mapstructure:"slipPeak"`
	SlipFalloff         float64 `json:"slipFalloff" mapstructure:"slipFalloff"`
	SlipAngleSaturation float64 `json:"slipAngleSaturation" mapstructure:"slipAngleSaturation"`
	MaxSlipAngle        float64 `json:"maxSlipAngle" mapstructure:"maxSlipAngle"`
	WheelspinGripLoss   float64 `json:"wheelspinGripLoss" mapstructure:"wheelspinGripLoss"`
	FrontEllipseBlend   float64 `json:"frontEllipseBlend" mapstructure:"frontEllipseBlend"`
	RearEllipseBlend    float64 `json:"rearEllipseBlend" mapstructure:"rearEllipseBlend"`
	LoadSensitivityLat  float64 `json:"loadSensitivityLat" mapstructure:"loadSensitivityLat"`
	LoadSensitivityLong float64 `json:"loadSensitivityLong" mapstructure:"loadSensitivityLong"`

	YawDamping             float64 `json:"yawDamping" mapstructure:"yawDamping"`
	ReverseYawDampingScale float64 `json:"reverseYawDampingScale" mapstructure:"reverseYawDampingScale"`
	ReverseEntrySpeed      float64 `json:"reverseEntrySpeed" mapstructure:"reverseEntrySpeed"`
	ReverseTorqueScale     float64 `json:"reverseTorqueScale" mapstructure:"reverseTorqueScale"`

	MaxSpeed            float64 `json:"maxSpeed" mapstructure:"maxSpeed"`
	MaxReverseSpeed     float64 `json:"maxReverseSpeed" mapstructure:"maxReverseSpeed"`
	MaxYawRate          float64 `json:"maxYawRate" mapstructure:"maxYawRate"` // rad/s
	KinematicBlendSpeed float64 `json:"kinematicBlendSpeed" mapstructure:"kinematicBlendSpeed"`
	AccelFilterTau      float64 `json:"accelFilterTau" mapstructure:"accelFilterTau"`
	DirectionBand       float64 `json:"directionBand" mapstructure:"directionBand"`
	CreepSpeed          float64 `json:"creepSpeed" mapstructure:"creepSpeed"`
	CreepDamping        float64 `json:"creepDamping" mapstructure:"creepDamping"`
	NeutralStopSpeed    float64 `json:"neutralStopSpeed" mapstructure:"neutralStopSpeed"`

	Backend BackendConfig `json:"backend" mapstructure:"backend"`
}

// DefaultParameters returns a mid-engined road car tuned in SI units.
func DefaultParameters() VehicleParameters {
	return VehicleParameters{
		Kind:      "default",
		Mass:      1200,
		CGToFront: 1.2,
		CGToRear:  1.4,
		CGHeight:  0.5,
		Width:     1.8,
		Length:    4.2,
		Gravity:   9.81,

		MaxSteerAngle:      0.55,
		SteerRate:          2.5,
		ReverseSteerFactor: 0.6,
		Steering: SteeringProfile{
			LowSpeedLock:  0.6,
			HighSpeedLock: 0.12,
			FalloffSpeed:  15,
			BaseRate:      3,
			RateFalloff:   0.05,
			ReturnGain:    2,
			FilterTau:     0.25,
		},

		BrakeForce:      14000,
		BrakeFrontShare: 0.65,

		Road:      SurfaceFriction{MuLat: 1.2, MuLong: 1.1, Drag: 0.42, RollingResistance: 12},
		Grass:     SurfaceFriction{MuLat: 0.6, MuLong: 0.55, Drag: 0.6, RollingResistance: 300},
		Downforce: 0.8,

		SlipPeak:            0.85,
		SlipFalloff:         0.3,
		SlipAngleSaturation: 8 * math.Pi / 180,
		MaxSlipAngle:        1.2,
		WheelspinGripLoss:   0.8,
		FrontEllipseBlend:   0.6,
		RearEllipseBlend:    0.5,
		LoadSensitivityLat:  0.12,
		LoadSensitivityLong: 0.08,

		YawDamping:             0.6,
		ReverseYawDampingScale: 2.5,
		ReverseEntrySpeed:      0.5,
		ReverseTorqueScale:     0.6,

		MaxSpeed:            70,
		MaxReverseSpeed:     8,
		MaxYawRate:          8,
		KinematicBlendSpeed: 4,
		AccelFilterTau:      0.10,
		DirectionBand:       0.15,
		CreepSpeed:          1.2,
		CreepDamping:        3,
		NeutralStopSpeed:    0.5,

		Backend: BackendConfig{
			Mode:               BackendDynamic,
			LinearDamping:      0.05,
			AngularDamping:     0.1,
			Restitution:        0.2,
			Friction:           0.4,
			VelocityIterations: 8,
			PositionIterations: 3,
		},
	}
}

// ParametersBuilder assembles a VehicleParameters value. Build derives the
// dependent fields and floors anything that would otherwise divide by zero.
type ParametersBuilder struct {
	p VehicleParameters
}

// NewParametersBuilder starts from base, usually DefaultParameters or a
// decoded config table entry.
func NewParametersBuilder(base VehicleParameters) *ParametersBuilder {
	return &ParametersBuilder{p: base}
}

func (b *ParametersBuilder) Kind(kind string) *ParametersBuilder {
	b.p.Kind = kind
	return b
}

func (b *ParametersBuilder) Mass(mass float64) *ParametersBuilder {
	b.p.Mass = mass
	b.p.YawInertia = 0
	return b
}

// Geometry sets CG placement. The wheelbase is re-derived on Build.
func (b *ParametersBuilder) Geometry(cgToFront, cgToRear, cgHeight float64) *ParametersBuilder {
	b.p.CGToFront = cgToFront
	b.p.CGToRear = cgToRear
	b.p.CGHeight = cgHeight
	b.p.Wheelbase = 0
	return b
}

// Footprint sets the collider size. Yaw inertia is re-derived on Build.
func (b *ParametersBuilder) Footprint(width, length float64) *ParametersBuilder {
	b.p.Width = width
	b.p.Length = length
	b.p.YawInertia = 0
	return b
}

func (b *ParametersBuilder) Steering(maxAngle, rate float64) *ParametersBuilder {
	b.p.MaxSteerAngle = maxAngle
	b.p.SteerRate = rate
	return b
}

func (b *ParametersBuilder) AdaptiveSteering(profile SteeringProfile) *ParametersBuilder {
	profile.Adaptive = true
	b.p.Steering = profile
	return b
}

func (b *ParametersBuilder) Backend(cfg BackendConfig) *ParametersBuilder {
	b.p.Backend = cfg
	return b
}

func (b *ParametersBuilder) BackendMode(mode BackendMode) *ParametersBuilder {
	b.p.Backend.Mode = mode
	return b
}

func (b *ParametersBuilder) MaxSpeed(forward, reverse float64) *ParametersBuilder {
	b.p.MaxSpeed = forward
	b.p.MaxReverseSpeed = reverse
	return b
}

// Build returns the finished parameters.
func (b *ParametersBuilder) Build() VehicleParameters {
	p := b.p

	p.Mass = floor(p.Mass, 1)
	p.CGToFront = floor(p.CGToFront, 0.1)
	p.CGToRear = floor(p.CGToRear, 0.1)
	p.CGHeight = math.Max(p.CGHeight, 0)
	if p.Wheelbase <= 0 {
		p.Wheelbase = p.CGToFront + p.CGToRear
	}
	p.Wheelbase = floor(p.Wheelbase, 0.5)
	p.Width = floor(p.Width, 0.1)
	p.Length = floor(p.Length, 0.1)
	if p.YawInertia <= 0 {
		p.YawInertia = p.Mass * (p.Length*p.Length + p.Width*p.Width) / 12
	}
	p.YawInertia = floor(p.YawInertia, 1)
	if p.Gravity <= 0 {
		p.Gravity = 9.81
	}

	p.MaxSteerAngle = clamp(p.MaxSteerAngle, 0.01, 1.4)
	p.SteerRate = floor(p.SteerRate, 0.01)
	if p.ReverseSteerFactor <= 0 {
		p.ReverseSteerFactor = 1
	}
	p.Steering.LowSpeedLock = clamp(p.Steering.LowSpeedLock, 0.01, 1.4)
	p.Steering.HighSpeedLock = clamp(p.Steering.HighSpeedLock, 0.01, p.Steering.LowSpeedLock)
	p.Steering.FalloffSpeed = floor(p.Steering.FalloffSpeed, 0.1)
	p.Steering.BaseRate = floor(p.Steering.BaseRate, 0.01)
	p.Steering.RateFalloff = math.Max(p.Steering.RateFalloff, 0)
	p.Steering.ReturnGain = math.Max(p.Steering.ReturnGain, 0)
	p.Steering.FilterTau = floor(p.Steering.FilterTau, 1e-3)

	p.BrakeForce = math.Max(p.BrakeForce, 0)
	p.BrakeFrontShare = clamp(p.BrakeFrontShare, 0, 1)
	p.Road = floorFriction(p.Road)
	p.Grass = floorFriction(p.Grass)
	p.Downforce = math.Max(p.Downforce, 0)

	p.SlipPeak = clamp(p.SlipPeak, 0.05, 1)
	p.SlipFalloff = floor(p.SlipFalloff, 0.01)
	p.SlipAngleSaturation = floor(p.SlipAngleSaturation, 0.01)
	p.MaxSlipAngle = math.Max(p.MaxSlipAngle, p.SlipAngleSaturation)
	p.WheelspinGripLoss = math.Max(p.WheelspinGripLoss, 0)
	p.FrontEllipseBlend = clamp(p.FrontEllipseBlend, 0, 1)
	p.RearEllipseBlend = clamp(p.RearEllipseBlend, 0, 1)

	p.YawDamping = math.Max(p.YawDamping, 0)
	if p.ReverseYawDampingScale < 1 {
		p.ReverseYawDampingScale = 1
	}
	p.DirectionBand = floor(p.DirectionBand, 0.01)
	p.ReverseEntrySpeed = math.Max(p.ReverseEntrySpeed, p.DirectionBand)
	p.ReverseTorqueScale = clamp(p.ReverseTorqueScale, 0, 1)

	p.MaxSpeed = floor(p.MaxSpeed, 1)
	if p.MaxReverseSpeed <= 0 || p.MaxReverseSpeed > p.MaxSpeed {
		p.MaxReverseSpeed = p.MaxSpeed
	}
	if p.MaxYawRate <= 0 {
		p.MaxYawRate = 8
	}
	p.KinematicBlendSpeed = floor(p.KinematicBlendSpeed, 0.1)
	p.AccelFilterTau = floor(p.AccelFilterTau, 1e-3)
	p.CreepSpeed = math.Max(p.CreepSpeed, 0)
	p.CreepDamping = math.Max(p.CreepDamping, 0)
	p.NeutralStopSpeed = math.Max(p.NeutralStopSpeed, 0)

	switch p.Backend.Mode {
	case BackendKinematic, BackendDynamic, BackendRigidBody:
	default:
		p.Backend.Mode = BackendDynamic
	}
	if p.Backend.VelocityIterations < 1 {
		p.Backend.VelocityIterations = 8
	}
	if p.Backend.PositionIterations < 1 {
		p.Backend.PositionIterations = 3
	}
	p.Backend.Density = math.Max(p.Backend.Density, 0)

	return p
}

// BodyDensity is the collider density the rigid-body backend should use.
func (p VehicleParameters) BodyDensity() float64 {
	if p.Backend.Density > 0 {
		return p.Backend.Density
	}
	return p.Mass / (p.Width * p.Length)
}

func floorFriction(f SurfaceFriction) SurfaceFriction {
	f.MuLat = floor(f.MuLat, 0.05)
	f.MuLong = floor(f.MuLong, 0.05)
	f.Drag = math.Max(f.Drag, 0)
	f.RollingResistance = math.Max(f.RollingResistance, 0)
	return f
}

func floor(v, lo float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

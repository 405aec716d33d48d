package drivetrain

// GearboxInput is what the gearbox sees each step, after pedal overrides.
type GearboxInput struct {
	Throttle  float64
	Brake     float64
	Speed     float64 // signed body-frame longitudinal speed, m/s
	Auto      bool
	ShiftUp   bool
	ShiftDown bool
}

// Gearbox is the external transmission model. Gear is -1 for reverse, 0 for
// neutral and positive for forward gears. Ratios stay behind this interface.
type Gearbox interface {
	Update(dt float64, in GearboxInput)
	DriveForce(speed, throttle float64) float64
	Gear() int
	Shift(delta int) bool
}

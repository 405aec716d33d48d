// Package load computes longitudinal weight transfer between the axles.
package load

import (
	"math"

	"github.com/OCAP2/vehicledyn/internal/util"
	"github.com/OCAP2/vehicledyn/pkg/core"
)

const (
	// MaxTransferFraction bounds ΔF as a fraction of the static weight.
	MaxTransferFraction = 0.3
	// MinShare and MaxShare bound each axle's fraction of the total load.
	MinShare = 0.28
	MaxShare = 0.72

	minAxleLoad = 1.0 // N
)

// Compute returns the axle normal loads for the given speed and filtered
// longitudinal acceleration. Front plus rear always equals m*g plus downforce.
func Compute(p core.VehicleParameters, speed, filteredAccel, g float64) core.AxleLoads {
	if g <= 0 {
		g = p.Gravity
	}
	L := util.Floor(p.Wheelbase, 0.5)
	weight := p.Mass * g
	downforce := p.Downforce * speed * speed
	total := weight + downforce

	frontStatic := total * p.CGToRear / L

	transfer := util.ClampAbs(p.Mass*p.CGHeight*util.Finite(filteredAccel, 0)/L, MaxTransferFraction*weight)
	front := frontStatic - transfer

	front = util.Clamp(front, MinShare*total, MaxShare*total)
	return core.AxleLoads{
		Front: front,
		Rear:  total - front,
	}
}

// Floor guards a single axle load before it is used as a divisor.
func Floor(fz float64) float64 {
	return util.Floor(fz, minAxleLoad)
}

// FilterAccel is the first-order low-pass applied to the commanded acceleration.
func FilterAccel(prev, commanded, tau, dt float64) float64 {
	if dt <= 0 {
		return prev
	}
	next := prev + (commanded-prev)*util.LowPassAlpha(dt, tau)
	return util.Finite(next, 0)
}

// Commanded is the longitudinal acceleration implied by the pedal forces,
// before tire limits. Brake, drag and rolling always oppose vx.
func Commanded(p core.VehicleParameters, surf core.SurfaceFriction, vx, driveForce, brakeForce float64) float64 {
	resist := brakeForce + surf.Drag*vx*vx + surf.RollingResistance*math.Abs(vx)
	return (driveForce - util.Sign(vx)*resist) / p.Mass
}

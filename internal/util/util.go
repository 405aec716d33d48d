// Package util provides numeric helpers shared by the simulation packages.
package util

import (
	"math"

	"github.com/samber/lo"
)

// Floor returns v, or bound when v is below bound or NaN.
func Floor(v, bound float64) float64 {
	if math.IsNaN(v) || v < bound {
		return bound
	}
	return v
}

// Clamp bounds v to [lower, upper]. NaN maps to lower.
func Clamp(v, lower, upper float64) float64 {
	if math.IsNaN(v) {
		return lower
	}
	return lo.Clamp(v, lower, upper)
}

// ClampAbs bounds v to [-limit, limit].
func ClampAbs(v, limit float64) float64 {
	return Clamp(v, -limit, limit)
}

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Smoothstep is the cubic Hermite ramp between edge0 and edge1.
func Smoothstep(edge0, edge1, x float64) float64 {
	if edge1 <= edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

// LowPassAlpha is the first-order filter weight 1-exp(-dt/tau).
func LowPassAlpha(dt, tau float64) float64 {
	if tau <= 0 {
		return 1
	}
	return 1 - math.Exp(-dt/tau)
}

// Finite returns v, or fallback when v is NaN or infinite.
func Finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

package core

import (
	"math"
	"time"

	"growthcore/pkg/domain"
)

// absoluteZeroC is the physical lower bound for temperature inputs.
const absoluteZeroC = -273.15

// DailyGain computes one day of weight gain from the thermal growth
// coefficient formula delta = c * T^m * W^n, with per-stage overrides.
// Water at or below freezing produces no measurable growth, so temperatures
// at or below 0°C yield a zero delta rather than a negative-base power.
func DailyGain(weightG, tempC float64, model domain.GrowthModel, stage string, date time.Time) (float64, error) {
	if tempC <= absoluteZeroC || math.IsNaN(tempC) {
		return 0, domain.InvalidGrowthInputError{Date: date, Field: "temperature", Value: tempC}
	}
	if weightG < 0 || math.IsNaN(weightG) {
		return 0, domain.InvalidGrowthInputError{Date: date, Field: "weight", Value: weightG}
	}
	if tempC <= 0 {
		return 0, nil
	}
	c, m, n := model.OverrideFor(stage)
	return c * math.Pow(tempC, m) * math.Pow(weightG, n), nil
}

// ImpliedCoefficient solves the reverse problem: the coefficient that grows
// startWeightG into endWeightG over the given number of days at a constant
// temperature, holding the model's exponents fixed. Used to calibrate a
// growth model from a pair of observed measurements.
//
// The day-by-day recurrence has no closed form, but the end weight is
// strictly increasing in the coefficient, so bisection converges.
func ImpliedCoefficient(startWeightG, endWeightG, tempC float64, days int, tempExp, weightExp float64) (float64, error) {
	if startWeightG <= 0 {
		return 0, domain.InvalidGrowthInputError{Field: "start_weight", Value: startWeightG}
	}
	if endWeightG < startWeightG {
		return 0, domain.InvalidGrowthInputError{Field: "end_weight", Value: endWeightG}
	}
	if tempC <= 0 {
		return 0, domain.InvalidGrowthInputError{Field: "temperature", Value: tempC}
	}
	if days <= 0 {
		return 0, domain.InvalidGrowthInputError{Field: "days", Value: float64(days)}
	}
	if endWeightG == startWeightG {
		return 0, nil
	}

	simulate := func(c float64) float64 {
		w := startWeightG
		for i := 0; i < days; i++ {
			w += c * math.Pow(tempC, tempExp) * math.Pow(w, weightExp)
		}
		return w
	}

	lo, hi := 0.0, 1.0
	for simulate(hi) < endWeightG {
		hi *= 2
		if hi > 1e6 {
			return 0, domain.InvalidGrowthInputError{Field: "coefficient", Value: hi}
		}
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if simulate(mid) < endWeightG {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-12 {
			break
		}
	}
	return (lo + hi) / 2, nil
}

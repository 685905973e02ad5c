package core

import (
	"math"

	"growthcore/pkg/domain"
)

// SurvivingPopulation applies one day of modeled continuous decay. The
// result is floored to a whole animal and never goes negative.
func SurvivingPopulation(population int, model domain.MortalityModel) int {
	if population <= 0 {
		return 0
	}
	next := int(math.Floor(float64(population) * model.DailySurvival()))
	if next < 0 {
		return 0
	}
	return next
}

// ApplyShock subtracts a discrete mortality event from the population. Shock
// losses are layered on top of the continuous model, never blended into the
// rate.
func ApplyShock(population, losses int) int {
	next := population - losses
	if next < 0 {
		return 0
	}
	return next
}

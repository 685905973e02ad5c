package core

import (
	"math"
	"testing"

	"growthcore/pkg/domain"
)

func TestDailySurvivalFrequencies(t *testing.T) {
	daily := domain.MortalityModel{Rate: 0.01, Frequency: domain.FrequencyDaily}
	if got := daily.DailySurvival(); got != 0.99 {
		t.Fatalf("expected daily survival 0.99, got %g", got)
	}

	weekly := domain.MortalityModel{Rate: 0.07, Frequency: domain.FrequencyWeekly}
	want := math.Pow(1-0.07, 1.0/7.0)
	if got := weekly.DailySurvival(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected weekly rate compounded per day, got %g want %g", got, want)
	}

	// Surviving seven days at the implied daily rate must equal surviving
	// one week at the configured weekly rate.
	sevenDays := math.Pow(weekly.DailySurvival(), 7)
	if math.Abs(sevenDays-(1-0.07)) > 1e-12 {
		t.Fatalf("expected weekly compounding to round-trip, got %g", sevenDays)
	}
}

func TestImpliedRates(t *testing.T) {
	model := domain.MortalityModel{Rate: 0.01, Frequency: domain.FrequencyDaily}
	if got := model.ImpliedDailyRate(); math.Abs(got-0.01) > 1e-12 {
		t.Fatalf("expected implied daily rate 0.01, got %g", got)
	}
	annual := model.ImpliedAnnualRate()
	want := 1 - math.Pow(0.99, 365)
	if math.Abs(annual-want) > 1e-12 {
		t.Fatalf("expected annual rate %g, got %g", want, annual)
	}
}

func TestSurvivingPopulationFloorsToWholeAnimals(t *testing.T) {
	model := domain.MortalityModel{Rate: 0.01, Frequency: domain.FrequencyDaily}
	if got := SurvivingPopulation(100, model); got != 99 {
		t.Fatalf("expected 99 survivors, got %d", got)
	}
	if got := SurvivingPopulation(50, model); got != 49 {
		t.Fatalf("expected floor(49.5) = 49 survivors, got %d", got)
	}
	if got := SurvivingPopulation(0, model); got != 0 {
		t.Fatalf("expected empty population to stay empty, got %d", got)
	}
	if got := SurvivingPopulation(-5, model); got != 0 {
		t.Fatalf("expected negative input clamped to zero, got %d", got)
	}
}

func TestApplyShockClampsAtZero(t *testing.T) {
	if got := ApplyShock(100, 30); got != 70 {
		t.Fatalf("expected 70 after shock, got %d", got)
	}
	if got := ApplyShock(10, 25); got != 0 {
		t.Fatalf("expected population clamped at zero, got %d", got)
	}
}

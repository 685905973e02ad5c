package domain

import (
	"math"
	"testing"
	"time"
)

func TestDayOfNormalizesToUTCDay(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	ts := time.Date(2026, 3, 5, 1, 30, 0, 0, loc)
	day := DayOf(ts)
	if day.Hour() != 0 || day.Minute() != 0 || day.Location() != time.UTC {
		t.Fatalf("expected UTC midnight, got %v", day)
	}
	if day.Day() != 4 {
		t.Fatalf("01:30+02:00 is still the prior UTC day, got %v", day)
	}
}

func TestSlotActiveWindow(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	slot := CohortSlot{StartDate: start, EndDate: &end}
	if slot.Active(start.AddDate(0, 0, -1)) {
		t.Fatalf("slot active before start")
	}
	if !slot.Active(start) || !slot.Active(end) {
		t.Fatalf("slot inactive inside window")
	}
	if slot.Active(end.AddDate(0, 0, 1)) {
		t.Fatalf("slot active after end")
	}
	open := CohortSlot{StartDate: start}
	if !open.Active(end.AddDate(1, 0, 0)) {
		t.Fatalf("open-ended slot should remain active")
	}
}

func TestGrowthModelOverrideFor(t *testing.T) {
	coef := 0.003
	model := GrowthModel{
		Coefficient:         0.0025,
		TemperatureExponent: 0.33,
		WeightExponent:      0.66,
		StageOverrides:      []StageGrowthOverride{{Stage: "smolt", Coefficient: &coef}},
	}
	c, m, n := model.OverrideFor("smolt")
	if c != coef || m != 0.33 || n != 0.66 {
		t.Fatalf("partial override mismatch: %v %v %v", c, m, n)
	}
	c, m, n = model.OverrideFor("fry")
	if c != 0.0025 || m != 0.33 || n != 0.66 {
		t.Fatalf("unlisted stage must use model-level values")
	}
}

func TestMortalityModelDerivedRates(t *testing.T) {
	daily := MortalityModel{Rate: 0.001, Frequency: FrequencyDaily}
	if got := daily.DailySurvival(); got != 0.999 {
		t.Fatalf("daily survival %v", got)
	}
	weekly := MortalityModel{Rate: 0.007, Frequency: FrequencyWeekly}
	want := math.Pow(1-0.007, 1.0/7.0)
	if got := weekly.DailySurvival(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("weekly-to-daily compounding: got %v want %v", got, want)
	}
	// Seven compounded days reproduce the weekly rate.
	if got := math.Pow(weekly.DailySurvival(), 7); math.Abs(got-(1-0.007)) > 1e-12 {
		t.Fatalf("weekly round trip: %v", got)
	}
	if r := daily.ImpliedAnnualRate(); r <= daily.ImpliedDailyRate() || r >= 1 {
		t.Fatalf("annual rate out of range: %v", r)
	}
}

func TestFeedModelEntryLookup(t *testing.T) {
	model := FeedConversionModel{Entries: []FeedConversionEntry{
		{Stage: "alevin", Ratio: 0},
		{Stage: "fry", Ratio: 0.9},
	}}
	if _, ok := model.EntryFor("missing"); ok {
		t.Fatalf("expected missing stage lookup to fail")
	}
	entry, ok := model.EntryFor("fry")
	if !ok || entry.Ratio != 0.9 {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestStageTableOrdering(t *testing.T) {
	table := StageTable{Stages: []StageDefinition{
		{Name: "alevin", MinWeightG: 0, MaxWeightG: 0.5},
		{Name: "fry", MinWeightG: 0.5, MaxWeightG: 5},
	}}
	if table.Earliest() != "alevin" {
		t.Fatalf("earliest stage %q", table.Earliest())
	}
	if idx, ok := table.IndexOf("fry"); !ok || idx != 1 {
		t.Fatalf("IndexOf fry = %d, %v", idx, ok)
	}
	if _, ok := table.IndexOf("adult"); ok {
		t.Fatalf("unknown stage should not resolve")
	}
	if (StageTable{}).Earliest() != "" {
		t.Fatalf("empty table has no earliest stage")
	}
}

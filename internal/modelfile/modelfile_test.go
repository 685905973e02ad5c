package modelfile

import (
	"context"
	"strings"
	"testing"
	"time"

	"growthcore/internal/core"
	"growthcore/internal/infra/persistence/memory"
	"growthcore/pkg/domain"
)

const sampleDocument = `
{
  // hatchery configuration for the 2026 season
  stage_table: {
    stages: [
      {name: fry, min_weight_g: 0, max_weight_g: 5, max_days: 120, container_id: tray}
      {name: parr, min_weight_g: 5, max_weight_g: 50, container_id: tank}
      {name: smolt, min_weight_g: 50, container_id: pen}
    ]
  }
  growth_models: [
    {
      name: tgc-atlantic
      coefficient: 0.0025
      temperature_exponent: 0.33
      weight_exponent: 0.66
      stage_overrides: [
        {stage: fry, coefficient: 0.0021}
      ]
    }
  ]
  feed_models: [
    {
      name: standard
      entries: [
        {stage: fry, ratio: 0}  // yolk-sac stage, no external feed
        {stage: parr, ratio: 1.1, bands: [{min_weight_g: 0, max_weight_g: 10, ratio: 0.9}]}
        {stage: smolt, ratio: 1.3}
      ]
    }
  ]
  mortality_models: [
    {name: baseline, rate: 0.01, frequency: weekly}
  ]
  temperature_profiles: [
    {
      name: hall-a
      location: building 2
      default_c: 10
      max_gap_days: 7
      readings: [
        {date: 2026-03-01, temperature_c: 9.5}
        {date: 2026-03-02, temperature_c: 9.8}
      ]
    }
  ]
}
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.StageTable == nil || len(doc.StageTable.Stages) != 3 {
		t.Fatalf("stage table = %+v", doc.StageTable)
	}
	if len(doc.GrowthModels) != 1 || doc.GrowthModels[0].Name != "tgc-atlantic" {
		t.Fatalf("growth models = %+v", doc.GrowthModels)
	}
	override := doc.GrowthModels[0].StageOverrides[0]
	if override.Stage != "fry" || override.Coefficient == nil || *override.Coefficient != 0.0021 {
		t.Fatalf("stage override = %+v", override)
	}
	if override.TemperatureExponent != nil {
		t.Fatalf("absent override field should stay nil, got %v", *override.TemperatureExponent)
	}
	profile := doc.TemperatureProfiles[0]
	wantDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !profile.Readings[0].Date.Equal(wantDate) {
		t.Fatalf("reading date = %s, want %s", profile.Readings[0].Date, wantDate)
	}
}

func TestParseRejectsBadDate(t *testing.T) {
	_, err := Parse([]byte(`{temperature_profiles: [{name: x, readings: [{date: "03/01/2026", temperature_c: 9}]}]}`))
	if err == nil || !strings.Contains(err.Error(), "date") {
		t.Fatalf("expected date parse failure, got %v", err)
	}
}

func TestInstallDocument(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore(core.DefaultRulesEngine()))

	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	report, err := doc.Install(ctx, svc)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !report.StageTableSet {
		t.Fatal("stage table not installed")
	}
	for name, ids := range map[string]map[string]string{
		"tgc-atlantic": report.GrowthModelIDs,
		"standard":     report.FeedModelIDs,
		"baseline":     report.MortalityModelIDs,
		"hall-a":       report.ProfileIDs,
	} {
		if ids[name] == "" {
			t.Fatalf("no ID assigned for %s: %+v", name, report)
		}
	}

	growth, ok := svc.Store().GetGrowthModel(report.GrowthModelIDs["tgc-atlantic"])
	if !ok || growth.Coefficient != 0.0025 {
		t.Fatalf("installed growth model = %+v", growth)
	}
	profile, ok := svc.Store().GetTemperatureProfile(report.ProfileIDs["hall-a"])
	if !ok || len(profile.Readings) != 2 {
		t.Fatalf("installed profile = %+v", profile)
	}
}

func TestInstallStopsOnBlockedModel(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore(core.DefaultRulesEngine()))

	doc := Document{
		MortalityModels: []MortalityModel{{Name: "bad", Rate: 1.5, Frequency: "daily"}},
	}
	if _, err := doc.Install(ctx, svc); err == nil {
		t.Fatal("expected install failure for out-of-range mortality rate")
	}
}

func TestScenarioResolve(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore(core.DefaultRulesEngine()))
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	report, err := doc.Install(ctx, svc)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	sc, err := ParseScenario([]byte(`
{
  label: spring outlook
  scope_id: cohort-1
  horizon_days: 90
  start: {date: 2026-03-11, weight_g: 20, population: 500, stage: parr}
  growth_model: tgc-atlantic
  feed_model: standard
  mortality_model: baseline
  profile: hall-a
  changes: [
    {day_offset: 30, mortality_model: baseline}
  ]
}
`))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}

	req, err := sc.Resolve(ctx, svc.Store())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if req.GrowthModelID != report.GrowthModelIDs["tgc-atlantic"] {
		t.Fatalf("growth model id = %s, want %s", req.GrowthModelID, report.GrowthModelIDs["tgc-atlantic"])
	}
	if req.ProfileID != report.ProfileIDs["hall-a"] || req.HorizonDays != 90 {
		t.Fatalf("request = %+v", req)
	}
	if req.Start.WeightG != 20 || req.Start.Stage != "parr" {
		t.Fatalf("start = %+v", req.Start)
	}
	if len(req.Changes) != 1 || req.Changes[0].Mortality == nil || req.Changes[0].DayOffset != 30 {
		t.Fatalf("changes = %+v", req.Changes)
	}

	run, _, err := svc.RunProjection(ctx, req)
	if err != nil {
		t.Fatalf("RunProjection from scenario: %v", err)
	}
	if run.Status != domain.RunStatusCompleted || len(run.States) != 90 {
		t.Fatalf("run = %s with %d states", run.Status, len(run.States))
	}
}

func TestScenarioResolveFromSlotAndErrors(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.NewStore(core.DefaultRulesEngine()))
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := doc.Install(ctx, svc); err != nil {
		t.Fatalf("Install: %v", err)
	}

	sc := Scenario{
		Label: "x", ScopeID: "cohort-1", HorizonDays: 10,
		Start:       ScenarioStart{FromSlot: "slot-1"},
		GrowthModel: "tgc-atlantic", FeedModel: "standard",
		MortalityModel: "baseline", Profile: "hall-a",
	}
	req, err := sc.Resolve(ctx, svc.Store())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if req.Start.FromSlotID == nil || *req.Start.FromSlotID != "slot-1" {
		t.Fatalf("start = %+v, want from slot-1", req.Start)
	}

	sc.GrowthModel = "nonexistent"
	if _, err := sc.Resolve(ctx, svc.Store()); err == nil ||
		!strings.Contains(err.Error(), "nonexistent") {
		t.Fatalf("expected unresolved reference error, got %v", err)
	}
}

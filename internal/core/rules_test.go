package core

import (
	"context"
	"testing"
	"time"

	"growthcore/pkg/domain"
)

type staticRuleView struct {
	slots []domain.CohortSlot
	table *domain.StageTable
}

func (v staticRuleView) ListCohorts() []domain.Cohort                         { return nil }
func (v staticRuleView) ListSlots() []domain.CohortSlot                       { return v.slots }
func (v staticRuleView) ListGrowthModels() []domain.GrowthModel               { return nil }
func (v staticRuleView) ListFeedModels() []domain.FeedConversionModel         { return nil }
func (v staticRuleView) ListMortalityModels() []domain.MortalityModel         { return nil }
func (v staticRuleView) ListTemperatureProfiles() []domain.TemperatureProfile { return nil }
func (v staticRuleView) ListTransfers() []domain.TransferAction               { return nil }
func (v staticRuleView) ListRuns() []domain.ProjectionRun                     { return nil }

func (v staticRuleView) StageTable() (domain.StageTable, bool) {
	if v.table == nil {
		return domain.StageTable{}, false
	}
	return *v.table, true
}

func (v staticRuleView) FindCohort(string) (domain.Cohort, bool) { return domain.Cohort{}, false }

func (v staticRuleView) FindSlot(id string) (domain.CohortSlot, bool) {
	for _, s := range v.slots {
		if s.ID == id {
			return s, true
		}
	}
	return domain.CohortSlot{}, false
}

func (v staticRuleView) FindGrowthModel(string) (domain.GrowthModel, bool) {
	return domain.GrowthModel{}, false
}

func (v staticRuleView) FindFeedModel(string) (domain.FeedConversionModel, bool) {
	return domain.FeedConversionModel{}, false
}

func (v staticRuleView) FindMortalityModel(string) (domain.MortalityModel, bool) {
	return domain.MortalityModel{}, false
}

func (v staticRuleView) FindTemperatureProfile(string) (domain.TemperatureProfile, bool) {
	return domain.TemperatureProfile{}, false
}

func (v staticRuleView) FindRun(string) (domain.ProjectionRun, bool) {
	return domain.ProjectionRun{}, false
}

func evaluateRule(t *testing.T, rule domain.Rule, view domain.RuleView, changes []domain.Change) domain.Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, changes)
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func TestModelConfigurationRuleGrowth(t *testing.T) {
	rule := ModelConfigurationRule()

	valid := domain.GrowthModel{Name: "tgc", Coefficient: 0.0025, TemperatureExponent: 0.33, WeightExponent: 0.66}
	res := evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityGrowthModel, Action: domain.ActionCreate, After: valid},
	})
	if res.HasBlocking() {
		t.Fatalf("expected valid growth model to pass, got %+v", res.Violations)
	}

	invalid := domain.GrowthModel{Name: "bad", Coefficient: -1, TemperatureExponent: 0, WeightExponent: 5}
	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityGrowthModel, Action: domain.ActionCreate, After: invalid},
	})
	if len(res.Violations) != 3 {
		t.Fatalf("expected three blocking violations, got %+v", res.Violations)
	}

	zero := 0.0
	overridden := valid
	overridden.StageOverrides = []domain.StageGrowthOverride{{Stage: "fry", Coefficient: &zero}}
	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityGrowthModel, Action: domain.ActionCreate, After: overridden},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected zero override coefficient to block")
	}
}

func TestModelConfigurationRuleMortality(t *testing.T) {
	rule := ModelConfigurationRule()

	res := evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityMortalityModel, Action: domain.ActionCreate, After: domain.MortalityModel{Name: "ok", Rate: 0.01, Frequency: domain.FrequencyWeekly}},
	})
	if res.HasBlocking() {
		t.Fatalf("expected valid mortality model to pass, got %+v", res.Violations)
	}

	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityMortalityModel, Action: domain.ActionCreate, After: domain.MortalityModel{Name: "bad", Rate: 1.5, Frequency: "monthly"}},
	})
	if len(res.Violations) != 2 {
		t.Fatalf("expected rate and frequency violations, got %+v", res.Violations)
	}
}

func TestFeedStageExemptRule(t *testing.T) {
	rule := FeedStageExemptRule()
	table := stageTableFixture()
	view := staticRuleView{table: &table}

	// Zero ratio on the earliest stage is the documented exemption.
	exempt := domain.FeedConversionModel{Name: "fcr", Entries: []domain.FeedConversionEntry{
		{Stage: "fry", Ratio: 0},
		{Stage: "parr", Ratio: 1.1},
	}}
	res := evaluateRule(t, rule, view, []domain.Change{
		{Entity: domain.EntityFeedModel, Action: domain.ActionCreate, After: exempt},
	})
	if res.HasBlocking() {
		t.Fatalf("expected earliest-stage zero ratio to be exempt, got %+v", res.Violations)
	}

	// Zero ratio anywhere else blocks.
	invalid := domain.FeedConversionModel{Name: "fcr", Entries: []domain.FeedConversionEntry{
		{Stage: "fry", Ratio: 0.9},
		{Stage: "parr", Ratio: 0},
	}}
	res = evaluateRule(t, rule, view, []domain.Change{
		{Entity: domain.EntityFeedModel, Action: domain.ActionCreate, After: invalid},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected zero ratio on later stage to block")
	}

	// Without a stage table there is no earliest stage to exempt.
	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityFeedModel, Action: domain.ActionCreate, After: exempt},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected zero ratio to block when no stage table defines the earliest stage")
	}

	res = evaluateRule(t, rule, view, []domain.Change{
		{Entity: domain.EntityFeedModel, Action: domain.ActionCreate, After: domain.FeedConversionModel{Name: "empty"}},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected empty entry list to block")
	}

	banded := domain.FeedConversionModel{Name: "fcr", Entries: []domain.FeedConversionEntry{
		{Stage: "parr", Ratio: 1.1, Bands: []domain.WeightBand{{MinWeightG: 10, MaxWeightG: 5, Ratio: 1}}},
	}}
	res = evaluateRule(t, rule, view, []domain.Change{
		{Entity: domain.EntityFeedModel, Action: domain.ActionCreate, After: banded},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected inverted weight band to block")
	}
}

func TestStageRangeRule(t *testing.T) {
	rule := StageRangeRule()

	res := evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityStageTable, Action: domain.ActionCreate, After: stageTableFixture()},
	})
	if res.HasBlocking() {
		t.Fatalf("expected contiguous table to pass, got %+v", res.Violations)
	}

	gapped := domain.StageTable{Stages: []domain.StageDefinition{
		{Name: "fry", MinWeightG: 0, MaxWeightG: 5},
		{Name: "parr", MinWeightG: 6, MaxWeightG: 50},
	}}
	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityStageTable, Action: domain.ActionCreate, After: gapped},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected gap between ranges to block")
	}

	duplicated := domain.StageTable{Stages: []domain.StageDefinition{
		{Name: "fry", MinWeightG: 0, MaxWeightG: 5},
		{Name: "fry", MinWeightG: 5, MaxWeightG: 50},
	}}
	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityStageTable, Action: domain.ActionCreate, After: duplicated},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected duplicate stage name to block")
	}

	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityStageTable, Action: domain.ActionCreate, After: domain.StageTable{}},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected empty table to block")
	}
}

func TestSlotPopulationSourceRule(t *testing.T) {
	rule := SlotPopulationSourceRule()

	res := evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: domain.CohortSlot{
			Base: domain.Base{ID: "s1"}, PopulationSource: domain.SourceTransferFed, InitialPopulation: 100,
		}},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected transfer-fed slot with initial population to block")
	}

	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: domain.CohortSlot{
			Base: domain.Base{ID: "s2"}, PopulationSource: domain.SourcePrePopulated, InitialPopulation: 0,
		}},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected pre-populated slot without population to block")
	}

	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: domain.CohortSlot{
			Base: domain.Base{ID: "s3"}, PopulationSource: "magic",
		}},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected unknown population source to block")
	}

	dest := domain.CohortSlot{
		Base:              domain.Base{ID: "dest"},
		StartDate:         dayAt(2026, 3, 1),
		PopulationSource:  domain.SourcePrePopulated,
		InitialPopulation: 1000,
	}
	res = evaluateRule(t, rule, staticRuleView{slots: []domain.CohortSlot{dest}}, []domain.Change{
		{Entity: domain.EntityTransfer, Action: domain.ActionCreate, After: domain.TransferAction{
			Base: domain.Base{ID: "t1"}, DestinationSlotID: "dest", Date: dayAt(2026, 3, 1), Count: 50,
		}},
	})
	if res.HasBlocking() {
		t.Fatalf("expected day-one transfer to warn, not block: %+v", res.Violations)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected a single warning, got %+v", res.Violations)
	}
}

func TestTemperatureProfileRule(t *testing.T) {
	rule := TemperatureProfileRule()

	duplicated := domain.TemperatureProfile{Base: domain.Base{ID: "p1"}, Name: "hall", Readings: []domain.TemperatureReading{
		{Date: dayAt(2026, 3, 1), TemperatureC: 10},
		{Date: dayAt(2026, 3, 1).Add(6 * time.Hour), TemperatureC: 11},
	}}
	res := evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityTemperatureProfile, Action: domain.ActionCreate, After: duplicated},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected same-day readings to block")
	}

	referenced := staticRuleView{slots: []domain.CohortSlot{{Base: domain.Base{ID: "s1"}, ProfileID: "p1"}}}
	res = evaluateRule(t, rule, referenced, []domain.Change{
		{Entity: domain.EntityTemperatureProfile, Action: domain.ActionDelete, Before: domain.TemperatureProfile{Base: domain.Base{ID: "p1"}, Name: "hall"}},
	})
	if !res.HasBlocking() {
		t.Fatalf("expected delete of referenced profile to block")
	}

	res = evaluateRule(t, rule, staticRuleView{}, []domain.Change{
		{Entity: domain.EntityTemperatureProfile, Action: domain.ActionDelete, Before: domain.TemperatureProfile{Base: domain.Base{ID: "p2"}}},
	})
	if res.HasBlocking() {
		t.Fatalf("expected delete of unreferenced profile to pass, got %+v", res.Violations)
	}
}

func TestDefaultRulesEngineRegistersAll(t *testing.T) {
	engine := DefaultRulesEngine()
	res, err := engine.Evaluate(context.Background(), staticRuleView{}, []domain.Change{
		{Entity: domain.EntityGrowthModel, Action: domain.ActionCreate, After: domain.GrowthModel{Name: "bad"}},
		{Entity: domain.EntityStageTable, Action: domain.ActionCreate, After: domain.StageTable{}},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	rules := map[string]bool{}
	for _, v := range res.Violations {
		rules[v.Rule] = true
	}
	if !rules["model_configuration"] || !rules["stage_ranges"] {
		t.Fatalf("expected violations from multiple registered rules, got %+v", res.Violations)
	}
}

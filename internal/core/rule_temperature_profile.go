package core

import (
	"context"
	"fmt"

	"growthcore/pkg/domain"
)

// TemperatureProfileRule enforces date-unique readings on bulk load and
// blocks deleting a profile while any slot still references it.
func TemperatureProfileRule() domain.Rule {
	return temperatureProfileRule{}
}

type temperatureProfileRule struct{}

func (temperatureProfileRule) Name() string { return "temperature_profile" }

func (temperatureProfileRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityTemperatureProfile {
			continue
		}
		if change.Action == domain.ActionDelete {
			profile, ok := change.Before.(domain.TemperatureProfile)
			if !ok {
				continue
			}
			for _, slot := range view.ListSlots() {
				if slot.ProfileID == profile.ID {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "temperature_profile",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("temperature profile %s is still referenced by slot %s", profile.Name, slot.ID),
						Entity:   domain.EntityTemperatureProfile,
						EntityID: profile.ID,
					})
					break
				}
			}
			continue
		}
		profile, ok := change.After.(domain.TemperatureProfile)
		if !ok {
			continue
		}
		seen := make(map[string]struct{}, len(profile.Readings))
		for _, reading := range profile.Readings {
			key := domain.DayOf(reading.Date).Format("2006-01-02")
			if _, dup := seen[key]; dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "temperature_profile",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("temperature profile %s: duplicate reading for %s", profile.Name, key),
					Entity:   domain.EntityTemperatureProfile,
					EntityID: profile.ID,
				})
			}
			seen[key] = struct{}{}
		}
	}
	return res, nil
}

// DefaultRulesEngine wires the standard configuration rules into an engine.
func DefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ModelConfigurationRule())
	engine.Register(FeedStageExemptRule())
	engine.Register(StageRangeRule())
	engine.Register(SlotPopulationSourceRule())
	engine.Register(TemperatureProfileRule())
	return engine
}

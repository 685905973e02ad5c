package core

import (
	"context"
	"fmt"
	"math"

	"growthcore/pkg/domain"
)

// ModelConfigurationRule rejects non-physical growth and mortality model
// parameters at commit time, before any computation can consume them.
func ModelConfigurationRule() domain.Rule {
	return modelConfigurationRule{}
}

type modelConfigurationRule struct{}

func (modelConfigurationRule) Name() string { return "model_configuration" }

func (modelConfigurationRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		switch change.Entity {
		case domain.EntityGrowthModel:
			model, ok := change.After.(domain.GrowthModel)
			if !ok {
				continue
			}
			res.Merge(validateGrowthModel(model))
		case domain.EntityMortalityModel:
			model, ok := change.After.(domain.MortalityModel)
			if !ok {
				continue
			}
			res.Merge(validateMortalityModel(model))
		}
	}
	return res, nil
}

func validateGrowthModel(model domain.GrowthModel) domain.Result {
	res := domain.Result{}
	block := func(format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "model_configuration",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityGrowthModel,
			EntityID: model.ID,
		})
	}
	if !(model.Coefficient > 0) || math.IsInf(model.Coefficient, 0) {
		block("growth model %s: coefficient must be positive, got %g", model.Name, model.Coefficient)
	}
	if !(model.TemperatureExponent > 0) || model.TemperatureExponent > 3 {
		block("growth model %s: temperature exponent must be in (0,3], got %g", model.Name, model.TemperatureExponent)
	}
	if !(model.WeightExponent > 0) || model.WeightExponent > 3 {
		block("growth model %s: weight exponent must be in (0,3], got %g", model.Name, model.WeightExponent)
	}
	for _, o := range model.StageOverrides {
		if o.Coefficient != nil && !(*o.Coefficient > 0) {
			block("growth model %s: stage %s override coefficient must be positive", model.Name, o.Stage)
		}
	}
	return res
}

func validateMortalityModel(model domain.MortalityModel) domain.Result {
	res := domain.Result{}
	block := func(format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "model_configuration",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityMortalityModel,
			EntityID: model.ID,
		})
	}
	if model.Rate < 0 || model.Rate >= 1 {
		block("mortality model %s: rate must be in [0,1), got %g", model.Name, model.Rate)
	}
	switch model.Frequency {
	case domain.FrequencyDaily, domain.FrequencyWeekly:
	default:
		block("mortality model %s: unknown rate frequency %q", model.Name, model.Frequency)
	}
	return res
}

package core

import (
	"context"
	"fmt"

	"growthcore/pkg/domain"
)

// FeedStageExemptRule enforces the stage-conditional FCR policy: every stage
// needs a strictly positive ratio except the earliest configured life stage,
// which may be zero because no external feeding happens before it (yolk-sac
// nutrition). Rejecting zero universally was a past defect.
func FeedStageExemptRule() domain.Rule {
	return feedStageExemptRule{}
}

type feedStageExemptRule struct{}

func (feedStageExemptRule) Name() string { return "fcr_stage_exempt" }

func (feedStageExemptRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var earliest string
	if table, ok := view.StageTable(); ok {
		earliest = table.Earliest()
	}
	for _, change := range changes {
		if change.Entity != domain.EntityFeedModel || change.Action == domain.ActionDelete {
			continue
		}
		model, ok := change.After.(domain.FeedConversionModel)
		if !ok {
			continue
		}
		if len(model.Entries) == 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "fcr_stage_exempt",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("feed model %s: at least one stage entry required", model.Name),
				Entity:   domain.EntityFeedModel,
				EntityID: model.ID,
			})
			continue
		}
		for _, entry := range model.Entries {
			if entry.Ratio > 0 {
				continue
			}
			if entry.Ratio == 0 && entry.Stage == earliest && earliest != "" {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "fcr_stage_exempt",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("feed model %s: ratio for stage %s must be positive, got %g", model.Name, entry.Stage, entry.Ratio),
				Entity:   domain.EntityFeedModel,
				EntityID: model.ID,
			})
		}
		for _, entry := range model.Entries {
			for _, band := range entry.Bands {
				if band.Ratio <= 0 || band.MaxWeightG <= band.MinWeightG {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "fcr_stage_exempt",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("feed model %s: invalid weight band on stage %s", model.Name, entry.Stage),
						Entity:   domain.EntityFeedModel,
						EntityID: model.ID,
					})
				}
			}
		}
	}
	return res, nil
}

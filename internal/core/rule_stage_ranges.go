package core

import (
	"context"
	"fmt"

	"growthcore/pkg/domain"
)

// StageRangeRule validates the life-stage table: stages must be uniquely
// named and their weight ranges contiguous and non-overlapping in order.
// Transition detection depends on this table, so a malformed one is blocked
// rather than silently producing flat trajectories.
func StageRangeRule() domain.Rule {
	return stageRangeRule{}
}

type stageRangeRule struct{}

func (stageRangeRule) Name() string { return "stage_ranges" }

func (stageRangeRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityStageTable || change.Action == domain.ActionDelete {
			continue
		}
		table, ok := change.After.(domain.StageTable)
		if !ok {
			continue
		}
		res.Merge(validateStageTable(table))
	}
	return res, nil
}

func validateStageTable(table domain.StageTable) domain.Result {
	res := domain.Result{}
	block := func(format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "stage_ranges",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityStageTable,
			EntityID: table.ID,
		})
	}
	if len(table.Stages) == 0 {
		block("stage table must define at least one stage")
		return res
	}
	seen := make(map[string]struct{}, len(table.Stages))
	for i, stage := range table.Stages {
		if stage.Name == "" {
			block("stage %d: name required", i)
			continue
		}
		if _, dup := seen[stage.Name]; dup {
			block("stage %s: duplicate name", stage.Name)
		}
		seen[stage.Name] = struct{}{}
		last := i == len(table.Stages)-1
		if !last && stage.MaxWeightG <= stage.MinWeightG {
			block("stage %s: max weight %g must exceed min weight %g", stage.Name, stage.MaxWeightG, stage.MinWeightG)
		}
		if i > 0 && stage.MinWeightG != table.Stages[i-1].MaxWeightG {
			block("stage %s: range must start where %s ends (%g != %g)", stage.Name, table.Stages[i-1].Name, stage.MinWeightG, table.Stages[i-1].MaxWeightG)
		}
		if stage.MaxDays < 0 {
			block("stage %s: max days cannot be negative", stage.Name)
		}
	}
	return res
}

package core

import (
	"context"
	"fmt"

	"growthcore/pkg/domain"
)

// SlotPopulationSourceRule enforces the single-accounting-source invariant
// by construction: a transfer-fed slot must not carry its own initial
// population, and a transfer landing on a pre-populated slot's first active
// day is flagged as a double-counting risk.
func SlotPopulationSourceRule() domain.Rule {
	return slotPopulationSourceRule{}
}

type slotPopulationSourceRule struct{}

func (slotPopulationSourceRule) Name() string { return "slot_population_source" }

func (slotPopulationSourceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntitySlot:
			if change.Action == domain.ActionDelete {
				continue
			}
			slot, ok := change.After.(domain.CohortSlot)
			if !ok {
				continue
			}
			switch slot.PopulationSource {
			case domain.SourceTransferFed:
				if slot.InitialPopulation != 0 {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "slot_population_source",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("transfer-fed slot %s must not declare an initial population (%d)", slot.ID, slot.InitialPopulation),
						Entity:   domain.EntitySlot,
						EntityID: slot.ID,
					})
				}
			case domain.SourcePrePopulated:
				if slot.InitialPopulation <= 0 {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "slot_population_source",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("pre-populated slot %s requires a positive initial population", slot.ID),
						Entity:   domain.EntitySlot,
						EntityID: slot.ID,
					})
				}
			default:
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "slot_population_source",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("slot %s: unknown population source %q", slot.ID, slot.PopulationSource),
					Entity:   domain.EntitySlot,
					EntityID: slot.ID,
				})
			}
		case domain.EntityTransfer:
			if change.Action != domain.ActionCreate {
				continue
			}
			transfer, ok := change.After.(domain.TransferAction)
			if !ok {
				continue
			}
			dest, ok := view.FindSlot(transfer.DestinationSlotID)
			if !ok {
				continue
			}
			if dest.PopulationSource == domain.SourcePrePopulated && domain.DayOf(transfer.Date).Equal(domain.DayOf(dest.StartDate)) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "slot_population_source",
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("transfer into pre-populated slot %s on its first active day risks double counting", dest.ID),
					Entity:   domain.EntityTransfer,
					EntityID: transfer.ID,
				})
			}
		}
	}
	return res, nil
}

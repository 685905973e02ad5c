package core

import (
	"growthcore/pkg/domain"
)

// TransitionTrigger names what caused a stage transition.
type TransitionTrigger string

const (
	// TriggerWeight fires when average weight enters the next stage's range.
	TriggerWeight TransitionTrigger = "weight"
	// TriggerDuration fires when the configured maximum stage duration is exceeded.
	TriggerDuration TransitionTrigger = "duration"
)

// TransitionDecision is the outcome of evaluating a slot against the stage table.
type TransitionDecision struct {
	Transition  bool
	FromStage   string
	ToStage     string
	Trigger     TransitionTrigger
	ContainerID string
	Terminal    bool
}

// StageEvaluator watches weight and stage duration against the configured
// life-stage table. A missing table disables transitions; the service layer
// surfaces that as a warning so flat trajectories are not silent.
type StageEvaluator struct {
	table    domain.StageTable
	hasTable bool
}

// NewStageEvaluator wraps a stage table. ok=false disables all transitions.
func NewStageEvaluator(table domain.StageTable, ok bool) StageEvaluator {
	return StageEvaluator{table: table, hasTable: ok && len(table.Stages) > 0}
}

// Enabled reports whether stage transitions can be detected at all.
func (e StageEvaluator) Enabled() bool { return e.hasTable }

// StageFor returns the stage whose weight range contains the given weight.
func (e StageEvaluator) StageFor(weightG float64) (string, bool) {
	if !e.hasTable {
		return "", false
	}
	for _, s := range e.table.Stages {
		if weightG >= s.MinWeightG && (s.MaxWeightG <= 0 || weightG < s.MaxWeightG) {
			return s.Name, true
		}
	}
	return "", false
}

// Evaluate decides whether a cohort in currentStage should move to the next
// stage given its average weight and days spent in the stage. The weight
// trigger and the duration fallback race; whichever condition holds first
// wins. The last configured stage is terminal and never transitions.
func (e StageEvaluator) Evaluate(currentStage string, weightG float64, daysInStage int) TransitionDecision {
	decision := TransitionDecision{FromStage: currentStage}
	if !e.hasTable {
		return decision
	}
	idx, ok := e.table.IndexOf(currentStage)
	if !ok {
		return decision
	}
	if idx == len(e.table.Stages)-1 {
		decision.Terminal = true
		return decision
	}
	current := e.table.Stages[idx]
	next := e.table.Stages[idx+1]
	switch {
	case weightG >= next.MinWeightG:
		decision.Transition = true
		decision.Trigger = TriggerWeight
	case current.MaxDays > 0 && daysInStage >= current.MaxDays:
		decision.Transition = true
		decision.Trigger = TriggerDuration
	default:
		return decision
	}
	decision.ToStage = next.Name
	decision.ContainerID = next.ContainerID
	return decision
}

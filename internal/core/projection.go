package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"growthcore/pkg/domain"
)

// defaultHorizonCap bounds simulated days so a stage that never satisfies
// its transition condition cannot run away.
const defaultHorizonCap = 3650

// ProjectionEngine forward-simulates a hypothetical trajectory from the same
// growth, mortality, and stage kernels as assimilation, with no actual-event
// inputs.
type ProjectionEngine struct {
	temps      *TemperatureResolver
	horizonCap int
}

// NewProjectionEngine builds an engine around a temperature resolver.
// horizonCap <= 0 selects the default cap.
func NewProjectionEngine(temps *TemperatureResolver, horizonCap int) *ProjectionEngine {
	if temps == nil {
		temps = NewTemperatureResolver()
	}
	if horizonCap <= 0 {
		horizonCap = defaultHorizonCap
	}
	return &ProjectionEngine{temps: temps, horizonCap: horizonCap}
}

// Run simulates the trajectory described by the run's parameter snapshot and
// start condition, filling in States, Summary, Status, and CompletedAt. The
// input run is taken by value; the caller persists the completed result as a
// new immutable record. now stamps CompletedAt so callers control the clock.
func (e *ProjectionEngine) Run(ctx context.Context, run domain.ProjectionRun, now time.Time) (domain.ProjectionRun, error) {
	if run.HorizonDays <= 0 {
		return run, domain.InvalidModelConfigurationError{
			Entity: domain.EntityProjectionRun,
			ID:     run.ID,
			Reason: fmt.Sprintf("horizon must be positive, got %d", run.HorizonDays),
		}
	}
	if run.HorizonDays > e.horizonCap {
		return run, domain.InvalidModelConfigurationError{
			Entity: domain.EntityProjectionRun,
			ID:     run.ID,
			Reason: fmt.Sprintf("horizon %d exceeds cap %d", run.HorizonDays, e.horizonCap),
		}
	}

	changes := append([]domain.ConfigChange(nil), run.Params.Changes...)
	sort.Slice(changes, func(i, j int) bool { return changes[i].DayOffset < changes[j].DayOffset })

	growth := run.Params.Growth
	feedModel := run.Params.Feed
	mortality := run.Params.Mortality
	stages := NewStageEvaluator(run.Params.Stages, len(run.Params.Stages.Stages) > 0)

	weight := run.Start.WeightG
	population := run.Start.Population
	stage := run.Start.Stage
	if stage == "" {
		if s, ok := stages.StageFor(weight); ok {
			stage = s
		}
	}
	daysInStage := 0
	startDay := domain.DayOf(run.Start.Date)

	var states []domain.ProjectedDailyState
	var gains []float64
	var totalFeed float64

	for offset := 0; offset < run.HorizonDays; offset++ {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		for len(changes) > 0 && changes[0].DayOffset <= offset {
			change := changes[0]
			changes = changes[1:]
			if change.Growth != nil {
				growth = *change.Growth
			}
			if change.Feed != nil {
				feedModel = *change.Feed
			}
			if change.Mortality != nil {
				mortality = *change.Mortality
			}
		}

		day := startDay.AddDate(0, 0, offset)
		temp, err := e.temps.Resolve(&run.Params.Temperature, day)
		if err != nil {
			return run, err
		}
		gain, err := DailyGain(weight, temp.Celsius, growth, stage, day)
		if err != nil {
			return run, err
		}
		weight += gain
		gains = append(gains, gain)

		if offset > 0 {
			population = SurvivingPopulation(population, mortality)
		}

		feed, err := ExpectedFeed(feedModel, stage, weight, gain*float64(population))
		if err != nil {
			return run, err
		}
		totalFeed += feed

		states = append(states, domain.ProjectedDailyState{
			RunID:         run.ID,
			DayOffset:     offset,
			Date:          day,
			AvgWeightG:    weight,
			Population:    population,
			BiomassG:      weight * float64(population),
			Stage:         stage,
			ExpectedFeedG: feed,
		})

		if decision := stages.Evaluate(stage, weight, daysInStage); decision.Transition {
			stage = decision.ToStage
			daysInStage = 0
		} else {
			daysInStage++
		}
	}

	summary := domain.RunSummary{
		FinalWeightG:    weight,
		FinalPopulation: population,
		FinalBiomassG:   weight * float64(population),
		SimulatedDays:   run.HorizonDays,
		TotalFeedG:      totalFeed,
	}
	if len(gains) > 0 {
		summary.MeanDailyGainG = stat.Mean(gains, nil)
		if len(gains) > 1 {
			summary.StdDailyGainG = stat.StdDev(gains, nil)
		}
	}

	completed := now.UTC()
	run.States = states
	run.Summary = &summary
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &completed
	return run, nil
}

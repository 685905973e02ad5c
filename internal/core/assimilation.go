package core

import (
	"context"
	"sort"
	"time"

	"growthcore/pkg/domain"
)

// AssimilationInput bundles everything the engine needs to reconstruct one
// slot: the slot itself, its model configuration, and the recorded events
// scoped to it. All inputs are read-only snapshots.
type AssimilationInput struct {
	Slot      domain.CohortSlot
	Profile   *domain.TemperatureProfile
	Growth    domain.GrowthModel
	Feed      domain.FeedConversionModel
	Mortality domain.MortalityModel
	Stages    domain.StageTable
	HasStages bool

	Anchors      []domain.MeasurementAnchor
	TransfersIn  []domain.TransferAction
	TransfersOut []domain.TransferAction
	Mortalities  []domain.MortalityRecord
	Feedings     []domain.FeedingRecord

	// Through is the last day to reconstruct, clamped to the slot's end date.
	Through time.Time
}

// AssimilationEngine reconstructs the day-by-day factual state of a slot by
// merging measurement anchors with model-filled gaps, honoring recorded
// mortality, feeding, and transfer events over model predictions.
type AssimilationEngine struct {
	temps *TemperatureResolver
}

// NewAssimilationEngine builds an engine around a temperature resolver.
func NewAssimilationEngine(temps *TemperatureResolver) *AssimilationEngine {
	if temps == nil {
		temps = NewTemperatureResolver()
	}
	return &AssimilationEngine{temps: temps}
}

type anchorPoint struct {
	day    time.Time
	weight float64
}

// Reconstruct produces the full DailyAssimilatedState sequence for the slot
// in chronological order. Warnings (double-counting risk, disabled stage
// transitions) are returned alongside; any error aborts the whole sequence
// so callers never persist a partial, silently wrong series.
func (e *AssimilationEngine) Reconstruct(ctx context.Context, in AssimilationInput) ([]domain.DailyAssimilatedState, []domain.Violation, error) {
	start := domain.DayOf(in.Slot.StartDate)
	end := domain.DayOf(in.Through)
	if in.Slot.EndDate != nil && domain.DayOf(*in.Slot.EndDate).Before(end) {
		end = domain.DayOf(*in.Slot.EndDate)
	}
	if end.Before(start) {
		return nil, nil, nil
	}

	anchors := anchorsByDay(in.Anchors)
	transfersIn := transfersByDay(in.TransfersIn)
	transfersOut := transfersByDay(in.TransfersOut)
	mortality := mortalityByDay(in.Mortalities)
	feedings := feedingsByDay(in.Feedings)

	var warnings []domain.Violation
	stages := NewStageEvaluator(in.Stages, in.HasStages)
	if !stages.Enabled() {
		warnings = append(warnings, domain.Violation{
			Rule:     "stage_ranges",
			Severity: domain.SeverityWarn,
			Message:  "no life-stage weight ranges configured; stage transitions disabled for slot " + in.Slot.ID,
			Entity:   domain.EntitySlot,
			EntityID: in.Slot.ID,
		})
	}

	var rows []domain.DailyAssimilatedState
	var population int
	var weight float64
	stage := in.Slot.Stage
	daysInStage := 0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		first := day.Equal(start)

		population, warnings = e.stepPopulation(in, day, first, population, transfersIn, transfersOut, mortality, warnings)
		popProv := populationProvenance(day, first, transfersIn, transfersOut, mortality)

		var weightProv domain.Provenance
		var err error
		weight, weightProv, err = e.stepWeight(in, day, first, weight, stage, anchors)
		if err != nil {
			return nil, nil, err
		}
		if population < 0 {
			return nil, nil, domain.InvalidGrowthInputError{Date: day, Field: "population", Value: float64(population), SlotID: in.Slot.ID}
		}
		if weight < 0 {
			return nil, nil, domain.InvalidGrowthInputError{Date: day, Field: "weight", Value: weight, SlotID: in.Slot.ID}
		}

		feed := e.dailyFeed(in, day, stage, weight, rows, feedings)

		rows = append(rows, domain.DailyAssimilatedState{
			SlotID:               in.Slot.ID,
			Date:                 day,
			Population:           population,
			AvgWeightG:           weight,
			BiomassG:             float64(population) * weight,
			Stage:                stage,
			PopulationProvenance: popProv,
			WeightProvenance:     weightProv,
			ExpectedFeedG:        feed,
		})

		if decision := stages.Evaluate(stage, weight, daysInStage); decision.Transition {
			stage = decision.ToStage
			daysInStage = 0
		} else {
			daysInStage++
		}
	}
	return rows, warnings, nil
}

// stepPopulation advances the population by one day: recorded mortality wins
// over the model's expected decay, then same-day transfers apply. On the
// slot's first active day the population comes from exactly one accounting
// source, with recorded losses dated that day applied after the baseline; a
// pre-populated slot that also receives day-one transfers is flagged as a
// double-counting risk.
func (e *AssimilationEngine) stepPopulation(in AssimilationInput, day time.Time, first bool, prior int, transfersIn, transfersOut map[time.Time]int, mortality map[time.Time]mortalityDay, warnings []domain.Violation) (int, []domain.Violation) {
	var population int
	if first {
		incoming := transfersIn[day]
		switch in.Slot.PopulationSource {
		case domain.SourceTransferFed:
			population = incoming
		default:
			population = in.Slot.InitialPopulation
			if incoming > 0 {
				warnings = append(warnings, domain.Violation{
					Rule:     "slot_population_source",
					Severity: domain.SeverityWarn,
					Message:  "pre-populated slot " + in.Slot.ID + " received transfers on its first active day; population may be double counted",
					Entity:   domain.EntitySlot,
					EntityID: in.Slot.ID,
				})
				population += incoming
			}
		}
		if rec, ok := mortality[day]; ok {
			population = ApplyShock(population, rec.continuous+rec.shock)
		}
		population = ApplyShock(population, transfersOut[day])
		return population, warnings
	}

	population = prior
	if rec, ok := mortality[day]; ok {
		population = ApplyShock(population, rec.continuous)
	} else {
		population = SurvivingPopulation(population, in.Mortality)
	}
	if rec, ok := mortality[day]; ok && rec.shock > 0 {
		population = ApplyShock(population, rec.shock)
	}
	population += transfersIn[day]
	population = ApplyShock(population, transfersOut[day])
	return population, warnings
}

// stepWeight resolves the day's average weight: an anchor is ground truth
// and becomes the new baseline, a day between two anchors interpolates, and
// everything else steps the growth kernel on resolved temperature.
func (e *AssimilationEngine) stepWeight(in AssimilationInput, day time.Time, first bool, prior float64, stage string, anchors []anchorPoint) (float64, domain.Provenance, error) {
	if w, ok := anchorOn(anchors, day); ok {
		return w, domain.ProvenanceMeasured, nil
	}
	if w, ok := interpolateAnchors(anchors, day); ok {
		return w, domain.ProvenanceInterpolated, nil
	}
	if first {
		return in.Slot.InitialWeightG, domain.ProvenanceModel, nil
	}
	temp, err := e.temps.Resolve(in.Profile, day)
	if err != nil {
		if due, ok := err.(domain.DataUnavailableError); ok {
			due.SlotID = in.Slot.ID
			return 0, "", due
		}
		return 0, "", err
	}
	gain, err := DailyGain(prior, temp.Celsius, in.Growth, stage, day)
	if err != nil {
		return 0, "", err
	}
	return prior + gain, domain.ProvenanceModel, nil
}

// dailyFeed prefers the recorded feed mass for the day, otherwise derives
// the expectation from the feed conversion model and the day's weight gain.
func (e *AssimilationEngine) dailyFeed(in AssimilationInput, day time.Time, stage string, weight float64, rows []domain.DailyAssimilatedState, feedings map[time.Time]float64) float64 {
	if recorded, ok := feedings[day]; ok {
		return recorded
	}
	if len(rows) == 0 {
		return 0
	}
	prev := rows[len(rows)-1]
	gainBiomass := (weight - prev.AvgWeightG) * float64(prev.Population)
	feed, err := ExpectedFeed(in.Feed, stage, weight, gainBiomass)
	if err != nil {
		return 0
	}
	return feed
}

func populationProvenance(day time.Time, first bool, transfersIn, transfersOut map[time.Time]int, mortality map[time.Time]mortalityDay) domain.Provenance {
	if first {
		return domain.ProvenanceRecorded
	}
	if _, ok := mortality[day]; ok {
		return domain.ProvenanceRecorded
	}
	if transfersIn[day] > 0 || transfersOut[day] > 0 {
		return domain.ProvenanceRecorded
	}
	return domain.ProvenanceModel
}

type mortalityDay struct {
	continuous int
	shock      int
}

func anchorsByDay(anchors []domain.MeasurementAnchor) []anchorPoint {
	points := make([]anchorPoint, 0, len(anchors))
	for _, a := range anchors {
		points = append(points, anchorPoint{day: domain.DayOf(a.Date), weight: a.AvgWeightG})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].day.Before(points[j].day) })
	return points
}

func anchorOn(points []anchorPoint, day time.Time) (float64, bool) {
	for _, p := range points {
		if p.day.Equal(day) {
			return p.weight, true
		}
	}
	return 0, false
}

func interpolateAnchors(points []anchorPoint, day time.Time) (float64, bool) {
	var prior, next *anchorPoint
	for i := range points {
		switch {
		case points[i].day.Before(day):
			prior = &points[i]
		case points[i].day.After(day):
			next = &points[i]
		}
		if next != nil {
			break
		}
	}
	if prior == nil || next == nil {
		return 0, false
	}
	span := daysBetween(prior.day, next.day)
	if span <= 0 {
		return prior.weight, true
	}
	fraction := float64(daysBetween(prior.day, day)) / float64(span)
	return prior.weight + (next.weight-prior.weight)*fraction, true
}

func transfersByDay(transfers []domain.TransferAction) map[time.Time]int {
	out := make(map[time.Time]int, len(transfers))
	for _, t := range transfers {
		out[domain.DayOf(t.Date)] += t.Count
	}
	return out
}

func mortalityByDay(records []domain.MortalityRecord) map[time.Time]mortalityDay {
	out := make(map[time.Time]mortalityDay, len(records))
	for _, r := range records {
		day := domain.DayOf(r.Date)
		entry := out[day]
		if r.Shock {
			entry.shock += r.Count
		} else {
			entry.continuous += r.Count
		}
		out[day] = entry
	}
	return out
}

func feedingsByDay(records []domain.FeedingRecord) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(records))
	for _, r := range records {
		out[domain.DayOf(r.Date)] += r.FeedMassG
	}
	return out
}

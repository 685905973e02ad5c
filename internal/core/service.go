package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"go.uber.org/multierr"

	"growthcore/internal/blob"
	"growthcore/pkg/domain"
)

const defaultRecomputeParallelism = 4

// Service exposes the transactional operations of the growth core: model
// administration, event intake, assimilation recompute, and projection runs.
type Service struct {
	store       domain.PersistentStore
	assim       *AssimilationEngine
	proj        *ProjectionEngine
	logger      Logger
	metrics     MetricsRecorder
	clock       Clock
	parallelism int
	archive     blob.Store
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger sets the structured logger. Nil restores the no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l == nil {
			l = noopLogger{}
		}
		s.logger = l
	}
}

// WithClock overrides the service clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder sets the metrics sink for operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithParallelism bounds concurrent slot recomputes in RecomputeAllAssimilation.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithRunArchive attaches a blob store for completed run exports.
func WithRunArchive(store blob.Store) Option {
	return func(s *Service) { s.archive = store }
}

// WithTemperatureResolver replaces the default resolver chain in both engines.
func WithTemperatureResolver(r *TemperatureResolver) Option {
	return func(s *Service) {
		s.assim = NewAssimilationEngine(r)
		s.proj = NewProjectionEngine(r, s.proj.horizonCap)
	}
}

// WithHorizonCap bounds projection run length in days.
func WithHorizonCap(days int) Option {
	return func(s *Service) {
		s.proj = NewProjectionEngine(s.proj.temps, days)
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		assim:       NewAssimilationEngine(nil),
		proj:        NewProjectionEngine(nil, 0),
		logger:      noopLogger{},
		metrics:     noopMetrics{},
		clock:       ClockFunc(time.Now),
		parallelism: defaultRecomputeParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

func (s *Service) finish(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Error(op+" failed", "error", err)
	}
}

// CreateCohort persists a new cohort.
func (s *Service) CreateCohort(ctx context.Context, cohort Cohort) (created Cohort, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "create_cohort", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateCohort(cohort)
		return txErr
	})
	return created, res, err
}

// CreateSlot persists a new cohort slot after validating its references.
func (s *Service) CreateSlot(ctx context.Context, slot CohortSlot) (created CohortSlot, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "create_slot", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindCohort(slot.CohortID); !ok {
			return domain.ErrNotFound{Entity: EntityCohort, ID: slot.CohortID}
		}
		if slot.ProfileID != "" {
			if _, ok := tx.Snapshot().FindTemperatureProfile(slot.ProfileID); !ok {
				return domain.ErrNotFound{Entity: EntityTemperatureProfile, ID: slot.ProfileID}
			}
		}
		var txErr error
		created, txErr = tx.CreateSlot(slot)
		return txErr
	})
	return created, res, err
}

// CreateGrowthModel persists a new growth model configuration.
func (s *Service) CreateGrowthModel(ctx context.Context, model GrowthModel) (created GrowthModel, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "create_growth_model", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateGrowthModel(model)
		return txErr
	})
	return created, res, err
}

// UpdateGrowthModel mutates an unfrozen growth model. Frozen models reject
// edits; create a new model instead.
func (s *Service) UpdateGrowthModel(ctx context.Context, id string, mutator func(*GrowthModel) error) (updated GrowthModel, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "update_growth_model", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateGrowthModel(id, mutator)
		return txErr
	})
	return updated, res, err
}

// CreateFeedModel persists a new feed conversion model.
func (s *Service) CreateFeedModel(ctx context.Context, model FeedConversionModel) (created FeedConversionModel, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "create_feed_model", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateFeedModel(model)
		return txErr
	})
	return created, res, err
}

// CreateMortalityModel persists a new mortality model.
func (s *Service) CreateMortalityModel(ctx context.Context, model MortalityModel) (created MortalityModel, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "create_mortality_model", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateMortalityModel(model)
		return txErr
	})
	return created, res, err
}

// LoadTemperatureProfile bulk-replaces a temperature profile. Readings are
// normalized to UTC days and sorted before persistence.
func (s *Service) LoadTemperatureProfile(ctx context.Context, profile TemperatureProfile) (stored TemperatureProfile, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "load_temperature_profile", start, err) }()
	for i := range profile.Readings {
		profile.Readings[i].Date = domain.DayOf(profile.Readings[i].Date)
	}
	sort.Slice(profile.Readings, func(i, j int) bool {
		return profile.Readings[i].Date.Before(profile.Readings[j].Date)
	})
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		stored, txErr = tx.PutTemperatureProfile(profile)
		return txErr
	})
	return stored, res, err
}

// DeleteTemperatureProfile removes a profile. Profiles referenced by slots
// are protected by rule evaluation.
func (s *Service) DeleteTemperatureProfile(ctx context.Context, id string) (res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "delete_temperature_profile", start, err) }()
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteTemperatureProfile(id)
	})
}

// SetStageTable replaces the ordered life-stage configuration.
func (s *Service) SetStageTable(ctx context.Context, table StageTable) (stored StageTable, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "set_stage_table", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		stored, txErr = tx.SetStageTable(table)
		return txErr
	})
	return stored, res, err
}

// RecordAnchor stores an operator weight measurement and recomputes the
// slot's assimilated series in the same transaction so the anchor takes
// effect atomically.
func (s *Service) RecordAnchor(ctx context.Context, anchor MeasurementAnchor) (recorded MeasurementAnchor, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "record_anchor", start, err) }()
	var warnings []Violation
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		slot, ok := tx.FindSlot(anchor.SlotID)
		if !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: anchor.SlotID}
		}
		if !slot.Active(anchor.Date) {
			return fmt.Errorf("anchor date %s outside slot %s active window", anchor.Date.Format("2006-01-02"), slot.ID)
		}
		if anchor.AvgWeightG <= 0 {
			return domain.InvalidGrowthInputError{Date: anchor.Date, Field: "avg_weight_g", Value: anchor.AvgWeightG, SlotID: anchor.SlotID}
		}
		var txErr error
		recorded, txErr = tx.RecordAnchor(anchor)
		if txErr != nil {
			return txErr
		}
		_, warnings, txErr = s.recomputeInTx(ctx, tx, anchor.SlotID, s.clock.Now())
		return txErr
	})
	res.Merge(Result{Violations: warnings})
	return recorded, res, err
}

// RecordTransfer stores a population movement and recomputes both affected
// slots atomically.
func (s *Service) RecordTransfer(ctx context.Context, transfer TransferAction) (recorded TransferAction, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "record_transfer", start, err) }()
	var warnings []Violation
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if transfer.Count <= 0 {
			return fmt.Errorf("transfer count must be positive, got %d", transfer.Count)
		}
		if _, ok := tx.FindSlot(transfer.DestinationSlotID); !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: transfer.DestinationSlotID}
		}
		if transfer.SourceSlotID != nil {
			if _, ok := tx.FindSlot(*transfer.SourceSlotID); !ok {
				return domain.ErrNotFound{Entity: EntitySlot, ID: *transfer.SourceSlotID}
			}
		}
		var txErr error
		recorded, txErr = tx.RecordTransfer(transfer)
		if txErr != nil {
			return txErr
		}
		through := s.clock.Now()
		_, w, txErr := s.recomputeInTx(ctx, tx, transfer.DestinationSlotID, through)
		if txErr != nil {
			return txErr
		}
		warnings = append(warnings, w...)
		if transfer.SourceSlotID != nil {
			_, w, txErr := s.recomputeInTx(ctx, tx, *transfer.SourceSlotID, through)
			if txErr != nil {
				return txErr
			}
			warnings = append(warnings, w...)
		}
		return nil
	})
	res.Merge(Result{Violations: warnings})
	return recorded, res, err
}

// RecordMortality stores a mortality event and recomputes the slot.
func (s *Service) RecordMortality(ctx context.Context, record MortalityRecord) (recorded MortalityRecord, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "record_mortality", start, err) }()
	var warnings []Violation
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if record.Count <= 0 {
			return fmt.Errorf("mortality count must be positive, got %d", record.Count)
		}
		if _, ok := tx.FindSlot(record.SlotID); !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: record.SlotID}
		}
		var txErr error
		recorded, txErr = tx.RecordMortality(record)
		if txErr != nil {
			return txErr
		}
		_, warnings, txErr = s.recomputeInTx(ctx, tx, record.SlotID, s.clock.Now())
		return txErr
	})
	res.Merge(Result{Violations: warnings})
	return recorded, res, err
}

// RecordFeeding stores a feed delivery and recomputes the slot.
func (s *Service) RecordFeeding(ctx context.Context, record FeedingRecord) (recorded FeedingRecord, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "record_feeding", start, err) }()
	var warnings []Violation
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if record.FeedMassG <= 0 {
			return fmt.Errorf("feed mass must be positive, got %g", record.FeedMassG)
		}
		if _, ok := tx.FindSlot(record.SlotID); !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: record.SlotID}
		}
		var txErr error
		recorded, txErr = tx.RecordFeeding(record)
		if txErr != nil {
			return txErr
		}
		_, warnings, txErr = s.recomputeInTx(ctx, tx, record.SlotID, s.clock.Now())
		return txErr
	})
	res.Merge(Result{Violations: warnings})
	return recorded, res, err
}

// RecomputeAssimilation rebuilds the daily series for one slot through the
// given day and atomically replaces the stored rows.
func (s *Service) RecomputeAssimilation(ctx context.Context, slotID string, through time.Time) (rows []DailyAssimilatedState, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "recompute_assimilation", start, err) }()
	var warnings []Violation
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		rows, warnings, txErr = s.recomputeInTx(ctx, tx, slotID, through)
		return txErr
	})
	res.Merge(Result{Violations: warnings})
	return rows, res, err
}

// recomputeInTx reconstructs one slot inside an open transaction. The slot's
// model configuration is resolved through its cohort.
func (s *Service) recomputeInTx(ctx context.Context, tx domain.Transaction, slotID string, through time.Time) ([]DailyAssimilatedState, []Violation, error) {
	slot, ok := tx.FindSlot(slotID)
	if !ok {
		return nil, nil, domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
	}
	view := tx.Snapshot()
	in, err := s.assimilationInput(view, slot, through)
	if err != nil {
		return nil, nil, err
	}
	rows, warnings, err := s.assim.Reconstruct(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.ReplaceDailyStates(slotID, rows); err != nil {
		return nil, nil, err
	}
	s.logger.Debug("assimilation recomputed", "slot_id", slotID, "days", len(rows))
	return rows, warnings, nil
}

func (s *Service) assimilationInput(view domain.TransactionView, slot CohortSlot, through time.Time) (AssimilationInput, error) {
	cohort, ok := view.FindCohort(slot.CohortID)
	if !ok {
		return AssimilationInput{}, domain.ErrNotFound{Entity: EntityCohort, ID: slot.CohortID}
	}
	growth, ok := view.FindGrowthModel(cohort.GrowthModelID)
	if !ok {
		return AssimilationInput{}, domain.ErrNotFound{Entity: EntityGrowthModel, ID: cohort.GrowthModelID}
	}
	feed, ok := view.FindFeedModel(cohort.FeedModelID)
	if !ok {
		return AssimilationInput{}, domain.ErrNotFound{Entity: EntityFeedModel, ID: cohort.FeedModelID}
	}
	mortality, ok := view.FindMortalityModel(cohort.MortalityModelID)
	if !ok {
		return AssimilationInput{}, domain.ErrNotFound{Entity: EntityMortalityModel, ID: cohort.MortalityModelID}
	}
	in := AssimilationInput{
		Slot:         slot,
		Growth:       growth,
		Feed:         feed,
		Mortality:    mortality,
		Anchors:      view.AnchorsForSlot(slot.ID),
		TransfersIn:  view.TransfersInto(slot.ID),
		TransfersOut: view.TransfersOutOf(slot.ID),
		Mortalities:  view.MortalityForSlot(slot.ID),
		Feedings:     view.FeedingForSlot(slot.ID),
		Through:      through,
	}
	if profile, ok := view.FindTemperatureProfile(slot.ProfileID); ok {
		in.Profile = &profile
	}
	if table, ok := view.StageTable(); ok {
		in.Stages = table
		in.HasStages = true
	}
	return in, nil
}

// RecomputeAllAssimilation rebuilds every slot active on the given day, each
// in its own transaction so one failing slot cannot poison the rest. Slot
// recomputes run concurrently under a bounded wait group.
func (s *Service) RecomputeAllAssimilation(ctx context.Context, through time.Time) (recomputed int, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "recompute_all_assimilation", start, err) }()
	slots := s.store.ListSlots()
	swg := sizedwaitgroup.New(s.parallelism)
	var mu sync.Mutex
	for _, slot := range slots {
		if !slot.Active(through) {
			continue
		}
		if addErr := swg.AddWithContext(ctx); addErr != nil {
			err = multierr.Append(err, addErr)
			break
		}
		go func(slotID string) {
			defer swg.Done()
			_, _, slotErr := s.RecomputeAssimilation(ctx, slotID, through)
			mu.Lock()
			defer mu.Unlock()
			if slotErr != nil {
				err = multierr.Append(err, fmt.Errorf("slot %s: %w", slotID, slotErr))
				return
			}
			recomputed++
		}(slot.ID)
	}
	swg.Wait()
	s.logger.Info("assimilation sweep finished", "slots", recomputed, "errors", len(multierr.Errors(err)))
	return recomputed, err
}

// GetDailyStates returns the stored assimilated rows for a slot in [from, to].
func (s *Service) GetDailyStates(ctx context.Context, slotID string, from, to time.Time) (rows []DailyAssimilatedState, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "get_daily_states", start, err) }()
	if _, ok := s.store.GetSlot(slotID); !ok {
		return nil, domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
	}
	return s.store.DailyStates(slotID, from, to), nil
}

// CalibrateGrowthCoefficient back-solves the growth coefficient that carries
// a slot from one measurement anchor to the next under the slot's recorded
// temperatures. The anchors bracketing the window must exist.
func (s *Service) CalibrateGrowthCoefficient(ctx context.Context, slotID string, from, to time.Time) (coefficient float64, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "calibrate_growth_coefficient", start, err) }()
	fromDay, toDay := domain.DayOf(from), domain.DayOf(to)
	if !toDay.After(fromDay) {
		return 0, fmt.Errorf("calibration window must span at least one day")
	}
	var startW, endW, meanTemp float64
	var tempExp, weightExp float64
	err = s.store.View(ctx, func(view domain.TransactionView) error {
		slot, ok := view.FindSlot(slotID)
		if !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
		}
		cohort, ok := view.FindCohort(slot.CohortID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityCohort, ID: slot.CohortID}
		}
		growth, ok := view.FindGrowthModel(cohort.GrowthModelID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityGrowthModel, ID: cohort.GrowthModelID}
		}
		tempExp, weightExp = growth.TemperatureExponent, growth.WeightExponent

		var haveStart, haveEnd bool
		for _, anchor := range view.AnchorsForSlot(slotID) {
			day := domain.DayOf(anchor.Date)
			switch {
			case day.Equal(fromDay):
				startW, haveStart = anchor.AvgWeightG, true
			case day.Equal(toDay):
				endW, haveEnd = anchor.AvgWeightG, true
			}
		}
		if !haveStart || !haveEnd {
			return fmt.Errorf("calibration requires anchors on both %s and %s for slot %s",
				fromDay.Format("2006-01-02"), toDay.Format("2006-01-02"), slotID)
		}

		profile, ok := view.FindTemperatureProfile(slot.ProfileID)
		if !ok {
			return domain.DataUnavailableError{SlotID: slotID, Date: fromDay}
		}
		resolver := s.assim.temps
		var sum float64
		var n int
		for day := fromDay; day.Before(toDay); day = day.AddDate(0, 0, 1) {
			temp, resolveErr := resolver.Resolve(&profile, day)
			if resolveErr != nil {
				return resolveErr
			}
			sum += temp.Celsius
			n++
		}
		meanTemp = sum / float64(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	days := daysBetween(fromDay, toDay)
	return ImpliedCoefficient(startW, endW, meanTemp, days, tempExp, weightExp)
}

// ProjectionRequest describes a new projection run. Model IDs are resolved
// and snapshot by value at submission so the run is self-contained.
type ProjectionRequest struct {
	Label            string
	ScopeID          string
	Start            StartCondition
	HorizonDays      int
	GrowthModelID    string
	FeedModelID      string
	MortalityModelID string
	ProfileID        string
	Changes          []domain.ConfigChange
}

// RunProjection executes a forward simulation and persists it as a new
// immutable run. Referenced models freeze on successful completion. When the
// start condition names a slot, its latest assimilated state seeds the run.
func (s *Service) RunProjection(ctx context.Context, req ProjectionRequest) (run ProjectionRun, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "run_projection", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		params, paramsErr := s.resolveParams(view, req)
		if paramsErr != nil {
			return paramsErr
		}
		startCond := req.Start
		if startCond.FromSlotID != nil {
			seeded, seedErr := s.seedFromSlot(view, *startCond.FromSlotID)
			if seedErr != nil {
				return seedErr
			}
			seeded.FromSlotID = startCond.FromSlotID
			startCond = seeded
		}

		pending := ProjectionRun{
			Label:       req.Label,
			ScopeID:     req.ScopeID,
			Status:      domain.RunStatusPending,
			Params:      params,
			Start:       startCond,
			HorizonDays: req.HorizonDays,
		}
		completed, runErr := s.proj.Run(ctx, pending, s.clock.Now())
		if runErr != nil {
			completed.Status = domain.RunStatusFailed
			if _, putErr := tx.PutRun(completed); putErr != nil {
				return multierr.Append(runErr, putErr)
			}
			return runErr
		}
		var txErr error
		run, txErr = tx.PutRun(completed)
		return txErr
	})
	if err == nil {
		s.logger.Info("projection run completed",
			"run_id", run.ID, "scope_id", run.ScopeID, "horizon_days", run.HorizonDays)
	}
	return run, res, err
}

func (s *Service) resolveParams(view domain.TransactionView, req ProjectionRequest) (domain.ProjectionParams, error) {
	growth, ok := view.FindGrowthModel(req.GrowthModelID)
	if !ok {
		return domain.ProjectionParams{}, domain.ErrNotFound{Entity: EntityGrowthModel, ID: req.GrowthModelID}
	}
	feed, ok := view.FindFeedModel(req.FeedModelID)
	if !ok {
		return domain.ProjectionParams{}, domain.ErrNotFound{Entity: EntityFeedModel, ID: req.FeedModelID}
	}
	mortality, ok := view.FindMortalityModel(req.MortalityModelID)
	if !ok {
		return domain.ProjectionParams{}, domain.ErrNotFound{Entity: EntityMortalityModel, ID: req.MortalityModelID}
	}
	profile, ok := view.FindTemperatureProfile(req.ProfileID)
	if !ok {
		return domain.ProjectionParams{}, domain.ErrNotFound{Entity: EntityTemperatureProfile, ID: req.ProfileID}
	}
	params := domain.ProjectionParams{
		Growth:      growth,
		Feed:        feed,
		Mortality:   mortality,
		Temperature: profile,
		Changes:     append([]domain.ConfigChange(nil), req.Changes...),
	}
	if table, ok := view.StageTable(); ok {
		params.Stages = table
	}
	return params, nil
}

// seedFromSlot builds a start condition from the slot's most recent
// assimilated day.
func (s *Service) seedFromSlot(view domain.TransactionView, slotID string) (StartCondition, error) {
	slot, ok := view.FindSlot(slotID)
	if !ok {
		return StartCondition{}, domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
	}
	states := view.DailyStatesForSlot(slot.ID)
	if len(states) == 0 {
		return StartCondition{}, fmt.Errorf("slot %s has no assimilated state to project from", slotID)
	}
	last := states[len(states)-1]
	return StartCondition{
		Date:       last.Date,
		WeightG:    last.AvgWeightG,
		Population: last.Population,
		Stage:      last.Stage,
	}, nil
}

// GetRun returns a stored projection run.
func (s *Service) GetRun(ctx context.Context, id string) (run ProjectionRun, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "get_run", start, err) }()
	run, ok := s.store.GetRun(id)
	if !ok {
		return ProjectionRun{}, domain.ErrNotFound{Entity: EntityProjectionRun, ID: id}
	}
	return run, nil
}

// ListRuns returns run summaries for a scope, newest first.
func (s *Service) ListRuns(ctx context.Context, scopeID string) (runs []domain.ProjectionRunSummary, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "list_runs", start, err) }()
	return s.store.ListRuns(scopeID), nil
}

// GetProjectedStates returns the daily trajectory of a run.
func (s *Service) GetProjectedStates(ctx context.Context, runID string) (states []ProjectedDailyState, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "get_projected_states", start, err) }()
	run, ok := s.store.GetRun(runID)
	if !ok {
		return nil, domain.ErrNotFound{Entity: EntityProjectionRun, ID: runID}
	}
	return append([]ProjectedDailyState(nil), run.States...), nil
}

// PinRun marks a completed run as the cohort's reference trajectory.
func (s *Service) PinRun(ctx context.Context, cohortID, runID string) (cohort Cohort, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "pin_run", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		run, ok := tx.Snapshot().FindRun(runID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityProjectionRun, ID: runID}
		}
		if run.Status != domain.RunStatusCompleted {
			return fmt.Errorf("run %s is %s; only completed runs can be pinned", runID, run.Status)
		}
		var txErr error
		cohort, txErr = tx.UpdateCohort(cohortID, func(c *Cohort) error {
			c.PinnedRunID = &runID
			return nil
		})
		return txErr
	})
	return cohort, res, err
}

// UnpinRun clears a cohort's pinned run.
func (s *Service) UnpinRun(ctx context.Context, cohortID string) (cohort Cohort, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "unpin_run", start, err) }()
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		cohort, txErr = tx.UpdateCohort(cohortID, func(c *Cohort) error {
			c.PinnedRunID = nil
			return nil
		})
		return txErr
	})
	return cohort, res, err
}

// TransitionSlot closes a slot and opens its successor in the next stage's
// container, linked by a stage-transition transfer. Population and weight
// carry over from the slot's last assimilated day.
func (s *Service) TransitionSlot(ctx context.Context, slotID string, date time.Time) (successor CohortSlot, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "transition_slot", start, err) }()
	day := domain.DayOf(date)
	var warnings []Violation
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		slot, ok := tx.FindSlot(slotID)
		if !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
		}
		if !slot.Active(day) {
			return fmt.Errorf("slot %s is not active on %s", slotID, day.Format("2006-01-02"))
		}
		view := tx.Snapshot()
		table, ok := view.StageTable()
		if !ok {
			return domain.InvalidModelConfigurationError{Entity: EntityStageTable, Reason: "no life-stage table configured"}
		}
		idx, ok := table.IndexOf(slot.Stage)
		if !ok {
			return domain.InvalidModelConfigurationError{Entity: EntityStageTable, Reason: fmt.Sprintf("stage %q not in table", slot.Stage)}
		}
		if idx+1 >= len(table.Stages) {
			return fmt.Errorf("slot %s is already in the final stage %q", slotID, slot.Stage)
		}
		next := table.Stages[idx+1]

		rows, w, reconErr := s.recomputeInTx(ctx, tx, slotID, day)
		if reconErr != nil {
			return reconErr
		}
		warnings = append(warnings, w...)
		if len(rows) == 0 {
			return fmt.Errorf("slot %s has no assimilated state on %s", slotID, day.Format("2006-01-02"))
		}
		last := rows[len(rows)-1]

		if _, txErr := tx.UpdateSlot(slotID, func(sl *CohortSlot) error {
			end := day
			sl.EndDate = &end
			return nil
		}); txErr != nil {
			return txErr
		}

		created, txErr := tx.CreateSlot(CohortSlot{
			CohortID:         slot.CohortID,
			ContainerID:      next.ContainerID,
			ProfileID:        slot.ProfileID,
			Stage:            next.Name,
			StartDate:        day,
			PopulationSource: domain.SourceTransferFed,
			InitialWeightG:   last.AvgWeightG,
			PredecessorID:    &slotID,
		})
		if txErr != nil {
			return txErr
		}
		successor = created

		if _, txErr := tx.RecordTransfer(TransferAction{
			SourceSlotID:      &slotID,
			DestinationSlotID: created.ID,
			Date:              day,
			Count:             last.Population,
			AvgWeightG:        last.AvgWeightG,
			Reason:            domain.TransferStageTransition,
		}); txErr != nil {
			return txErr
		}
		_, w, txErr = s.recomputeInTx(ctx, tx, created.ID, day)
		if txErr != nil {
			return txErr
		}
		warnings = append(warnings, w...)
		return nil
	})
	res.Merge(Result{Violations: warnings})
	if err == nil {
		s.logger.Info("slot transitioned", "from_slot", slotID, "to_slot", successor.ID, "stage", successor.Stage)
	}
	return successor, res, err
}

// Harvest closes a slot permanently on the given day.
func (s *Service) Harvest(ctx context.Context, slotID string, date time.Time) (closed CohortSlot, res Result, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "harvest", start, err) }()
	day := domain.DayOf(date)
	res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		slot, ok := tx.FindSlot(slotID)
		if !ok {
			return domain.ErrNotFound{Entity: EntitySlot, ID: slotID}
		}
		if slot.Harvested {
			return fmt.Errorf("slot %s is already harvested", slotID)
		}
		var txErr error
		closed, txErr = tx.UpdateSlot(slotID, func(sl *CohortSlot) error {
			end := day
			sl.EndDate = &end
			sl.Harvested = true
			return nil
		})
		if txErr != nil {
			return txErr
		}
		// Re-run the reconstruction so persisted rows past the new end
		// date are dropped with the harvest, not on the next sweep.
		_, _, txErr = s.recomputeInTx(ctx, tx, slotID, day)
		return txErr
	})
	return closed, res, err
}

// ArchiveRun exports a completed run as JSON to the attached blob store
// under runs/<id>.json.
func (s *Service) ArchiveRun(ctx context.Context, runID string) (info blob.Info, err error) {
	start := s.clock.Now()
	defer func() { s.finish(ctx, "archive_run", start, err) }()
	if s.archive == nil {
		return blob.Info{}, fmt.Errorf("no run archive configured")
	}
	run, ok := s.store.GetRun(runID)
	if !ok {
		return blob.Info{}, domain.ErrNotFound{Entity: EntityProjectionRun, ID: runID}
	}
	if run.Status != domain.RunStatusCompleted {
		return blob.Info{}, fmt.Errorf("run %s is %s; only completed runs are archived", runID, run.Status)
	}
	payload, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return blob.Info{}, err
	}
	info, err = s.archive.Put(ctx, "runs/"+runID+".json", bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"scope_id": run.ScopeID, "label": run.Label},
	})
	if err != nil {
		return blob.Info{}, err
	}
	s.logger.Info("run archived", "run_id", runID, "key", info.Key, "bytes", info.Size)
	return info, nil
}

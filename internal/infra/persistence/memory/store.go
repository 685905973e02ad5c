// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"growthcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Cohort aliases domain.Cohort for in-memory persistence operations.
	Cohort = domain.Cohort
	// CohortSlot aliases domain.CohortSlot.
	CohortSlot = domain.CohortSlot
	// GrowthModel aliases domain.GrowthModel.
	GrowthModel = domain.GrowthModel
	// FeedConversionModel aliases domain.FeedConversionModel.
	FeedConversionModel = domain.FeedConversionModel
	// MortalityModel aliases domain.MortalityModel.
	MortalityModel = domain.MortalityModel
	// TemperatureProfile aliases domain.TemperatureProfile.
	TemperatureProfile = domain.TemperatureProfile
	// StageTable aliases domain.StageTable.
	StageTable = domain.StageTable
	// MeasurementAnchor aliases domain.MeasurementAnchor.
	MeasurementAnchor = domain.MeasurementAnchor
	// TransferAction aliases domain.TransferAction.
	TransferAction = domain.TransferAction
	// MortalityRecord aliases domain.MortalityRecord.
	MortalityRecord = domain.MortalityRecord
	// FeedingRecord aliases domain.FeedingRecord.
	FeedingRecord = domain.FeedingRecord
	// DailyAssimilatedState aliases domain.DailyAssimilatedState.
	DailyAssimilatedState = domain.DailyAssimilatedState
	// ProjectionRun aliases domain.ProjectionRun.
	ProjectionRun = domain.ProjectionRun
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	cohorts     map[string]Cohort
	slots       map[string]CohortSlot
	growth      map[string]GrowthModel
	feed        map[string]FeedConversionModel
	mortality   map[string]MortalityModel
	profiles    map[string]TemperatureProfile
	stageTable  *StageTable
	anchors     map[string]MeasurementAnchor
	transfers   map[string]TransferAction
	mortalities map[string]MortalityRecord
	feedings    map[string]FeedingRecord
	dailyStates map[string][]DailyAssimilatedState
	runs        map[string]ProjectionRun
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Cohorts     map[string]Cohort                  `json:"cohorts"`
	Slots       map[string]CohortSlot              `json:"slots"`
	Growth      map[string]GrowthModel             `json:"growth_models"`
	Feed        map[string]FeedConversionModel     `json:"feed_models"`
	Mortality   map[string]MortalityModel          `json:"mortality_models"`
	Profiles    map[string]TemperatureProfile      `json:"temperature_profiles"`
	StageTable  *StageTable                        `json:"stage_table,omitempty"`
	Anchors     map[string]MeasurementAnchor       `json:"anchors"`
	Transfers   map[string]TransferAction          `json:"transfers"`
	Mortalities map[string]MortalityRecord         `json:"mortality_records"`
	Feedings    map[string]FeedingRecord           `json:"feeding_records"`
	DailyStates map[string][]DailyAssimilatedState `json:"daily_states"`
	Runs        map[string]ProjectionRun           `json:"runs"`
}

func newMemoryState() memoryState {
	return memoryState{
		cohorts:     make(map[string]Cohort),
		slots:       make(map[string]CohortSlot),
		growth:      make(map[string]GrowthModel),
		feed:        make(map[string]FeedConversionModel),
		mortality:   make(map[string]MortalityModel),
		profiles:    make(map[string]TemperatureProfile),
		anchors:     make(map[string]MeasurementAnchor),
		transfers:   make(map[string]TransferAction),
		mortalities: make(map[string]MortalityRecord),
		feedings:    make(map[string]FeedingRecord),
		dailyStates: make(map[string][]DailyAssimilatedState),
		runs:        make(map[string]ProjectionRun),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.cohorts {
		cloned.cohorts[k] = cloneCohort(v)
	}
	for k, v := range s.slots {
		cloned.slots[k] = cloneSlot(v)
	}
	for k, v := range s.growth {
		cloned.growth[k] = cloneGrowthModel(v)
	}
	for k, v := range s.feed {
		cloned.feed[k] = cloneFeedModel(v)
	}
	for k, v := range s.mortality {
		cloned.mortality[k] = v
	}
	for k, v := range s.profiles {
		cloned.profiles[k] = cloneProfile(v)
	}
	if s.stageTable != nil {
		t := cloneStageTable(*s.stageTable)
		cloned.stageTable = &t
	}
	for k, v := range s.anchors {
		cloned.anchors[k] = v
	}
	for k, v := range s.transfers {
		cloned.transfers[k] = cloneTransfer(v)
	}
	for k, v := range s.mortalities {
		cloned.mortalities[k] = v
	}
	for k, v := range s.feedings {
		cloned.feedings[k] = v
	}
	for k, v := range s.dailyStates {
		cloned.dailyStates[k] = append([]DailyAssimilatedState(nil), v...)
	}
	for k, v := range s.runs {
		cloned.runs[k] = cloneRun(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Cohorts:     cloned.cohorts,
		Slots:       cloned.slots,
		Growth:      cloned.growth,
		Feed:        cloned.feed,
		Mortality:   cloned.mortality,
		Profiles:    cloned.profiles,
		StageTable:  cloned.stageTable,
		Anchors:     cloned.anchors,
		Transfers:   cloned.transfers,
		Mortalities: cloned.mortalities,
		Feedings:    cloned.feedings,
		DailyStates: cloned.dailyStates,
		Runs:        cloned.runs,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		cohorts:     s.Cohorts,
		slots:       s.Slots,
		growth:      s.Growth,
		feed:        s.Feed,
		mortality:   s.Mortality,
		profiles:    s.Profiles,
		stageTable:  s.StageTable,
		anchors:     s.Anchors,
		transfers:   s.Transfers,
		mortalities: s.Mortalities,
		feedings:    s.Feedings,
		dailyStates: s.DailyStates,
		runs:        s.Runs,
	}
	return state.clone()
}

// migrateSnapshot normalizes snapshots loaded from durable backends: nil maps
// become empty, and records orphaned by a missing parent are dropped so the
// loaded state cannot violate referential assumptions the engines rely on.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Cohorts == nil {
		snapshot.Cohorts = map[string]Cohort{}
	}
	if snapshot.Slots == nil {
		snapshot.Slots = map[string]CohortSlot{}
	}
	if snapshot.Growth == nil {
		snapshot.Growth = map[string]GrowthModel{}
	}
	if snapshot.Feed == nil {
		snapshot.Feed = map[string]FeedConversionModel{}
	}
	if snapshot.Mortality == nil {
		snapshot.Mortality = map[string]MortalityModel{}
	}
	if snapshot.Profiles == nil {
		snapshot.Profiles = map[string]TemperatureProfile{}
	}
	if snapshot.Anchors == nil {
		snapshot.Anchors = map[string]MeasurementAnchor{}
	}
	if snapshot.Transfers == nil {
		snapshot.Transfers = map[string]TransferAction{}
	}
	if snapshot.Mortalities == nil {
		snapshot.Mortalities = map[string]MortalityRecord{}
	}
	if snapshot.Feedings == nil {
		snapshot.Feedings = map[string]FeedingRecord{}
	}
	if snapshot.DailyStates == nil {
		snapshot.DailyStates = map[string][]DailyAssimilatedState{}
	}
	if snapshot.Runs == nil {
		snapshot.Runs = map[string]ProjectionRun{}
	}

	cohortExists := func(id string) bool {
		_, ok := snapshot.Cohorts[id]
		return ok
	}
	slotExists := func(id string) bool {
		_, ok := snapshot.Slots[id]
		return ok
	}

	for id, slot := range snapshot.Slots {
		if slot.CohortID == "" || !cohortExists(slot.CohortID) {
			delete(snapshot.Slots, id)
		}
	}
	for id, anchor := range snapshot.Anchors {
		if !slotExists(anchor.SlotID) {
			delete(snapshot.Anchors, id)
		}
	}
	for id, transfer := range snapshot.Transfers {
		if !slotExists(transfer.DestinationSlotID) {
			delete(snapshot.Transfers, id)
			continue
		}
		if transfer.SourceSlotID != nil && !slotExists(*transfer.SourceSlotID) {
			transfer.SourceSlotID = nil
			snapshot.Transfers[id] = transfer
		}
	}
	for id, record := range snapshot.Mortalities {
		if !slotExists(record.SlotID) {
			delete(snapshot.Mortalities, id)
		}
	}
	for id, record := range snapshot.Feedings {
		if !slotExists(record.SlotID) {
			delete(snapshot.Feedings, id)
		}
	}
	for slotID := range snapshot.DailyStates {
		if !slotExists(slotID) {
			delete(snapshot.DailyStates, slotID)
		}
	}
	for id, cohort := range snapshot.Cohorts {
		if cohort.PinnedRunID != nil {
			if _, ok := snapshot.Runs[*cohort.PinnedRunID]; !ok {
				cohort.PinnedRunID = nil
				snapshot.Cohorts[id] = cohort
			}
		}
	}
	return snapshot
}

func cloneCohort(c Cohort) Cohort {
	cp := c
	if c.PinnedRunID != nil {
		id := *c.PinnedRunID
		cp.PinnedRunID = &id
	}
	return cp
}

func cloneSlot(s CohortSlot) CohortSlot {
	cp := s
	if s.EndDate != nil {
		t := *s.EndDate
		cp.EndDate = &t
	}
	if s.PredecessorID != nil {
		id := *s.PredecessorID
		cp.PredecessorID = &id
	}
	return cp
}

func cloneGrowthModel(g GrowthModel) GrowthModel {
	cp := g
	if len(g.StageOverrides) > 0 {
		cp.StageOverrides = make([]domain.StageGrowthOverride, len(g.StageOverrides))
		for i, o := range g.StageOverrides {
			oc := o
			if o.Coefficient != nil {
				v := *o.Coefficient
				oc.Coefficient = &v
			}
			if o.TemperatureExponent != nil {
				v := *o.TemperatureExponent
				oc.TemperatureExponent = &v
			}
			if o.WeightExponent != nil {
				v := *o.WeightExponent
				oc.WeightExponent = &v
			}
			cp.StageOverrides[i] = oc
		}
	}
	return cp
}

func cloneFeedModel(f FeedConversionModel) FeedConversionModel {
	cp := f
	if len(f.Entries) > 0 {
		cp.Entries = make([]domain.FeedConversionEntry, len(f.Entries))
		for i, e := range f.Entries {
			ec := e
			ec.Bands = append([]domain.WeightBand(nil), e.Bands...)
			cp.Entries[i] = ec
		}
	}
	return cp
}

func cloneProfile(p TemperatureProfile) TemperatureProfile {
	cp := p
	cp.Readings = append([]domain.TemperatureReading(nil), p.Readings...)
	return cp
}

func cloneStageTable(t StageTable) StageTable {
	cp := t
	cp.Stages = append([]domain.StageDefinition(nil), t.Stages...)
	return cp
}

func cloneTransfer(t TransferAction) TransferAction {
	cp := t
	if t.SourceSlotID != nil {
		id := *t.SourceSlotID
		cp.SourceSlotID = &id
	}
	return cp
}

func cloneRun(r ProjectionRun) ProjectionRun {
	cp := r
	cp.Params.Growth = cloneGrowthModel(r.Params.Growth)
	cp.Params.Feed = cloneFeedModel(r.Params.Feed)
	cp.Params.Stages = cloneStageTable(r.Params.Stages)
	cp.Params.Temperature = cloneProfile(r.Params.Temperature)
	if len(r.Params.Changes) > 0 {
		cp.Params.Changes = make([]domain.ConfigChange, len(r.Params.Changes))
		for i, c := range r.Params.Changes {
			cc := c
			if c.Growth != nil {
				g := cloneGrowthModel(*c.Growth)
				cc.Growth = &g
			}
			if c.Feed != nil {
				f := cloneFeedModel(*c.Feed)
				cc.Feed = &f
			}
			if c.Mortality != nil {
				m := *c.Mortality
				cc.Mortality = &m
			}
			cp.Params.Changes[i] = cc
		}
	}
	if r.Start.FromSlotID != nil {
		id := *r.Start.FromSlotID
		cp.Start.FromSlotID = &id
	}
	if r.Summary != nil {
		s := *r.Summary
		cp.Summary = &s
	}
	cp.States = append([]domain.ProjectedDailyState(nil), r.States...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Store provides an in-memory transactional store for the growth core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the store clock, mainly for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Rules evaluate against the mutated copy; blocking violations abort
// the commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetCohort returns a cohort by ID.
func (s *Store) GetCohort(id string) (Cohort, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cohorts[id]
	if !ok {
		return Cohort{}, false
	}
	return cloneCohort(c), true
}

// GetSlot returns a slot by ID.
func (s *Store) GetSlot(id string) (CohortSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.state.slots[id]
	if !ok {
		return CohortSlot{}, false
	}
	return cloneSlot(sl), true
}

// ListSlots returns all slots sorted by start date, then ID.
func (s *Store) ListSlots() []CohortSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSlots(s.state.slots, "")
}

// ListSlotsByCohort returns a cohort's slots sorted by start date.
func (s *Store) ListSlotsByCohort(cohortID string) []CohortSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSlots(s.state.slots, cohortID)
}

func sortedSlots(slots map[string]CohortSlot, cohortID string) []CohortSlot {
	out := make([]CohortSlot, 0, len(slots))
	for _, sl := range slots {
		if cohortID != "" && sl.CohortID != cohortID {
			continue
		}
		out = append(out, cloneSlot(sl))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out
}

// GetGrowthModel returns a growth model by ID.
func (s *Store) GetGrowthModel(id string) (GrowthModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.growth[id]
	if !ok {
		return GrowthModel{}, false
	}
	return cloneGrowthModel(g), true
}

// GetFeedModel returns a feed conversion model by ID.
func (s *Store) GetFeedModel(id string) (FeedConversionModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.feed[id]
	if !ok {
		return FeedConversionModel{}, false
	}
	return cloneFeedModel(f), true
}

// GetMortalityModel returns a mortality model by ID.
func (s *Store) GetMortalityModel(id string) (MortalityModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.mortality[id]
	return m, ok
}

// GetTemperatureProfile returns a temperature profile by ID.
func (s *Store) GetTemperatureProfile(id string) (TemperatureProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.profiles[id]
	if !ok {
		return TemperatureProfile{}, false
	}
	return cloneProfile(p), true
}

// StageTable returns the configured life-stage table, if any.
func (s *Store) StageTable() (StageTable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.stageTable == nil {
		return StageTable{}, false
	}
	return cloneStageTable(*s.state.stageTable), true
}

// DailyStates returns the assimilated rows for a slot within [from, to].
func (s *Store) DailyStates(slotID string, from, to time.Time) []DailyAssimilatedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fromDay, toDay := domain.DayOf(from), domain.DayOf(to)
	var out []DailyAssimilatedState
	for _, row := range s.state.dailyStates[slotID] {
		if row.Date.Before(fromDay) || row.Date.After(toDay) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// GetRun returns a projection run by ID.
func (s *Store) GetRun(id string) (ProjectionRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.runs[id]
	if !ok {
		return ProjectionRun{}, false
	}
	return cloneRun(r), true
}

// ListRuns returns run summaries for a scope, newest first. An empty scope
// lists every run.
func (s *Store) ListRuns(scopeID string) []domain.ProjectionRunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProjectionRunSummary, 0, len(s.state.runs))
	for _, r := range s.state.runs {
		if scopeID != "" && r.ScopeID != scopeID {
			continue
		}
		summary := domain.ProjectionRunSummary{
			ID:          r.ID,
			Label:       r.Label,
			ScopeID:     r.ScopeID,
			Status:      r.Status,
			HorizonDays: r.HorizonDays,
			CreatedAt:   r.CreatedAt,
		}
		if r.CompletedAt != nil {
			t := *r.CompletedAt
			summary.CompletedAt = &t
		}
		if r.Summary != nil {
			sum := *r.Summary
			summary.Summary = &sum
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

package memory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"growthcore/pkg/domain"
)

var (
	_ domain.Transaction     = (*transaction)(nil)
	_ domain.TransactionView = transactionView{}
)

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListCohorts returns all cohorts within the transaction snapshot.
func (v transactionView) ListCohorts() []Cohort {
	out := make([]Cohort, 0, len(v.state.cohorts))
	for _, c := range v.state.cohorts {
		out = append(out, cloneCohort(c))
	}
	return out
}

// ListSlots returns all slots sorted by start date.
func (v transactionView) ListSlots() []CohortSlot {
	return sortedSlots(v.state.slots, "")
}

// ListGrowthModels returns all growth models.
func (v transactionView) ListGrowthModels() []GrowthModel {
	out := make([]GrowthModel, 0, len(v.state.growth))
	for _, g := range v.state.growth {
		out = append(out, cloneGrowthModel(g))
	}
	return out
}

// ListFeedModels returns all feed conversion models.
func (v transactionView) ListFeedModels() []FeedConversionModel {
	out := make([]FeedConversionModel, 0, len(v.state.feed))
	for _, f := range v.state.feed {
		out = append(out, cloneFeedModel(f))
	}
	return out
}

// ListMortalityModels returns all mortality models.
func (v transactionView) ListMortalityModels() []MortalityModel {
	out := make([]MortalityModel, 0, len(v.state.mortality))
	for _, m := range v.state.mortality {
		out = append(out, m)
	}
	return out
}

// ListTemperatureProfiles returns all temperature profiles.
func (v transactionView) ListTemperatureProfiles() []TemperatureProfile {
	out := make([]TemperatureProfile, 0, len(v.state.profiles))
	for _, p := range v.state.profiles {
		out = append(out, cloneProfile(p))
	}
	return out
}

// ListTransfers returns all transfers sorted by date.
func (v transactionView) ListTransfers() []TransferAction {
	out := make([]TransferAction, 0, len(v.state.transfers))
	for _, t := range v.state.transfers {
		out = append(out, cloneTransfer(t))
	}
	sortTransfers(out)
	return out
}

// ListRuns returns all projection runs.
func (v transactionView) ListRuns() []ProjectionRun {
	out := make([]ProjectionRun, 0, len(v.state.runs))
	for _, r := range v.state.runs {
		out = append(out, cloneRun(r))
	}
	return out
}

// StageTable returns the configured life-stage table, if any.
func (v transactionView) StageTable() (StageTable, bool) {
	if v.state.stageTable == nil {
		return StageTable{}, false
	}
	return cloneStageTable(*v.state.stageTable), true
}

// FindCohort retrieves a cohort by ID from the snapshot.
func (v transactionView) FindCohort(id string) (Cohort, bool) {
	c, ok := v.state.cohorts[id]
	if !ok {
		return Cohort{}, false
	}
	return cloneCohort(c), true
}

// FindSlot retrieves a slot by ID from the snapshot.
func (v transactionView) FindSlot(id string) (CohortSlot, bool) {
	s, ok := v.state.slots[id]
	if !ok {
		return CohortSlot{}, false
	}
	return cloneSlot(s), true
}

// FindGrowthModel retrieves a growth model by ID.
func (v transactionView) FindGrowthModel(id string) (GrowthModel, bool) {
	g, ok := v.state.growth[id]
	if !ok {
		return GrowthModel{}, false
	}
	return cloneGrowthModel(g), true
}

// FindFeedModel retrieves a feed conversion model by ID.
func (v transactionView) FindFeedModel(id string) (FeedConversionModel, bool) {
	f, ok := v.state.feed[id]
	if !ok {
		return FeedConversionModel{}, false
	}
	return cloneFeedModel(f), true
}

// FindMortalityModel retrieves a mortality model by ID.
func (v transactionView) FindMortalityModel(id string) (MortalityModel, bool) {
	m, ok := v.state.mortality[id]
	return m, ok
}

// FindTemperatureProfile retrieves a temperature profile by ID.
func (v transactionView) FindTemperatureProfile(id string) (TemperatureProfile, bool) {
	p, ok := v.state.profiles[id]
	if !ok {
		return TemperatureProfile{}, false
	}
	return cloneProfile(p), true
}

// FindRun retrieves a projection run by ID.
func (v transactionView) FindRun(id string) (ProjectionRun, bool) {
	r, ok := v.state.runs[id]
	if !ok {
		return ProjectionRun{}, false
	}
	return cloneRun(r), true
}

// AnchorsForSlot returns a slot's measurement anchors sorted by date.
func (v transactionView) AnchorsForSlot(slotID string) []MeasurementAnchor {
	var out []MeasurementAnchor
	for _, a := range v.state.anchors {
		if a.SlotID == slotID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// TransfersInto returns transfers arriving at a slot sorted by date.
func (v transactionView) TransfersInto(slotID string) []TransferAction {
	var out []TransferAction
	for _, t := range v.state.transfers {
		if t.DestinationSlotID == slotID {
			out = append(out, cloneTransfer(t))
		}
	}
	sortTransfers(out)
	return out
}

// TransfersOutOf returns transfers leaving a slot sorted by date.
func (v transactionView) TransfersOutOf(slotID string) []TransferAction {
	var out []TransferAction
	for _, t := range v.state.transfers {
		if t.SourceSlotID != nil && *t.SourceSlotID == slotID {
			out = append(out, cloneTransfer(t))
		}
	}
	sortTransfers(out)
	return out
}

// MortalityForSlot returns a slot's mortality records sorted by date.
func (v transactionView) MortalityForSlot(slotID string) []MortalityRecord {
	var out []MortalityRecord
	for _, r := range v.state.mortalities {
		if r.SlotID == slotID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// FeedingForSlot returns a slot's feeding records sorted by date.
func (v transactionView) FeedingForSlot(slotID string) []FeedingRecord {
	var out []FeedingRecord
	for _, r := range v.state.feedings {
		if r.SlotID == slotID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// DailyStatesForSlot returns a slot's full assimilated series in order.
func (v transactionView) DailyStatesForSlot(slotID string) []DailyAssimilatedState {
	return append([]DailyAssimilatedState(nil), v.state.dailyStates[slotID]...)
}

func sortTransfers(transfers []TransferAction) {
	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].Date.Equal(transfers[j].Date) {
			return transfers[i].ID < transfers[j].ID
		}
		return transfers[i].Date.Before(transfers[j].Date)
	})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindSlot exposes slot lookup within the transaction scope.
func (tx *transaction) FindSlot(id string) (CohortSlot, bool) {
	s, ok := tx.state.slots[id]
	if !ok {
		return CohortSlot{}, false
	}
	return cloneSlot(s), true
}

// FindCohort exposes cohort lookup within the transaction scope.
func (tx *transaction) FindCohort(id string) (Cohort, bool) {
	c, ok := tx.state.cohorts[id]
	if !ok {
		return Cohort{}, false
	}
	return cloneCohort(c), true
}

// CreateCohort stores a new cohort.
func (tx *transaction) CreateCohort(c Cohort) (Cohort, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cohorts[c.ID]; exists {
		return Cohort{}, fmt.Errorf("cohort %q already exists", c.ID)
	}
	if c.Name == "" {
		return Cohort{}, errors.New("cohort requires a name")
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cohorts[c.ID] = cloneCohort(c)
	tx.recordChange(Change{Entity: domain.EntityCohort, Action: domain.ActionCreate, After: cloneCohort(c)})
	return cloneCohort(c), nil
}

// UpdateCohort mutates a cohort using the provided mutator function.
func (tx *transaction) UpdateCohort(id string, mutator func(*Cohort) error) (Cohort, error) {
	current, ok := tx.state.cohorts[id]
	if !ok {
		return Cohort{}, domain.ErrNotFound{Entity: domain.EntityCohort, ID: id}
	}
	before := cloneCohort(current)
	if err := mutator(&current); err != nil {
		return Cohort{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.cohorts[id] = cloneCohort(current)
	tx.recordChange(Change{Entity: domain.EntityCohort, Action: domain.ActionUpdate, Before: before, After: cloneCohort(current)})
	return cloneCohort(current), nil
}

// CreateSlot stores a new cohort slot. Dates are normalized to UTC days.
func (tx *transaction) CreateSlot(s CohortSlot) (CohortSlot, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.slots[s.ID]; exists {
		return CohortSlot{}, fmt.Errorf("slot %q already exists", s.ID)
	}
	if _, ok := tx.state.cohorts[s.CohortID]; !ok {
		return CohortSlot{}, fmt.Errorf("cohort %q not found for slot", s.CohortID)
	}
	if s.PredecessorID != nil {
		if _, ok := tx.state.slots[*s.PredecessorID]; !ok {
			return CohortSlot{}, fmt.Errorf("predecessor slot %q not found", *s.PredecessorID)
		}
	}
	s.StartDate = domain.DayOf(s.StartDate)
	if s.EndDate != nil {
		end := domain.DayOf(*s.EndDate)
		s.EndDate = &end
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.slots[s.ID] = cloneSlot(s)
	tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionCreate, After: cloneSlot(s)})
	return cloneSlot(s), nil
}

// UpdateSlot mutates a slot using the provided mutator function.
func (tx *transaction) UpdateSlot(id string, mutator func(*CohortSlot) error) (CohortSlot, error) {
	current, ok := tx.state.slots[id]
	if !ok {
		return CohortSlot{}, domain.ErrNotFound{Entity: domain.EntitySlot, ID: id}
	}
	before := cloneSlot(current)
	if err := mutator(&current); err != nil {
		return CohortSlot{}, err
	}
	if current.EndDate != nil {
		end := domain.DayOf(*current.EndDate)
		current.EndDate = &end
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.slots[id] = cloneSlot(current)
	tx.recordChange(Change{Entity: domain.EntitySlot, Action: domain.ActionUpdate, Before: before, After: cloneSlot(current)})
	return cloneSlot(current), nil
}

// CreateGrowthModel stores a new growth model.
func (tx *transaction) CreateGrowthModel(g GrowthModel) (GrowthModel, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.growth[g.ID]; exists {
		return GrowthModel{}, fmt.Errorf("growth model %q already exists", g.ID)
	}
	g.Frozen = false
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.growth[g.ID] = cloneGrowthModel(g)
	tx.recordChange(Change{Entity: domain.EntityGrowthModel, Action: domain.ActionCreate, After: cloneGrowthModel(g)})
	return cloneGrowthModel(g), nil
}

// UpdateGrowthModel mutates a growth model. Frozen models reject edits.
func (tx *transaction) UpdateGrowthModel(id string, mutator func(*GrowthModel) error) (GrowthModel, error) {
	current, ok := tx.state.growth[id]
	if !ok {
		return GrowthModel{}, domain.ErrNotFound{Entity: domain.EntityGrowthModel, ID: id}
	}
	if current.Frozen {
		return GrowthModel{}, domain.ModelFrozenError{Entity: domain.EntityGrowthModel, ID: id}
	}
	before := cloneGrowthModel(current)
	if err := mutator(&current); err != nil {
		return GrowthModel{}, err
	}
	current.ID = id
	current.Frozen = false
	current.UpdatedAt = tx.now
	tx.state.growth[id] = cloneGrowthModel(current)
	tx.recordChange(Change{Entity: domain.EntityGrowthModel, Action: domain.ActionUpdate, Before: before, After: cloneGrowthModel(current)})
	return cloneGrowthModel(current), nil
}

// CreateFeedModel stores a new feed conversion model.
func (tx *transaction) CreateFeedModel(f FeedConversionModel) (FeedConversionModel, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.feed[f.ID]; exists {
		return FeedConversionModel{}, fmt.Errorf("feed model %q already exists", f.ID)
	}
	f.Frozen = false
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.feed[f.ID] = cloneFeedModel(f)
	tx.recordChange(Change{Entity: domain.EntityFeedModel, Action: domain.ActionCreate, After: cloneFeedModel(f)})
	return cloneFeedModel(f), nil
}

// CreateMortalityModel stores a new mortality model.
func (tx *transaction) CreateMortalityModel(m MortalityModel) (MortalityModel, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.mortality[m.ID]; exists {
		return MortalityModel{}, fmt.Errorf("mortality model %q already exists", m.ID)
	}
	m.Frozen = false
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.mortality[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityMortalityModel, Action: domain.ActionCreate, After: m})
	return m, nil
}

// PutTemperatureProfile creates or bulk-replaces a temperature profile.
func (tx *transaction) PutTemperatureProfile(p TemperatureProfile) (TemperatureProfile, error) {
	action := domain.ActionUpdate
	var before any
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if existing, ok := tx.state.profiles[p.ID]; ok {
		before = cloneProfile(existing)
		p.CreatedAt = existing.CreatedAt
	} else {
		action = domain.ActionCreate
		p.CreatedAt = tx.now
	}
	p = cloneProfile(p)
	for i := range p.Readings {
		p.Readings[i].Date = domain.DayOf(p.Readings[i].Date)
	}
	p.UpdatedAt = tx.now
	tx.state.profiles[p.ID] = cloneProfile(p)
	tx.recordChange(Change{Entity: domain.EntityTemperatureProfile, Action: action, Before: before, After: cloneProfile(p)})
	return cloneProfile(p), nil
}

// DeleteTemperatureProfile removes a profile from state. Reference protection
// is enforced by rule evaluation at commit.
func (tx *transaction) DeleteTemperatureProfile(id string) error {
	current, ok := tx.state.profiles[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTemperatureProfile, ID: id}
	}
	delete(tx.state.profiles, id)
	tx.recordChange(Change{Entity: domain.EntityTemperatureProfile, Action: domain.ActionDelete, Before: cloneProfile(current)})
	return nil
}

// SetStageTable replaces the ordered life-stage configuration.
func (tx *transaction) SetStageTable(t StageTable) (StageTable, error) {
	action := domain.ActionCreate
	var before any
	if tx.state.stageTable != nil {
		action = domain.ActionUpdate
		before = cloneStageTable(*tx.state.stageTable)
		t.CreatedAt = tx.state.stageTable.CreatedAt
	} else {
		t.CreatedAt = tx.now
	}
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	t.UpdatedAt = tx.now
	stored := cloneStageTable(t)
	tx.state.stageTable = &stored
	tx.recordChange(Change{Entity: domain.EntityStageTable, Action: action, Before: before, After: cloneStageTable(t)})
	return cloneStageTable(t), nil
}

// RecordAnchor stores a measurement anchor, normalized to its UTC day.
func (tx *transaction) RecordAnchor(a MeasurementAnchor) (MeasurementAnchor, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.anchors[a.ID]; exists {
		return MeasurementAnchor{}, fmt.Errorf("anchor %q already exists", a.ID)
	}
	if _, ok := tx.state.slots[a.SlotID]; !ok {
		return MeasurementAnchor{}, fmt.Errorf("slot %q not found for anchor", a.SlotID)
	}
	a.Date = domain.DayOf(a.Date)
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.anchors[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityMeasurementAnchor, Action: domain.ActionCreate, After: a})
	return a, nil
}

// RecordTransfer stores a transfer action, normalized to its UTC day.
func (tx *transaction) RecordTransfer(t TransferAction) (TransferAction, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.transfers[t.ID]; exists {
		return TransferAction{}, fmt.Errorf("transfer %q already exists", t.ID)
	}
	if _, ok := tx.state.slots[t.DestinationSlotID]; !ok {
		return TransferAction{}, fmt.Errorf("destination slot %q not found for transfer", t.DestinationSlotID)
	}
	if t.SourceSlotID != nil {
		if _, ok := tx.state.slots[*t.SourceSlotID]; !ok {
			return TransferAction{}, fmt.Errorf("source slot %q not found for transfer", *t.SourceSlotID)
		}
	}
	t.Date = domain.DayOf(t.Date)
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.transfers[t.ID] = cloneTransfer(t)
	tx.recordChange(Change{Entity: domain.EntityTransfer, Action: domain.ActionCreate, After: cloneTransfer(t)})
	return cloneTransfer(t), nil
}

// RecordMortality stores a mortality record, normalized to its UTC day.
func (tx *transaction) RecordMortality(r MortalityRecord) (MortalityRecord, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.mortalities[r.ID]; exists {
		return MortalityRecord{}, fmt.Errorf("mortality record %q already exists", r.ID)
	}
	if _, ok := tx.state.slots[r.SlotID]; !ok {
		return MortalityRecord{}, fmt.Errorf("slot %q not found for mortality record", r.SlotID)
	}
	r.Date = domain.DayOf(r.Date)
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.mortalities[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityMortalityRecord, Action: domain.ActionCreate, After: r})
	return r, nil
}

// RecordFeeding stores a feeding record, normalized to its UTC day.
func (tx *transaction) RecordFeeding(r FeedingRecord) (FeedingRecord, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.feedings[r.ID]; exists {
		return FeedingRecord{}, fmt.Errorf("feeding record %q already exists", r.ID)
	}
	if _, ok := tx.state.slots[r.SlotID]; !ok {
		return FeedingRecord{}, fmt.Errorf("slot %q not found for feeding record", r.SlotID)
	}
	r.Date = domain.DayOf(r.Date)
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.feedings[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityFeedingRecord, Action: domain.ActionCreate, After: r})
	return r, nil
}

// ReplaceDailyStates atomically swaps the full assimilated series for a slot.
func (tx *transaction) ReplaceDailyStates(slotID string, rows []DailyAssimilatedState) error {
	if _, ok := tx.state.slots[slotID]; !ok {
		return domain.ErrNotFound{Entity: domain.EntitySlot, ID: slotID}
	}
	for i := range rows {
		if rows[i].SlotID != slotID {
			return fmt.Errorf("daily state row %d belongs to slot %q, not %q", i, rows[i].SlotID, slotID)
		}
	}
	if len(rows) == 0 {
		delete(tx.state.dailyStates, slotID)
		return nil
	}
	tx.state.dailyStates[slotID] = append([]DailyAssimilatedState(nil), rows...)
	return nil
}

// PutRun persists a projection run. Completed runs are immutable: any second
// write under the same ID fails. Storing a completed run freezes the models
// its parameter snapshot references.
func (tx *transaction) PutRun(r ProjectionRun) (ProjectionRun, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if existing, ok := tx.state.runs[r.ID]; ok && existing.Status != domain.RunStatusPending {
		return ProjectionRun{}, domain.RunImmutableError{RunID: r.ID}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	r.UpdatedAt = tx.now
	tx.state.runs[r.ID] = cloneRun(r)
	tx.recordChange(Change{Entity: domain.EntityProjectionRun, Action: domain.ActionCreate, After: cloneRun(r)})
	if r.Status == domain.RunStatusCompleted {
		tx.freezeRunModels(r)
	}
	return cloneRun(r), nil
}

// freezeRunModels marks every stored model referenced by a completed run as
// frozen so later edits cannot rewrite what the run was computed with.
func (tx *transaction) freezeRunModels(r ProjectionRun) {
	if g, ok := tx.state.growth[r.Params.Growth.ID]; ok && !g.Frozen {
		g.Frozen = true
		g.UpdatedAt = tx.now
		tx.state.growth[g.ID] = g
	}
	if f, ok := tx.state.feed[r.Params.Feed.ID]; ok && !f.Frozen {
		f.Frozen = true
		f.UpdatedAt = tx.now
		tx.state.feed[f.ID] = f
	}
	if m, ok := tx.state.mortality[r.Params.Mortality.ID]; ok && !m.Frozen {
		m.Frozen = true
		m.UpdatedAt = tx.now
		tx.state.mortality[m.ID] = m
	}
	for _, change := range r.Params.Changes {
		if change.Growth != nil {
			if g, ok := tx.state.growth[change.Growth.ID]; ok && !g.Frozen {
				g.Frozen = true
				g.UpdatedAt = tx.now
				tx.state.growth[g.ID] = g
			}
		}
		if change.Feed != nil {
			if f, ok := tx.state.feed[change.Feed.ID]; ok && !f.Frozen {
				f.Frozen = true
				f.UpdatedAt = tx.now
				tx.state.feed[f.ID] = f
			}
		}
		if change.Mortality != nil {
			if m, ok := tx.state.mortality[change.Mortality.ID]; ok && !m.Frozen {
				m.Frozen = true
				m.UpdatedAt = tx.now
				tx.state.mortality[m.ID] = m
			}
		}
	}
}

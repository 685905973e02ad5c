package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateCohort(Cohort) (Cohort, error)
	UpdateCohort(id string, mutator func(*Cohort) error) (Cohort, error)
	CreateSlot(CohortSlot) (CohortSlot, error)
	UpdateSlot(id string, mutator func(*CohortSlot) error) (CohortSlot, error)
	CreateGrowthModel(GrowthModel) (GrowthModel, error)
	UpdateGrowthModel(id string, mutator func(*GrowthModel) error) (GrowthModel, error)
	CreateFeedModel(FeedConversionModel) (FeedConversionModel, error)
	CreateMortalityModel(MortalityModel) (MortalityModel, error)
	PutTemperatureProfile(TemperatureProfile) (TemperatureProfile, error)
	DeleteTemperatureProfile(id string) error
	SetStageTable(StageTable) (StageTable, error)
	RecordAnchor(MeasurementAnchor) (MeasurementAnchor, error)
	RecordTransfer(TransferAction) (TransferAction, error)
	RecordMortality(MortalityRecord) (MortalityRecord, error)
	RecordFeeding(FeedingRecord) (FeedingRecord, error)
	ReplaceDailyStates(slotID string, rows []DailyAssimilatedState) error
	PutRun(ProjectionRun) (ProjectionRun, error)
	FindSlot(id string) (CohortSlot, bool)
	FindCohort(id string) (Cohort, bool)
}

// TransactionView provides read-only access to snapshot data for rules and engines.
type TransactionView interface {
	RuleView
	AnchorsForSlot(slotID string) []MeasurementAnchor
	TransfersInto(slotID string) []TransferAction
	TransfersOutOf(slotID string) []TransferAction
	MortalityForSlot(slotID string) []MortalityRecord
	FeedingForSlot(slotID string) []FeedingRecord
	DailyStatesForSlot(slotID string) []DailyAssimilatedState
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCohort(id string) (Cohort, bool)
	GetSlot(id string) (CohortSlot, bool)
	ListSlots() []CohortSlot
	ListSlotsByCohort(cohortID string) []CohortSlot
	GetGrowthModel(id string) (GrowthModel, bool)
	GetFeedModel(id string) (FeedConversionModel, bool)
	GetMortalityModel(id string) (MortalityModel, bool)
	GetTemperatureProfile(id string) (TemperatureProfile, bool)
	StageTable() (StageTable, bool)
	DailyStates(slotID string, from, to time.Time) []DailyAssimilatedState
	GetRun(id string) (ProjectionRun, bool)
	ListRuns(scopeID string) []ProjectionRunSummary
}

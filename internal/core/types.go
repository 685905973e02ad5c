package core

import "growthcore/pkg/domain"

type (
	EntityType            = domain.EntityType
	Provenance            = domain.Provenance
	Severity              = domain.Severity
	Base                  = domain.Base
	Cohort                = domain.Cohort
	CohortSlot            = domain.CohortSlot
	TemperatureProfile    = domain.TemperatureProfile
	TemperatureReading    = domain.TemperatureReading
	GrowthModel           = domain.GrowthModel
	FeedConversionModel   = domain.FeedConversionModel
	MortalityModel        = domain.MortalityModel
	StageTable            = domain.StageTable
	StageDefinition       = domain.StageDefinition
	MeasurementAnchor     = domain.MeasurementAnchor
	TransferAction        = domain.TransferAction
	MortalityRecord       = domain.MortalityRecord
	FeedingRecord         = domain.FeedingRecord
	DailyAssimilatedState = domain.DailyAssimilatedState
	StartCondition        = domain.StartCondition
	ProjectionRun         = domain.ProjectionRun
	ProjectedDailyState   = domain.ProjectedDailyState
	Change                = domain.Change
	Action                = domain.Action
	Violation             = domain.Violation
	Result                = domain.Result
	RulesEngine           = domain.RulesEngine
	RuleViolationError    = domain.RuleViolationError
	Transaction           = domain.Transaction
	TransactionView       = domain.TransactionView
	PersistentStore       = domain.PersistentStore
)

const (
	EntitySlot               = domain.EntitySlot
	EntityCohort             = domain.EntityCohort
	EntityGrowthModel        = domain.EntityGrowthModel
	EntityFeedModel          = domain.EntityFeedModel
	EntityMortalityModel     = domain.EntityMortalityModel
	EntityTemperatureProfile = domain.EntityTemperatureProfile
	EntityStageTable         = domain.EntityStageTable
	EntityProjectionRun      = domain.EntityProjectionRun
)

const (
	ProvenanceMeasured     = domain.ProvenanceMeasured
	ProvenanceInterpolated = domain.ProvenanceInterpolated
	ProvenanceModel        = domain.ProvenanceModel
	ProvenanceRecorded     = domain.ProvenanceRecorded
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by growthcore.
package domain

import (
	"math"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCohort identifies a tracked cohort record.
	EntityCohort EntityType = "cohort"
	// EntitySlot identifies a cohort slot (container assignment) record.
	EntitySlot EntityType = "slot"
	// EntityGrowthModel identifies a thermal growth coefficient model record.
	EntityGrowthModel EntityType = "growth_model"
	// EntityFeedModel identifies a feed conversion model record.
	EntityFeedModel EntityType = "feed_model"
	// EntityMortalityModel identifies a mortality model record.
	EntityMortalityModel EntityType = "mortality_model"
	// EntityTemperatureProfile identifies a temperature profile record.
	EntityTemperatureProfile EntityType = "temperature_profile"
	// EntityStageTable identifies the configured life-stage table record.
	EntityStageTable EntityType = "stage_table"
	// EntityMeasurementAnchor identifies an operator-recorded weight sample.
	EntityMeasurementAnchor EntityType = "measurement_anchor"
	// EntityTransfer identifies a population transfer record.
	EntityTransfer EntityType = "transfer"
	// EntityMortalityRecord identifies a recorded mortality event.
	EntityMortalityRecord EntityType = "mortality_record"
	// EntityFeedingRecord identifies a recorded feeding event.
	EntityFeedingRecord EntityType = "feeding_record"
	// EntityProjectionRun identifies a versioned projection run record.
	EntityProjectionRun EntityType = "projection_run"
)

// Provenance tags the source of an assimilated value.
type Provenance string

// Provenance values, in decreasing order of trust.
const (
	// ProvenanceMeasured marks values taken directly from an operator measurement.
	ProvenanceMeasured Provenance = "measured"
	// ProvenanceInterpolated marks values interpolated between two measurements.
	ProvenanceInterpolated Provenance = "interpolated"
	// ProvenanceModel marks values produced by the growth or mortality models.
	ProvenanceModel Provenance = "model"
	// ProvenanceRecorded marks values derived from recorded events (mortality, transfers).
	ProvenanceRecorded Provenance = "recorded"
)

// PopulationSource declares how a slot's population is accounted on its first
// active day. Deciding this at slot creation prevents double counting of the
// slot's own metadata on top of incoming transfer totals.
type PopulationSource string

const (
	// SourcePrePopulated means the slot's initial population comes from its own metadata.
	SourcePrePopulated PopulationSource = "pre_populated"
	// SourceTransferFed means the slot starts empty and is populated only by transfers.
	SourceTransferFed PopulationSource = "transfer_fed"
)

// RateFrequency is the period over which a mortality rate is expressed.
type RateFrequency string

const (
	// FrequencyDaily expresses a rate per day.
	FrequencyDaily RateFrequency = "daily"
	// FrequencyWeekly expresses a rate per week.
	FrequencyWeekly RateFrequency = "weekly"
)

// RunStatus enumerates projection run lifecycle states.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TransferReason describes why population moved between slots.
type TransferReason string

const (
	// TransferStageTransition links the terminate-and-create pair of a stage transition.
	TransferStageTransition TransferReason = "stage_transition"
	// TransferSplit records a manual split of a cohort across containers.
	TransferSplit TransferReason = "split"
	// TransferManual records an operator-initiated relocation.
	TransferManual TransferReason = "manual"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cohort represents a tracked population of animals sharing a common origin.
// A cohort may be pinned to exactly one projection run for variance analysis.
type Cohort struct {
	Base
	Name             string  `json:"name"`
	Species          string  `json:"species"`
	OriginYear       int     `json:"origin_year"`
	GrowthModelID    string  `json:"growth_model_id"`
	FeedModelID      string  `json:"feed_model_id"`
	MortalityModelID string  `json:"mortality_model_id"`
	PinnedRunID      *string `json:"pinned_run_id"`
}

// CohortSlot tracks a cohort population co-located in one physical container
// for a time window. EndDate nil means the slot is still active.
type CohortSlot struct {
	Base
	CohortID          string           `json:"cohort_id"`
	ContainerID       string           `json:"container_id"`
	ProfileID         string           `json:"profile_id"`
	Stage             string           `json:"stage"`
	StartDate         time.Time        `json:"start_date"`
	EndDate           *time.Time       `json:"end_date"`
	PopulationSource  PopulationSource `json:"population_source"`
	InitialPopulation int              `json:"initial_population"`
	InitialWeightG    float64          `json:"initial_weight_g"`
	PredecessorID     *string          `json:"predecessor_id"`
	Harvested         bool             `json:"harvested"`
}

// Active reports whether the slot is open on the given date.
func (s CohortSlot) Active(date time.Time) bool {
	d := DayOf(date)
	if d.Before(DayOf(s.StartDate)) {
		return false
	}
	if s.EndDate != nil && d.After(DayOf(*s.EndDate)) {
		return false
	}
	return true
}

// TemperatureReading is a single dated temperature observation.
type TemperatureReading struct {
	Date         time.Time `json:"date"`
	TemperatureC float64   `json:"temperature_c"`
}

// TemperatureProfile is a named location-based reference temperature series.
// Readings are date-unique and mutated only by bulk load.
type TemperatureProfile struct {
	Base
	Name     string               `json:"name"`
	Location string               `json:"location"`
	// DefaultC is the fallback temperature used when no reading covers a date.
	DefaultC float64 `json:"default_c"`
	// MaxGapDays bounds interpolation: gaps wider than this fall through to DefaultC.
	MaxGapDays int                  `json:"max_gap_days"`
	Readings   []TemperatureReading `json:"readings"`
}

// StageGrowthOverride adjusts the growth formula for a single life stage.
// Nil fields inherit the model-level value.
type StageGrowthOverride struct {
	Stage               string   `json:"stage"`
	Coefficient         *float64 `json:"coefficient,omitempty"`
	TemperatureExponent *float64 `json:"temperature_exponent,omitempty"`
	WeightExponent      *float64 `json:"weight_exponent,omitempty"`
}

// GrowthModel parameterizes the thermal growth coefficient formula
// delta = coefficient * T^m * W^n. Frozen models belong to at least one
// completed projection run and reject edits; changes create a new version.
type GrowthModel struct {
	Base
	Name                string                `json:"name"`
	Coefficient         float64               `json:"coefficient"`
	TemperatureExponent float64               `json:"temperature_exponent"`
	WeightExponent      float64               `json:"weight_exponent"`
	StageOverrides      []StageGrowthOverride `json:"stage_overrides,omitempty"`
	Frozen              bool                  `json:"frozen"`
}

// OverrideFor returns the effective parameters for a stage.
func (g GrowthModel) OverrideFor(stage string) (coefficient, tempExp, weightExp float64) {
	coefficient, tempExp, weightExp = g.Coefficient, g.TemperatureExponent, g.WeightExponent
	for _, o := range g.StageOverrides {
		if o.Stage != stage {
			continue
		}
		if o.Coefficient != nil {
			coefficient = *o.Coefficient
		}
		if o.TemperatureExponent != nil {
			tempExp = *o.TemperatureExponent
		}
		if o.WeightExponent != nil {
			weightExp = *o.WeightExponent
		}
		return
	}
	return
}

// WeightBand is a weight-scoped ratio override within a stage entry.
type WeightBand struct {
	MinWeightG float64 `json:"min_weight_g"`
	MaxWeightG float64 `json:"max_weight_g"`
	Ratio      float64 `json:"ratio"`
}

// FeedConversionEntry holds the expected feed-to-growth ratio for one stage.
type FeedConversionEntry struct {
	Stage string       `json:"stage"`
	Ratio float64      `json:"ratio"`
	Bands []WeightBand `json:"bands,omitempty"`
}

// FeedConversionModel maps life stages to feed conversion ratios. The ratio
// must be strictly positive for every stage except the earliest configured
// stage, where zero means no external feeding is expected yet.
type FeedConversionModel struct {
	Base
	Name    string                `json:"name"`
	Entries []FeedConversionEntry `json:"entries"`
	Frozen  bool                  `json:"frozen"`
}

// EntryFor returns the entry configured for a stage.
func (f FeedConversionModel) EntryFor(stage string) (FeedConversionEntry, bool) {
	for _, e := range f.Entries {
		if e.Stage == stage {
			return e, true
		}
	}
	return FeedConversionEntry{}, false
}

// MortalityModel converts a configured periodic rate into expected population
// decay. Derived values are computed, never stored.
type MortalityModel struct {
	Base
	Name      string        `json:"name"`
	Rate      float64       `json:"rate"`
	Frequency RateFrequency `json:"frequency"`
	Frozen    bool          `json:"frozen"`
}

// DailySurvival returns the equivalent per-day survival fraction. Weekly
// rates compound: surviving a week at rate r means (1-r)^(1/7) per day.
func (m MortalityModel) DailySurvival() float64 {
	switch m.Frequency {
	case FrequencyWeekly:
		return math.Pow(1-m.Rate, 1.0/7.0)
	default:
		return 1 - m.Rate
	}
}

// ImpliedDailyRate returns the per-day loss fraction.
func (m MortalityModel) ImpliedDailyRate() float64 {
	return 1 - m.DailySurvival()
}

// ImpliedAnnualRate returns the loss fraction compounded over a 365-day year.
func (m MortalityModel) ImpliedAnnualRate() float64 {
	return 1 - math.Pow(m.DailySurvival(), 365)
}

// StageDefinition is one ordered life stage with its expected weight range
// [MinWeightG, MaxWeightG). MaxDays, when positive, forces a transition after
// that many days in the stage even if the weight trigger never fires.
type StageDefinition struct {
	Name        string  `json:"name"`
	MinWeightG  float64 `json:"min_weight_g"`
	MaxWeightG  float64 `json:"max_weight_g"`
	MaxDays     int     `json:"max_days"`
	ContainerID string  `json:"container_id"`
}

// StageTable is the ordered life-stage configuration. Ranges must be
// contiguous and non-overlapping across the ordered stages; an absent table
// disables stage transitions entirely.
type StageTable struct {
	Base
	Stages []StageDefinition `json:"stages"`
}

// IndexOf returns the position of a stage in the ordered table.
func (t StageTable) IndexOf(stage string) (int, bool) {
	for i, s := range t.Stages {
		if s.Name == stage {
			return i, true
		}
	}
	return -1, false
}

// Earliest returns the first configured stage name, or empty when unset.
func (t StageTable) Earliest() string {
	if len(t.Stages) == 0 {
		return ""
	}
	return t.Stages[0].Name
}

// MeasurementAnchor is a trusted operator-recorded weight measurement for one
// slot and date. It overrides any model-computed weight for that date.
type MeasurementAnchor struct {
	Base
	SlotID     string    `json:"slot_id"`
	Date       time.Time `json:"date"`
	AvgWeightG float64   `json:"avg_weight_g"`
	SampleSize int       `json:"sample_size"`
	Operator   string    `json:"operator"`
}

// TransferAction records population moved from a source slot to a destination
// slot on a given date. SourceSlotID nil marks an external placement.
type TransferAction struct {
	Base
	SourceSlotID      *string        `json:"source_slot_id"`
	DestinationSlotID string         `json:"destination_slot_id"`
	Date              time.Time      `json:"date"`
	Count             int            `json:"count"`
	AvgWeightG        float64        `json:"avg_weight_g"`
	Reason            TransferReason `json:"reason"`
}

// MortalityRecord is a recorded mortality event against a slot. Shock marks a
// discrete catastrophic event layered on top of the continuous model.
type MortalityRecord struct {
	Base
	SlotID string    `json:"slot_id"`
	Date   time.Time `json:"date"`
	Count  int       `json:"count"`
	Cause  string    `json:"cause"`
	Shock  bool      `json:"shock"`
}

// FeedingRecord is a recorded feed delivery against a slot.
type FeedingRecord struct {
	Base
	SlotID    string    `json:"slot_id"`
	Date      time.Time `json:"date"`
	FeedMassG float64   `json:"feed_mass_g"`
}

// DailyAssimilatedState is one reconstructed row per (slot, date). Rows are
// derived and recomputable; a recompute replaces the whole sequence for a
// slot rather than patching individual rows.
type DailyAssimilatedState struct {
	SlotID               string     `json:"slot_id"`
	Date                 time.Time  `json:"date"`
	Population           int        `json:"population"`
	AvgWeightG           float64    `json:"avg_weight_g"`
	BiomassG             float64    `json:"biomass_g"`
	Stage                string     `json:"stage"`
	PopulationProvenance Provenance `json:"population_provenance"`
	WeightProvenance     Provenance `json:"weight_provenance"`
	ExpectedFeedG        float64    `json:"expected_feed_g"`
}

// StartCondition defines where a projection begins: either a user-authored
// hypothetical, or a snapshot of a slot's current assimilated state.
type StartCondition struct {
	FromSlotID *string   `json:"from_slot_id,omitempty"`
	Date       time.Time `json:"date"`
	WeightG    float64   `json:"weight_g"`
	Population int       `json:"population"`
	Stage      string    `json:"stage"`
}

// ConfigChange substitutes model configuration mid-run. The new configuration
// governs days at and after DayOffset. Nil fields keep the prior model.
type ConfigChange struct {
	DayOffset int                  `json:"day_offset"`
	Growth    *GrowthModel         `json:"growth,omitempty"`
	Feed      *FeedConversionModel `json:"feed,omitempty"`
	Mortality *MortalityModel      `json:"mortality,omitempty"`
}

// ProjectionParams is the immutable parameter snapshot a run was computed
// with. Models are copied by value so later edits to the configuration store
// cannot silently change what a run reports.
type ProjectionParams struct {
	Growth      GrowthModel         `json:"growth"`
	Feed        FeedConversionModel `json:"feed"`
	Mortality   MortalityModel      `json:"mortality"`
	Stages      StageTable          `json:"stages"`
	Temperature TemperatureProfile  `json:"temperature"`
	Changes     []ConfigChange      `json:"changes,omitempty"`
}

// RunSummary aggregates a completed run.
type RunSummary struct {
	FinalWeightG    float64 `json:"final_weight_g"`
	FinalPopulation int     `json:"final_population"`
	FinalBiomassG   float64 `json:"final_biomass_g"`
	SimulatedDays   int     `json:"simulated_days"`
	MeanDailyGainG  float64 `json:"mean_daily_gain_g"`
	StdDailyGainG   float64 `json:"std_daily_gain_g"`
	TotalFeedG      float64 `json:"total_feed_g"`
}

// ProjectionRun is an immutable, versioned execution of the projection
// engine. Re-running with different parameters creates a new run; completed
// runs are never mutated or deleted.
type ProjectionRun struct {
	Base
	Label       string                `json:"label"`
	ScopeID     string                `json:"scope_id"`
	Status      RunStatus             `json:"status"`
	Params      ProjectionParams      `json:"params"`
	Start       StartCondition        `json:"start"`
	HorizonDays int                   `json:"horizon_days"`
	Summary     *RunSummary           `json:"summary,omitempty"`
	States      []ProjectedDailyState `json:"states,omitempty"`
	CompletedAt *time.Time            `json:"completed_at"`
}

// ProjectionRunSummary is the list view of a run.
type ProjectionRunSummary struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	ScopeID     string      `json:"scope_id"`
	Status      RunStatus   `json:"status"`
	HorizonDays int         `json:"horizon_days"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at"`
	Summary     *RunSummary `json:"summary,omitempty"`
}

// ProjectedDailyState is one projected row per (run, day offset).
type ProjectedDailyState struct {
	RunID         string    `json:"run_id"`
	DayOffset     int       `json:"day_offset"`
	Date          time.Time `json:"date"`
	AvgWeightG    float64   `json:"avg_weight_g"`
	Population    int       `json:"population"`
	BiomassG      float64   `json:"biomass_g"`
	Stage         string    `json:"stage"`
	ExpectedFeedG float64   `json:"expected_feed_g"`
}

// DayOf truncates a timestamp to its UTC calendar day. All date-keyed series
// in the core are normalized through it so map lookups and comparisons agree.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

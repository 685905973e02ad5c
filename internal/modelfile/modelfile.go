// Package modelfile loads growth, feed, mortality, stage, and temperature
// configuration from operator-edited hjson documents and installs it through
// the service so every document passes rule validation before it lands.
package modelfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	hjson "github.com/hjson/hjson-go"

	"growthcore/internal/core"
	"growthcore/pkg/domain"
)

// Date accepts plain YYYY-MM-DD values alongside RFC 3339 timestamps and
// normalizes both to a UTC day.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = domain.DayOf(t)
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q, want YYYY-MM-DD", s)
}

// Document is the root of a model parameter file. Every section is optional;
// an empty document installs nothing.
type Document struct {
	GrowthModels        []GrowthModel        `json:"growth_models"`
	FeedModels          []FeedModel          `json:"feed_models"`
	MortalityModels     []MortalityModel     `json:"mortality_models"`
	StageTable          *StageTable          `json:"stage_table"`
	TemperatureProfiles []TemperatureProfile `json:"temperature_profiles"`
}

type GrowthModel struct {
	Name                string          `json:"name"`
	Coefficient         float64         `json:"coefficient"`
	TemperatureExponent float64         `json:"temperature_exponent"`
	WeightExponent      float64         `json:"weight_exponent"`
	StageOverrides      []StageOverride `json:"stage_overrides"`
}

type StageOverride struct {
	Stage               string   `json:"stage"`
	Coefficient         *float64 `json:"coefficient"`
	TemperatureExponent *float64 `json:"temperature_exponent"`
	WeightExponent      *float64 `json:"weight_exponent"`
}

type FeedModel struct {
	Name    string      `json:"name"`
	Entries []FeedEntry `json:"entries"`
}

type FeedEntry struct {
	Stage string       `json:"stage"`
	Ratio float64      `json:"ratio"`
	Bands []WeightBand `json:"bands"`
}

type WeightBand struct {
	MinWeightG float64 `json:"min_weight_g"`
	MaxWeightG float64 `json:"max_weight_g"`
	Ratio      float64 `json:"ratio"`
}

type MortalityModel struct {
	Name      string  `json:"name"`
	Rate      float64 `json:"rate"`
	Frequency string  `json:"frequency"`
}

type StageTable struct {
	Stages []StageDefinition `json:"stages"`
}

type StageDefinition struct {
	Name        string  `json:"name"`
	MinWeightG  float64 `json:"min_weight_g"`
	MaxWeightG  float64 `json:"max_weight_g"`
	MaxDays     int     `json:"max_days"`
	ContainerID string  `json:"container_id"`
}

type TemperatureProfile struct {
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	DefaultC   float64   `json:"default_c"`
	MaxGapDays int       `json:"max_gap_days"`
	Readings   []Reading `json:"readings"`
}

type Reading struct {
	Date         Date    `json:"date"`
	TemperatureC float64 `json:"temperature_c"`
}

// Parse decodes an hjson document. The hjson tree is bridged through JSON so
// the strict field mapping above applies.
func Parse(data []byte) (Document, error) {
	var raw interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("parse hjson: %w", err)
	}
	bridged, err := json.Marshal(raw)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(bridged, &doc); err != nil {
		return Document{}, fmt.Errorf("decode model document: %w", err)
	}
	return doc, nil
}

// LoadFile reads and parses a model parameter file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Parse(data)
}

// InstallReport maps installed entity names to their assigned IDs and
// collects non-blocking rule warnings raised during installation.
type InstallReport struct {
	GrowthModelIDs    map[string]string
	FeedModelIDs      map[string]string
	MortalityModelIDs map[string]string
	ProfileIDs        map[string]string
	StageTableSet     bool
	Warnings          []domain.Violation
}

// Install pushes the document through the service. The stage table goes
// first so stage-dependent rules see it when the models commit. Installation
// stops at the first blocked entity.
func (d Document) Install(ctx context.Context, svc *core.Service) (InstallReport, error) {
	report := InstallReport{
		GrowthModelIDs:    make(map[string]string),
		FeedModelIDs:      make(map[string]string),
		MortalityModelIDs: make(map[string]string),
		ProfileIDs:        make(map[string]string),
	}

	if d.StageTable != nil {
		_, res, err := svc.SetStageTable(ctx, d.StageTable.toDomain())
		report.Warnings = append(report.Warnings, res.Violations...)
		if err != nil {
			return report, fmt.Errorf("install stage table: %w", err)
		}
		report.StageTableSet = true
	}
	for _, p := range d.TemperatureProfiles {
		stored, res, err := svc.LoadTemperatureProfile(ctx, p.toDomain())
		report.Warnings = append(report.Warnings, res.Violations...)
		if err != nil {
			return report, fmt.Errorf("install temperature profile %s: %w", p.Name, err)
		}
		report.ProfileIDs[p.Name] = stored.ID
	}
	for _, gm := range d.GrowthModels {
		created, res, err := svc.CreateGrowthModel(ctx, gm.toDomain())
		report.Warnings = append(report.Warnings, res.Violations...)
		if err != nil {
			return report, fmt.Errorf("install growth model %s: %w", gm.Name, err)
		}
		report.GrowthModelIDs[gm.Name] = created.ID
	}
	for _, fm := range d.FeedModels {
		created, res, err := svc.CreateFeedModel(ctx, fm.toDomain())
		report.Warnings = append(report.Warnings, res.Violations...)
		if err != nil {
			return report, fmt.Errorf("install feed model %s: %w", fm.Name, err)
		}
		report.FeedModelIDs[fm.Name] = created.ID
	}
	for _, mm := range d.MortalityModels {
		created, res, err := svc.CreateMortalityModel(ctx, mm.toDomain())
		report.Warnings = append(report.Warnings, res.Violations...)
		if err != nil {
			return report, fmt.Errorf("install mortality model %s: %w", mm.Name, err)
		}
		report.MortalityModelIDs[mm.Name] = created.ID
	}
	return report, nil
}

func (m GrowthModel) toDomain() domain.GrowthModel {
	overrides := make([]domain.StageGrowthOverride, 0, len(m.StageOverrides))
	for _, o := range m.StageOverrides {
		overrides = append(overrides, domain.StageGrowthOverride{
			Stage:               o.Stage,
			Coefficient:         o.Coefficient,
			TemperatureExponent: o.TemperatureExponent,
			WeightExponent:      o.WeightExponent,
		})
	}
	return domain.GrowthModel{
		Name:                m.Name,
		Coefficient:         m.Coefficient,
		TemperatureExponent: m.TemperatureExponent,
		WeightExponent:      m.WeightExponent,
		StageOverrides:      overrides,
	}
}

func (m FeedModel) toDomain() domain.FeedConversionModel {
	entries := make([]domain.FeedConversionEntry, 0, len(m.Entries))
	for _, e := range m.Entries {
		bands := make([]domain.WeightBand, 0, len(e.Bands))
		for _, b := range e.Bands {
			bands = append(bands, domain.WeightBand{MinWeightG: b.MinWeightG, MaxWeightG: b.MaxWeightG, Ratio: b.Ratio})
		}
		entries = append(entries, domain.FeedConversionEntry{Stage: e.Stage, Ratio: e.Ratio, Bands: bands})
	}
	return domain.FeedConversionModel{Name: m.Name, Entries: entries}
}

func (m MortalityModel) toDomain() domain.MortalityModel {
	return domain.MortalityModel{Name: m.Name, Rate: m.Rate, Frequency: domain.RateFrequency(m.Frequency)}
}

func (t StageTable) toDomain() domain.StageTable {
	stages := make([]domain.StageDefinition, 0, len(t.Stages))
	for _, s := range t.Stages {
		stages = append(stages, domain.StageDefinition{
			Name:        s.Name,
			MinWeightG:  s.MinWeightG,
			MaxWeightG:  s.MaxWeightG,
			MaxDays:     s.MaxDays,
			ContainerID: s.ContainerID,
		})
	}
	return domain.StageTable{Stages: stages}
}

func (p TemperatureProfile) toDomain() domain.TemperatureProfile {
	readings := make([]domain.TemperatureReading, 0, len(p.Readings))
	for _, r := range p.Readings {
		readings = append(readings, domain.TemperatureReading{Date: r.Date.Time, TemperatureC: r.TemperatureC})
	}
	return domain.TemperatureProfile{
		Name:       p.Name,
		Location:   p.Location,
		DefaultC:   p.DefaultC,
		MaxGapDays: p.MaxGapDays,
		Readings:   readings,
	}
}

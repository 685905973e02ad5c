package core

import (
	"sort"
	"time"

	"growthcore/pkg/domain"
)

// defaultMaxGapDays bounds interpolation when a profile does not configure
// its own gap limit.
const defaultMaxGapDays = 14

// Temperature is a resolved value together with the source that produced it.
type Temperature struct {
	Celsius float64
	Source  string
}

// TemperatureSource is one step in the resolution precedence chain. A source
// either produces a temperature for the date or passes to the next step.
type TemperatureSource interface {
	Name() string
	Resolve(profile domain.TemperatureProfile, date time.Time) (float64, bool)
}

// TemperatureResolver resolves the best-available temperature for a date by
// walking an ordered chain of sources. New sources (e.g. live sensor feeds)
// slot into the chain without restructuring the engines.
type TemperatureResolver struct {
	sources []TemperatureSource
}

// NewTemperatureResolver builds a resolver with the standard precedence:
// exact measured reading, bounded-gap linear interpolation, profile default.
func NewTemperatureResolver(extra ...TemperatureSource) *TemperatureResolver {
	sources := append([]TemperatureSource{}, extra...)
	sources = append(sources, exactReadingSource{}, interpolationSource{}, profileDefaultSource{})
	return &TemperatureResolver{sources: sources}
}

// Resolve returns the temperature for the date. A nil profile is the only
// condition that fails: an existing-but-empty profile falls through to its
// configured default.
func (r *TemperatureResolver) Resolve(profile *domain.TemperatureProfile, date time.Time) (Temperature, error) {
	if profile == nil {
		return Temperature{}, domain.DataUnavailableError{Date: date}
	}
	day := domain.DayOf(date)
	for _, src := range r.sources {
		if c, ok := src.Resolve(*profile, day); ok {
			return Temperature{Celsius: c, Source: src.Name()}, nil
		}
	}
	// The default source always resolves; reaching here means an empty chain.
	return Temperature{Celsius: profile.DefaultC, Source: "default"}, nil
}

type exactReadingSource struct{}

func (exactReadingSource) Name() string { return "measured" }

func (exactReadingSource) Resolve(profile domain.TemperatureProfile, day time.Time) (float64, bool) {
	for _, r := range profile.Readings {
		if domain.DayOf(r.Date).Equal(day) {
			return r.TemperatureC, true
		}
	}
	return 0, false
}

type interpolationSource struct{}

func (interpolationSource) Name() string { return "interpolated" }

func (interpolationSource) Resolve(profile domain.TemperatureProfile, day time.Time) (float64, bool) {
	readings := sortedReadings(profile.Readings)
	var prior, next *domain.TemperatureReading
	for i := range readings {
		d := domain.DayOf(readings[i].Date)
		switch {
		case d.Before(day):
			prior = &readings[i]
		case d.After(day):
			next = &readings[i]
		}
		if next != nil {
			break
		}
	}
	if prior == nil || next == nil {
		return 0, false
	}
	maxGap := profile.MaxGapDays
	if maxGap <= 0 {
		maxGap = defaultMaxGapDays
	}
	gap := daysBetween(prior.Date, next.Date)
	if gap > maxGap {
		return 0, false
	}
	elapsed := daysBetween(prior.Date, day)
	fraction := float64(elapsed) / float64(gap)
	return prior.TemperatureC + (next.TemperatureC-prior.TemperatureC)*fraction, true
}

type profileDefaultSource struct{}

func (profileDefaultSource) Name() string { return "default" }

func (profileDefaultSource) Resolve(profile domain.TemperatureProfile, _ time.Time) (float64, bool) {
	return profile.DefaultC, true
}

func sortedReadings(readings []domain.TemperatureReading) []domain.TemperatureReading {
	out := append([]domain.TemperatureReading(nil), readings...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func daysBetween(from, to time.Time) int {
	return int(domain.DayOf(to).Sub(domain.DayOf(from)) / (24 * time.Hour))
}

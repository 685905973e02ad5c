package modelfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	hjson "github.com/hjson/hjson-go"

	"growthcore/internal/core"
	"growthcore/pkg/domain"
)

// Scenario describes a projection run request in file form. Model references
// may be entity IDs or the names assigned in a model document.
type Scenario struct {
	Label          string           `json:"label"`
	ScopeID        string           `json:"scope_id"`
	HorizonDays    int              `json:"horizon_days"`
	Start          ScenarioStart    `json:"start"`
	GrowthModel    string           `json:"growth_model"`
	FeedModel      string           `json:"feed_model"`
	MortalityModel string           `json:"mortality_model"`
	Profile        string           `json:"profile"`
	Changes        []ScenarioChange `json:"changes"`
}

// ScenarioStart seeds the simulation either from a slot's latest assimilated
// day (from_slot) or from explicit values.
type ScenarioStart struct {
	FromSlot   string  `json:"from_slot"`
	Date       Date    `json:"date"`
	WeightG    float64 `json:"weight_g"`
	Population int     `json:"population"`
	Stage      string  `json:"stage"`
}

// ScenarioChange swaps one or more models at a day offset into the run.
type ScenarioChange struct {
	DayOffset      int    `json:"day_offset"`
	GrowthModel    string `json:"growth_model"`
	FeedModel      string `json:"feed_model"`
	MortalityModel string `json:"mortality_model"`
}

// ParseScenario decodes an hjson scenario document.
func ParseScenario(data []byte) (Scenario, error) {
	var raw interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return Scenario{}, fmt.Errorf("parse hjson: %w", err)
	}
	bridged, err := json.Marshal(raw)
	if err != nil {
		return Scenario{}, err
	}
	var sc Scenario
	if err := json.Unmarshal(bridged, &sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	return sc, nil
}

// LoadScenarioFile reads and parses a scenario file.
func LoadScenarioFile(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return ParseScenario(data)
}

// Resolve turns the scenario into a projection request, resolving every
// model reference against the store by ID first and name second.
func (sc Scenario) Resolve(ctx context.Context, store domain.PersistentStore) (core.ProjectionRequest, error) {
	req := core.ProjectionRequest{
		Label:       sc.Label,
		ScopeID:     sc.ScopeID,
		HorizonDays: sc.HorizonDays,
	}
	if sc.Start.FromSlot != "" {
		from := sc.Start.FromSlot
		req.Start = domain.StartCondition{FromSlotID: &from}
	} else {
		req.Start = domain.StartCondition{
			Date:       sc.Start.Date.Time,
			WeightG:    sc.Start.WeightG,
			Population: sc.Start.Population,
			Stage:      sc.Start.Stage,
		}
	}

	err := store.View(ctx, func(view domain.TransactionView) error {
		growth, err := findGrowthModel(view, sc.GrowthModel)
		if err != nil {
			return err
		}
		feed, err := findFeedModel(view, sc.FeedModel)
		if err != nil {
			return err
		}
		mortality, err := findMortalityModel(view, sc.MortalityModel)
		if err != nil {
			return err
		}
		profile, err := findProfile(view, sc.Profile)
		if err != nil {
			return err
		}
		req.GrowthModelID = growth.ID
		req.FeedModelID = feed.ID
		req.MortalityModelID = mortality.ID
		req.ProfileID = profile.ID

		for _, change := range sc.Changes {
			cc := domain.ConfigChange{DayOffset: change.DayOffset}
			if change.GrowthModel != "" {
				m, err := findGrowthModel(view, change.GrowthModel)
				if err != nil {
					return err
				}
				cc.Growth = &m
			}
			if change.FeedModel != "" {
				m, err := findFeedModel(view, change.FeedModel)
				if err != nil {
					return err
				}
				cc.Feed = &m
			}
			if change.MortalityModel != "" {
				m, err := findMortalityModel(view, change.MortalityModel)
				if err != nil {
					return err
				}
				cc.Mortality = &m
			}
			req.Changes = append(req.Changes, cc)
		}
		return nil
	})
	if err != nil {
		return core.ProjectionRequest{}, err
	}
	return req, nil
}

func findGrowthModel(view domain.TransactionView, ref string) (domain.GrowthModel, error) {
	if m, ok := view.FindGrowthModel(ref); ok {
		return m, nil
	}
	for _, m := range view.ListGrowthModels() {
		if m.Name == ref {
			return m, nil
		}
	}
	return domain.GrowthModel{}, fmt.Errorf("growth model %q not found by id or name", ref)
}

func findFeedModel(view domain.TransactionView, ref string) (domain.FeedConversionModel, error) {
	if m, ok := view.FindFeedModel(ref); ok {
		return m, nil
	}
	for _, m := range view.ListFeedModels() {
		if m.Name == ref {
			return m, nil
		}
	}
	return domain.FeedConversionModel{}, fmt.Errorf("feed model %q not found by id or name", ref)
}

func findMortalityModel(view domain.TransactionView, ref string) (domain.MortalityModel, error) {
	if m, ok := view.FindMortalityModel(ref); ok {
		return m, nil
	}
	for _, m := range view.ListMortalityModels() {
		if m.Name == ref {
			return m, nil
		}
	}
	return domain.MortalityModel{}, fmt.Errorf("mortality model %q not found by id or name", ref)
}

func findProfile(view domain.TransactionView, ref string) (domain.TemperatureProfile, error) {
	if p, ok := view.FindTemperatureProfile(ref); ok {
		return p, nil
	}
	for _, p := range view.ListTemperatureProfiles() {
		if p.Name == ref {
			return p, nil
		}
	}
	return domain.TemperatureProfile{}, fmt.Errorf("temperature profile %q not found by id or name", ref)
}

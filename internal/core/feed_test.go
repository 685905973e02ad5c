package core

import (
	"errors"
	"testing"

	"growthcore/pkg/domain"
)

func feedModelFixture() domain.FeedConversionModel {
	return domain.FeedConversionModel{
		Base: domain.Base{ID: "fcr-1"},
		Entries: []domain.FeedConversionEntry{
			{Stage: "fry", Ratio: 0},
			{Stage: "parr", Ratio: 1.1, Bands: []domain.WeightBand{
				{MinWeightG: 0, MaxWeightG: 10, Ratio: 0.9},
				{MinWeightG: 10, MaxWeightG: 50, Ratio: 1.2},
			}},
			{Stage: "smolt", Ratio: 1.3},
		},
	}
}

func TestEffectiveRatioPrefersWeightBand(t *testing.T) {
	model := feedModelFixture()

	ratio, ok := EffectiveRatio(model, "parr", 5)
	if !ok || ratio != 0.9 {
		t.Fatalf("expected low band ratio 0.9, got %g ok=%v", ratio, ok)
	}
	ratio, ok = EffectiveRatio(model, "parr", 10)
	if !ok || ratio != 1.2 {
		t.Fatalf("expected band boundary to select upper band, got %g", ratio)
	}
	ratio, ok = EffectiveRatio(model, "parr", 60)
	if !ok || ratio != 1.1 {
		t.Fatalf("expected fallback to stage ratio outside bands, got %g", ratio)
	}
	ratio, ok = EffectiveRatio(model, "smolt", 60)
	if !ok || ratio != 1.3 {
		t.Fatalf("expected stage ratio when no bands configured, got %g", ratio)
	}
	if _, ok := EffectiveRatio(model, "broodstock", 500); ok {
		t.Fatalf("expected unknown stage to miss")
	}
}

func TestExpectedFeedScalesWithGain(t *testing.T) {
	model := feedModelFixture()

	feed, err := ExpectedFeed(model, "smolt", 60, 100)
	if err != nil {
		t.Fatalf("expected feed: %v", err)
	}
	if feed != 130 {
		t.Fatalf("expected 1.3*100 = 130, got %g", feed)
	}
}

func TestExpectedFeedZeroRatioStage(t *testing.T) {
	model := feedModelFixture()

	feed, err := ExpectedFeed(model, "fry", 0.2, 10)
	if err != nil {
		t.Fatalf("expected feed: %v", err)
	}
	if feed != 0 {
		t.Fatalf("expected pre-feeding stage to need no feed, got %g", feed)
	}
}

func TestExpectedFeedNoGainNeedsNoFeed(t *testing.T) {
	model := feedModelFixture()

	feed, err := ExpectedFeed(model, "smolt", 60, -5)
	if err != nil {
		t.Fatalf("expected feed: %v", err)
	}
	if feed != 0 {
		t.Fatalf("expected zero feed for negative gain, got %g", feed)
	}
}

func TestExpectedFeedUnknownStageFails(t *testing.T) {
	model := feedModelFixture()

	_, err := ExpectedFeed(model, "broodstock", 500, 10)
	var invalid domain.InvalidModelConfigurationError
	if !errors.As(err, &invalid) || invalid.Entity != domain.EntityFeedModel {
		t.Fatalf("expected invalid model configuration error, got %v", err)
	}
}

func TestGainFromFeedInvertsExpectedFeed(t *testing.T) {
	model := feedModelFixture()

	gain, err := GainFromFeed(model, "smolt", 60, 130)
	if err != nil {
		t.Fatalf("gain from feed: %v", err)
	}
	if gain != 100 {
		t.Fatalf("expected 130/1.3 = 100, got %g", gain)
	}

	gain, err = GainFromFeed(model, "fry", 0.2, 10)
	if err != nil || gain != 0 {
		t.Fatalf("expected zero gain for zero-ratio stage, got %g err %v", gain, err)
	}
}

package core

import (
	"growthcore/pkg/domain"
)

// EffectiveRatio returns the feed conversion ratio for a stage at a given
// weight, preferring a matching weight band over the stage-level ratio.
func EffectiveRatio(model domain.FeedConversionModel, stage string, weightG float64) (float64, bool) {
	entry, ok := model.EntryFor(stage)
	if !ok {
		return 0, false
	}
	for _, band := range entry.Bands {
		if weightG >= band.MinWeightG && weightG < band.MaxWeightG {
			return band.Ratio, true
		}
	}
	return entry.Ratio, true
}

// ExpectedFeed derives the feed mass implied by a biomass gain. A zero ratio
// (pre-feeding stage) yields zero expected feed; negative or zero gain needs
// no feed.
func ExpectedFeed(model domain.FeedConversionModel, stage string, weightG, gainBiomassG float64) (float64, error) {
	ratio, ok := EffectiveRatio(model, stage, weightG)
	if !ok {
		return 0, domain.InvalidModelConfigurationError{
			Entity: domain.EntityFeedModel,
			ID:     model.ID,
			Reason: "no feed conversion entry for stage " + stage,
		}
	}
	if gainBiomassG <= 0 || ratio == 0 {
		return 0, nil
	}
	return ratio * gainBiomassG, nil
}

// GainFromFeed back-calculates biomass gain from an observed feed mass.
func GainFromFeed(model domain.FeedConversionModel, stage string, weightG, feedMassG float64) (float64, error) {
	ratio, ok := EffectiveRatio(model, stage, weightG)
	if !ok {
		return 0, domain.InvalidModelConfigurationError{
			Entity: domain.EntityFeedModel,
			ID:     model.ID,
			Reason: "no feed conversion entry for stage " + stage,
		}
	}
	if ratio == 0 || feedMassG <= 0 {
		return 0, nil
	}
	return feedMassG / ratio, nil
}

// README: Fare predictor payload shared by the model-server and Gemini backends.
package ai

import (
	"strings"

	"ridedispatch/internal/modules/pricing"
)

// FeaturePayload is the wire form of pricing.Features. Categorical values are
// capitalised the way the price model was trained ("Sedan", "Rainy").
type FeaturePayload struct {
	DistanceKm     float64 `json:"distance_km"`
	Hour           int     `json:"hour"`
	DayOfWeek      int     `json:"day_of_week"`
	Demand         int64   `json:"demand"`
	AvailableTaxis int     `json:"available_taxis"`
	WeatherEncoded string  `json:"weather_encoded"`
	BrandLoyalty   float64 `json:"brand_loyalty_score"`
	CarTypeEncoded string  `json:"car_type_encoded"`
}

// PriceResult is what both backends are expected to answer with.
type PriceResult struct {
	Price *float64 `json:"price"`
}

func NewFeaturePayload(f pricing.Features) FeaturePayload {
	return FeaturePayload{
		DistanceKm:     f.DistanceKm,
		Hour:           f.Hour,
		DayOfWeek:      int(f.DayOfWeek),
		Demand:         f.Demand,
		AvailableTaxis: f.AvailableUnits,
		WeatherEncoded: capitalize(string(f.Weather)),
		BrandLoyalty:   f.Loyalty,
		CarTypeEncoded: capitalize(string(f.Class)),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

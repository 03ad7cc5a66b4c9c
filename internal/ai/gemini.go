package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ridedispatch/internal/modules/pricing"
)

// GeminiPredictor asks a Gemini model for a fare in rupees given the trip
// features.
type GeminiPredictor struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiPredictor initializes a Gemini client for modelName.
func NewGeminiPredictor(ctx context.Context, apiKey, modelName string) (*GeminiPredictor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Pricing should be repeatable for the same inputs.
	model.SetTemperature(0)

	return &GeminiPredictor{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiPredictor) Close() {
	p.client.Close()
}

func (p *GeminiPredictor) Predict(ctx context.Context, f pricing.Features) (float64, error) {
	prompt, err := buildFarePrompt(f)
	if err != nil {
		return 0, err
	}
	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return 0, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return parsePrice(responseText.String())
}

func buildFarePrompt(f pricing.Features) (string, error) {
	features, err := json.Marshal(NewFeaturePayload(f))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Role: You estimate taxi fares in Indian rupees for a city ride-hailing service.
Reference tariff (before any surge): Mini 40 + 12/km, Sedan 50 + 15/km, Suv 70 + 20/km.

Adjust for:
- demand (active trips, 0-200) and available_taxis (supply),
- hour (0-23) and day_of_week (0 = Sunday),
- weather_encoded (Clear, Cloudy, Rainy, Snowy, Stormy, Windy, Foggy),
- brand_loyalty_score (0-10, higher means a more loyal rider).

Trip features:
%s

Answer with JSON only: {"price": <positive number, rupees, two decimals>}
`, features), nil
}

// parsePrice extracts the price field, tolerating markdown code fences.
func parsePrice(raw string) (float64, error) {
	clean := cleanJSONString(raw)
	var out PriceResult
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return 0, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	if out.Price == nil {
		return 0, fmt.Errorf("gemini response without price: %s", clean)
	}
	return *out.Price, nil
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}

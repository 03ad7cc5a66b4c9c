// README: Fare predictor that posts features to an external price-model server.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ridedispatch/internal/modules/pricing"
)

type HTTPPredictor struct {
	endpoint string
	client   *http.Client
}

func NewHTTPPredictor(endpoint string, timeout time.Duration) *HTTPPredictor {
	return &HTTPPredictor{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (p *HTTPPredictor) Predict(ctx context.Context, f pricing.Features) (float64, error) {
	body, err := json.Marshal(NewFeaturePayload(f))
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price model request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("price model status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out PriceResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode price model response: %w", err)
	}
	if out.Price == nil {
		return 0, fmt.Errorf("price model response without price")
	}
	return *out.Price, nil
}

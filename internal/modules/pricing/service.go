// README: Pricing service: predictive path bounded by a timeout, deterministic formula as fallback.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/types"
	"ridedispatch/internal/weather"
)

// Predictor returns a raw model price that is scaled before use.
type Predictor interface {
	Predict(ctx context.Context, f Features) (float64, error)
}

type WeatherProvider interface {
	CurrentCondition(ctx context.Context, p types.Point) (weather.Condition, error)
}

const (
	maxDemandFeature = 200
	maxLoyalty       = 10.0
)

type Config struct {
	Currency        string
	PredictTimeout  time.Duration
	PredictionScale float64
	DefaultLoyalty  float64
}

type Service struct {
	rates     RateSource
	predictor Predictor
	weather   WeatherProvider
	cfg       Config
	now       func() time.Time
	log       logger.Logger
	metrics   *metrics.Recorder
}

type Option func(*Service)

func WithPredictor(p Predictor) Option       { return func(s *Service) { s.predictor = p } }
func WithWeather(w WeatherProvider) Option   { return func(s *Service) { s.weather = w } }
func WithRates(r RateSource) Option          { return func(s *Service) { s.rates = r } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }
func WithLogger(l logger.Logger) Option      { return func(s *Service) { s.log = logger.OrNop(l) } }
func WithMetrics(m *metrics.Recorder) Option { return func(s *Service) { s.metrics = m } }

func NewService(cfg Config, opts ...Option) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.PredictTimeout <= 0 {
		cfg.PredictTimeout = 3 * time.Second
	}
	if cfg.PredictionScale <= 0 {
		cfg.PredictionScale = 400
	}
	if cfg.DefaultLoyalty == 0 {
		cfg.DefaultLoyalty = 5.0
	}
	s := &Service{
		rates: StaticRates(DefaultRates),
		cfg:   cfg,
		now:   time.Now,
		log:   logger.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Estimate never fails: any predictor or weather problem falls back to the
// formula.
func (s *Service) Estimate(ctx context.Context, req Request) Quote {
	mult := DemandMultiplier(req.Demand)
	if s.predictor != nil {
		price, cond, err := s.predict(ctx, req)
		if err == nil {
			s.metrics.FareQuote(string(SourcePredicted))
			return Quote{
				Fare:       types.Money{Amount: price, Currency: s.cfg.Currency},
				Source:     SourcePredicted,
				Multiplier: mult,
				Weather:    cond,
			}
		}
		s.metrics.Fallback("predictor")
		s.log.Warnf("fare prediction unavailable, using formula: %v", err)
	}
	s.metrics.FareQuote(string(SourceFormula))
	return Quote{
		Fare:       types.Money{Amount: FormulaFare(s.rate(ctx, req.Class), req.DistanceKm, req.Demand), Currency: s.cfg.Currency},
		Source:     SourceFormula,
		Multiplier: mult,
	}
}

// Formula prices req with the deterministic formula only.
func (s *Service) Formula(ctx context.Context, req Request) types.Money {
	return types.Money{Amount: FormulaFare(s.rate(ctx, req.Class), req.DistanceKm, req.Demand), Currency: s.cfg.Currency}
}

func (s *Service) rate(ctx context.Context, class fleet.Class) Rate {
	if r, err := s.rates.GetRate(ctx, class); err == nil {
		return r
	} else if !errors.Is(err, ErrRateNotFound) {
		s.log.Warnf("rate lookup for %q failed, using defaults: %v", class, err)
	}
	if r, ok := DefaultRates[class]; ok {
		return r
	}
	return DefaultRates[FallbackClass]
}

// BuildFeatures clamps request values into the ranges the model was trained on.
func (s *Service) BuildFeatures(req Request, cond weather.Condition) Features {
	at := s.now()
	loyalty := s.cfg.DefaultLoyalty
	if req.Loyalty != nil {
		loyalty = *req.Loyalty
	}
	return Features{
		DistanceKm:     req.DistanceKm,
		Hour:           at.Hour(),
		DayOfWeek:      at.Weekday(),
		Demand:         min(max(req.Demand, 0), maxDemandFeature),
		AvailableUnits: max(req.AvailableUnits, 0),
		Weather:        cond,
		Loyalty:        math.Min(math.Max(loyalty, 0), maxLoyalty),
		Class:          req.Class,
	}
}

type prediction struct {
	price float64
	cond  weather.Condition
	err   error
}

// predict resolves weather then calls the predictor, all within
// PredictTimeout. A predictor that ignores ctx is abandoned at the deadline.
func (s *Service) predict(ctx context.Context, req Request) (float64, weather.Condition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PredictTimeout)
	defer cancel()

	done := make(chan prediction, 1)
	go func() {
		cond := weather.Clear
		if s.weather != nil {
			c, err := s.weather.CurrentCondition(ctx, req.Pickup)
			if err != nil {
				s.metrics.Fallback("weather")
				done <- prediction{err: fmt.Errorf("weather: %w", err)}
				return
			}
			cond = c
		}
		raw, err := s.predictor.Predict(ctx, s.BuildFeatures(req, cond))
		done <- prediction{price: raw, cond: cond, err: err}
	}()

	var p prediction
	select {
	case p = <-done:
	case <-ctx.Done():
		return 0, "", fmt.Errorf("%w: prediction timed out: %v", types.ErrUpstreamUnavailable, ctx.Err())
	}
	if p.err != nil {
		return 0, "", fmt.Errorf("%w: %v", types.ErrUpstreamUnavailable, p.err)
	}
	if math.IsNaN(p.price) || math.IsInf(p.price, 0) || p.price <= 0 {
		return 0, "", fmt.Errorf("%w: unusable prediction %v", types.ErrUpstreamUnavailable, p.price)
	}
	fare := types.RoundCents(p.price * s.cfg.PredictionScale)
	if fare <= 0 {
		return 0, "", fmt.Errorf("%w: prediction rounds to zero", types.ErrUpstreamUnavailable)
	}
	return fare, p.cond, nil
}

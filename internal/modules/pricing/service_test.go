// README: Pricing tests for the formula, demand steps and predictor fallback chain.
package pricing

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/metrics"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/types"
	"ridedispatch/internal/weather"
)

type stubPredictor struct {
	mu    sync.Mutex
	price float64
	err   error
	block bool
	got   []Features
}

func (p *stubPredictor) Predict(ctx context.Context, f Features) (float64, error) {
	p.mu.Lock()
	p.got = append(p.got, f)
	p.mu.Unlock()
	if p.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return p.price, p.err
}

func (p *stubPredictor) calls() []Features {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Features(nil), p.got...)
}

type stubWeather struct {
	cond weather.Condition
	err  error
}

func (w stubWeather) CurrentCondition(context.Context, types.Point) (weather.Condition, error) {
	return w.cond, w.err
}

// stubbornPredictor ignores its context entirely.
type stubbornPredictor struct{ release chan struct{} }

func (p stubbornPredictor) Predict(context.Context, Features) (float64, error) {
	<-p.release
	return 1, nil
}

func TestDemandMultiplier(t *testing.T) {
	tests := []struct {
		demand int64
		want   float64
	}{
		{0, 1.0}, {5, 1.0}, {6, 1.5}, {10, 1.5}, {11, 2.0}, {500, 2.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DemandMultiplier(tt.demand), "demand %d", tt.demand)
	}
}

func TestFormulaFare(t *testing.T) {
	tests := []struct {
		name   string
		class  fleet.Class
		km     float64
		demand int64
		want   float64
	}{
		{"mini base only", fleet.ClassMini, 0, 0, 40},
		{"sedan 2km", fleet.ClassSedan, 2, 0, 80},
		{"suv 3km mid demand", fleet.ClassSUV, 3, 7, 195},
		{"sedan surge", fleet.ClassSedan, 1, 11, 130},
		{"rounded", fleet.ClassMini, 1.2345, 0, 54.81},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormulaFare(DefaultRates[tt.class], tt.km, tt.demand))
		})
	}
}

func TestFormulaMonotonic(t *testing.T) {
	for _, class := range fleet.Classes {
		r := DefaultRates[class]
		prev := 0.0
		for km := 0.0; km <= 30; km += 0.37 {
			f := FormulaFare(r, km, 0)
			assert.GreaterOrEqual(t, f, prev)
			prev = f
		}
		assert.GreaterOrEqual(t, FormulaFare(r, 4, 11), FormulaFare(r, 4, 5))
		assert.GreaterOrEqual(t, FormulaFare(r, 4, 6), FormulaFare(r, 4, 5))
		assert.GreaterOrEqual(t, FormulaFare(r, 4, 11), FormulaFare(r, 4, 10))
	}
}

func TestEstimateWithoutPredictorUsesFormula(t *testing.T) {
	svc := NewService(Config{})
	q := svc.Estimate(context.Background(), Request{DistanceKm: 2, Class: fleet.ClassSedan})
	assert.Equal(t, SourceFormula, q.Source)
	assert.Equal(t, 80.0, q.Fare.Amount)
	assert.Equal(t, "INR", q.Fare.Currency)
	assert.Equal(t, 1.0, q.Multiplier)
}

func TestEstimateUnknownClassUsesSedanRates(t *testing.T) {
	svc := NewService(Config{})
	q := svc.Estimate(context.Background(), Request{DistanceKm: 2, Class: "limo"})
	assert.Equal(t, 80.0, q.Fare.Amount)
}

func TestEstimatePredictedIsScaledAndRounded(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	p := &stubPredictor{price: 0.123456}
	svc := NewService(Config{PredictionScale: 400},
		WithPredictor(p),
		WithWeather(stubWeather{cond: weather.Rainy}),
		WithMetrics(m))

	q := svc.Estimate(context.Background(), Request{DistanceKm: 3, Class: fleet.ClassSUV, Demand: 12})
	assert.Equal(t, SourcePredicted, q.Source)
	assert.Equal(t, 49.38, q.Fare.Amount)
	assert.Equal(t, weather.Rainy, q.Weather)
	assert.Equal(t, 2.0, q.Multiplier)
	require.Len(t, p.calls(), 1)
	assert.Equal(t, weather.Rainy, p.calls()[0].Weather)
}

func TestEstimateFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		pred    *stubPredictor
		weather WeatherProvider
	}{
		{"predictor error", &stubPredictor{err: errors.New("model down")}, nil},
		{"zero", &stubPredictor{price: 0}, nil},
		{"negative", &stubPredictor{price: -3}, nil},
		{"nan", &stubPredictor{price: math.NaN()}, nil},
		{"inf", &stubPredictor{price: math.Inf(1)}, nil},
		{"rounds to zero", &stubPredictor{price: 1e-9}, nil},
		{"weather failure", &stubPredictor{price: 1}, stubWeather{err: types.ErrUpstreamUnavailable}},
		{"timeout", &stubPredictor{block: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithPredictor(tt.pred)}
			if tt.weather != nil {
				opts = append(opts, WithWeather(tt.weather))
			}
			svc := NewService(Config{PredictTimeout: 20 * time.Millisecond}, opts...)
			q := svc.Estimate(context.Background(), Request{DistanceKm: 2, Class: fleet.ClassSedan})
			assert.Equal(t, SourceFormula, q.Source)
			assert.Equal(t, 80.0, q.Fare.Amount)
		})
	}
}

func TestEstimateWeatherFailureSkipsPredictor(t *testing.T) {
	p := &stubPredictor{price: 1}
	svc := NewService(Config{}, WithPredictor(p), WithWeather(stubWeather{err: errors.New("boom")}))
	q := svc.Estimate(context.Background(), Request{DistanceKm: 1, Class: fleet.ClassMini})
	assert.Equal(t, SourceFormula, q.Source)
	assert.Empty(t, p.calls())
}

func TestEstimateAbandonsPredictorIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := NewService(Config{PredictTimeout: 20 * time.Millisecond}, WithPredictor(stubbornPredictor{release: release}))

	start := time.Now()
	q := svc.Estimate(context.Background(), Request{DistanceKm: 1, Class: fleet.ClassMini})
	assert.Equal(t, SourceFormula, q.Source)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBuildFeaturesClamps(t *testing.T) {
	at := time.Date(2026, 3, 8, 17, 45, 0, 0, time.Local) // Sunday
	svc := NewService(Config{DefaultLoyalty: 5}, WithClock(func() time.Time { return at }))

	f := svc.BuildFeatures(Request{DistanceKm: 4.2, Demand: 999, AvailableUnits: -3, Class: fleet.ClassSUV}, weather.Foggy)
	assert.Equal(t, 17, f.Hour)
	assert.Equal(t, time.Sunday, f.DayOfWeek)
	assert.Equal(t, int64(200), f.Demand)
	assert.Equal(t, 0, f.AvailableUnits)
	assert.Equal(t, 5.0, f.Loyalty)
	assert.Equal(t, weather.Foggy, f.Weather)

	high := 42.0
	f = svc.BuildFeatures(Request{Demand: -4, Loyalty: &high}, weather.Clear)
	assert.Equal(t, int64(0), f.Demand)
	assert.Equal(t, 10.0, f.Loyalty)

	low := -1.0
	f = svc.BuildFeatures(Request{Loyalty: &low}, weather.Clear)
	assert.Equal(t, 0.0, f.Loyalty)
}

type failingRates struct{}

func (failingRates) GetRate(context.Context, fleet.Class) (Rate, error) {
	return Rate{}, errors.New("db down")
}

func TestRateSourceFallsBackToDefaults(t *testing.T) {
	svc := NewService(Config{}, WithRates(failingRates{}))
	assert.Equal(t, 40.0, svc.Formula(context.Background(), Request{Class: fleet.ClassMini}).Amount)

	custom := StaticRates{fleet.ClassMini: {Class: fleet.ClassMini, BaseFare: 10, PerKm: 1}}
	svc = NewService(Config{}, WithRates(custom))
	assert.Equal(t, 12.0, svc.Formula(context.Background(), Request{Class: fleet.ClassMini, DistanceKm: 2}).Amount)
	assert.Equal(t, 50.0, svc.Formula(context.Background(), Request{Class: fleet.ClassSedan}).Amount)
}

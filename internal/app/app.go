// README: Composition root; builds stores, services and the HTTP server from Config and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/ai"
	"ridedispatch/internal/config"
	"ridedispatch/internal/eventbus"
	httptransport "ridedispatch/internal/http"
	"ridedispatch/internal/http/handlers"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/maps"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/modules/demand"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/movement"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/weather"
)

const (
	eventBuffer     = 64
	shutdownTimeout = 10 * time.Second
)

type App struct {
	cfg *config.Config
	log logger.Logger

	pool   *pgxpool.Pool
	rdb    *redis.Client
	gemini *ai.GeminiPredictor

	Units   fleet.Directory
	Rates   *pricing.Store
	Trips   *trip.Service
	Pricing *pricing.Service
	Metrics *metrics.Recorder

	sim      *movement.Simulator
	bus      *eventbus.Bus[movement.PositionEvent]
	statuses *eventbus.Bus[fleet.StatusEvent]
	mirror   *location.Mirror
	server   *httptransport.Server
}

// New wires every component. Resources opened before a failure are released.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, log: logger.OrNop(log)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		if a.Metrics, err = metrics.New(); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	var trips trip.Store
	switch cfg.Storage.Backend {
	case "postgres":
		if a.pool, err = infra.NewDB(ctx, cfg.DB.DSN); err != nil {
			return nil, err
		}
		a.Units = fleet.NewPostgresStore(a.pool)
		a.Rates = pricing.NewStore(a.pool)
		trips = trip.NewPostgresStore(a.pool)
	default:
		// An in-memory fleet starts with the demo units so the API is usable.
		a.Units = fleet.NewMemoryStore(fleet.DemoUnits()...)
		trips = trip.NewMemoryStore()
	}

	var counter demand.Counter = demand.NewMemoryCounter()
	if cfg.Demand.Backend == "redis" {
		if a.rdb, err = infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			return nil, err
		}
		counter = demand.NewRedisCounter(a.rdb, cfg.Demand.Key)
	}

	routes, err := a.buildRoutes()
	if err != nil {
		return nil, err
	}

	popts := []pricing.Option{
		pricing.WithLogger(a.log),
		pricing.WithMetrics(a.Metrics),
	}
	if a.Rates != nil {
		popts = append(popts, pricing.WithRates(a.Rates))
	}
	var reporter handlers.WeatherReporter
	if cfg.Weather.Enabled {
		wc := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.Timeout())
		reporter = wc
		popts = append(popts, pricing.WithWeather(wc))
	}
	switch cfg.Predictor.Backend {
	case "http":
		popts = append(popts, pricing.WithPredictor(ai.NewHTTPPredictor(cfg.Predictor.Endpoint, cfg.Pricing.PredictTimeout())))
	case "gemini":
		if a.gemini, err = ai.NewGeminiPredictor(ctx, cfg.Predictor.GeminiKey, cfg.Predictor.Model); err != nil {
			return nil, err
		}
		popts = append(popts, pricing.WithPredictor(a.gemini))
	}
	a.Pricing = pricing.NewService(pricing.Config{
		Currency:        cfg.Pricing.Currency,
		PredictTimeout:  cfg.Pricing.PredictTimeout(),
		PredictionScale: cfg.Pricing.PredictionScale,
		DefaultLoyalty:  cfg.Pricing.DefaultLoyalty,
	}, popts...)

	a.bus = eventbus.New[movement.PositionEvent](eventBuffer)
	a.statuses = eventbus.New[fleet.StatusEvent](eventBuffer)
	a.sim = movement.NewSimulator(movement.NewRegistry(),
		movement.WithEvents(a.bus),
		movement.WithLogger(a.log),
		movement.WithMetrics(a.Metrics),
	)

	a.Trips = trip.NewService(trip.Deps{
		Trips:         trips,
		Units:         a.Units,
		Matcher:       matching.NewService(a.Units),
		Pricing:       a.Pricing,
		Routes:        routes,
		Demand:        counter,
		Movement:      a.sim,
		StatusEvents:  a.statuses,
		Log:           a.log,
		Metrics:       a.Metrics,
		MatchAttempts: cfg.Matching.Attempts,
	})

	if cfg.Firebase.Enabled() {
		client, ferr := infra.NewFirebaseDatabase(ctx, cfg.Firebase.DatabaseURL, cfg.Firebase.CredentialsFile)
		if ferr != nil {
			return nil, ferr
		}
		a.mirror = location.NewMirror(location.NewRTDBWriter(client), cfg.Firebase.Path, a.log)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	a.server = httptransport.NewServer(httptransport.ServerDeps{
		Trips:       a.Trips,
		Units:       a.Units,
		Pricing:     a.Pricing,
		Demand:      counter,
		Routes:      routes,
		Weather:     reporter,
		Events:      a.bus,
		Statuses:    a.statuses,
		Metrics:     a.Metrics,
		MetricsPath: metricsPath,
		Log:         a.log,
	})
	return a, nil
}

func (a *App) buildRoutes() (*maps.Resilient, error) {
	if a.cfg.Maps.APIKey == "" {
		a.log.Infof("maps api key not set, distances use the straight-line approximation")
		return maps.NewResilient(nil, nil, a.cfg.Maps.Timeout(), a.cfg.Movement.AvgSpeedKmh, a.log, a.Metrics), nil
	}
	g, err := maps.NewGoogleService(a.cfg.Maps.APIKey)
	if err != nil {
		return nil, err
	}
	return maps.NewResilient(g, g, a.cfg.Maps.Timeout(), a.cfg.Movement.AvgSpeedKmh, a.log, a.Metrics), nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Routes()
}

// Seed loads the demo fleet and, with a rate table, the default fares.
func (a *App) Seed(ctx context.Context) (int, error) {
	if a.Rates != nil {
		for _, r := range pricing.DefaultRates {
			if err := a.Rates.UpsertRate(ctx, r); err != nil {
				return 0, fmt.Errorf("seed rate %s: %w", r.Class, err)
			}
		}
	}
	return fleet.Seed(ctx, a.Units)
}

// Run serves HTTP on cfg.HTTP.Addr until ctx is done, then drains in-flight
// requests and stops every movement task.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if a.mirror != nil {
		units, err := a.Units.List(ctx)
		if err == nil {
			if n, serr := a.mirror.Snapshot(ctx, units); serr != nil {
				a.log.Warnf("firebase snapshot: %v", serr)
			} else {
				a.log.Infof("firebase snapshot wrote %d units", n)
			}
		}
		go a.mirror.Run(ctx, a.bus.Subscribe())
	}

	srv := &http.Server{Handler: a.server.Routes(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("http listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Infof("shutting down")
	// Stop movement first so open SSE streams see no more events.
	a.sim.Shutdown()
	a.bus.Close()
	a.statuses.Close()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases external clients. It is safe after a partial New.
func (a *App) Close() {
	if a.sim != nil {
		a.sim.Shutdown()
	}
	if a.gemini != nil {
		a.gemini.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warnf("redis close: %v", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

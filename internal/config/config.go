// README: Config loader: optional YAML/JSON file, RIDE_* env overrides, then defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides. RIDE_PRICING__CURRENCY sets
// pricing.currency.
const EnvPrefix = "RIDE_"

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type StorageConfig struct {
	// Backend is memory or postgres.
	Backend string `json:"backend"`
}

type DBConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DemandConfig struct {
	// Backend is memory or redis.
	Backend string `json:"backend"`
	Key     string `json:"key"`
}

type MatchingConfig struct {
	// Attempts bounds how often Create re-matches after losing a unit claim.
	Attempts int `json:"attempts"`
}

type PricingConfig struct {
	Currency         string  `json:"currency"`
	PredictTimeoutMS int     `json:"predict_timeout_ms"`
	PredictionScale  float64 `json:"prediction_scale"`
	DefaultLoyalty   float64 `json:"default_loyalty"`
}

func (c PricingConfig) PredictTimeout() time.Duration {
	return time.Duration(c.PredictTimeoutMS) * time.Millisecond
}

type MovementConfig struct {
	AvgSpeedKmh float64 `json:"avg_speed_kmh"`
}

type MapsConfig struct {
	APIKey    string `json:"api_key"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (c MapsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type WeatherConfig struct {
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"base_url"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (c WeatherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type PredictorConfig struct {
	// Backend is none, http or gemini.
	Backend   string `json:"backend"`
	Endpoint  string `json:"endpoint"`
	GeminiKey string `json:"gemini_key"`
	Model     string `json:"model"`
}

type FirebaseConfig struct {
	DatabaseURL     string `json:"database_url"`
	CredentialsFile string `json:"credentials_file"`
	Path            string `json:"path"`
}

func (c FirebaseConfig) Enabled() bool { return c.DatabaseURL != "" }

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Storage   StorageConfig   `json:"storage"`
	DB        DBConfig        `json:"db"`
	Redis     RedisConfig     `json:"redis"`
	Demand    DemandConfig    `json:"demand"`
	Matching  MatchingConfig  `json:"matching"`
	Pricing   PricingConfig   `json:"pricing"`
	Movement  MovementConfig  `json:"movement"`
	Maps      MapsConfig      `json:"maps"`
	Weather   WeatherConfig   `json:"weather"`
	Predictor PredictorConfig `json:"predictor"`
	Firebase  FirebaseConfig  `json:"firebase"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// Load reads path when non-empty, applies RIDE_* environment overrides and
// returns a defaulted, validated Config.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Demand.Backend == "" {
		c.Demand.Backend = "memory"
	}
	if c.Demand.Key == "" {
		c.Demand.Key = "ride:demand:active_trips"
	}
	if c.Matching.Attempts <= 0 {
		c.Matching.Attempts = 3
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "INR"
	}
	if c.Pricing.PredictTimeoutMS <= 0 {
		c.Pricing.PredictTimeoutMS = 3000
	}
	if c.Pricing.DefaultLoyalty == 0 {
		c.Pricing.DefaultLoyalty = 5.0
	}
	if c.Predictor.Backend == "" {
		c.Predictor.Backend = "none"
	}
	if c.Predictor.Backend == "gemini" && c.Predictor.GeminiKey == "" {
		c.Predictor.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Predictor.Model == "" {
		c.Predictor.Model = "gemini-2.0-flash"
	}
	if c.Pricing.PredictionScale <= 0 {
		// The model server emits a normalised price; Gemini is asked for rupees.
		if c.Predictor.Backend == "gemini" {
			c.Pricing.PredictionScale = 1
		} else {
			c.Pricing.PredictionScale = 400
		}
	}
	if c.Movement.AvgSpeedKmh <= 0 {
		c.Movement.AvgSpeedKmh = 30
	}
	if c.Maps.APIKey == "" {
		c.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}
	if c.Maps.TimeoutMS <= 0 {
		c.Maps.TimeoutMS = 5000
	}
	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = "https://api.open-meteo.com/v1/forecast"
	}
	if c.Weather.TimeoutMS <= 0 {
		c.Weather.TimeoutMS = 5000
	}
	if c.Firebase.Path == "" {
		c.Firebase.Path = "unit_locations"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.Demand.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown demand.backend %q", c.Demand.Backend))
	}
	switch c.Predictor.Backend {
	case "none":
	case "http":
		if c.Predictor.Endpoint == "" {
			errs = append(errs, errors.New("predictor.endpoint is required for the http predictor"))
		}
	case "gemini":
		if c.Predictor.GeminiKey == "" {
			errs = append(errs, errors.New("predictor.gemini_key (or GEMINI_API_KEY) is required for the gemini predictor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown predictor.backend %q", c.Predictor.Backend))
	}
	if c.Pricing.DefaultLoyalty < 0 || c.Pricing.DefaultLoyalty > 10 {
		errs = append(errs, errors.New("pricing.default_loyalty must be within [0,10]"))
	}
	return errors.Join(errs...)
}

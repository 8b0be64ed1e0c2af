package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const envPrefix = "SHIELD_"

// AppConfig holds the server configuration, read from SHIELD_* variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	LogLevel      string `koanf:"log_level" validate:"required,oneof=trace debug info warn error"`
	LogSampleRate int    `koanf:"log_sample_rate" validate:"gte=1"`

	OTELEnabled     bool   `koanf:"otel_enabled"`
	OTELServiceName string `koanf:"otel_service_name"`

	// Port is the HTTP listen port.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// CatalogSource selects where the rule catalog lives.
	CatalogSource string `koanf:"catalog_source" validate:"required,oneof=memory postgres file"`
	DatabaseURL   string `koanf:"database_url" validate:"required_if=CatalogSource postgres"`
	CatalogFile   string `koanf:"catalog_file" validate:"required_if=CatalogSource file"`
	WatchCatalog  bool   `koanf:"watch_catalog"`
	SeedPresets   bool   `koanf:"seed_presets"`

	// CacheTTL bounds how long the enabled-rules list is served from cache.
	// Zero means until the next catalog write.
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`

	// Matcher backs the Matches operator: "none" or "cel".
	Matcher          string `koanf:"matcher" validate:"required,oneof=none cel"`
	MatcherCacheSize int    `koanf:"matcher_cache_size" validate:"gte=1"`

	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout" validate:"gt=0"`
	SweepSchedule      string        `koanf:"sweep_schedule" validate:"required"`
	ActivitySize       int           `koanf:"activity_size" validate:"gte=1"`

	// RandomSeed makes probability draws reproducible. Zero uses the global
	// generator.
	RandomSeed uint64 `koanf:"random_seed"`
}

// Defaults returns the configuration used when no variables are set.
func Defaults() AppConfig {
	return AppConfig{
		Env:                "prod",
		LogLevel:           "info",
		LogSampleRate:      1,
		OTELServiceName:    "algoshield",
		Port:               8080,
		CatalogSource:      "memory",
		SeedPresets:        true,
		Matcher:            "cel",
		MatcherCacheSize:   256,
		SessionIdleTimeout: 30 * time.Minute,
		SweepSchedule:      "@every 1m",
		ActivitySize:       100,
	}
}

// envLoader loads SHIELD_* variables with the prefix stripped and the key
// lowercased. Tests replace it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
}

// Load applies defaults, overlays the environment and validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the sweep schedule parses.
func Validate(cfg *AppConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return fmt.Errorf("validation failed: sweep_schedule %q: %w", cfg.SweepSchedule, err)
	}
	return nil
}

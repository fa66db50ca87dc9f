// Package config loads knolrep settings from defaults, an optional YAML
// file, KNOLREP_ environment variables and command-line flags, in that order
// of precedence (later wins).
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Time zones without relying on the host database

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knolrep/internal/sm2"
)

const envPrefix = "KNOLREP_"

// Config is the full application configuration.
type Config struct {
	DB     DBConfig     `koanf:"db" validate:"required"`
	Log    LogConfig    `koanf:"log" validate:"required"`
	Engine EngineConfig `koanf:"engine" validate:"required"`
	Policy sm2.Policy   `koanf:"policy" validate:"required"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type LogConfig struct {
	Mode  string `koanf:"mode" validate:"oneof=dev prod"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

type EngineConfig struct {
	// Timezone decides where calendar days begin for XP accounting.
	Timezone      string `koanf:"timezone" validate:"required"`
	QueueLimit    int    `koanf:"queue_limit" validate:"gte=1,lte=1000"`
	EnforceNewCap bool   `koanf:"enforce_new_cap"`
}

// Location resolves the configured time zone.
func (c EngineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func defaults() map[string]interface{} {
	p := sm2.DefaultPolicy()
	return map[string]interface{}{
		"db.path":                     "knolrep.db",
		"log.mode":                    "dev",
		"log.level":                   "info",
		"engine.timezone":             "UTC",
		"engine.queue_limit":          20,
		"engine.enforce_new_cap":      false,
		"policy.default_ease_factor":  p.DefaultEaseFactor,
		"policy.min_ease_factor":      p.MinEaseFactor,
		"policy.first_interval_days":  p.FirstIntervalDays,
		"policy.second_interval_days": p.SecondIntervalDays,
		"policy.max_interval_days":    p.MaxIntervalDays,
		"policy.daily_new_cap":        p.DailyNewCap,
	}
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db.path", "knolrep.db", "Path to the SQLite database file")
	fs.String("log.mode", "dev", "Log encoding: dev or prod")
	fs.String("log.level", "info", "Minimum log level")
	fs.String("engine.timezone", "UTC", "IANA time zone that defines calendar days")
	fs.Int("engine.queue_limit", 20, "Default number of cards in a daily queue")
	fs.Bool("engine.enforce_new_cap", false, "Reject enrollments past policy.daily_new_cap per day")
}

// Load builds a Config from all sources. fs must have been parsed.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// KNOLREP_ENGINE__QUEUE_LIMIT -> engine.queue_limit
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	// Only flags the user actually set override lower layers.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the time zone.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Engine.Location(); err != nil {
		return fmt.Errorf("invalid config: engine.timezone: %w", err)
	}
	return nil
}

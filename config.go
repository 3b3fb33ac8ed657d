package mutter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// Config is the serializable form of a Runtime's settings.
//
// Example YAML:
//
//	require_observer: false
//	dispose_delay: 250ms
//	log_level: debug
type Config struct {
	// RequireObserver makes snapshot reads outside a tracking window fail.
	RequireObserver bool `yaml:"require_observer" json:"require_observer"`

	// DisposeDelay is how long ScheduleDispose waits. Zero keeps the default.
	DisposeDelay time.Duration `yaml:"dispose_delay" json:"dispose_delay" validate:"gte=0"`

	// LogLevel is one of debug, info, warn or error. Empty keeps the runtime's
	// logger. Configure applies it unless a logger was injected.
	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the settings NewRuntime starts with.
func DefaultConfig() Config {
	return Config{
		RequireObserver: true,
		DisposeDelay:    DefaultDisposeDelay,
	}
}

// Validate checks the config against its validate tags.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// Level returns LogLevel as a slog.Level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// UnmarshalJSON accepts dispose_delay as a duration string ("250ms") or as
// integer nanoseconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		DisposeDelay json.RawMessage `json:"dispose_delay"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.DisposeDelay) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.DisposeDelay, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("dispose_delay: %w", err)
		}
		c.DisposeDelay = d
		return nil
	}
	var ns int64
	if err := json.Unmarshal(aux.DisposeDelay, &ns); err != nil {
		return fmt.Errorf("dispose_delay: %w", err)
	}
	c.DisposeDelay = time.Duration(ns)
	return nil
}

// LoadConfig decodes raw with codec on top of DefaultConfig and validates
// the result.
func LoadConfig(codec Codec, raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := codec.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

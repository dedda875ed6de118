package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the client.
type Config struct {
	BaseURL        string   `json:"base_url" validate:"required,url"`
	RequestTimeout Duration `json:"request_timeout" validate:"min=1s"`
	LogLevel       string   `json:"log_level" validate:"oneof=debug info warn error"`
	DBPath         string   `json:"db_path" validate:"required"`
	EncryptionKey  string   `json:"encryption_key" validate:"required,min=16"`

	Retry struct {
		MaxRetries int      `json:"max_retries" validate:"min=0"`
		BaseDelay  Duration `json:"base_delay" validate:"min=1ms"`
		CapDelay   Duration `json:"cap_delay" validate:"min=1ms"`
	} `json:"retry"`

	Poller struct {
		Interval   Duration `json:"interval" validate:"min=1m"`
		MaxRetries int      `json:"max_retries" validate:"min=0"`
	} `json:"poller"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used when a field is absent from the file.
func Default() *Config {
	cfg := &Config{
		BaseURL:        "http://localhost:8000",
		RequestTimeout: Duration{30 * time.Second},
		LogLevel:       "info",
		DBPath:         "./subsbuzz.db",
	}
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BaseDelay = Duration{time.Second}
	cfg.Retry.CapDelay = Duration{10 * time.Second}
	cfg.Poller.Interval = Duration{15 * time.Minute}
	cfg.Poller.MaxRetries = 5
	return cfg
}

// Load reads configuration from a file and overrides with environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SUBSBUZZ_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SUBSBUZZ_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SUBSBUZZ_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SUBSBUZZ_ENCRYPTION_KEY"); v != "" {
		c.EncryptionKey = v
	}
	if v := os.Getenv("SUBSBUZZ_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SUBSBUZZ_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = Duration{d}
	}
	if v := os.Getenv("SUBSBUZZ_RETRY_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing SUBSBUZZ_RETRY_MAX_RETRIES: %w", err)
		}
		c.Retry.MaxRetries = n
	}
	if v := os.Getenv("SUBSBUZZ_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SUBSBUZZ_POLL_INTERVAL: %w", err)
		}
		c.Poller.Interval = Duration{d}
	}
	return nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.Retry.CapDelay.Duration < c.Retry.BaseDelay.Duration {
		return fmt.Errorf("retry cap_delay must not be below base_delay")
	}

	return nil
}

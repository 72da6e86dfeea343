package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config holds runtime configuration for scan sessions. Fields may be
// loaded from a JSON file and overridden by the host application.
type Config struct {
	Debug bool `json:"debug"`

	// Tick scheduling, in milliseconds.
	AttemptDelayMS int `json:"attempt_delay_ms"`
	SuccessDelayMS int `json:"success_delay_ms"`

	// Source readiness wait, in milliseconds.
	ReadyTimeoutMS  int `json:"ready_timeout_ms"`
	ReadyIntervalMS int `json:"ready_interval_ms"`

	// One-shot retry toggles, one per retryable decode failure. Checksum
	// and format failures are deliberately independent of not-found: they
	// are not equivalent and callers may want only one of them retried.
	RetryIfNotFound bool `json:"retry_if_not_found"`
	RetryIfChecksum bool `json:"retry_if_checksum"`
	RetryIfFormat   bool `json:"retry_if_format"`

	// Default stream selection.
	DeviceID   string `json:"device_id"`
	FacingMode string `json:"facing_mode"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:           false,
		AttemptDelayMS:  500,
		SuccessDelayMS:  500,
		ReadyTimeoutMS:  5000,
		ReadyIntervalMS: 50,
		RetryIfNotFound: true,
		RetryIfChecksum: true,
		RetryIfFormat:   true,
	}
}

// Validate clamps values to safe ranges.
func (c *Config) Validate() error {
	if c.AttemptDelayMS <= 0 {
		c.AttemptDelayMS = 500
	}
	if c.SuccessDelayMS <= 0 {
		c.SuccessDelayMS = 500
	}
	if c.ReadyTimeoutMS <= 0 {
		c.ReadyTimeoutMS = 5000
	}
	if c.ReadyIntervalMS <= 0 || c.ReadyIntervalMS > c.ReadyTimeoutMS {
		c.ReadyIntervalMS = 50
	}
	return nil
}

// AttemptDelay returns the retry delay as a duration.
func (c *Config) AttemptDelay() time.Duration {
	return time.Duration(c.AttemptDelayMS) * time.Millisecond
}

// SuccessDelay returns the post-success delay as a duration.
func (c *Config) SuccessDelay() time.Duration {
	return time.Duration(c.SuccessDelayMS) * time.Millisecond
}

// ReadyTimeout returns the readiness wait bound as a duration.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMS) * time.Millisecond
}

// ReadyInterval returns the readiness poll interval as a duration.
func (c *Config) ReadyInterval() time.Duration {
	return time.Duration(c.ReadyIntervalMS) * time.Millisecond
}

// Load attempts to read configuration from the given JSON file path. If the
// file does not exist it returns DefaultConfig(). On JSON error it returns
// defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return cfg, err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

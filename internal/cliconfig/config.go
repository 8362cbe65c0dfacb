package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/logship/pkg/logship"
)

// Config holds CLI configuration for logship.
type Config struct {
	APIKey   string
	Endpoint string

	BatchSize         int
	FlushInterval     time.Duration
	RequestsPerConn   int
	QueueCapacity     int
	QueuePolicy       string
	FlushContinuously bool
	Encoding          string
	Compress          bool

	DialTimeout time.Duration
	TLSTimeout  time.Duration
	ReadTimeout time.Duration

	ShutdownAttempts     int
	ShutdownPollInterval time.Duration

	// Inputs: newline-delimited messages from stdin and/or followed files.
	Stdin  bool
	Follow []string

	MetricsAddr string
	LogLevel    string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	d := logship.DefaultConfig()
	return Config{
		Endpoint:             d.Endpoint,
		BatchSize:            d.BatchSize,
		FlushInterval:        d.FlushInterval,
		RequestsPerConn:      d.RequestsPerConn,
		QueueCapacity:        d.QueueCapacity,
		QueuePolicy:          d.QueuePolicy,
		FlushContinuously:    !d.Synchronous,
		Encoding:             d.Encoding,
		Compress:             d.Compress,
		DialTimeout:          d.DialTimeout,
		TLSTimeout:           d.TLSTimeout,
		ReadTimeout:          d.ReadTimeout,
		ShutdownAttempts:     d.ShutdownAttempts,
		ShutdownPollInterval: d.ShutdownPollInterval,
		Stdin:                true,
		LogLevel:             "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api-key is required")
	}
	if !c.Stdin && len(c.Follow) == 0 {
		return fmt.Errorf("no input: enable stdin or pass --follow")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if err := c.DeviceConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log-level: %w", err)
	}
	return lvl, nil
}

// DeviceConfig converts the CLI configuration into a device configuration.
func (c *Config) DeviceConfig() logship.Config {
	return logship.Config{
		APIKey:               c.APIKey,
		Endpoint:             c.Endpoint,
		BatchSize:            c.BatchSize,
		FlushInterval:        c.FlushInterval,
		RequestsPerConn:      c.RequestsPerConn,
		QueueCapacity:        c.QueueCapacity,
		QueuePolicy:          c.QueuePolicy,
		Synchronous:          !c.FlushContinuously,
		Encoding:             c.Encoding,
		Compress:             c.Compress,
		DialTimeout:          c.DialTimeout,
		TLSTimeout:           c.TLSTimeout,
		ReadTimeout:          c.ReadTimeout,
		ShutdownAttempts:     c.ShutdownAttempts,
		ShutdownPollInterval: c.ShutdownPollInterval,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list value if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// splitList splits a comma-separated environment value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

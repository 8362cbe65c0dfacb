package cliconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set in the environment are kept.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnvConfig applies configuration from environment variables (LOGSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-key", os.Getenv("LOGSHIP_API_KEY"), &cfg.APIKey)
	s.setString("endpoint", os.Getenv("LOGSHIP_ENDPOINT"), &cfg.Endpoint)
	s.setString("queue-policy", os.Getenv("LOGSHIP_QUEUE_POLICY"), &cfg.QueuePolicy)
	s.setString("encoding", os.Getenv("LOGSHIP_ENCODING"), &cfg.Encoding)
	s.setString("metrics-addr", os.Getenv("LOGSHIP_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("LOGSHIP_LOG_LEVEL"), &cfg.LogLevel)
	s.setStrings("follow", splitList(os.Getenv("LOGSHIP_FOLLOW")), &cfg.Follow)

	durations := []struct {
		flag, env string
		dst       *time.Duration
	}{
		{"flush-interval", "LOGSHIP_FLUSH_INTERVAL", &cfg.FlushInterval},
		{"dial-timeout", "LOGSHIP_DIAL_TIMEOUT", &cfg.DialTimeout},
		{"tls-timeout", "LOGSHIP_TLS_TIMEOUT", &cfg.TLSTimeout},
		{"read-timeout", "LOGSHIP_READ_TIMEOUT", &cfg.ReadTimeout},
		{"shutdown-poll-interval", "LOGSHIP_SHUTDOWN_POLL_INTERVAL", &cfg.ShutdownPollInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, os.Getenv(d.env), d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"batch-size", "LOGSHIP_BATCH_SIZE", &cfg.BatchSize},
		{"requests-per-conn", "LOGSHIP_REQUESTS_PER_CONN", &cfg.RequestsPerConn},
		{"queue-capacity", "LOGSHIP_QUEUE_CAPACITY", &cfg.QueueCapacity},
		{"shutdown-attempts", "LOGSHIP_SHUTDOWN_ATTEMPTS", &cfg.ShutdownAttempts},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, os.Getenv(i.env), i.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("flush-continuously", os.Getenv("LOGSHIP_FLUSH_CONTINUOUSLY"), &cfg.FlushContinuously)
	s.setBoolFromString("compress", os.Getenv("LOGSHIP_COMPRESS"), &cfg.Compress)
	s.setBoolFromString("stdin", os.Getenv("LOGSHIP_STDIN"), &cfg.Stdin)

	return nil
}

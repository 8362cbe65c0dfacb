package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	APIKey               string   `toml:"api_key"`
	Endpoint             string   `toml:"endpoint"`
	BatchSize            int      `toml:"batch_size"`
	FlushInterval        string   `toml:"flush_interval"`
	RequestsPerConn      int      `toml:"requests_per_conn"`
	QueueCapacity        int      `toml:"queue_capacity"`
	QueuePolicy          string   `toml:"queue_policy"`
	FlushContinuously    *bool    `toml:"flush_continuously"`
	Encoding             string   `toml:"encoding"`
	Compress             *bool    `toml:"compress"`
	DialTimeout          string   `toml:"dial_timeout"`
	TLSTimeout           string   `toml:"tls_timeout"`
	ReadTimeout          string   `toml:"read_timeout"`
	ShutdownAttempts     int      `toml:"shutdown_attempts"`
	ShutdownPollInterval string   `toml:"shutdown_poll_interval"`
	Stdin                *bool    `toml:"stdin"`
	Follow               []string `toml:"follow"`
	MetricsAddr          string   `toml:"metrics_addr"`
	LogLevel             string   `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.logship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".logship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("queue-policy", fc.QueuePolicy, &cfg.QueuePolicy)
	s.setString("encoding", fc.Encoding, &cfg.Encoding)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setStrings("follow", fc.Follow, &cfg.Follow)

	if err := s.setDuration("flush-interval", fc.FlushInterval, &cfg.FlushInterval); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("tls-timeout", fc.TLSTimeout, &cfg.TLSTimeout); err != nil {
		return err
	}
	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-poll-interval", fc.ShutdownPollInterval, &cfg.ShutdownPollInterval); err != nil {
		return err
	}

	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("requests-per-conn", fc.RequestsPerConn, &cfg.RequestsPerConn)
	s.setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)
	s.setInt("shutdown-attempts", fc.ShutdownAttempts, &cfg.ShutdownAttempts)

	s.setBool("flush-continuously", fc.FlushContinuously, &cfg.FlushContinuously)
	s.setBool("compress", fc.Compress, &cfg.Compress)
	s.setBool("stdin", fc.Stdin, &cfg.Stdin)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

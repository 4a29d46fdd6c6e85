package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the AVGear matrix
// controller. All configuration is loaded from YAML and can be overridden
// by environment variables.
type Config struct {
	Matrix   MatrixConfig   `yaml:"matrix"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MatrixConfig contains the matrix switcher endpoint settings.
type MatrixConfig struct {
	// ID identifies this matrix in MQTT topics and the routing history.
	ID string `yaml:"id"`

	// Host is the device IP or hostname. Required.
	Host string `yaml:"host"`

	// Port is the TCP control port. Default: 4001.
	Port int `yaml:"port"`

	// Inputs and Outputs declare the matrix size. Default: 8x8.
	Inputs  int `yaml:"inputs"`
	Outputs int `yaml:"outputs"`

	// PollInterval is how often the device is polled, in seconds.
	// Clamped to 5-300 at runtime. Default: 30.
	PollInterval int `yaml:"poll_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig contains routing history settings.
type HistoryConfig struct {
	// Enabled controls whether routing changes are recorded to SQLite.
	Enabled bool `yaml:"enabled"`

	// RetentionDays is how long routing history is kept. Default: 90.
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AVGEAR_SECTION_KEY
// For example: AVGEAR_MATRIX_HOST, AVGEAR_MQTT_PASSWORD
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Matrix: MatrixConfig{
			ID:           "matrix-001",
			Port:         4001,
			Inputs:       8,
			Outputs:      8,
			PollInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/avgear.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "avgear-controller",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern: AVGEAR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Matrix
	if v := os.Getenv("AVGEAR_MATRIX_HOST"); v != "" {
		cfg.Matrix.Host = v
	}
	if v := os.Getenv("AVGEAR_MATRIX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Matrix.Port = port
		}
	}

	// Database
	if v := os.Getenv("AVGEAR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AVGEAR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AVGEAR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AVGEAR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AVGEAR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Matrix.ID == "" {
		errs = append(errs, "matrix.id is required")
	}
	if c.Matrix.Host == "" {
		errs = append(errs, "matrix.host is required (set AVGEAR_MATRIX_HOST environment variable)")
	}
	if c.Matrix.Port < 1 || c.Matrix.Port > 65535 {
		errs = append(errs, "matrix.port must be between 1 and 65535")
	}
	if c.Matrix.Inputs < 1 || c.Matrix.Inputs > 32 {
		errs = append(errs, "matrix.inputs must be between 1 and 32")
	}
	if c.Matrix.Outputs < 1 || c.Matrix.Outputs > 32 {
		errs = append(errs, "matrix.outputs must be between 1 and 32")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set AVGEAR_INFLUXDB_TOKEN environment variable)")
		}
	}

	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the matrix poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Matrix.PollInterval) * time.Second
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
matrix:
  id: "test-matrix"
  host: "192.168.1.50"
  port: 4001
  inputs: 8
  outputs: 8
  poll_interval: 30
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matrix.ID != "test-matrix" {
		t.Errorf("Matrix.ID = %q, want %q", cfg.Matrix.ID, "test-matrix")
	}

	if cfg.Matrix.Host != "192.168.1.50" {
		t.Errorf("Matrix.Host = %q, want %q", cfg.Matrix.Host, "192.168.1.50")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
matrix:
  id: "test-matrix"
  host: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty matrix.host, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	validMatrix := MatrixConfig{
		ID:      "matrix-001",
		Host:    "192.168.1.50",
		Port:    4001,
		Inputs:  8,
		Outputs: 8,
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Matrix:   validMatrix,
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
			},
			wantErr: false,
		},
		{
			name: "missing matrix ID",
			config: &Config{
				Matrix: MatrixConfig{
					Host: "192.168.1.50", Port: 4001, Inputs: 8, Outputs: 8,
				},
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "missing matrix host",
			config: &Config{
				Matrix: MatrixConfig{
					ID: "matrix-001", Port: 4001, Inputs: 8, Outputs: 8,
				},
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "invalid matrix port",
			config: &Config{
				Matrix: MatrixConfig{
					ID: "matrix-001", Host: "192.168.1.50", Port: 70000, Inputs: 8, Outputs: 8,
				},
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "matrix too large",
			config: &Config{
				Matrix: MatrixConfig{
					ID: "matrix-001", Host: "192.168.1.50", Port: 4001, Inputs: 64, Outputs: 8,
				},
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			config: &Config{
				Matrix:   validMatrix,
				Database: DatabaseConfig{Path: ""},
				MQTT:     MQTTConfig{QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "invalid QoS",
			config: &Config{
				Matrix:   validMatrix,
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 3},
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without token",
			config: &Config{
				Matrix:   validMatrix,
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
				InfluxDB: InfluxDBConfig{Enabled: true, URL: "http://localhost:8086"},
			},
			wantErr: true,
		},
		{
			name: "negative history retention",
			config: &Config{
				Matrix:   validMatrix,
				Database: DatabaseConfig{Path: "/data/avgear.db"},
				MQTT:     MQTTConfig{QoS: 1},
				History:  HistoryConfig{RetentionDays: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetPollInterval(t *testing.T) {
	cfg := &Config{
		Matrix: MatrixConfig{PollInterval: 45},
	}

	if got := cfg.GetPollInterval().Seconds(); got != 45 {
		t.Errorf("GetPollInterval() = %v, want 45", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("AVGEAR_MATRIX_HOST", "10.0.0.20")
	t.Setenv("AVGEAR_MATRIX_PORT", "5000")
	t.Setenv("AVGEAR_DATABASE_PATH", "/custom/path.db")
	t.Setenv("AVGEAR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("AVGEAR_MQTT_USERNAME", "testuser")
	t.Setenv("AVGEAR_MQTT_PASSWORD", "testpass")
	t.Setenv("AVGEAR_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Matrix.Host != "10.0.0.20" {
		t.Errorf("Matrix.Host = %q, want %q", cfg.Matrix.Host, "10.0.0.20")
	}

	if cfg.Matrix.Port != 5000 {
		t.Errorf("Matrix.Port = %d, want 5000", cfg.Matrix.Port)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Matrix.ID == "" {
		t.Error("defaultConfig should have non-empty Matrix.ID")
	}

	if cfg.Matrix.Port != 4001 {
		t.Errorf("defaultConfig Matrix.Port = %d, want 4001", cfg.Matrix.Port)
	}

	if cfg.Matrix.Inputs != 8 || cfg.Matrix.Outputs != 8 {
		t.Errorf("defaultConfig matrix size = %dx%d, want 8x8", cfg.Matrix.Inputs, cfg.Matrix.Outputs)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

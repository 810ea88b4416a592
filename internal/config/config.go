package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	FHIRBaseURL    string        `mapstructure:"FHIR_BASE_URL"`
	FHIRToken      string        `mapstructure:"FHIR_TOKEN"`
	PatientID      string        `mapstructure:"PATIENT_ID"`
	TrackingListID string        `mapstructure:"TRACKING_LIST_ID"`
	SnapshotPath   string        `mapstructure:"SNAPSHOT_PATH"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT"`
	StubPort       string        `mapstructure:"STUB_PORT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("STUB_PORT", "8090")
	v.SetDefault("SNAPSHOT_PATH", "chart.db")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("FHIR_BASE_URL")
	v.BindEnv("FHIR_TOKEN")
	v.BindEnv("PATIENT_ID")
	v.BindEnv("TRACKING_LIST_ID")
	v.BindEnv("SNAPSHOT_PATH")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("HTTP_TIMEOUT")
	v.BindEnv("STUB_PORT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// RequireBaseURL validates the settings commands that hit the network need.
func (c *Config) RequireBaseURL() error {
	if c.FHIRBaseURL == "" {
		return fmt.Errorf("FHIR_BASE_URL is required")
	}
	return nil
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout)
	}
	if cfg.StubPort != "8090" {
		t.Errorf("StubPort = %q, want 8090", cfg.StubPort)
	}
	if cfg.SnapshotPath != "chart.db" {
		t.Errorf("SnapshotPath = %q, want chart.db", cfg.SnapshotPath)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FHIR_BASE_URL", "https://fhir.example.com/r4")
	t.Setenv("PATIENT_ID", "pat-42")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FHIRBaseURL != "https://fhir.example.com/r4" {
		t.Errorf("FHIRBaseURL = %q", cfg.FHIRBaseURL)
	}
	if cfg.PatientID != "pat-42" {
		t.Errorf("PatientID = %q", cfg.PatientID)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if err := cfg.RequireBaseURL(); err != nil {
		t.Errorf("RequireBaseURL: %v", err)
	}
}

func TestRequireBaseURL(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireBaseURL(); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

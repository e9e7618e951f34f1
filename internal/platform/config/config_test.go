package config

import (
	"os"
	"testing"
	"time"
)

// Test environment variable keys.
const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testEnvLLMAPIKey   = "LLM_API_KEY"
)

// Test values.
const (
	testPostgresDSN = "postgres://localhost/test"
	testLLMAPIKey   = "sk-test"
	testErrLoad     = "Load() error = %v"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
	t.Setenv(testEnvLLMAPIKey, testLLMAPIKey)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv(testEnvPostgresDSN)
	os.Unsetenv(testEnvLLMAPIKey)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.PostgresDSN != testPostgresDSN {
		t.Errorf("PostgresDSN = %q, want %q", cfg.PostgresDSN, testPostgresDSN)
	}

	if cfg.LLMConfidenceThreshold != 0.8 {
		t.Errorf("LLMConfidenceThreshold = %v, want 0.8", cfg.LLMConfidenceThreshold)
	}

	if cfg.SplitThreshold != 1500 {
		t.Errorf("SplitThreshold = %d, want 1500", cfg.SplitThreshold)
	}

	if cfg.BatchPollInterval != 30*time.Second {
		t.Errorf("BatchPollInterval = %v, want 30s", cfg.BatchPollInterval)
	}

	if cfg.UseMockLLM() {
		t.Error("UseMockLLM() = true for a real key")
	}
}

func TestLoad_LegacyModelAlias(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("LLM_MODEL", "gpt-4o-2024-08-06")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.LLMPrimaryModel != "gpt-4o-2024-08-06" {
		t.Errorf("LLMPrimaryModel = %q, want legacy LLM_MODEL value", cfg.LLMPrimaryModel)
	}
}

func TestLoad_InvalidThresholdFallsBack(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("LLM_CONFIDENCE_THRESHOLD", "1.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.LLMConfidenceThreshold != defaultConfidenceThreshold {
		t.Errorf("LLMConfidenceThreshold = %v, want %v", cfg.LLMConfidenceThreshold, defaultConfidenceThreshold)
	}
}

func TestConfig_Aliases(t *testing.T) {
	cfg := &Config{AliasExtra: "Palantir=$pltr, micro strategy = MSTR ,broken,=X"}

	got := cfg.Aliases()

	if len(got) != 2 {
		t.Fatalf("Aliases() len = %d, want 2 (%v)", len(got), got)
	}

	if got["Palantir"] != "PLTR" {
		t.Errorf("Palantir = %q, want PLTR", got["Palantir"])
	}

	if got["micro strategy"] != "MSTR" {
		t.Errorf("micro strategy = %q, want MSTR", got["micro strategy"])
	}
}

func TestConfig_UseMockLLM(t *testing.T) {
	cfg := &Config{LLMAPIKey: " Mock "}

	if !cfg.UseMockLLM() {
		t.Error("UseMockLLM() = false, want true")
	}
}

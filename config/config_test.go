package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
fundingflow:
  name: fundingflow
  version: 0.1.0
exchanges:
  binance:
    enabled: true
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dashboard.RefreshInterval != time.Minute {
		t.Errorf("refresh interval default = %v", cfg.Dashboard.RefreshInterval)
	}
	if cfg.Dashboard.WindowDays != 7 {
		t.Errorf("window days default = %d", cfg.Dashboard.WindowDays)
	}
	if cfg.Exchanges.Binance.IntervalHours != 8 {
		t.Errorf("binance interval default = %v", cfg.Exchanges.Binance.IntervalHours)
	}
	if cfg.Exchanges.Hyperliquid.IntervalHours != 1 {
		t.Errorf("hyperliquid interval default = %v", cfg.Exchanges.Hyperliquid.IntervalHours)
	}
	if cfg.Cache.FundingTTL != 5*time.Minute {
		t.Errorf("funding ttl default = %v", cfg.Cache.FundingTTL)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_SECRET", "env-secret")
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Exchanges.Binance.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.Exchanges.Binance.APIKey)
	}
	if cfg.Exchanges.Binance.Secret != "env-secret" {
		t.Errorf("secret = %q, want env-secret", cfg.Exchanges.Binance.Secret)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	body := `
fundingflow:
  version: 0.1.0
exchanges:
  binance:
    enabled: true
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigNoExchangeEnabled(t *testing.T) {
	body := `
fundingflow:
  name: fundingflow
  version: 0.1.0
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error when no exchange is enabled")
	}
}

func TestLoadConfigOkxNeedsPassphrase(t *testing.T) {
	body := `
fundingflow:
  name: fundingflow
  version: 0.1.0
exchanges:
  okx:
    enabled: true
    api_key: k
    secret: s
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for okx without passphrase")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	valid := []string{"fundingflow-snapshots", "a1b", "my.bucket.name"}
	invalid := []string{"ab", "UPPER", "-leading", "trailing-", "double..dot"}
	for _, name := range valid {
		if !isValidS3Bucket(name) {
			t.Errorf("isValidS3Bucket(%q) = false, want true", name)
		}
	}
	for _, name := range invalid {
		if isValidS3Bucket(name) {
			t.Errorf("isValidS3Bucket(%q) = true, want false", name)
		}
	}
}

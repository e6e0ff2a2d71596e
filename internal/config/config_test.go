package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
database:
  user: app
  password: secret
  database: meditrack

rabbitmq:
  user: guest
  password: guest
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults not applied: %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Services.EmergencyServicePort != 3000 {
		t.Errorf("emergency service port default = %d, want 3000", cfg.Services.EmergencyServicePort)
	}
	if cfg.Services.APIBaseURL != "http://localhost:3000" {
		t.Errorf("api base url default = %q", cfg.Services.APIBaseURL)
	}
	if cfg.Realtime.BaseDelayMS != 1000 || cfg.Realtime.GrowthFactor != 1.5 ||
		cfg.Realtime.MaxDelayMS != 15000 || cfg.Realtime.MaxReconnectAttempts != 5 {
		t.Errorf("realtime defaults not applied: %+v", cfg.Realtime)
	}
	if cfg.Geolocation.Source != "gpsd" {
		t.Errorf("geolocation source default = %q, want gpsd", cfg.Geolocation.Source)
	}
	if cfg.JWT.SecretKey == "" {
		t.Error("expected a generated JWT secret when none is configured")
	}
}

func TestLoadParsesAllSections(t *testing.T) {
	body := `
database:
  host: db.internal
  port: 5433
  user: app
  password: secret
  database: meditrack

rabbitmq:
  host: mq.internal
  port: 5673
  user: rabbit
  password: carrot

smtp:
  host: mail.internal
  port: 587
  from: "MediTrack <alerts@example.org>"

jwt:
  secret_key: "super-secret"

services:
  emergency_service: 8080
  beacon_trigger: 8081
  api_base_url: https://api.example.org

realtime:
  base_delay_ms: 500
  growth_factor: 2.0
  max_delay_ms: 10000
  max_reconnect_attempts: 3

geolocation:
  source: STATIC
  static_latitude: 52.52
  static_longitude: 13.405
  high_accuracy: true

beacon:
  username: beacon
  password: beacon-pass

responder:
  username: dashboard
  password: dashboard-pass
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Errorf("database section mismatch: %+v", cfg.Database)
	}
	if cfg.SMTP.From != "MediTrack <alerts@example.org>" {
		t.Errorf("smtp.from not unquoted: %q", cfg.SMTP.From)
	}
	if cfg.JWT.SecretKey != "super-secret" {
		t.Errorf("jwt.secret_key = %q", cfg.JWT.SecretKey)
	}
	if cfg.Realtime.GrowthFactor != 2.0 {
		t.Errorf("realtime.growth_factor = %v", cfg.Realtime.GrowthFactor)
	}
	// source is lowercased on parse
	if cfg.Geolocation.Source != "static" {
		t.Errorf("geolocation.source = %q, want static", cfg.Geolocation.Source)
	}
	if cfg.Beacon.Username != "beacon" {
		t.Errorf("beacon.username = %q", cfg.Beacon.Username)
	}
	// the dashboard has its own account, separate from the beacon's
	if cfg.Responder.Username != "dashboard" || cfg.Responder.Password != "dashboard-pass" {
		t.Errorf("responder section mismatch: %+v", cfg.Responder)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	body := `
database:
  user: app

rabbitmq:
  user: guest
  password: guest
`
	_, err := LoadFromFile(writeConfig(t, body))
	if err == nil {
		t.Fatal("expected validation error for missing database credentials")
	}
	if !strings.Contains(err.Error(), "database.password") {
		t.Errorf("error should name the missing field, got: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	body := minimalConfig + `
services:
  emergency_service: 3000
  unknown_key: 42
`
	if _, err := LoadFromFile(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadRejectsBadReconnectPolicy(t *testing.T) {
	body := minimalConfig + `
realtime:
  base_delay_ms: 5000
  max_delay_ms: 1000
`
	_, err := LoadFromFile(writeConfig(t, body))
	if err == nil {
		t.Fatal("expected error when max_delay_ms < base_delay_ms")
	}
}

func TestLoadRejectsUnknownGeolocationSource(t *testing.T) {
	body := minimalConfig + `
geolocation:
  source: carrier-pigeon
`
	if _, err := LoadFromFile(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unknown geolocation source")
	}
}

package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	SMTP struct {
		Host     string
		Port     int
		User     string
		Password string
		From     string
	}
	JWT struct {
		SecretKey string
	}
	Services struct {
		EmergencyServicePort int
		BeaconTriggerPort    int
		APIBaseURL           string // base URL beacon/responder use to reach the emergency service
	}
	Realtime struct {
		BaseDelayMS          int
		GrowthFactor         float64
		MaxDelayMS           int
		MaxReconnectAttempts int
	}
	Geolocation struct {
		Source          string // "gpsd" or "static"
		GPSDAddr        string
		StaticLatitude  float64
		StaticLongitude float64
		CachePath       string
		TimeoutMS       int
		MaximumAgeMS    int
		HighAccuracy    bool
		WatchPosition   bool
	}
	Beacon struct {
		Username string
		Password string
	}
	Responder struct {
		Username string
		Password string
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies
// defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// SMTP
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}

	// Services
	if cfg.Services.EmergencyServicePort == 0 {
		cfg.Services.EmergencyServicePort = 3000
	}
	if cfg.Services.BeaconTriggerPort == 0 {
		cfg.Services.BeaconTriggerPort = 3100
	}
	if cfg.Services.APIBaseURL == "" {
		cfg.Services.APIBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Services.EmergencyServicePort)
	}

	// Realtime reconnection policy
	if cfg.Realtime.BaseDelayMS == 0 {
		cfg.Realtime.BaseDelayMS = 1000
	}
	if cfg.Realtime.GrowthFactor == 0 {
		cfg.Realtime.GrowthFactor = 1.5
	}
	if cfg.Realtime.MaxDelayMS == 0 {
		cfg.Realtime.MaxDelayMS = 15000
	}
	if cfg.Realtime.MaxReconnectAttempts == 0 {
		cfg.Realtime.MaxReconnectAttempts = 5
	}

	// Geolocation
	if cfg.Geolocation.Source == "" {
		cfg.Geolocation.Source = "gpsd"
	}
	if cfg.Geolocation.GPSDAddr == "" {
		cfg.Geolocation.GPSDAddr = "localhost:2947"
	}
	if cfg.Geolocation.CachePath == "" {
		cfg.Geolocation.CachePath = "meditrack_position.json"
	}
	if cfg.Geolocation.TimeoutMS == 0 {
		cfg.Geolocation.TimeoutMS = 5000
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.EmergencyServicePort <= 0 || c.Services.EmergencyServicePort > 65535 {
		problems = append(problems, "services.emergency_service must be in 1..65535")
	}
	if c.Services.BeaconTriggerPort <= 0 || c.Services.BeaconTriggerPort > 65535 {
		problems = append(problems, "services.beacon_trigger must be in 1..65535")
	}

	// Realtime
	if c.Realtime.BaseDelayMS < 0 {
		problems = append(problems, "realtime.base_delay_ms cannot be negative")
	}
	if c.Realtime.GrowthFactor < 1 {
		problems = append(problems, "realtime.growth_factor must be >= 1")
	}
	if c.Realtime.MaxDelayMS < c.Realtime.BaseDelayMS {
		problems = append(problems, "realtime.max_delay_ms must be >= realtime.base_delay_ms")
	}
	if c.Realtime.MaxReconnectAttempts < 1 {
		problems = append(problems, "realtime.max_reconnect_attempts must be >= 1")
	}

	// Geolocation
	switch c.Geolocation.Source {
	case "gpsd", "static", "none":
	default:
		problems = append(problems, "geolocation.source must be one of: gpsd, static, none")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		sm
		jw
		sv
		rt
		gl
		bc
		rp
	)

	sectionNames := map[string]section{
		"database:":    db,
		"rabbitmq:":    rm,
		"smtp:":        sm,
		"jwt:":         jw,
		"services:":    sv,
		"realtime:":    rt,
		"geolocation:": gl,
		"beacon:":      bc,
		"responder:":   rp,
	}

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if line[0] != ' ' && line[0] != '\t' {
			sec, ok := sectionNames[strings.TrimSpace(line)]
			if !ok {
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if seenTop[sec] {
				return fmt.Errorf("line %d: duplicate %q section", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			seenTop[sec] = true
			cur = sec
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := resolveScalar(trim[colon+1:])

		asInt := func(field string) (int, error) {
			n, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("line %d: %s must be int: %v", lineNo, field, err)
			}
			return n, nil
		}
		asFloat := func(field string) (float64, error) {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return 0, fmt.Errorf("line %d: %s must be a number: %v", lineNo, field, err)
			}
			return f, nil
		}
		asBool := func(field string) (bool, error) {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return false, fmt.Errorf("line %d: %s must be true/false: %v", lineNo, field, err)
			}
			return b, nil
		}

		var err error
		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = val
			case "port":
				cfg.Database.Port, err = asInt("database.port")
			case "user":
				cfg.Database.User = val
			case "password":
				cfg.Database.Password = val
			case "database":
				cfg.Database.Name = val
			default:
				return fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = val
			case "port":
				cfg.RabbitMQ.Port, err = asInt("rabbitmq.port")
			case "user":
				cfg.RabbitMQ.User = val
			case "password":
				cfg.RabbitMQ.Password = val
			default:
				return fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case sm:
			switch key {
			case "host":
				cfg.SMTP.Host = val
			case "port":
				cfg.SMTP.Port, err = asInt("smtp.port")
			case "user":
				cfg.SMTP.User = val
			case "password":
				cfg.SMTP.Password = val
			case "from":
				cfg.SMTP.From = val
			default:
				return fmt.Errorf("line %d: unknown key in smtp: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = val
			default:
				return fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "emergency_service":
				cfg.Services.EmergencyServicePort, err = asInt("services.emergency_service")
			case "beacon_trigger":
				cfg.Services.BeaconTriggerPort, err = asInt("services.beacon_trigger")
			case "api_base_url":
				cfg.Services.APIBaseURL = val
			default:
				return fmt.Errorf("line %d: unknown key in services: %q", lineNo, key)
			}
		case rt:
			switch key {
			case "base_delay_ms":
				cfg.Realtime.BaseDelayMS, err = asInt("realtime.base_delay_ms")
			case "growth_factor":
				cfg.Realtime.GrowthFactor, err = asFloat("realtime.growth_factor")
			case "max_delay_ms":
				cfg.Realtime.MaxDelayMS, err = asInt("realtime.max_delay_ms")
			case "max_reconnect_attempts":
				cfg.Realtime.MaxReconnectAttempts, err = asInt("realtime.max_reconnect_attempts")
			default:
				return fmt.Errorf("line %d: unknown key in realtime: %q", lineNo, key)
			}
		case gl:
			switch key {
			case "source":
				cfg.Geolocation.Source = strings.ToLower(val)
			case "gpsd_addr":
				cfg.Geolocation.GPSDAddr = val
			case "static_latitude":
				cfg.Geolocation.StaticLatitude, err = asFloat("geolocation.static_latitude")
			case "static_longitude":
				cfg.Geolocation.StaticLongitude, err = asFloat("geolocation.static_longitude")
			case "cache_path":
				cfg.Geolocation.CachePath = val
			case "timeout_ms":
				cfg.Geolocation.TimeoutMS, err = asInt("geolocation.timeout_ms")
			case "maximum_age_ms":
				cfg.Geolocation.MaximumAgeMS, err = asInt("geolocation.maximum_age_ms")
			case "high_accuracy":
				cfg.Geolocation.HighAccuracy, err = asBool("geolocation.high_accuracy")
			case "watch_position":
				cfg.Geolocation.WatchPosition, err = asBool("geolocation.watch_position")
			default:
				return fmt.Errorf("line %d: unknown key in geolocation: %q", lineNo, key)
			}
		case bc:
			switch key {
			case "username":
				cfg.Beacon.Username = val
			case "password":
				cfg.Beacon.Password = val
			default:
				return fmt.Errorf("line %d: unknown key in beacon: %q", lineNo, key)
			}
		case rp:
			switch key {
			case "username":
				cfg.Responder.Username = val
			case "password":
				cfg.Responder.Password = val
			default:
				return fmt.Errorf("line %d: unknown key in responder: %q", lineNo, key)
			}
		}
		if err != nil {
			return err
		}
	}

	return scanner.Err()
}

// resolveScalar trims whitespace and removes surrounding quotes from
// YAML-like scalars, so values like jwt.secret_key are not stored with
// extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			return s[1 : n-1]
		}
	}
	return s
}

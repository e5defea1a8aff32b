package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the lesson service.
type Config struct {
	HTTPPort      int
	SQLiteDSN     string
	Timezone      string
	UnpaidHorizon time.Duration
	UnpaidCap     int
}

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields while validating required
// values. LESSONS_TIMEZONE has no default: occurrence identity is defined by
// wall-clock dates in the configured zone, so the zone must be chosen
// deliberately.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		SQLiteDSN:     "file:lessons.db",
		UnpaidHorizon: 365 * 24 * time.Hour,
		UnpaidCap:     50,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("LESSONS_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "LESSONS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("LESSONS_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if tz := strings.TrimSpace(os.Getenv("LESSONS_TIMEZONE")); tz == "" {
		missing = append(missing, "LESSONS_TIMEZONE")
	} else if _, err := time.LoadLocation(tz); err != nil {
		invalid = append(invalid, "LESSONS_TIMEZONE")
	} else {
		cfg.Timezone = tz
	}

	if horizonValue := strings.TrimSpace(os.Getenv("LESSONS_UNPAID_HORIZON")); horizonValue != "" {
		horizon, err := time.ParseDuration(horizonValue)
		if err != nil || horizon <= 0 {
			invalid = append(invalid, "LESSONS_UNPAID_HORIZON")
		} else {
			cfg.UnpaidHorizon = horizon
		}
	}

	if capValue := strings.TrimSpace(os.Getenv("LESSONS_UNPAID_CAP")); capValue != "" {
		capPerSeries, err := strconv.Atoi(capValue)
		if err != nil || capPerSeries <= 0 {
			invalid = append(invalid, "LESSONS_UNPAID_CAP")
		} else {
			cfg.UnpaidCap = capPerSeries
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

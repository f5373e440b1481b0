package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names a YAML config file when no --config flag is given.
const EnvConfigPath = "PLANNER_CONFIG"

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken  string           `yaml:"telegram_token"`
	DatabaseURL    string           `yaml:"database_url"`
	HTTPAddr       string           `yaml:"http_addr"`
	RedisAddr      string           `yaml:"redis_addr"`
	Timezone       string           `yaml:"timezone"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	Recurrence     RecurrenceConfig `yaml:"recurrence"`
}

// RecurrenceConfig tunes series advancement.
type RecurrenceConfig struct {
	// JobTime is the HH:MM local time of the nightly advancement job.
	JobTime string `yaml:"job_time"`
	Workers int    `yaml:"workers"`
	// AdvanceOverdue also advances series whose open instance is past due.
	AdvanceOverdue bool `yaml:"advance_overdue"`
	// Authoritative counts the series in the store instead of trusting
	// the occurrence counter on the task.
	Authoritative bool          `yaml:"authoritative"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DatabaseURL:    "crm_planner.db",
		HTTPAddr:       ":8080",
		Timezone:       "Local",
		ReportInterval: 5 * time.Hour,
		Recurrence: RecurrenceConfig{
			JobTime:        "02:00",
			Workers:        4,
			AdvanceOverdue: true,
			Authoritative:  true,
			LockTTL:        10 * time.Second,
		},
	}
}

// Load reads the optional YAML file at path (or $PLANNER_CONFIG), then
// applies environment variables on top of it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Timezone, "TIMEZONE")
	setString(&cfg.Recurrence.JobTime, "RECURRENCE_JOB_TIME")

	if interval := parseInterval(env("REPORT_INTERVAL_HOURS")); interval > 0 {
		cfg.ReportInterval = interval
	}
	if n, err := strconv.Atoi(env("RECURRENCE_WORKERS")); err == nil && n > 0 {
		cfg.Recurrence.Workers = n
	}
	if b, err := strconv.ParseBool(env("ADVANCE_OVERDUE")); err == nil {
		cfg.Recurrence.AdvanceOverdue = b
	}
	if b, err := strconv.ParseBool(env("AUTHORITATIVE_ELIGIBILITY")); err == nil {
		cfg.Recurrence.Authoritative = b
	}
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database url is required")
	}
	if c.Recurrence.Workers < 1 {
		return fmt.Errorf("recurrence workers must be positive, got %d", c.Recurrence.Workers)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

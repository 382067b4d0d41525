// Package config provides YAML-based configuration loading for Tempo.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvDBHost     = "TEMPO_DB_HOST"
	EnvDBPassword = "TEMPO_DB_PASSWORD"
	EnvLogLevel   = "TEMPO_LOG_LEVEL"
)

// Config is the top-level Tempo configuration, loaded from tempo.yaml.
type Config struct {
	Timezone  string          `yaml:"timezone"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	location *time.Location
}

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite mysql"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	File   string `yaml:"file"`
	JSON   bool   `yaml:"json"`
	Stdout bool   `yaml:"stdout"`
}

// SchedulerConfig controls the recurring goal sweep.
type SchedulerConfig struct {
	Cron    string `yaml:"cron" validate:"required"`
	Workers int    `yaml:"workers" validate:"min=1,max=64"`
}

// EventsConfig controls the completion event worker.
type EventsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	BatchSize    int           `yaml:"batch_size" validate:"min=1"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"min=1"`
}

// DashboardConfig controls the read-only stats API.
type DashboardConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

// MetricsConfig controls the worker's Prometheus endpoint. Port 0 disables
// it; the dashboard always serves /metrics on its own port.
type MetricsConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

var validate = validator.New()

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the working directory, if present, is loaded first so
// its variables can override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location returns the timezone used for calendar-day bucketing.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "tempo.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "tempo"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.Stdout = true
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "5 0 * * *"
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Events.PollInterval == 0 {
		c.Events.PollInterval = 5 * time.Second
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 50
	}
	if c.Events.MaxAttempts == 0 {
		c.Events.MaxAttempts = 5
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBHost); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: validate: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s fails %q (got %v)", yamlPath(fe.Namespace()), fe.Tag(), fe.Value()))
		}
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	case "mysql":
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q is not a known location", c.Timezone))
	} else {
		c.location = loc
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// yamlPath turns a validator namespace like "Config.Scheduler.Workers" into
// the lower-case key path users see in the file.
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Package config loads the monitor's runtime configuration and its device
// inventory seeds.
//
// Runtime settings come from one YAML file; environment variables override
// individual keys:
//
//	SNMPMON_DB_DRIVER            → database.driver
//	SNMPMON_DB_DSN               → database.dsn
//	SNMPMON_SNMP_COMMUNITY       → snmp.community
//	SNMPMON_SNMP_TIMEOUT         → snmp.timeout
//	SNMPMON_SNMP_RETRIES         → snmp.retries
//	SNMPMON_SCHEDULER_INTERVAL   → scheduler.interval
//	SNMPMON_SCHEDULER_BATCH_SIZE → scheduler.batch_size
//	SNMPMON_EXPORT_PATH          → export.path
//	SNMPMON_METRICS_LISTEN       → metrics.listen
//
// The secret box passphrase is read from the variable named by
// secrets.passphrase_env and never from the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that failed validation.
var ErrInvalid = errors.New("invalid configuration")

// ─────────────────────────────────────────────────────────────────────────────
// Duration
// ─────────────────────────────────────────────────────────────────────────────

// Duration is a time.Duration that decodes from "30s" style strings or from
// a bare number of seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := cast.ToInt64E(s); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	return Duration(v), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the runtime configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	SNMP        SNMPConfig        `yaml:"snmp"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Retention   RetentionConfig   `yaml:"retention"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Export      ExportConfig      `yaml:"export"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DatabaseConfig selects the storage engine.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// SNMPConfig holds the session defaults applied to every device.
type SNMPConfig struct {
	Version   string   `yaml:"version"`
	Community string   `yaml:"community"`
	Port      int      `yaml:"port"`
	Timeout   Duration `yaml:"timeout"`
	Retries   int      `yaml:"retries"`
}

// SchedulerConfig drives the polling cycle.
type SchedulerConfig struct {
	Interval  Duration `yaml:"interval"`
	BatchSize int      `yaml:"batch_size"`
}

// RetentionConfig is the maximum age per tier; zero keeps a tier forever.
type RetentionConfig struct {
	Raw    Duration `yaml:"raw"`
	Hourly Duration `yaml:"hourly"`
	Daily  Duration `yaml:"daily"`
}

// AggregationConfig holds the cron specs of the background jobs.
type AggregationConfig struct {
	Hourly  string `yaml:"hourly"`
	Daily   string `yaml:"daily"`
	Cleanup string `yaml:"cleanup"`
}

// SecretsConfig locates the credential encryption passphrase.
type SecretsConfig struct {
	PassphraseEnv string `yaml:"passphrase_env"`
	Salt          string `yaml:"salt"`
}

// ExportConfig enables JSON-lines sample export when Path is set.
type ExportConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig enables the self-monitoring endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

const day = 24 * time.Hour

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "snmp_monitor.db"},
		SNMP: SNMPConfig{
			Version:   "2c",
			Community: "public",
			Port:      161,
			Timeout:   Duration(5 * time.Second),
			Retries:   3,
		},
		Scheduler: SchedulerConfig{Interval: Duration(60 * time.Second), BatchSize: 10},
		Retention: RetentionConfig{
			Raw:    Duration(30 * day),
			Hourly: Duration(365 * day),
			Daily:  Duration(1095 * day),
		},
		Aggregation: AggregationConfig{
			Hourly:  "5 * * * *",
			Daily:   "15 0 * * *",
			Cleanup: "30 3 * * *",
		},
		Secrets: SecretsConfig{PassphraseEnv: "SNMPMON_MASTER_KEY", Salt: "snmp-monitor"},
		Export:  ExportConfig{MaxSizeMB: 64, MaxBackups: 7, MaxAgeDays: 7},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("config: decode %s: %w: %w", path, ErrInvalid, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides keys from the environment. Every malformed variable is
// reported.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := cast.ToIntE(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SNMPMON_DB_DRIVER", &c.Database.Driver)
	str("SNMPMON_DB_DSN", &c.Database.DSN)
	str("SNMPMON_SNMP_COMMUNITY", &c.SNMP.Community)
	dur("SNMPMON_SNMP_TIMEOUT", &c.SNMP.Timeout)
	num("SNMPMON_SNMP_RETRIES", &c.SNMP.Retries)
	dur("SNMPMON_SCHEDULER_INTERVAL", &c.Scheduler.Interval)
	num("SNMPMON_SCHEDULER_BATCH_SIZE", &c.Scheduler.BatchSize)
	str("SNMPMON_EXPORT_PATH", &c.Export.Path)
	str("SNMPMON_METRICS_LISTEN", &c.Metrics.Listen)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate checks the value ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		bad("database.driver %q: want postgres or sqlite", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		bad("database.dsn is required")
	}
	switch c.SNMP.Version {
	case "1", "2c", "3":
	default:
		bad("snmp.version %q: want 1, 2c or 3", c.SNMP.Version)
	}
	if c.SNMP.Port <= 0 || c.SNMP.Port > 65535 {
		bad("snmp.port %d out of range", c.SNMP.Port)
	}
	if c.SNMP.Timeout.Std() <= 0 {
		bad("snmp.timeout must be positive")
	}
	if c.SNMP.Retries < 0 {
		bad("snmp.retries must not be negative")
	}
	if c.Scheduler.Interval.Std() < time.Second {
		bad("scheduler.interval %s is below 1s", c.Scheduler.Interval)
	}
	if c.Scheduler.BatchSize <= 0 {
		bad("scheduler.batch_size must be positive")
	}
	for name, d := range map[string]Duration{
		"retention.raw":    c.Retention.Raw,
		"retention.hourly": c.Retention.Hourly,
		"retention.daily":  c.Retention.Daily,
	} {
		if d < 0 {
			bad("%s must not be negative", name)
		}
	}
	if c.Secrets.PassphraseEnv == "" {
		bad("secrets.passphrase_env is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

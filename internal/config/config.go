package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	BackendDatabricks = "databricks"
	BackendMySQL      = "mysql"
	BackendDuckDB     = "duckdb"

	RefreshInterval = "Interval-Based"
	RefreshSpecific = "Specific Date/Time"
	RefreshManual   = "Manual Only"

	DefaultSchema          = "multitable_logistics"
	DefaultRefreshInterval = 10
	DefaultPort            = 8501
	DefaultTrackerPath     = ".autodq/tracker.db"
	DefaultConfigFile      = "autodq.yaml"
)

// ErrMissingConnection is returned when the Databricks connection triple is
// incomplete.
var ErrMissingConnection = errors.New("missing required Databricks connection parameters")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	Backend    string           `koanf:"backend"`
	Schema     string           `koanf:"schema"`
	Databricks DatabricksConfig `koanf:"databricks"`
	MySQL      MySQLConfig      `koanf:"mysql"`
	DuckDB     DuckDBConfig     `koanf:"duckdb"`
	Refresh    RefreshConfig    `koanf:"refresh"`
	Server     ServerConfig     `koanf:"server"`
	Tracker    TrackerConfig    `koanf:"tracker"`
	Notify     NotifyConfig     `koanf:"notify"`
	Assistant  AssistantConfig  `koanf:"assistant"`
	Log        LogConfig        `koanf:"log"`
	RulesFile  string           `koanf:"rules_file"`
	Output     string           `koanf:"output"`
}

type DatabricksConfig struct {
	Host     string `koanf:"host"`
	Token    string `koanf:"token"`
	HTTPPath string `koanf:"http_path"`
	Catalog  string `koanf:"catalog"`
	JobID    int64  `koanf:"job_id"`
}

type MySQLConfig struct {
	DSN string `koanf:"dsn"`
}

type DuckDBConfig struct {
	Path string `koanf:"path"`
}

type RefreshConfig struct {
	Mode            string `koanf:"mode"`
	IntervalMinutes int    `koanf:"interval_minutes"`
	At              string `koanf:"at"`
}

type ServerConfig struct {
	Port           int      `koanf:"port"`
	SessionSecret  string   `koanf:"session_secret"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type TrackerConfig struct {
	Path string `koanf:"path"`
}

type NotifyConfig struct {
	SlackToken   string   `koanf:"slack_token"`
	SlackChannel string   `koanf:"slack_channel"`
	SlackWebhook string   `koanf:"slack_webhook"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

type AssistantConfig struct {
	Project  string `koanf:"project"`
	Location string `koanf:"location"`
	Model    string `koanf:"model"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// envKeys maps the documented environment variables onto config keys.
// Anything prefixed AUTODQ_ is mapped generically.
var envKeys = map[string]string{
	"DATABRICKS_HOST":          "databricks.host",
	"DATABRICKS_TOKEN":         "databricks.token",
	"DATABRICKS_HTTP_PATH":     "databricks.http_path",
	"DATABRICKS_CATALOG":       "databricks.catalog",
	"DATABRICKS_JOB_ID":        "databricks.job_id",
	"DEFAULT_SCHEMA":           "schema",
	"DEFAULT_REFRESH_INTERVAL": "refresh.interval_minutes",
	"DATABRICKS_APP_PORT":      "server.port",
}

func defaults() map[string]any {
	return map[string]any{
		"backend":                  BackendDatabricks,
		"schema":                   DefaultSchema,
		"refresh.mode":             RefreshInterval,
		"refresh.interval_minutes": DefaultRefreshInterval,
		"server.port":              DefaultPort,
		"server.allowed_origins":   []string{"*"},
		"tracker.path":             DefaultTrackerPath,
		"assistant.location":       "us-central1",
		"assistant.model":          "gemini-1.5-flash",
		"log.level":                "info",
		"log.format":               "console",
		"output":                   "table",
	}
}

// LoadConfig builds the configuration. Precedence, lowest to highest:
// defaults, config file, .env file, environment, flags. An empty path uses
// autodq.yaml when it exists.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env only fills variables that are not already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "log_level":
				key = "log.level"
			case "port":
				key = "server.port"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Databricks.Host = strings.TrimRight(cfg.Databricks.Host, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(name string) string {
	if key, ok := envKeys[name]; ok {
		return key
	}
	if rest, ok := strings.CutPrefix(name, "AUTODQ_"); ok {
		return strings.ReplaceAll(strings.ToLower(rest), "__", ".")
	}
	return ""
}

func (c *Config) validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendDatabricks, BackendMySQL, BackendDuckDB)),
		validation.Field(&c.Schema, validation.Required, validation.Match(identRe)),
		validation.Field(&c.Output, validation.In("table", "json", "csv")),
		validation.Field(&c.Refresh),
		validation.Field(&c.Server),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backend == BackendMySQL && c.MySQL.DSN == "" {
		return errors.New("invalid config: mysql.dsn is required for the mysql backend")
	}
	return nil
}

func (r RefreshConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.Required, validation.In(RefreshInterval, RefreshSpecific, RefreshManual)),
		validation.Field(&r.IntervalMinutes, validation.Min(1), validation.Max(1440)),
		validation.Field(&r.At, validation.When(r.Mode == RefreshSpecific, validation.Required, validation.Date(time.RFC3339))),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Min(1), validation.Max(65535)),
	)
}

// RequireDatabricks checks that the host, token and HTTP path are set.
func (d DatabricksConfig) RequireDatabricks() error {
	if d.Host == "" || d.Token == "" || d.HTTPPath == "" {
		return ErrMissingConnection
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.Host,
			validation.When(!strings.Contains(d.Host, "://"), is.Host),
			validation.When(strings.Contains(d.Host, "://"), is.URL),
		),
	)
}

// Hostname returns the host with any scheme stripped.
func (d DatabricksConfig) Hostname() string {
	h := strings.TrimPrefix(d.Host, "https://")
	h = strings.TrimPrefix(h, "http://")
	return strings.TrimRight(h, "/")
}

// BaseURL returns the workspace URL including the scheme.
func (d DatabricksConfig) BaseURL() string {
	if strings.Contains(d.Host, "://") {
		return d.Host
	}
	return "https://" + d.Host
}

// RefreshAt parses the configured specific refresh time.
func (r RefreshConfig) RefreshAt() (time.Time, bool) {
	if r.At == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, r.At)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ValidIdentifier reports whether s is safe to interpolate as a schema or
// table name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// MaskToken hides all but the last four characters of a credential.
func MaskToken(token string) string {
	if token == "" {
		return "Not set"
	}
	if len(token) <= 4 {
		return "***"
	}
	return "***" + token[len(token)-4:]
}

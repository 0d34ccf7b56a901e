package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Define constants for configuration keys, types, modes etc.
const (
	SourceTypeSQLite = "sqlite"

	TargetTypePostgres = "postgres"
	TargetTypeSQLite   = "sqlite"

	UpsertModeTouch     = "touch"     // ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
	UpsertModeOverwrite = "overwrite" // ON CONFLICT (id) DO UPDATE SET every column

	DefaultLogLevel         = "info"
	DefaultPageSize         = 500
	MaxPageSize             = 5000 // keeps rows*columns under the Postgres bind parameter limit
	DefaultWorkers          = 3
	DefaultUpsertMode       = UpsertModeTouch
	DefaultConnectTimeout   = 10 * time.Second
	DefaultStatementTimeout = 30 * time.Second
	DefaultSampleLimit      = 100
	DefaultPostgresHost     = "127.0.0.1"
	DefaultPostgresPort     = 5432
	DefaultPostgresSchema   = "content"
	DefaultSSLMode          = "disable"
)

// Environment variables consulted when the target section leaves a
// connection parameter empty.
const (
	EnvDBHost     = "DB_HOST"
	EnvDBPort     = "DB_PORT"
	EnvDBName     = "DB_NAME"
	EnvDBUser     = "DB_USER"
	EnvDBPassword = "DB_PASSWORD"
)

// Config defines the overall structure of the migration configuration file.
// It is built once by LoadConfig (or Default) and not modified afterwards.
type Config struct {
	// Logging configuration specifies the verbosity level.
	Logging LoggingConfig `yaml:"logging"`
	// Source is the store rows are read from.
	Source SourceConfig `yaml:"source"`
	// Target is the store rows are upserted into.
	Target TargetConfig `yaml:"target"`
	// Migration tunes paging, parallelism and timeouts.
	Migration MigrationConfig `yaml:"migration"`
	// Verification controls the post-load consistency checks.
	Verification VerificationConfig `yaml:"verification"`
	// Quality lists additional data-quality rules on top of the built-ins.
	Quality QualityConfig `yaml:"quality,omitempty"`
	// Report names the file the run report is written to, if any.
	Report ReportConfig `yaml:"report,omitempty"`
	// Mapping overrides whole tables of the built-in Schema Mapping Table.
	// Keys are source table names; values map source column to target
	// column ("" or "-" drops the column).
	Mapping map[string]map[string]string `yaml:"mapping,omitempty"`
}

// LoggingConfig holds settings related to logging verbosity.
type LoggingConfig struct {
	// Level defines the logging detail (e.g., "none", "error", "warn", "info", "debug").
	// Defaults to "info".
	Level string `yaml:"level"`
}

// SourceConfig details the source store.
type SourceConfig struct {
	// Type of the source store. Only "sqlite" is supported.
	Type string `yaml:"type"`
	// Path to the SQLite database file. Environment variables are expanded.
	Path string `yaml:"path"`
}

// TargetConfig details the target store. For postgres either DSN or the
// discrete connection parameters are used; empty parameters fall back to
// the DB_* environment variables.
type TargetConfig struct {
	Type     string `yaml:"type"`
	DSN      string `yaml:"dsn,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	DBName   string `yaml:"dbname,omitempty"`
	// Schema qualifies every target table (postgres only).
	Schema  string `yaml:"schema,omitempty"`
	SSLMode string `yaml:"sslmode,omitempty"`
	// Path to the SQLite database file (type sqlite only).
	Path string `yaml:"path,omitempty"`
}

// MigrationConfig tunes the orchestrator.
type MigrationConfig struct {
	// PageSize is the number of rows per extracted page and per upsert batch.
	PageSize int `yaml:"page_size"`
	// Workers bounds how many entities are migrated concurrently.
	Workers int `yaml:"workers"`
	// UpsertMode is "touch" (default) or "overwrite".
	UpsertMode string         `yaml:"upsert_mode"`
	Timeouts   TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig bounds every external call. Values use Go duration
// syntax ("10s", "1m").
type TimeoutsConfig struct {
	Connect   time.Duration `yaml:"connect"`
	Statement time.Duration `yaml:"statement"`
}

// VerificationConfig controls post-load checks.
type VerificationConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
	// SampleLimit is the number of rows compared field by field per entity.
	// Zero disables the sample comparison but keeps the count check.
	SampleLimit int `yaml:"sample_limit"`
}

// IsEnabled reports whether verification runs.
func (v VerificationConfig) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// QualityConfig holds extra data-quality rules.
type QualityConfig struct {
	Rules []QualityRule `yaml:"rules,omitempty"`
}

// QualityRule is a boolean govaluate expression evaluated against every
// record of Table; a false result counts as a quality issue.
// Example: "rating >= 50"
type QualityRule struct {
	Name       string `yaml:"name"`
	Table      string `yaml:"table"`
	Expression string `yaml:"expression"`
}

// ReportConfig names the run report output file. The format follows the
// extension: .json, .yaml/.yml, .csv or .xlsx.
type ReportConfig struct {
	File string `yaml:"file,omitempty"`
}

// ConnString builds the connection string for the target store. For
// postgres an explicit DSN wins; otherwise a URL is assembled from the
// discrete parameters with search_path set to the schema.
func (t TargetConfig) ConnString() string {
	switch strings.ToLower(t.Type) {
	case TargetTypeSQLite:
		return t.Path
	case TargetTypePostgres:
		if t.DSN != "" {
			return t.DSN
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   t.Host + ":" + strconv.Itoa(t.Port),
			Path:   "/" + t.DBName,
		}
		if t.User != "" {
			if t.Password != "" {
				u.User = url.UserPassword(t.User, t.Password)
			} else {
				u.User = url.User(t.User)
			}
		}
		q := url.Values{}
		if t.SSLMode != "" {
			q.Set("sslmode", t.SSLMode)
		}
		if t.Schema != "" {
			q.Set("search_path", t.Schema)
		}
		u.RawQuery = q.Encode()
		return u.String()
	default:
		return ""
	}
}

// String describes the target without credentials.
func (t TargetConfig) String() string {
	switch strings.ToLower(t.Type) {
	case TargetTypeSQLite:
		return fmt.Sprintf("sqlite:%s", t.Path)
	case TargetTypePostgres:
		if t.DSN != "" {
			return "postgres (dsn)"
		}
		return fmt.Sprintf("postgres://%s:%d/%s schema=%s", t.Host, t.Port, t.DBName, t.Schema)
	default:
		return t.Type
	}
}

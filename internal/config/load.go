package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"moviemigrate/internal/util"

	"gopkg.in/yaml.v3"
)

// lookupEnvFunc allows overriding environment lookups for testing.
var lookupEnvFunc = os.LookupEnv

// LoadConfig reads, parses, and validates the YAML configuration file.
// It expands environment variables in string settings and applies defaults
// before returning the validated configuration.
func LoadConfig(filename string) (*Config, error) {
	cfg, err := ReadConfig(filename)
	if err != nil {
		return nil, err
	}
	return Finalize(cfg)
}

// ReadConfig parses the YAML configuration file without defaults or
// validation, so that command-line overrides can be applied before
// Finalize.
func ReadConfig(filename string) (*Config, error) {
	// Read the configuration file content.
	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(fileBytes, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in '%s': %w", filename, err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no source
// path; callers fill in the source and target before calling Finalize.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Finalize expands environment variables, applies defaults and validates
// cfg. It is the common tail of LoadConfig and of configurations assembled
// from command-line flags.
func Finalize(cfg *Config) (*Config, error) {
	expandEnv(cfg)
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv expands $VAR, ${VAR} and %VAR% references in path and
// connection settings.
func expandEnv(cfg *Config) {
	cfg.Source.Path = util.ExpandEnvUniversal(cfg.Source.Path)
	t := &cfg.Target
	t.DSN = util.ExpandEnvUniversal(t.DSN)
	t.Host = util.ExpandEnvUniversal(t.Host)
	t.User = util.ExpandEnvUniversal(t.User)
	t.Password = util.ExpandEnvUniversal(t.Password)
	t.DBName = util.ExpandEnvUniversal(t.DBName)
	t.Path = util.ExpandEnvUniversal(t.Path)
	cfg.Report.File = util.ExpandEnvUniversal(cfg.Report.File)
}

// applyDefaults sets default values for various configuration sections.
func applyDefaults(cfg *Config) {
	// Logging level default
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Source.Type == "" {
		cfg.Source.Type = SourceTypeSQLite
	}
	cfg.Source.Type = strings.ToLower(cfg.Source.Type)
	if cfg.Target.Type == "" {
		cfg.Target.Type = TargetTypePostgres
	}
	cfg.Target.Type = strings.ToLower(cfg.Target.Type)
	if cfg.Target.Type == TargetTypePostgres {
		applyPostgresDefaults(&cfg.Target)
	}

	m := &cfg.Migration
	if m.PageSize == 0 {
		m.PageSize = DefaultPageSize
	}
	if m.Workers == 0 {
		m.Workers = DefaultWorkers
	}
	if m.UpsertMode == "" {
		m.UpsertMode = DefaultUpsertMode
	}
	m.UpsertMode = strings.ToLower(m.UpsertMode)
	if m.Timeouts.Connect == 0 {
		m.Timeouts.Connect = DefaultConnectTimeout
	}
	if m.Timeouts.Statement == 0 {
		m.Timeouts.Statement = DefaultStatementTimeout
	}

	if cfg.Verification.Enabled == nil {
		trueVal := true
		cfg.Verification.Enabled = &trueVal
	}
	if cfg.Verification.SampleLimit == 0 {
		cfg.Verification.SampleLimit = DefaultSampleLimit
	}
}

// applyPostgresDefaults fills connection parameters left empty from the
// DB_* environment variables, then from built-in defaults. A DSN makes the
// discrete parameters irrelevant but the schema default still applies.
func applyPostgresDefaults(t *TargetConfig) {
	if t.Schema == "" {
		t.Schema = DefaultPostgresSchema
	}
	if t.DSN != "" {
		return
	}
	if t.Host == "" {
		t.Host = envOr(EnvDBHost, DefaultPostgresHost)
	}
	if t.Port == 0 {
		t.Port = DefaultPostgresPort
		if v, ok := lookupEnvFunc(EnvDBPort); ok {
			// An unparsable port is left for validation to report.
			if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				t.Port = p
			} else {
				t.Port = -1
			}
		}
	}
	if t.DBName == "" {
		t.DBName = envOr(EnvDBName, "")
	}
	if t.User == "" {
		t.User = envOr(EnvDBUser, "")
	}
	if t.Password == "" {
		t.Password = envOr(EnvDBPassword, "")
	}
	if t.SSLMode == "" {
		t.SSLMode = DefaultSSLMode
	}
}

func envOr(key, fallback string) string {
	if v, ok := lookupEnvFunc(key); ok && v != "" {
		return v
	}
	return fallback
}

package config

import (
	"fmt"
	"strings"

	"moviemigrate/internal/logging"
	"moviemigrate/internal/mapping"
	"moviemigrate/internal/records"

	"github.com/Knetic/govaluate"
)

// Define known valid enum values for configuration fields.
var (
	knownLogLevels   = []string{"none", "error", "warn", "warning", "info", "debug"}
	knownSourceTypes = []string{SourceTypeSQLite}
	knownTargetTypes = []string{TargetTypePostgres, TargetTypeSQLite}
	knownUpsertModes = []string{UpsertModeTouch, UpsertModeOverwrite}
	knownSSLModes    = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
)

// isValidEnumValue checks if a value is present in a list of allowed string values (case-insensitive).
func isValidEnumValue(value string, allowedValues []string) bool {
	lowerValue := strings.ToLower(value)
	for _, allowed := range allowedValues {
		if lowerValue == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// ValidateConfig performs comprehensive validation of the entire
// configuration. Every problem found is reported in a single error.
func ValidateConfig(cfg *Config) error {
	var allErrors []string

	if !isValidEnumValue(cfg.Logging.Level, knownLogLevels) {
		allErrors = append(allErrors, fmt.Sprintf("- Config.Logging.Level: invalid log level '%s', must be one of %v", cfg.Logging.Level, knownLogLevels))
	}

	allErrors = append(allErrors, validateSourceConfig("Config.Source", &cfg.Source)...)
	allErrors = append(allErrors, validateTargetConfig("Config.Target", &cfg.Target)...)
	allErrors = append(allErrors, validateMigrationConfig("Config.Migration", &cfg.Migration)...)

	if cfg.Verification.SampleLimit < 0 {
		allErrors = append(allErrors, fmt.Sprintf("- Config.Verification.SampleLimit: must be >= 0, got %d", cfg.Verification.SampleLimit))
	}

	for i, rule := range cfg.Quality.Rules {
		allErrors = append(allErrors, validateQualityRule(fmt.Sprintf("Config.Quality.Rules[%d]", i), rule)...)
	}

	if len(cfg.Mapping) > 0 {
		if _, err := mapping.FromConfig(cfg.Mapping); err != nil {
			allErrors = append(allErrors, fmt.Sprintf("- Config.Mapping: %v", err))
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(allErrors, "\n"))
	}
	logging.Logf(logging.Debug, "Configuration validation successful.")
	return nil
}

// validateSourceConfig validates the Source section of the configuration.
func validateSourceConfig(prefix string, cfg *SourceConfig) []string {
	var errs []string
	if !isValidEnumValue(cfg.Type, knownSourceTypes) {
		errs = append(errs, fmt.Sprintf("- %s.Type: invalid source type '%s', must be one of %v", prefix, cfg.Type, knownSourceTypes))
	}
	if strings.TrimSpace(cfg.Path) == "" {
		errs = append(errs, fmt.Sprintf("- %s.Path: is required", prefix))
	}
	return errs
}

// validateTargetConfig validates the Target section of the configuration.
func validateTargetConfig(prefix string, cfg *TargetConfig) []string {
	var errs []string
	if !isValidEnumValue(cfg.Type, knownTargetTypes) {
		errs = append(errs, fmt.Sprintf("- %s.Type: invalid target type '%s', must be one of %v", prefix, cfg.Type, knownTargetTypes))
		return errs // Stop further target validation if type is invalid
	}
	switch cfg.Type {
	case TargetTypeSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			errs = append(errs, fmt.Sprintf("- %s.Path: is required for type 'sqlite'", prefix))
		}
	case TargetTypePostgres:
		if cfg.DSN != "" {
			break
		}
		if cfg.Host == "" {
			errs = append(errs, fmt.Sprintf("- %s.Host: is required (or set %s)", prefix, EnvDBHost))
		}
		if cfg.Port <= 0 || cfg.Port > 65535 {
			errs = append(errs, fmt.Sprintf("- %s.Port: invalid port %d", prefix, cfg.Port))
		}
		if cfg.DBName == "" {
			errs = append(errs, fmt.Sprintf("- %s.DBName: is required (or set %s)", prefix, EnvDBName))
		}
		if cfg.SSLMode != "" && !isValidEnumValue(cfg.SSLMode, knownSSLModes) {
			errs = append(errs, fmt.Sprintf("- %s.SSLMode: invalid sslmode '%s', must be one of %v", prefix, cfg.SSLMode, knownSSLModes))
		}
	}
	if cfg.Schema != "" && !isIdentifier(cfg.Schema) {
		errs = append(errs, fmt.Sprintf("- %s.Schema: '%s' is not a valid identifier", prefix, cfg.Schema))
	}
	return errs
}

// validateMigrationConfig validates paging, parallelism and timeouts.
func validateMigrationConfig(prefix string, cfg *MigrationConfig) []string {
	var errs []string
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		errs = append(errs, fmt.Sprintf("- %s.PageSize: must be between 1 and %d, got %d", prefix, MaxPageSize, cfg.PageSize))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Sprintf("- %s.Workers: must be >= 1, got %d", prefix, cfg.Workers))
	}
	if !isValidEnumValue(cfg.UpsertMode, knownUpsertModes) {
		errs = append(errs, fmt.Sprintf("- %s.UpsertMode: invalid mode '%s', must be one of %v", prefix, cfg.UpsertMode, knownUpsertModes))
	}
	if cfg.Timeouts.Connect < 0 {
		errs = append(errs, fmt.Sprintf("- %s.Timeouts.Connect: must not be negative", prefix))
	}
	if cfg.Timeouts.Statement < 0 {
		errs = append(errs, fmt.Sprintf("- %s.Timeouts.Statement: must not be negative", prefix))
	}
	return errs
}

// validateQualityRule checks that a rule names an entity table and that its
// expression compiles and only references columns of that table.
func validateQualityRule(prefix string, rule QualityRule) []string {
	var errs []string
	if strings.TrimSpace(rule.Name) == "" {
		errs = append(errs, fmt.Sprintf("- %s.Name: is required", prefix))
	}
	kind, kindErr := records.ParseKind(rule.Table)
	if kindErr != nil {
		errs = append(errs, fmt.Sprintf("- %s.Table: %v", prefix, kindErr))
	}
	if strings.TrimSpace(rule.Expression) == "" {
		errs = append(errs, fmt.Sprintf("- %s.Expression: is required", prefix))
		return errs
	}
	expr, err := govaluate.NewEvaluableExpression(rule.Expression)
	if err != nil {
		errs = append(errs, fmt.Sprintf("- %s.Expression: invalid expression syntax: %v", prefix, err))
		return errs
	}
	if kindErr != nil {
		return errs
	}
	for _, v := range expr.Vars() {
		if !records.HasColumn(kind, v) {
			errs = append(errs, fmt.Sprintf("- %s.Expression: unknown column '%s' for table '%s'", prefix, v, kind.Table()))
		}
	}
	return errs
}

// isIdentifier accepts plain lower-case SQL identifiers.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

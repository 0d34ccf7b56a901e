package io

import (
	"context"
	"fmt"
	"strings"

	"moviemigrate/internal/config"
	"moviemigrate/internal/logging"
)

// NewSource creates the SourceStore described by the source configuration.
func NewSource(ctx context.Context, cfg config.SourceConfig, timeouts config.TimeoutsConfig) (SourceStore, error) {
	sourceType := strings.ToLower(cfg.Type)
	logging.Logf(logging.Debug, "Creating source store for type: %s", sourceType)

	switch sourceType {
	case config.SourceTypeSQLite:
		src, err := NewSQLiteSource(ctx, cfg.Path, timeouts.Connect, timeouts.Statement)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source type '%s'", cfg.Type)
	}
}

// NewTarget creates the TargetStore described by the target configuration.
// poolSize caps the number of concurrent connections (one per worker).
func NewTarget(ctx context.Context, cfg config.TargetConfig, timeouts config.TimeoutsConfig, poolSize int) (TargetStore, error) {
	targetType := strings.ToLower(cfg.Type)
	logging.Logf(logging.Debug, "Creating target store for type: %s", targetType)

	switch targetType {
	case config.TargetTypePostgres:
		tgt, err := NewPostgresTarget(ctx, PostgresOptions{
			ConnString:       cfg.ConnString(),
			Schema:           cfg.Schema,
			MaxConns:         int32(poolSize),
			ConnectTimeout:   timeouts.Connect,
			StatementTimeout: timeouts.Statement,
		})
		if err != nil {
			return nil, err
		}
		return tgt, nil
	case config.TargetTypeSQLite:
		tgt, err := NewSQLiteTarget(ctx, cfg.Path, timeouts.Connect, timeouts.Statement)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite target: %w", err)
		}
		return tgt, nil
	default:
		return nil, fmt.Errorf("unsupported target type '%s'", cfg.Type)
	}
}

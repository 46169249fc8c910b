package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the audit store.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)

	// Scoring results
	SaveScoringResult(ctx context.Context, tenantID string, res *ScoringResult) error
	GetScoringResult(ctx context.Context, tenantID string, resultID string) (*ScoringResult, error)
	ListScoringResultsByTx(ctx context.Context, tenantID string, txID string) ([]*ScoringResult, error)

	// Decision policy override rules
	SaveOverrideRule(ctx context.Context, tenantID string, rule *OverrideRule) error
	GetOverrideRule(ctx context.Context, tenantID string, ruleID string) (*OverrideRule, error)
	ListOverrideRules(ctx context.Context, tenantID string) ([]*OverrideRule, error)
	DeleteOverrideRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

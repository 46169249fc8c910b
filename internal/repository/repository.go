// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	signals, _ := json.Marshal(tx.Signals)
	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, tenant_id, elapsed_secs, signals, amount, received_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.ElapsedSecs, string(signals),
		tx.Amount, tx.ReceivedAt, string(metadata),
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, elapsed_secs, signals, amount, received_at, metadata
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.Transaction
	var signals, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.ElapsedSecs, &signals,
		&tx.Amount, &tx.ReceivedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(signals), &tx.Signals); err != nil {
		return nil, fmt.Errorf("failed to parse signals for %s: %w", tx.ID, err)
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// SaveScoringResult stores a scoring result with tenant isolation.
func (r *SQLRepository) SaveScoringResult(ctx context.Context, tenantID string, res *domain.ScoringResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	components, _ := json.Marshal(res.Score.Components)
	decision, _ := json.Marshal(res.Decision)
	timings, _ := json.Marshal(res.Timings)

	var attribution []byte
	if res.Attribution != nil {
		attribution, _ = json.Marshal(res.Attribution)
	}

	query := `
		INSERT INTO scorings (
			id, tenant_id, tx_id, score, tier, action,
			components, decision, attribution, timings, model_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		res.ID, tenantID, res.TxID, res.Score.Value,
		string(res.Decision.Tier), string(res.Decision.Action),
		string(components), string(decision), nullableString(attribution),
		string(timings), res.ModelVersion, res.Timestamp,
	)
	return err
}

// GetScoringResult retrieves a scoring result by ID with tenant isolation.
func (r *SQLRepository) GetScoringResult(ctx context.Context, tenantID string, resultID string) (*domain.ScoringResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, score, components, decision,
			   attribution, timings, model_version, created_at
		FROM scorings
		WHERE tenant_id = ? AND id = ?
	`

	res, err := r.scanScoring(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, resultID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ListScoringResultsByTx retrieves all scoring results for a transaction,
// newest first.
func (r *SQLRepository) ListScoringResultsByTx(ctx context.Context, tenantID string, txID string) ([]*domain.ScoringResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, score, components, decision,
			   attribution, timings, model_version, created_at
		FROM scorings
		WHERE tenant_id = ? AND tx_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ScoringResult
	for rows.Next() {
		res, err := r.scanScoring(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLRepository) scanScoring(s scanner) (*domain.ScoringResult, error) {
	var res domain.ScoringResult
	var components, decision, timings string
	var attribution sql.NullString

	err := s.Scan(
		&res.ID, &res.TenantID, &res.TxID, &res.Score.Value,
		&components, &decision, &attribution, &timings,
		&res.ModelVersion, &res.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(components), &res.Score.Components); err != nil {
		return nil, fmt.Errorf("failed to parse components for %s: %w", res.ID, err)
	}
	if err := json.Unmarshal([]byte(decision), &res.Decision); err != nil {
		return nil, fmt.Errorf("failed to parse decision for %s: %w", res.ID, err)
	}
	json.Unmarshal([]byte(timings), &res.Timings)
	if attribution.Valid && attribution.String != "" {
		res.Attribution = &domain.Attribution{}
		if err := json.Unmarshal([]byte(attribution.String), res.Attribution); err != nil {
			return nil, fmt.Errorf("failed to parse attribution for %s: %w", res.ID, err)
		}
	}

	return &res, nil
}

// SaveOverrideRule stores an override rule, updating in place when the
// same (id, version) already exists for the tenant.
func (r *SQLRepository) SaveOverrideRule(ctx context.Context, tenantID string, rule *domain.OverrideRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO override_rules (
			id, tenant_id, name, description, version, expression,
			tier, action, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			tier = excluded.tier,
			action = excluded.action,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression,
		string(rule.Tier), string(rule.Action), rule.Reason, enabled,
		now, now,
	)
	return err
}

// GetOverrideRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetOverrideRule(ctx context.Context, tenantID string, ruleID string) (*domain.OverrideRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, tier, action, reason, enabled
		FROM override_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.OverrideRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.Tier, &rule.Action,
		&rule.Reason, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListOverrideRules retrieves all enabled override rules for a tenant.
func (r *SQLRepository) ListOverrideRules(ctx context.Context, tenantID string) ([]*domain.OverrideRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, tier, action, reason, enabled
		FROM override_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.OverrideRule
	for rows.Next() {
		var rule domain.OverrideRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.Tier, &rule.Action,
			&rule.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteOverrideRule soft-deletes a rule by disabling all its versions.
func (r *SQLRepository) DeleteOverrideRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE override_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

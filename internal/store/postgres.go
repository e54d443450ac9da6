package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/branchpnl/pnl-dashboard/internal/types"
)

// PostgresStore implements Store on PostgreSQL. Documents live in JSONB
// columns next to the fields used for listing and ordering.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pnl_quarters (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		location_count INTEGER NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMPTZ NOT NULL,
		doc JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pnl_quarters_uploaded ON pnl_quarters(uploaded_at)`,
	`CREATE TABLE IF NOT EXISTS pnl_branch_states (
		quarter_id TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		branch_name TEXT NOT NULL,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (quarter_id, doc_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pnl_config (
		key TEXT PRIMARY KEY,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// NewPostgresStore connects to dsn and creates the tables if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := validateID(dsn, "dsn"); err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	for _, q := range postgresSchema {
		if _, err := pool.Exec(ctx, q); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveQuarter(ctx context.Context, q *types.Quarter) error {
	if err := validateID(q.ID, "quarter id"); err != nil {
		return err
	}
	if q.UploadedAt.IsZero() {
		q.UploadedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to encode quarter: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pnl_quarters (id, label, location_count, uploaded_at, doc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			location_count = EXCLUDED.location_count,
			uploaded_at = EXCLUDED.uploaded_at,
			doc = EXCLUDED.doc`,
		q.ID, q.Label, q.LocationCount, q.UploadedAt, doc)
	if err != nil {
		return fmt.Errorf("failed to save quarter %s: %w", q.ID, err)
	}
	return nil
}

func (s *PostgresStore) LoadQuarter(ctx context.Context, id string) (*types.Quarter, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM pnl_quarters WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quarter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quarter %s: %w", id, err)
	}
	var q types.Quarter
	if err := json.Unmarshal(doc, &q); err != nil {
		return nil, fmt.Errorf("failed to decode quarter %s: %w", id, err)
	}
	return &q, nil
}

func (s *PostgresStore) ListQuarters(ctx context.Context) ([]types.QuarterSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, label, location_count, uploaded_at
		FROM pnl_quarters
		ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarters: %w", err)
	}
	defer rows.Close()

	var out []types.QuarterSummary
	for rows.Next() {
		var q types.QuarterSummary
		if err := rows.Scan(&q.ID, &q.Label, &q.LocationCount, &q.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quarter: %w", err)
		}
		q.UploadedAt = q.UploadedAt.UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteQuarter(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM pnl_quarters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quarter %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quarter %s: %w", id, ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pnl_branch_states WHERE quarter_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete branch states of %s: %w", id, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadBranchStates(ctx context.Context, quarterID string) (map[string]types.BranchState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT branch_name, doc FROM pnl_branch_states WHERE quarter_id = $1`, quarterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.BranchState)
	for rows.Next() {
		var (
			name string
			doc  []byte
		)
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan branch state: %w", err)
		}
		var st types.BranchState
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, fmt.Errorf("failed to decode branch state %q: %w", name, err)
		}
		out[name] = st
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveBranchState(ctx context.Context, quarterID, branchName string, patch types.BranchState) (types.BranchState, error) {
	if err := validateID(quarterID, "quarter id"); err != nil {
		return types.BranchState{}, err
	}
	if err := validateID(branchName, "branch name"); err != nil {
		return types.BranchState{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.BranchState{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docID := StateDocID(branchName)
	var current types.BranchState
	var doc []byte
	err = tx.QueryRow(ctx,
		`SELECT doc FROM pnl_branch_states WHERE quarter_id = $1 AND doc_id = $2 FOR UPDATE`,
		quarterID, docID).Scan(&doc)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return types.BranchState{}, fmt.Errorf("failed to read branch state: %w", err)
	default:
		if err := json.Unmarshal(doc, &current); err != nil {
			return types.BranchState{}, fmt.Errorf("failed to decode branch state: %w", err)
		}
	}

	merged := current.Merge(patch)
	data, err := json.Marshal(merged)
	if err != nil {
		return types.BranchState{}, fmt.Errorf("failed to encode branch state: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO pnl_branch_states (quarter_id, doc_id, branch_name, doc, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (quarter_id, doc_id) DO UPDATE SET
			branch_name = EXCLUDED.branch_name,
			doc = EXCLUDED.doc,
			updated_at = now()`,
		quarterID, docID, branchName, data)
	if err != nil {
		return types.BranchState{}, fmt.Errorf("failed to save branch state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return types.BranchState{}, fmt.Errorf("failed to commit branch state: %w", err)
	}
	return merged, nil
}

func (s *PostgresStore) LoadDirectory(ctx context.Context) (types.Directory, error) {
	var dir types.Directory
	if err := s.loadConfig(ctx, keyDirectory, &dir); err != nil {
		return types.Directory{}, err
	}
	return dir, nil
}

func (s *PostgresStore) SaveDirectory(ctx context.Context, dir types.Directory) error {
	return s.saveConfig(ctx, keyDirectory, dir)
}

func (s *PostgresStore) LoadColumnVisibility(ctx context.Context) (map[string]bool, error) {
	var cols map[string]bool
	if err := s.loadConfig(ctx, keyColumnVisibility, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (s *PostgresStore) SaveColumnVisibility(ctx context.Context, cols map[string]bool) error {
	return s.saveConfig(ctx, keyColumnVisibility, cols)
}

func (s *PostgresStore) loadConfig(ctx context.Context, key string, v any) error {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM pnl_config WHERE key = $1`, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("config %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", key, err)
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) saveConfig(ctx context.Context, key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pnl_config (key, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		key, doc)
	if err != nil {
		return fmt.Errorf("failed to save config %s: %w", key, err)
	}
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/branchpnl/pnl-dashboard/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// Call Migrate before use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := validateID(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; WAL lets readers proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// MIGRATIONS
// =============================================================================

// ExpectedSchemaVersion is the schema version Migrate brings the file to.
const ExpectedSchemaVersion = 2

// Migration is one schema step.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS quarters (
					id TEXT PRIMARY KEY,
					label TEXT NOT NULL,
					location_count INTEGER NOT NULL DEFAULT 0,
					uploaded_at INTEGER NOT NULL,
					doc TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_quarters_uploaded ON quarters(uploaded_at)`,
				`CREATE TABLE IF NOT EXISTS config (
					key TEXT PRIMARY KEY,
					doc TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Branch state documents",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS branch_states (
					quarter_id TEXT NOT NULL,
					doc_id TEXT NOT NULL,
					branch_name TEXT NOT NULL,
					doc TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (quarter_id, doc_id)
				)`,
			)
		},
	},
}

// Migrate applies all pending migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Debug("Applied migration",
			"version", m.Version,
			"description", m.Description)
	}

	var final int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&final); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}

// =============================================================================
// QUARTERS
// =============================================================================

func (s *SQLiteStore) SaveQuarter(ctx context.Context, q *types.Quarter) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quarters (id, label, location_count, uploaded_at, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			location_count = excluded.location_count,
			uploaded_at = excluded.uploaded_at,
			doc = excluded.doc`,
		q.ID, q.Label, q.LocationCount, q.UploadedAt.UnixNano(), string(doc))
	if err != nil {
		return fmt.Errorf("failed to save quarter %s: %w", q.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadQuarter(ctx context.Context, id string) (*types.Quarter, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM quarters WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quarter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quarter %s: %w", id, err)
	}

	var q types.Quarter
	if err := json.Unmarshal([]byte(doc), &q); err != nil {
		return nil, fmt.Errorf("failed to decode quarter %s: %w", id, err)
	}
	return &q, nil
}

func (s *SQLiteStore) ListQuarters(ctx context.Context) ([]types.QuarterSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, location_count, uploaded_at
		FROM quarters
		ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarters: %w", err)
	}
	defer rows.Close()

	var out []types.QuarterSummary
	for rows.Next() {
		var (
			q     types.QuarterSummary
			nanos int64
		)
		if err := rows.Scan(&q.ID, &q.Label, &q.LocationCount, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan quarter: %w", err)
		}
		q.UploadedAt = time.Unix(0, nanos).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteQuarter(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM quarters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quarter %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("quarter %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM branch_states WHERE quarter_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete branch states of %s: %w", id, err)
	}
	return tx.Commit()
}

// =============================================================================
// BRANCH STATES
// =============================================================================

func (s *SQLiteStore) LoadBranchStates(ctx context.Context, quarterID string) (map[string]types.BranchState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT branch_name, doc FROM branch_states WHERE quarter_id = ?`, quarterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.BranchState)
	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan branch state: %w", err)
		}
		var st types.BranchState
		if err := json.Unmarshal([]byte(doc), &st); err != nil {
			return nil, fmt.Errorf("failed to decode branch state %q: %w", name, err)
		}
		out[name] = st
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveBranchState(ctx context.Context, quarterID, branchName string, patch types.BranchState) (types.BranchState, error) {
	if err := validateID(quarterID, "quarter id"); err != nil {
		return types.BranchState{}, err
	}
	if err := validateID(branchName, "branch name"); err != nil {
		return types.BranchState{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.BranchState{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	docID := StateDocID(branchName)
	var current types.BranchState
	var doc string
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM branch_states WHERE quarter_id = ? AND doc_id = ?`, quarterID, docID).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.BranchState{}, fmt.Errorf("failed to read branch state: %w", err)
	default:
		if err := json.Unmarshal([]byte(doc), &current); err != nil {
			return types.BranchState{}, fmt.Errorf("failed to decode branch state: %w", err)
		}
	}

	merged := current.Merge(patch)
	data, err := json.Marshal(merged)
	if err != nil {
		return types.BranchState{}, fmt.Errorf("failed to encode branch state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO branch_states (quarter_id, doc_id, branch_name, doc, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(quarter_id, doc_id) DO UPDATE SET
			branch_name = excluded.branch_name,
			doc = excluded.doc,
			updated_at = CURRENT_TIMESTAMP`,
		quarterID, docID, branchName, string(data))
	if err != nil {
		return types.BranchState{}, fmt.Errorf("failed to save branch state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.BranchState{}, fmt.Errorf("failed to commit branch state: %w", err)
	}
	return merged, nil
}

// =============================================================================
// CONFIG DOCUMENTS
// =============================================================================

func (s *SQLiteStore) LoadDirectory(ctx context.Context) (types.Directory, error) {
	var dir types.Directory
	if err := s.loadConfig(ctx, keyDirectory, &dir); err != nil {
		return types.Directory{}, err
	}
	return dir, nil
}

func (s *SQLiteStore) SaveDirectory(ctx context.Context, dir types.Directory) error {
	return s.saveConfig(ctx, keyDirectory, dir)
}

func (s *SQLiteStore) LoadColumnVisibility(ctx context.Context) (map[string]bool, error) {
	var cols map[string]bool
	if err := s.loadConfig(ctx, keyColumnVisibility, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (s *SQLiteStore) SaveColumnVisibility(ctx context.Context, cols map[string]bool) error {
	return s.saveConfig(ctx, keyColumnVisibility, cols)
}

func (s *SQLiteStore) loadConfig(ctx context.Context, key string, v any) error {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM config WHERE key = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("config %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) saveConfig(ctx context.Context, key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config (key, doc, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`,
		key, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save config %s: %w", key, err)
	}
	return nil
}

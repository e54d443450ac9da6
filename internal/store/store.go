// =============================================================================
// Branch P&L Dashboard - Document Store
// =============================================================================
//
// This package persists the dashboard's documents:
//   - quarters      : one ParseResult per uploaded quarter, replaced on re-upload
//   - branch_states : notes / archived / export flag per branch per quarter
//   - config        : the company directory and the column visibility map
//
// Documents are stored as JSON so that the shape written by the parser is
// the shape read back by the dashboard and the exporters. Two backends share
// one interface:
//   - SQLiteStore   : embedded, file based (default)
//   - PostgresStore : hosted, via pgx connection pool
//
// =============================================================================

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/branchpnl/pnl-dashboard/internal/types"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Config document keys.
const (
	keyDirectory        = "directory"
	keyColumnVisibility = "columnVisibility"
)

// Store is the persistence interface used by the pipeline, the CLI and the
// HTTP server. All methods are safe for concurrent use.
type Store interface {
	// SaveQuarter replaces the quarter document. A zero UploadedAt is set
	// to the current time.
	SaveQuarter(ctx context.Context, q *types.Quarter) error

	// LoadQuarter returns ErrNotFound for an unknown id.
	LoadQuarter(ctx context.Context, id string) (*types.Quarter, error)

	// ListQuarters returns summaries, most recent upload first.
	ListQuarters(ctx context.Context) ([]types.QuarterSummary, error)

	// DeleteQuarter removes the quarter and its branch states.
	DeleteQuarter(ctx context.Context, id string) error

	// LoadBranchStates returns the states of one quarter keyed by branch name.
	LoadBranchStates(ctx context.Context, quarterID string) (map[string]types.BranchState, error)

	// SaveBranchState merges patch into the stored state and returns the result.
	SaveBranchState(ctx context.Context, quarterID, branchName string, patch types.BranchState) (types.BranchState, error)

	LoadDirectory(ctx context.Context) (types.Directory, error)
	SaveDirectory(ctx context.Context, dir types.Directory) error

	// LoadColumnVisibility returns the visible flag per line-item key.
	LoadColumnVisibility(ctx context.Context) (map[string]bool, error)
	SaveColumnVisibility(ctx context.Context, cols map[string]bool) error

	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured backend and applies its schema.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite, "sqlite3":
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case DriverPostgres, "pgx":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want sqlite or postgres)", driver)
	}
}

// EnsureDirectory returns the stored directory, saving fallback first when
// none has been stored yet.
func EnsureDirectory(ctx context.Context, s Store, fallback types.Directory) (types.Directory, error) {
	dir, err := s.LoadDirectory(ctx)
	if err == nil {
		return dir, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Directory{}, err
	}
	if err := s.SaveDirectory(ctx, fallback); err != nil {
		return types.Directory{}, fmt.Errorf("failed to seed directory: %w", err)
	}
	return fallback, nil
}

// StateDocID is the branch state key for a branch name. Slashes are not
// allowed in document ids, so they become underscores.
func StateDocID(branchName string) string {
	return strings.ReplaceAll(branchName, "/", "_")
}

func validateID(id, name string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	return nil
}

// ABOUTME: SQLite audit store for tool invocations and profile activations.
// ABOUTME: Records metadata only; tool arguments and results are never persisted.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/mcp-hub/internal/router"
)

// SQLiteStore records gateway audit events in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the audit database at path. Parent
// directories are created if needed and the schema is applied on open.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps audit writes from blocking reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("audit store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id             TEXT PRIMARY KEY,
			qualified_name TEXT NOT NULL,
			backend_id     TEXT NOT NULL,
			profile        TEXT NOT NULL,
			duration_ms    INTEGER NOT NULL,
			is_error       INTEGER NOT NULL,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_profile
			ON invocations(profile, created_at);
		CREATE INDEX IF NOT EXISTS idx_invocations_tool
			ON invocations(qualified_name);

		CREATE TABLE IF NOT EXISTS activations (
			id            TEXT PRIMARY KEY,
			profile       TEXT NOT NULL,
			backend_count INTEGER NOT NULL,
			tool_count    INTEGER NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activations_profile
			ON activations(profile, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// RecordInvocation stores one routed tool call.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv router.Invocation) error {
	query := `
		INSERT INTO invocations (id, qualified_name, backend_id, profile, duration_ms, is_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		inv.QualifiedName,
		inv.BackendID,
		inv.Profile,
		inv.Duration.Milliseconds(),
		boolToInt(inv.IsError),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}
	return nil
}

// RecordActivation stores one profile activation.
func (s *SQLiteStore) RecordActivation(ctx context.Context, profileName string, backendCount, toolCount int) error {
	query := `
		INSERT INTO activations (id, profile, backend_count, tool_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		profileName,
		backendCount,
		toolCount,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting activation: %w", err)
	}
	return nil
}

// InvocationRecord is one stored tool call.
type InvocationRecord struct {
	ID            string    `json:"id"`
	QualifiedName string    `json:"qualifiedName"`
	BackendID     string    `json:"backendId"`
	Profile       string    `json:"profile"`
	DurationMS    int64     `json:"durationMs"`
	IsError       bool      `json:"isError"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ListInvocations returns the most recent invocations, newest first.
func (s *SQLiteStore) ListInvocations(ctx context.Context, limit int) ([]*InvocationRecord, error) {
	query := `
		SELECT id, qualified_name, backend_id, profile, duration_ms, is_error, created_at
		FROM invocations
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer rows.Close()

	var out []*InvocationRecord
	for rows.Next() {
		var (
			rec       InvocationRecord
			isError   int
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.QualifiedName, &rec.BackendID, &rec.Profile,
			&rec.DurationMS, &isError, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning invocation: %w", err)
		}
		rec.IsError = isError != 0
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ToolUsage aggregates invocation counts for one tool.
type ToolUsage struct {
	QualifiedName string `json:"qualifiedName"`
	Calls         int64  `json:"calls"`
	Errors        int64  `json:"errors"`
}

// UsageSummary returns per-tool call and error counts across all
// recorded invocations, busiest tools first.
func (s *SQLiteStore) UsageSummary(ctx context.Context) ([]*ToolUsage, error) {
	query := `
		SELECT qualified_name, COUNT(*), SUM(is_error)
		FROM invocations
		GROUP BY qualified_name
		ORDER BY COUNT(*) DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying usage summary: %w", err)
	}
	defer rows.Close()

	var out []*ToolUsage
	for rows.Next() {
		var u ToolUsage
		if err := rows.Scan(&u.QualifiedName, &u.Calls, &u.Errors); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

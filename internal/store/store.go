package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/kelsen/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - initial journal (meta, invocations, completions)
const currentSchemaVersion = 1

// ErrOwnerMismatch is returned when a journal is reopened for a different
// world owner than the one it was created with.
var ErrOwnerMismatch = errors.New("journal belongs to a different owner")

// Store is the durable journal. Safe for use from one engine at a time.
type Store struct {
	db *sql.DB
}

// Open creates or opens a journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from fanning out into separate empty databases.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// InitOwner records owner as the world owner of a new journal, or checks
// it against the recorded one. It returns the recorded owner.
func (s *Store) InitOwner(ctx context.Context, owner ir.Principal) (ir.Principal, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('owner', ?)
		ON CONFLICT(key) DO NOTHING
	`, owner.Hex())
	if err != nil {
		return ir.ZeroPrincipal, fmt.Errorf("init owner: %w", err)
	}

	recorded, err := s.Owner(ctx)
	if err != nil {
		return ir.ZeroPrincipal, err
	}
	if recorded != owner {
		return recorded, fmt.Errorf("%w: journal owner %s, requested %s", ErrOwnerMismatch, recorded.Hex(), owner.Hex())
	}
	return recorded, nil
}

// Owner returns the recorded world owner, or the zero principal for a
// fresh journal.
func (s *Store) Owner(ctx context.Context) (ir.Principal, error) {
	var hex string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'owner'`).Scan(&hex)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ZeroPrincipal, nil
	}
	if err != nil {
		return ir.ZeroPrincipal, fmt.Errorf("read owner: %w", err)
	}
	return ir.ParsePrincipal(hex)
}

// InitMaxSteps records the nested call quota of a new journal and returns
// the recorded one. The first value written wins.
func (s *Store) InitMaxSteps(ctx context.Context, maxSteps int) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('max_steps', ?)
		ON CONFLICT(key) DO NOTHING
	`, strconv.Itoa(maxSteps))
	if err != nil {
		return 0, fmt.Errorf("init max steps: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'max_steps'`).Scan(&value); err != nil {
		return 0, fmt.Errorf("read max steps: %w", err)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("read max steps: %w", err)
	}
	return n, nil
}

// verifyPragma checks that a pragma is set to the expected value. Tests
// only.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger records which units have been embedded for which session and
// with what content hash. It lives in an in-memory SQLite database and
// is gone when the process exits.
type Ledger struct {
	db *sql.DB
}

// LedgerEntry is one indexed unit.
type LedgerEntry struct {
	SessionID string
	UnitID    string
	Path      string
	Hash      string
	Tokens    int
	IndexedAt time.Time
}

// NewLedger opens an empty in-memory ledger.
func NewLedger(ctx context.Context) (*Ledger, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		session_id TEXT NOT NULL,
		unit_id    TEXT NOT NULL,
		path       TEXT NOT NULL,
		hash       TEXT NOT NULL,
		tokens     INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, unit_id)
	);

	CREATE INDEX IF NOT EXISTS idx_units_path ON units(session_id, path);
	`
	_, err := l.db.ExecContext(ctx, schema)
	return err
}

// NeedsIndex reports whether the unit is new to the session or its hash
// changed since it was last indexed.
func (l *Ledger) NeedsIndex(ctx context.Context, sessionID, unitID, hash string) (bool, error) {
	var existing string
	err := l.db.QueryRowContext(ctx,
		`SELECT hash FROM units WHERE session_id = ? AND unit_id = ?`,
		sessionID, unitID,
	).Scan(&existing)

	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check unit %s: %w", unitID, err)
	}
	return existing != hash, nil
}

// MarkIndexed records that the unit was embedded with the given hash.
func (l *Ledger) MarkIndexed(ctx context.Context, sessionID string, u CodeUnit, hash string, tokens int) error {
	query := `
		INSERT INTO units (session_id, unit_id, path, hash, tokens, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, unit_id) DO UPDATE SET
			path = excluded.path,
			hash = excluded.hash,
			tokens = excluded.tokens,
			indexed_at = excluded.indexed_at
	`
	_, err := l.db.ExecContext(ctx, query, sessionID, u.UnitID(), u.Path, hash, tokens, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record unit %s: %w", u.UnitID(), err)
	}
	return nil
}

// Forget removes all entries for path in the session.
func (l *Ledger) Forget(ctx context.Context, sessionID, path string) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM units WHERE session_id = ? AND path = ?`, sessionID, path)
	if err != nil {
		return 0, fmt.Errorf("failed to forget %s: %w", path, err)
	}
	return res.RowsAffected()
}

// Paths lists the distinct indexed paths of a session.
func (l *Ledger) Paths(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT path FROM units WHERE session_id = ? ORDER BY path`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Entry returns the ledger row for a unit.
func (l *Ledger) Entry(ctx context.Context, sessionID, unitID string) (*LedgerEntry, error) {
	var e LedgerEntry
	var indexedAt int64
	err := l.db.QueryRowContext(ctx,
		`SELECT session_id, unit_id, path, hash, tokens, indexed_at FROM units WHERE session_id = ? AND unit_id = ?`,
		sessionID, unitID,
	).Scan(&e.SessionID, &e.UnitID, &e.Path, &e.Hash, &e.Tokens, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit %s: %w", unitID, err)
	}
	e.IndexedAt = time.Unix(indexedAt, 0)
	return &e, nil
}

// Stats returns the unit count and total embedded tokens of a session.
func (l *Ledger) Stats(ctx context.Context, sessionID string) (units int, tokens int, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(tokens), 0) FROM units WHERE session_id = ?`, sessionID,
	).Scan(&units, &tokens)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get ledger stats: %w", err)
	}
	return units, tokens, nil
}

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"drive-ocr/internal/internalerr"
)

type dialect struct {
	name   string
	driver string
	schema string
	get    string
	upsert string
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	schema: `
		CREATE TABLE IF NOT EXISTS processed_files (
			id TEXT PRIMARY KEY,
			file_id TEXT UNIQUE NOT NULL,
			doc_id TEXT NOT NULL,
			appended_at TIMESTAMPTZ DEFAULT NOW()
		)
	`,
	get: `SELECT doc_id FROM processed_files WHERE file_id = $1`,
	upsert: `
		INSERT INTO processed_files (id, file_id, doc_id, appended_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (file_id) DO UPDATE
		SET doc_id = EXCLUDED.doc_id,
		    appended_at = NOW()
	`,
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: `
		CREATE TABLE IF NOT EXISTS processed_files (
			id TEXT PRIMARY KEY,
			file_id TEXT UNIQUE NOT NULL,
			doc_id TEXT NOT NULL,
			appended_at TEXT DEFAULT CURRENT_TIMESTAMP
		)
	`,
	get: `SELECT doc_id FROM processed_files WHERE file_id = ?`,
	upsert: `
		INSERT INTO processed_files (id, file_id, doc_id, appended_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (file_id) DO UPDATE
		SET doc_id = excluded.doc_id,
		    appended_at = CURRENT_TIMESTAMP
	`,
}

// Ledger records which files were already appended to a document.
type Ledger struct {
	db *sql.DB
	d  dialect

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*Ledger, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: sql.Open: %w", internalerr.ErrLedger, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %w", internalerr.ErrLedger, err)
	}
	return newLedger(ctx, db, postgresDialect)
}

// OpenSQLite opens a SQLite file with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("%w: sql.Open: %w", internalerr.ErrLedger, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %w", internalerr.ErrLedger, err)
	}
	return newLedger(ctx, db, sqliteDialect)
}

func newLedger(ctx context.Context, db *sql.DB, d dialect) (*Ledger, error) {
	l := &Ledger{db: db, d: d, entropy: ulid.Monotonic(rand.Reader, 0)}
	if err := l.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) ensureTable(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, l.d.schema); err != nil {
		return fmt.Errorf("%w: create processed_files: %w", internalerr.ErrLedger, err)
	}
	log.Printf("✓ processed_files table ready (%s)", l.d.name)
	return nil
}

func (l *Ledger) Appended(ctx context.Context, fileID string) (string, bool, error) {
	var docID string
	err := l.db.QueryRowContext(ctx, l.d.get, fileID).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: lookup %s: %w", internalerr.ErrLedger, fileID, err)
	}
	return docID, true, nil
}

func (l *Ledger) MarkAppended(ctx context.Context, fileID, docID string) error {
	l.mu.Lock()
	id := ulid.MustNew(ulid.Now(), l.entropy).String()
	l.mu.Unlock()
	if _, err := l.db.ExecContext(ctx, l.d.upsert, id, fileID, docID); err != nil {
		return fmt.Errorf("%w: record %s: %w", internalerr.ErrLedger, fileID, err)
	}
	return nil
}

func (l *Ledger) Close() error { return l.db.Close() }

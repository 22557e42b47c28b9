package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"drive-ocr/internal/internalerr"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()

	if _, ok, err := l.Appended(ctx, "file-1"); err != nil || ok {
		t.Fatalf("fresh ledger: ok=%v err=%v", ok, err)
	}
	if err := l.MarkAppended(ctx, "file-1", "doc-a"); err != nil {
		t.Fatalf("MarkAppended: %v", err)
	}
	docID, ok, err := l.Appended(ctx, "file-1")
	if err != nil || !ok || docID != "doc-a" {
		t.Fatalf("Appended = %q %v %v", docID, ok, err)
	}

	if err := l.MarkAppended(ctx, "file-1", "doc-b"); err != nil {
		t.Fatalf("second MarkAppended: %v", err)
	}
	if docID, _, _ := l.Appended(ctx, "file-1"); docID != "doc-b" {
		t.Fatalf("upsert kept %q", docID)
	}

	var rows int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM processed_files`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Fatalf("rows = %d, want 1", rows)
	}
}

func TestSQLiteLedgerReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	l, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.MarkAppended(ctx, "file-1", "doc-a"); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if docID, ok, err := l2.Appended(ctx, "file-1"); err != nil || !ok || docID != "doc-a" {
		t.Fatalf("after reopen: %q %v %v", docID, ok, err)
	}
}

func TestSQLiteLedgerClosed(t *testing.T) {
	l := openTemp(t)
	l.Close()
	if _, _, err := l.Appended(context.Background(), "x"); !errors.Is(err, internalerr.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/originality/dbopen"
)

const scansDDL = `CREATE TABLE IF NOT EXISTS scans (id TEXT PRIMARY KEY, status TEXT NOT NULL DEFAULT 'pending')`

func pragmaInt(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var v int
	if err := db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return v
}

func TestOpen_Pragmas(t *testing.T) {
	// WHAT: every option lands as the matching PRAGMA on the connection.
	tests := []struct {
		name   string
		opts   []dbopen.Option
		pragma string
		want   int
	}{
		{"default foreign keys", nil, "foreign_keys", 1},
		{"default synchronous NORMAL", nil, "synchronous", 1},
		{"default busy timeout", nil, "busy_timeout", 10_000},
		{"foreign keys off", []dbopen.Option{dbopen.WithoutForeignKeys()}, "foreign_keys", 0},
		{"synchronous FULL", []dbopen.Option{dbopen.WithSynchronous("FULL")}, "synchronous", 2},
		{"busy timeout", []dbopen.Option{dbopen.WithBusyTimeout(2500)}, "busy_timeout", 2500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbopen.OpenMemory(t, tt.opts...)
			if got := pragmaInt(t, db, tt.pragma); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.pragma, got, tt.want)
			}
		})
	}
}

func TestOpen_WALOnDisk(t *testing.T) {
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "originality.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenMemory_SingleConnection(t *testing.T) {
	// WHAT: OpenMemory pins the pool to one connection.
	// WHY: a second ":memory:" connection would see an empty database.
	db := dbopen.OpenMemory(t, dbopen.WithSchema(scansDDL))
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
	if _, err := db.Exec(`INSERT INTO scans (id) VALUES ('scan-1')`); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_SchemaIsIdempotent(t *testing.T) {
	// WHAT: reopening an existing file reapplies the DDL without error.
	// WHY: every command start runs the schema against the same data dir.
	path := filepath.Join(t.TempDir(), "tracker.db")
	for range 2 {
		db, err := dbopen.Open(path, dbopen.WithSchema(scansDDL))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		db.Close()
	}
}

func TestOpen_MkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "originality.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestOpen_MissingDirWithoutMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "originality.db")
	db, err := dbopen.Open(path)
	if err == nil {
		db.Close()
		t.Fatal("want error for missing parent directory")
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table: scans"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("prefix: SQLITE_BUSY (5)"), true},
		{errors.New("database is locked"), true},
		{errors.New("database table is locked"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func countScans(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM scans`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithSchema(scansDDL))
		err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO scans (id) VALUES ('a'), ('b')`)
			return err
		})
		if err != nil {
			t.Fatalf("RunTx: %v", err)
		}
		if n := countScans(t, db); n != 2 {
			t.Errorf("rows = %d, want 2", n)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		db := dbopen.OpenMemory(t, dbopen.WithSchema(scansDDL))
		sentinel := errors.New("rollback me")
		err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
			tx.Exec(`INSERT INTO scans (id) VALUES ('a')`)
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("RunTx error = %v, want sentinel", err)
		}
		if n := countScans(t, db); n != 0 {
			t.Errorf("rows = %d, want 0 after rollback", n)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		db := dbopen.OpenMemory(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := dbopen.RunTx(cctx, db, func(*sql.Tx) error { return nil }); err == nil {
			t.Fatal("want error on cancelled context")
		}
	})
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(scansDDL))
	if _, err := dbopen.Exec(context.Background(), db, `INSERT INTO scans (id, status) VALUES (?, ?)`, "s1", "completed"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n := countScans(t, db); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/originality/dbopen"
)

// TrackerSchema is the DDL for pending asynchronous scans.
const TrackerSchema = `
CREATE TABLE IF NOT EXISTS pending_scans (
    scan_id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    result_json TEXT,
    submitted_at INTEGER NOT NULL,
    completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pending_scans_status
    ON pending_scans(status, submitted_at);
`

// Scan is a tracked asynchronous scan.
type Scan struct {
	ScanID      string     `json:"scan_id"`
	Provider    string     `json:"provider"`
	Status      string     `json:"status"`
	Result      *Result    `json:"result,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ScanTracker records scans submitted to asynchronous providers until their
// verdict arrives.
type ScanTracker struct {
	db  *sql.DB
	now func() time.Time
}

// NewScanTracker applies TrackerSchema to db and returns a tracker.
func NewScanTracker(db *sql.DB) (*ScanTracker, error) {
	if _, err := db.Exec(TrackerSchema); err != nil {
		return nil, fmt.Errorf("scoring: tracker schema: %w", err)
	}
	return &ScanTracker{db: db, now: time.Now}, nil
}

// Track records scanID as pending.
func (t *ScanTracker) Track(ctx context.Context, scanID, provider string) error {
	_, err := dbopen.Exec(ctx, t.db,
		`INSERT INTO pending_scans (scan_id, provider, status, submitted_at) VALUES (?, ?, ?, ?)`,
		scanID, provider, StatusPending, t.now().Unix())
	if err != nil {
		return fmt.Errorf("scoring: track %s: %w", scanID, err)
	}
	return nil
}

// Complete stores the final verdict for scanID. The score and similarities
// are clamped like any provider result.
func (t *ScanTracker) Complete(ctx context.Context, scanID string, res *Result) error {
	if res == nil {
		return errors.New("scoring: complete: nil result")
	}
	final := *res
	final.Sources = append([]Source(nil), res.Sources...)
	final.Status = ""
	final.ScanID = scanID
	final.normalize(res.WordCount, t.now())

	data, err := json.Marshal(&final)
	if err != nil {
		return fmt.Errorf("scoring: complete %s: %w", scanID, err)
	}
	return dbopen.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			`UPDATE pending_scans SET status = ?, result_json = ?, completed_at = ? WHERE scan_id = ?`,
			StatusScored, string(data), t.now().Unix(), scanID)
		if err != nil {
			return fmt.Errorf("scoring: complete %s: %w", scanID, err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			return ErrScanNotFound
		}
		return nil
	})
}

// Get returns the tracked scan, or ErrScanNotFound.
func (t *ScanTracker) Get(ctx context.Context, scanID string) (*Scan, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT scan_id, provider, status, result_json, submitted_at, completed_at
		FROM pending_scans WHERE scan_id = ?`, scanID)
	s, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	return s, err
}

// Pending lists scans still awaiting a verdict, oldest first.
func (t *ScanTracker) Pending(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT scan_id, provider, status, result_json, submitted_at, completed_at
		FROM pending_scans WHERE status = ? ORDER BY submitted_at, rowid LIMIT ?`,
		StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("scoring: list pending: %w", err)
	}
	defer rows.Close()
	var out []*Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PendingCount returns the number of scans still awaiting a verdict.
func (t *ScanTracker) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_scans WHERE status = ?`, StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("scoring: count pending: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*Scan, error) {
	var s Scan
	var result sql.NullString
	var submitted int64
	var completed sql.NullInt64
	if err := r.Scan(&s.ScanID, &s.Provider, &s.Status, &result, &submitted, &completed); err != nil {
		return nil, err
	}
	s.SubmittedAt = time.Unix(submitted, 0)
	if completed.Valid {
		ts := time.Unix(completed.Int64, 0)
		s.CompletedAt = &ts
	}
	if result.Valid {
		var res Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("scoring: decode scan %s: %w", s.ScanID, err)
		}
		s.Result = &res
	}
	return &s, nil
}

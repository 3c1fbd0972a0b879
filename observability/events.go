package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/originality/dbopen"
	"github.com/hazyhaar/originality/idgen"
)

// Event kinds recorded by the submission pipeline.
const (
	EventSubmitted          = "submitted"
	EventExtractionFailed   = "extraction_failed"
	EventScored             = "scored"
	EventProviderFallback   = "provider_fallback"
	EventReportStored       = "report_stored"
	EventReportStoreFailed  = "report_store_failed"
	EventOutcomePublished   = "outcome_published"
	EventOutcomePublishFail = "outcome_publish_failed"
)

// SubmissionEvent is one step in the life of a submission.
type SubmissionEvent struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	SubmissionID string    `json:"submission_id,omitempty"`
	StudentName  string    `json:"student_name,omitempty"`
	Course       string    `json:"course,omitempty"`
	Assignment   string    `json:"assignment,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventLogger writes submission events.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the slog logger used when a write fails.
func WithEventLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates a logger backed by the given observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records ev. Failures are logged and swallowed: a broken observability
// store must not fail a submission. A nil EventLogger is a no-op.
func (l *EventLogger) Log(ctx context.Context, ev SubmissionEvent) {
	if l == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO submission_events (
			event_id, kind, submission_id, student_name, course, assignment,
			provider, detail, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Kind, ev.SubmissionID, ev.StudentName, ev.Course, ev.Assignment,
		ev.Provider, ev.Detail, ev.Success, ev.CreatedAt.Unix())
	if err != nil {
		l.logger.ErrorContext(ctx, "observability event log failed", "error", err, "kind", ev.Kind)
	}
}

// ForSubmission returns the events of one submission, oldest first.
func (l *EventLogger) ForSubmission(ctx context.Context, submissionID string) ([]SubmissionEvent, error) {
	return l.query(ctx, `WHERE submission_id = ? ORDER BY created_at, rowid`, submissionID)
}

func (l *EventLogger) query(ctx context.Context, tail string, args ...any) ([]SubmissionEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, kind, submission_id, student_name, course, assignment,
		       provider, detail, success, created_at
		FROM submission_events `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []SubmissionEvent
	for rows.Next() {
		var ev SubmissionEvent
		var sub, student, course, assignment, provider, detail sql.NullString
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.Kind, &sub, &student, &course, &assignment,
			&provider, &detail, &ev.Success, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.SubmissionID = sub.String
		ev.StudentName = student.String
		ev.Course = course.String
		ev.Assignment = assignment.String
		ev.Provider = provider.String
		ev.Detail = detail.String
		ev.CreatedAt = time.Unix(ts, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	MetricsDays    int
	EventsDays     int
	HeartbeatsDays int
	RunVacuumAfter bool
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()
	targets := []struct {
		query string
		days  int
	}{
		{"DELETE FROM metrics_timeseries WHERE timestamp < ?", cfg.MetricsDays},
		{"DELETE FROM submission_events WHERE created_at < ?", cfg.EventsDays},
		{"DELETE FROM worker_heartbeats WHERE timestamp < ?", cfg.HeartbeatsDays},
	}
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, t.query, now-int64(t.days*86400)); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}

package shield

import (
	"context"
	"database/sql"
)

// Schema defines the rate_limits table and seeds the default rules. Rows
// are keyed by "METHOD /path"; existing rows are never overwritten so
// operators can tune limits in place.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
VALUES ('POST /v1/submissions', 30, 60, 1);
`

// Init creates the shield tables if they don't exist.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

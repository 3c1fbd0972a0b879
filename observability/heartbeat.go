package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// BacklogFunc reports how many asynchronous scans are still waiting for a
// provider callback.
type BacklogFunc func(ctx context.Context) (int, error)

// HeartbeatOption configures a HeartbeatWriter.
type HeartbeatOption func(*HeartbeatWriter)

// WithHeartbeatLogger sets the logger.
func WithHeartbeatLogger(l *slog.Logger) HeartbeatOption {
	return func(hw *HeartbeatWriter) { hw.logger = l }
}

// WithBacklog records the pending-scan backlog in every beat.
func WithBacklog(fn BacklogFunc) HeartbeatOption {
	return func(hw *HeartbeatWriter) { hw.backlog = fn }
}

// WithHeartbeatClock overrides the beat timestamp source.
func WithHeartbeatClock(now func() time.Time) HeartbeatOption {
	return func(hw *HeartbeatWriter) { hw.now = now }
}

// HeartbeatWriter records that a serve process is alive, with its goroutine
// count, heap size and scan backlog.
type HeartbeatWriter struct {
	db       *sql.DB
	process  string
	hostname string
	pid      int
	interval time.Duration
	backlog  BacklogFunc
	now      func() time.Time
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeatWriter creates a writer for process. A non-positive interval
// means 15s.
func NewHeartbeatWriter(db *sql.DB, process string, interval time.Duration, opts ...HeartbeatOption) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	hw := &HeartbeatWriter{
		db:       db,
		process:  process,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(hw)
	}
	return hw
}

// Start beats once immediately, then every interval until Stop or ctx is done.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	go hw.loop(ctx)
}

// Stop ends the loop started by Start and waits for it.
func (hw *HeartbeatWriter) Stop() {
	close(hw.stop)
	<-hw.done
}

// WriteHeartbeat writes a single row. A failing backlog query is logged and
// recorded as NULL.
func (hw *HeartbeatWriter) WriteHeartbeat(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var backlog sql.NullInt64
	if hw.backlog != nil {
		n, err := hw.backlog(ctx)
		if err != nil {
			hw.logger.Warn("heartbeat backlog query failed", "error", err)
		} else {
			backlog = sql.NullInt64{Int64: int64(n), Valid: true}
		}
	}

	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, pending_scans
		) VALUES (?,?,?,?,?,?,?)`,
		hw.process, hw.hostname, hw.pid, hw.now().Unix(),
		runtime.NumGoroutine(), float64(mem.Alloc)/(1<<20), backlog)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

func (hw *HeartbeatWriter) loop(ctx context.Context) {
	defer close(hw.done)
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	for {
		if err := hw.WriteHeartbeat(ctx); err != nil && ctx.Err() == nil {
			hw.logger.Error("heartbeat write failed", "error", err, "process", hw.process)
		}
		select {
		case <-ctx.Done():
			return
		case <-hw.stop:
			return
		case <-ticker.C:
		}
	}
}

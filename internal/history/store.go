package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"go-mailflow-dashboard/internal/config"
)

// ErrDisabled is returned by Open when no history driver is configured.
var ErrDisabled = errors.New("history store disabled")

// Run statuses recorded per view and cycle.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Run is one view pipeline outcome within a refresh cycle.
type Run struct {
	CycleID    string    `json:"cycle_id"`
	View       string    `json:"view"`
	Status     string    `json:"status"`
	Items      int       `json:"items"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// QueueSample is one recorded queue summary.
type QueueSample struct {
	RecordedAt time.Time `json:"recorded_at"`
	Total      int       `json:"total"`
	Retry      int       `json:"retry"`
	Failed     int       `json:"failed"`
	Other      int       `json:"other"`
}

// ServiceStats reports store health for the status endpoint.
type ServiceStats struct {
	Driver       string `json:"driver"`
	PingMS       int64  `json:"ping_ms"`
	RunsTotal    int64  `json:"runs_total"`
	SamplesTotal int64  `json:"samples_total"`
}

// Store records refresh runs and queue summaries in SQLite or MySQL.
type Store struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
}

// Open creates the store selected by cfg.HistoryDriver.
func Open(cfg config.Config) (*Store, error) {
	switch cfg.HistoryDriver {
	case "":
		return nil, ErrDisabled
	case "sqlite":
		return NewSQLiteStore(cfg.HistorySQLitePath, cfg.DBQueryTimeout)
	case "mysql":
		return NewMySQLStore(cfg)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.HistoryDriver)
	}
}

// NewSQLiteStore opens (and creates if needed) a SQLite database at path.
func NewSQLiteStore(path string, queryTimeout time.Duration) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, driver: "sqlite", queryTimeout: queryTimeout}
	if err := s.init(5*time.Second, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewMySQLStore connects with cfg.MySQLDSN and creates the tables.
func NewMySQLStore(cfg config.Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, driver: "mysql", queryTimeout: cfg.DBQueryTimeout}
	if err := s.init(cfg.DBConnTimeout, mysqlSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var sqliteSchema = []string{
	`PRAGMA journal_mode=WAL;`,
	`
CREATE TABLE IF NOT EXISTS refresh_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  cycle_id TEXT NOT NULL,
  view_id TEXT NOT NULL,
  status TEXT NOT NULL,
  items INTEGER NOT NULL DEFAULT 0,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT '',
  recorded_at INTEGER NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_rr_recorded_at ON refresh_runs(recorded_at);`,
	`
CREATE TABLE IF NOT EXISTS queue_summary_samples (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  recorded_at INTEGER NOT NULL,
  total INTEGER NOT NULL,
  retry INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  other INTEGER NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_qss_recorded_at ON queue_summary_samples(recorded_at);`,
}

var mysqlSchema = []string{
	`
CREATE TABLE IF NOT EXISTS refresh_runs (
  id BIGINT AUTO_INCREMENT PRIMARY KEY,
  cycle_id VARCHAR(36) NOT NULL,
  view_id VARCHAR(64) NOT NULL,
  status VARCHAR(16) NOT NULL,
  items INT NOT NULL DEFAULT 0,
  duration_ms BIGINT NOT NULL DEFAULT 0,
  error TEXT NOT NULL,
  recorded_at BIGINT NOT NULL,
  INDEX idx_rr_recorded_at (recorded_at)
);`,
	`
CREATE TABLE IF NOT EXISTS queue_summary_samples (
  id BIGINT AUTO_INCREMENT PRIMARY KEY,
  recorded_at BIGINT NOT NULL,
  total INT NOT NULL,
  retry INT NOT NULL,
  failed INT NOT NULL,
  other INT NOT NULL,
  INDEX idx_qss_recorded_at (recorded_at)
);`,
}

func (s *Store) init(connTimeout time.Duration, schema []string) error {
	if connTimeout <= 0 {
		connTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}
	return nil
}

// Driver returns "sqlite" or "mysql".
func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// RecordRun stores one pipeline outcome. A zero RecordedAt means now.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO refresh_runs (cycle_id, view_id, status, items, duration_ms, error, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, r.CycleID, r.View, r.Status, r.Items, r.DurationMS, r.Error, r.RecordedAt.UnixMilli())
	return err
}

// RecordQueueSummary stores one queue sample. A zero RecordedAt means now.
func (s *Store) RecordQueueSummary(ctx context.Context, q QueueSample) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if q.RecordedAt.IsZero() {
		q.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO queue_summary_samples (recorded_at, total, retry, failed, other)
VALUES (?, ?, ?, ?, ?);
`, q.RecordedAt.UnixMilli(), q.Total, q.Retry, q.Failed, q.Other)
	return err
}

// QueueSummarySeries returns samples recorded at or after since, oldest first,
// keeping at most the newest limit samples.
func (s *Store) QueueSummarySeries(ctx context.Context, since time.Time, limit int) ([]QueueSample, error) {
	limit = clampLimit(limit)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT recorded_at, total, retry, failed, other
FROM queue_summary_samples
WHERE recorded_at >= ?
ORDER BY recorded_at DESC, id DESC
LIMIT ?;
`, since.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]QueueSample, 0, min(limit, 256))
	for rows.Next() {
		var (
			item QueueSample
			ms   int64
		)
		if err := rows.Scan(&ms, &item.Total, &item.Retry, &item.Failed, &item.Other); err != nil {
			return nil, err
		}
		item.RecordedAt = time.UnixMilli(ms)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	limit = clampLimit(limit)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT cycle_id, view_id, status, items, duration_ms, error, recorded_at
FROM refresh_runs
ORDER BY recorded_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Run, 0, min(limit, 256))
	for rows.Next() {
		var (
			item Run
			ms   int64
		)
		if err := rows.Scan(&item.CycleID, &item.View, &item.Status, &item.Items, &item.DurationMS, &item.Error, &ms); err != nil {
			return nil, err
		}
		item.RecordedAt = time.UnixMilli(ms)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceStats pings the database and counts stored rows.
func (s *Store) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}
	out := &ServiceStats{
		Driver: s.driver,
		PingMS: time.Since(start).Milliseconds(),
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM refresh_runs;`).Scan(&out.RunsTotal); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_summary_samples;`).Scan(&out.SamplesTotal); err != nil {
		return nil, err
	}
	return out, nil
}

const maxLimit = 10000

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return maxLimit
	}
	return limit
}

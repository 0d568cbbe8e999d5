// Package sqlitesink provides a queryable SQLite-backed audit store.
//
// Unlike the append-only sinks in pkg/audit, the store supports
// filtering, counting, and age-based deletion, which makes it the
// natural backend for the retention pruner in pkg/audit/retention.
//
// The driver is the pure-Go modernc.org/sqlite, so the module builds
// with CGO_ENABLED=0.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"enacthq/enact/pkg/audit"
)

// Config contains configuration for the SQLite store.
type Config struct {
	// Path is the database file path. ":memory:" works for tests.
	Path string

	// MaxOpenConns caps open connections. Default: 10.
	MaxOpenConns int

	// MaxIdleConns caps idle connections. Default: 5.
	MaxIdleConns int

	// BusyTimeout is how long a statement waits on a locked database.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// Query filters audit records. Zero-valued fields are not applied.
type Query struct {
	// AgentID filters by agent.
	AgentID string

	// Tool filters by tool name.
	Tool string

	// Allow filters by outcome when non-nil.
	Allow *bool

	// Since is the inclusive lower bound on timestamp.
	Since time.Time

	// Until is the exclusive upper bound on timestamp.
	Until time.Time

	// Limit caps the result set. Zero means no limit.
	Limit int

	// Offset skips the first N matching records.
	Offset int
}

// Store is a SQLite-backed audit sink with a query surface.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp       TEXT NOT NULL,
	agent_id        TEXT NOT NULL,
	tool            TEXT NOT NULL,
	function        TEXT NOT NULL,
	arguments       TEXT,
	allow           INTEGER NOT NULL,
	reason          TEXT NOT NULL,
	duration_ms     REAL NOT NULL,
	correlation_id  TEXT NOT NULL,
	decision_source TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_records(agent_id);
CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_records(tool);
`

// New opens (creating if necessary) the store at config.Path.
func New(config Config) (*Store, error) {
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database %s: %w", config.Path, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "audit.sqlite"),
	}, nil
}

// Log implements audit.Sink by inserting the record.
func (s *Store) Log(ctx context.Context, rec *audit.Record) error {
	args, err := json.Marshal(rec.Arguments)
	if err != nil {
		return &audit.SinkError{Sink: "sqlite", Cause: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records
			(timestamp, agent_id, tool, function, arguments, allow, reason, duration_ms, correlation_id, decision_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.AgentID,
		rec.Tool,
		rec.Function,
		string(args),
		boolToInt(rec.Allow),
		rec.Reason,
		rec.DurationMS,
		rec.CorrelationID,
		rec.DecisionSource,
	)
	if err != nil {
		return &audit.SinkError{Sink: "sqlite", Cause: err}
	}
	return nil
}

// Query returns records matching the filters, newest first.
func (s *Store) Query(ctx context.Context, q Query) ([]*audit.Record, error) {
	where, args := buildWhere(q)

	sqlQuery := `
		SELECT timestamp, agent_id, tool, function, arguments, allow, reason, duration_ms, correlation_id, decision_source
		FROM audit_records` + where + ` ORDER BY timestamp DESC`

	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of records matching the filters.
func (s *Store) Count(ctx context.Context, q Query) (int64, error) {
	where, args := buildWhere(q)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

// DeleteBefore removes records older than cutoff and returns how many
// were deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_records WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("audit records deleted", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func buildWhere(q Query) (string, []any) {
	var clauses []string
	var args []any

	if q.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, q.AgentID)
	}
	if q.Tool != "" {
		clauses = append(clauses, "tool = ?")
		args = append(args, q.Tool)
	}
	if q.Allow != nil {
		clauses = append(clauses, "allow = ?")
		args = append(args, boolToInt(*q.Allow))
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339Nano))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecord(rows *sql.Rows) (*audit.Record, error) {
	var rec audit.Record
	var ts, argsJSON string
	var allow int

	if err := rows.Scan(&ts, &rec.AgentID, &rec.Tool, &rec.Function, &argsJSON,
		&allow, &rec.Reason, &rec.DurationMS, &rec.CorrelationID, &rec.DecisionSource); err != nil {
		return nil, fmt.Errorf("scan audit record: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
	}
	rec.Timestamp = parsed
	rec.Allow = allow != 0

	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &rec.Arguments); err != nil {
			return nil, fmt.Errorf("parse audit arguments: %w", err)
		}
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

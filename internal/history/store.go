// Package history persists activity status events so the lifecycle of past
// commands can be inspected after they have left the mount actor's memory.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/unklstewy/skytrack/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// timeLayout is fixed width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one stored activity event.
type Record struct {
	Session    string    `json:"session"`
	ActivityID uint64    `json:"activity_id"`
	Seq        int       `json:"seq"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target,omitempty"`
	Status     string    `json:"status"`
	Milestone  string    `json:"milestone,omitempty"`
	Note       string    `json:"note,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Store wraps a database connection holding activity history.
type Store struct {
	*sql.DB
	config config.DatabaseConfig
}

// Open connects to the database described by cfg. Driver "postgres" uses
// lib/pq; "sqlite" uses an embedded database file at cfg.Path.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var driver, dsn string
	switch cfg.Driver {
	case "postgres":
		driver = "postgres"
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)
	case "sqlite", "":
		driver = "sqlite"
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if driver == "sqlite" {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Driver = driver
	return &Store{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates the history tables if they do not exist.
// This should be called once at application startup.
func (s *Store) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := s.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Insert stores one event. Re-inserting the same (session, activity, seq)
// is a no-op.
func (s *Store) Insert(ctx context.Context, r Record) error {
	_, err := s.ExecContext(ctx, s.rebind(
		`INSERT INTO activity_events (
			session_id, activity_id, seq, kind, target, status,
			milestone, note, error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, activity_id, seq) DO NOTHING`),
		r.Session, int64(r.ActivityID), r.Seq, r.Kind, r.Target, r.Status,
		r.Milestone, r.Note, r.Error, r.Time.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.QueryContext(ctx, s.rebind(
		`SELECT session_id, activity_id, seq, kind, target, status,
		        milestone, note, error, recorded_at
		 FROM activity_events
		 ORDER BY recorded_at DESC, activity_id DESC, seq DESC
		 LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r          Record
			activityID int64
			recordedAt string
		)
		if err := rows.Scan(&r.Session, &activityID, &r.Seq, &r.Kind, &r.Target,
			&r.Status, &r.Milestone, &r.Note, &r.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		r.ActivityID = uint64(activityID)
		if r.Time, err = time.Parse(timeLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("bad recorded_at %q: %w", recordedAt, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Cleanup deletes events older than maxAge.
// Should be called periodically to prevent unbounded growth.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeLayout)
	res, err := s.ExecContext(ctx, s.rebind(`DELETE FROM activity_events WHERE recorded_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity events: %w", err)
	}
	return res.RowsAffected()
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.config.Driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

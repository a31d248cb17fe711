// Package audit records every permission gate decision in a local SQLite database.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// SQLiteStore persists gate decisions in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore creates (or opens) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit db: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT,
		session_id TEXT,
		call_id TEXT,
		origin TEXT,
		command TEXT,
		verdict TEXT,
		source TEXT,
		risk_level TEXT,
		outcome TEXT,
		exit_code INTEGER,
		duration_ms INTEGER
	);`)
	return err
}

// Save inserts a new record.
func (s *SQLiteStore) Save(ctx context.Context, record domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO decisions
		(timestamp, session_id, call_id, origin, command, verdict, source, risk_level, outcome, exit_code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		record.SessionID,
		record.CallID,
		record.Origin,
		record.Command,
		record.Verdict,
		record.Source,
		record.RiskLevel,
		record.Outcome,
		record.ExitCode,
		record.DurationMS,
	)
	return err
}

// Records returns decisions newest first (limit/search optional).
func (s *SQLiteStore) Records(ctx context.Context, limit int, search string) ([]domain.AuditRecord, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT timestamp, session_id, call_id, origin, command, verdict, source, risk_level, outcome, exit_code, duration_ms FROM decisions")
	var args []interface{}
	if search != "" {
		builder.WriteString(" WHERE command LIKE ? OR session_id LIKE ?")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	builder.WriteString(" ORDER BY id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var ts string
		if err := rows.Scan(&ts, &rec.SessionID, &rec.CallID, &rec.Origin, &rec.Command, &rec.Verdict, &rec.Source, &rec.RiskLevel, &rec.Outcome, &rec.ExitCode, &rec.DurationMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear deletes all decisions.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM decisions")
	return err
}

// ExportJSON writes the decision table to a jsonl file.
func (s *SQLiteStore) ExportJSON(ctx context.Context, dest string) error {
	records, err := s.Records(ctx, 0, "")
	if err != nil {
		return err
	}
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := file.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ ports.AuditStore = (*SQLiteStore)(nil)

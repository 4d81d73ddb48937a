package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSink stores trace events in the run_traces table.
type PostgresSink struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping trace db: %w", err)
	}
	s := &PostgresSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS run_traces (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  stage TEXT NOT NULL,
  path TEXT NOT NULL DEFAULT '',
  fields JSONB,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_traces_run_id ON run_traces (run_id);
`)
		if s.schemaErr != nil {
			s.schemaErr = fmt.Errorf("create run_traces: %w", s.schemaErr)
		}
	})
	return s.schemaErr
}

func (s *PostgresSink) Append(ctx context.Context, ev TraceEvent) error {
	var fields any
	if len(ev.Fields) > 0 {
		raw, err := json.Marshal(ev.Fields)
		if err != nil {
			return err
		}
		fields = string(raw)
	}
	at, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
	if err != nil {
		at = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO run_traces (run_id, source, stage, path, fields, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.RunID, ev.Source, ev.Stage, ev.Path, fields, at)
	return err
}

func (s *PostgresSink) Read(ctx context.Context, runID string) ([]TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, source, stage, path, fields, created_at
FROM run_traces WHERE run_id = $1 ORDER BY id`, strings.TrimSpace(runID))
	if err != nil {
		return nil, fmt.Errorf("query run_traces: %w", err)
	}
	defer rows.Close()

	var out []TraceEvent
	for rows.Next() {
		var (
			ev     TraceEvent
			fields []byte
			at     sql.NullTime
		)
		if err := rows.Scan(&ev.RunID, &ev.Source, &ev.Stage, &ev.Path, &fields, &at); err != nil {
			return nil, fmt.Errorf("scan run_traces: %w", err)
		}
		if len(fields) > 0 {
			_ = json.Unmarshal(fields, &ev.Fields)
		}
		if at.Valid {
			ev.Timestamp = at.Time.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

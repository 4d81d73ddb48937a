package run

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var traceRunIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// DefaultTraceDir is used for the JSONL sink in the local profile when no
// directory is configured.
func DefaultTraceDir() string {
	return filepath.Join("tmp", "run_logs")
}

// FileSink persists trace events as one JSONL file per run.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

func NewFileSink(dir string) (*FileSink, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		trimmed = DefaultTraceDir()
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &FileSink{dir: trimmed}, nil
}

func sanitizeRunID(runID string) string {
	id := strings.TrimSpace(runID)
	if id == "" {
		return "unknown"
	}
	return traceRunIDSanitizer.ReplaceAllString(id, "_")
}

func (s *FileSink) filePath(runID string) string {
	return filepath.Join(s.dir, sanitizeRunID(runID)+".jsonl")
}

func (s *FileSink) Append(_ context.Context, ev TraceEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.filePath(ev.RunID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(raw)
	return err
}

// Read returns all persisted trace events for a run; an unknown run has none.
func (s *FileSink) Read(_ context.Context, runID string) ([]TraceEvent, error) {
	f, err := os.Open(s.filePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	var out []TraceEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev TraceEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan trace file: %w", err)
	}
	return out, nil
}

// Package run keeps the trace of recent translation runs for the debug
// endpoints: an in-memory LRU of the latest runs plus optional persistent
// sinks.
package run

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"codeshift/internal/logging"
	"codeshift/internal/translate"
)

// maxEventsPerRun bounds the in-memory trace of a single run.
const maxEventsPerRun = 4096

const sinkTimeout = 2 * time.Second

// traceQueueSize bounds events waiting for the sinks; beyond it events are
// dropped from the sinks but still kept in memory.
const traceQueueSize = 1024

// TraceEvent is a structured run trace event persisted as JSON.
type TraceEvent struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Stage     string         `json:"stage"`
	Path      string         `json:"path,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink persists trace events outside the process.
type Sink interface {
	Append(ctx context.Context, ev TraceEvent) error
}

// Reader is implemented by sinks that can return a run's events.
type Reader interface {
	Read(ctx context.Context, runID string) ([]TraceEvent, error)
}

// TraceStore records run events. It satisfies translate.Observer. Sinks are
// written by one background goroutine in event order.
type TraceStore struct {
	mu     sync.Mutex
	recent *lru.Cache[string, []TraceEvent]
	sinks  []Sink
	log    *slog.Logger

	qmu     sync.RWMutex
	queue   chan sinkOp
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// sinkOp is either an event or, with flushed set, a flush marker.
type sinkOp struct {
	ev      TraceEvent
	flushed chan struct{}
}

var _ translate.Observer = (*TraceStore)(nil)

func NewTraceStore(size int, log *slog.Logger, sinks ...Sink) (*TraceStore, error) {
	cache, err := lru.New[string, []TraceEvent](size)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	s := &TraceStore{recent: cache, sinks: sinks, log: log, done: make(chan struct{})}
	if len(sinks) == 0 {
		close(s.done)
		return s, nil
	}
	s.queue = make(chan sinkOp, traceQueueSize)
	go s.drain()
	return s, nil
}

func (s *TraceStore) drain() {
	defer close(s.done)
	for op := range s.queue {
		if op.flushed != nil {
			close(op.flushed)
			continue
		}
		for _, sink := range s.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := sink.Append(ctx, op.ev); err != nil {
				s.log.Warn("trace sink append failed", logging.RunID(op.ev.RunID), logging.Error(err))
			}
			cancel()
		}
	}
}

func (s *TraceStore) enqueue(ev TraceEvent) {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.queue == nil || s.closed {
		return
	}
	select {
	case s.queue <- sinkOp{ev: ev}:
	default:
		if s.dropped.Add(1) == 1 {
			s.log.Warn("trace sink queue full, dropping events", logging.RunID(ev.RunID))
		}
	}
}

// Flush waits until every event appended so far has reached the sinks.
func (s *TraceStore) Flush(ctx context.Context) error {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.queue == nil || s.closed {
		return nil
	}
	op := sinkOp{flushed: make(chan struct{})}
	select {
	case s.queue <- op:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-op.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many events never reached the sinks.
func (s *TraceStore) Dropped() int64 { return s.dropped.Load() }

// Append records one event for runID and queues it for the sinks. It never
// waits on a sink; sink failures are logged.
func (s *TraceStore) Append(runID, source, stage, path string, fields map[string]any) {
	runID = strings.TrimSpace(runID)
	if s == nil || runID == "" {
		return
	}
	ev := TraceEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     runID,
		Source:    strings.TrimSpace(source),
		Stage:     strings.TrimSpace(stage),
		Path:      path,
	}
	if len(fields) > 0 {
		ev.Fields = fields
	}

	s.mu.Lock()
	events, _ := s.recent.Get(runID)
	if len(events) < maxEventsPerRun {
		s.recent.Add(runID, append(events, ev))
	}
	s.mu.Unlock()

	s.enqueue(ev)
}

// Observe records an orchestrator state transition.
func (s *TraceStore) Observe(e translate.Event) {
	s.Append(e.RunID, "orchestrator", string(e.State), e.Path, e.Fields)
}

// Read returns the events of a run, from memory when the run is recent and
// otherwise from the first sink that can read it back.
func (s *TraceStore) Read(ctx context.Context, runID string) ([]TraceEvent, error) {
	runID = strings.TrimSpace(runID)
	s.mu.Lock()
	events, ok := s.recent.Get(runID)
	if ok {
		events = append([]TraceEvent(nil), events...)
	}
	s.mu.Unlock()
	if ok {
		return events, nil
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	for _, sink := range s.sinks {
		r, ok := sink.(Reader)
		if !ok {
			continue
		}
		events, err := r.Read(ctx, runID)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			return events, nil
		}
	}
	return []TraceEvent{}, nil
}

// Recent lists the run IDs held in memory, oldest first.
func (s *TraceStore) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recent.Keys()
}

// Close drains queued events and closes sinks that hold resources.
func (s *TraceStore) Close() error {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return nil
	}
	s.closed = true
	if s.queue != nil {
		close(s.queue)
	}
	s.qmu.Unlock()
	<-s.done

	var first error
	for _, sink := range s.sinks {
		if c, ok := sink.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Package translate drives one repository translation run: it fetches the
// source tree, translates the files one at a time while streaming engine
// output to the caller, and appends the reconstructed tree of results.
package translate

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"codeshift/internal/filetree"
	"codeshift/internal/llm"
	"codeshift/internal/source"
)

// ErrMalformedResponse is returned when an engine answer does not contain the
// translated code block followed by a renaming JSON block.
var ErrMalformedResponse = errors.New("translate: malformed engine response")

// SourceUnavailableError reports that the repository could not be fetched.
// Status is the collaborator's HTTP status, or 502 when it never answered.
type SourceUnavailableError struct {
	Call   string
	Status int
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%d: Could not find your code", e.Status)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func sourceUnavailable(call string, err error) *SourceUnavailableError {
	status := http.StatusBadGateway
	var se *source.StatusError
	if errors.As(err, &se) && se.Status > 0 {
		status = se.Status
	}
	return &SourceUnavailableError{Call: call, Status: status, Err: err}
}

// Request describes one run as received from the caller.
type Request struct {
	RunID          string
	Owner          string
	Repo           string
	TargetLanguage string
	// Authorization is read once from the caller and forwarded to the
	// source service and to HTTP engines.
	Authorization string
	// TemplateURL is where the prompt template is fetched from. Empty uses
	// the orchestrator's own template.
	TemplateURL string
}

func (r Request) ref() source.Ref {
	return source.Ref{Owner: r.Owner, Repo: r.Repo, Authorization: r.Authorization}
}

// Plan is the outcome of Prepare: everything Run needs, fetched before the
// first byte is written to the caller.
type Plan struct {
	RunID    string
	Request  Request
	Tree     *filetree.Node
	Files    filetree.FlattenResult
	Lines    *source.LineTree
	Template llm.Template
	Started  time.Time
}

// State is a step of the run lifecycle.
type State string

const (
	StateIdle           State = "idle"
	StateFetching       State = "fetching"
	StateRequesting     State = "requesting"
	StateStreaming      State = "streaming"
	StateParsing        State = "parsing"
	StateMerging        State = "merging"
	StateReconstructing State = "reconstructing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Event is one state transition of a run. Path is set for per-file states.
type Event struct {
	RunID  string
	State  State
	Path   string
	Fields map[string]any
}

// Observer receives every transition of every run. Implementations must be
// safe for concurrent use; runs of different requests report concurrently.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

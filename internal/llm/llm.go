// Package llm talks to the translation engines. Every engine returns the
// model output as a byte stream so callers can forward it while it arrives.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrEmptyPrompt = errors.New("llm: empty prompt")

// Request is one translation round trip.
type Request struct {
	Prompt string
	// Authorization is forwarded verbatim by engines that call the
	// translation service on the caller's behalf.
	Authorization string
}

// Engine performs one completion and streams the raw markdown response.
// The caller must Close the returned reader.
type Engine interface {
	Name() string
	Complete(ctx context.Context, req Request) (io.ReadCloser, error)
}

// StatusError reports a non-success answer from an HTTP engine.
type StatusError struct {
	Engine string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Engine, e.Status, e.Body)
}

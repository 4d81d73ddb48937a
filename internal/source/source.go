// Package source retrieves a repository's file tree in its two forms: file
// contents as a nested JSON tree, and a YAML document of per-file line counts.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codeshift/internal/filetree"
)

// Ref names a repository and carries the caller's credential, which is
// forwarded unchanged to the backing service.
type Ref struct {
	Owner         string
	Repo          string
	Authorization string
}

// ErrInvalidRef is returned by Ref.Validate.
var ErrInvalidRef = errors.New("source: invalid repository")

// Validate requires owner and repo to be single, non-dot path segments.
func (r Ref) Validate() error {
	for _, seg := range []string{r.Owner, r.Repo} {
		seg = strings.TrimSpace(seg)
		switch {
		case seg == "":
			return fmt.Errorf("%w: owner and repo are required", ErrInvalidRef)
		case seg == "." || seg == "..":
			return fmt.Errorf("%w: %q is not a name", ErrInvalidRef, seg)
		case strings.ContainsAny(seg, `/\`):
			return fmt.Errorf("%w: %q contains a path separator", ErrInvalidRef, seg)
		}
	}
	return nil
}

func (r Ref) String() string { return r.Owner + "/" + r.Repo }

// Provider fetches both forms of a repository tree.
type Provider interface {
	Tree(ctx context.Context, ref Ref) (*filetree.Node, error)
	Lines(ctx context.Context, ref Ref) (string, error)
}

// StatusError is returned when the backing service answers with a
// non-success status.
type StatusError struct {
	Call   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("source %s: unexpected status %d", e.Call, e.Status)
	}
	return fmt.Sprintf("source %s: unexpected status %d: %s", e.Call, e.Status, e.Body)
}

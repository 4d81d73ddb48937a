package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeshift/internal/codeblock"
	"codeshift/internal/filetree"
	"codeshift/internal/identmap"
	"codeshift/internal/llm"
	"codeshift/internal/logging"
	"codeshift/internal/source"
)

// Orchestrator runs translations against one source provider and one engine.
// It holds no per-run state; Prepare and Run may be called concurrently for
// different requests.
type Orchestrator struct {
	source   source.Provider
	engine   llm.Engine
	template llm.Template
	client   *http.Client
	observer Observer
	log      *slog.Logger
	maxDepth int
}

type Option func(*Orchestrator)

// WithTemplate sets the template used when a request names no template URL
// or fetching it fails.
func WithTemplate(t llm.Template) Option {
	return func(o *Orchestrator) { o.template = t }
}

// WithHTTPClient sets the client used to fetch prompt templates.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.client = c
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxDepth caps directory nesting; see filetree.Flatten.
func WithMaxDepth(n int) Option {
	return func(o *Orchestrator) { o.maxDepth = n }
}

func New(src source.Provider, engine llm.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:   src,
		engine:   engine,
		template: llm.DefaultTemplate(),
		client:   http.DefaultClient,
		log:      logging.Discard(),
		maxDepth: filetree.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) observe(runID string, state State, path string, fields map[string]any) {
	if o.observer == nil {
		return
	}
	o.observer.Observe(Event{RunID: runID, State: state, Path: path, Fields: fields})
}

func (o *Orchestrator) fail(runID, path string, err error) error {
	o.observe(runID, StateFailed, path, map[string]any{"error": err.Error()})
	return err
}

// Prepare fetches both forms of the repository tree and the prompt template,
// then flattens the tree into the ordered work list. A source failure is a
// *SourceUnavailableError and no engine call is made.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Plan, error) {
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	req.RunID = runID
	ref := req.ref()
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return nil, errors.New("translate: target language is required")
	}

	log := o.log.With(logging.RunID(runID), slog.String("repo", ref.String()))
	o.observe(runID, StateIdle, "", map[string]any{"repo": ref.String(), "target_language": req.TargetLanguage})
	o.observe(runID, StateFetching, "", nil)

	tree, err := o.source.Tree(ctx, ref)
	if err != nil {
		log.WarnContext(ctx, "fetch tree failed", logging.Error(err))
		return nil, o.fail(runID, "", sourceUnavailable("tree", err))
	}
	linesText, err := o.source.Lines(ctx, ref)
	if err != nil {
		log.WarnContext(ctx, "fetch line counts failed", logging.Error(err))
		return nil, o.fail(runID, "", sourceUnavailable("lines", err))
	}
	lines, err := source.ParseLineTree(linesText)
	if err != nil {
		log.WarnContext(ctx, "line counts unreadable", logging.Error(err))
	}

	files := filetree.Flatten(tree, filetree.IsLeaf, o.maxDepth)
	if len(files.Truncated) > 0 {
		log.WarnContext(ctx, "directories below depth cap skipped",
			slog.Int("max_depth", o.maxDepth),
			slog.Any("truncated", files.Truncated))
	}

	plan := &Plan{
		RunID:    runID,
		Request:  req,
		Tree:     tree,
		Files:    files,
		Lines:    lines,
		Template: o.loadTemplate(ctx, log, req.TemplateURL),
		Started:  time.Now(),
	}
	fields := map[string]any{"files": len(files.Paths)}
	if lines != nil {
		fields["total_lines"] = lines.TotalLines()
	}
	if len(files.Truncated) > 0 {
		fields["truncated"] = files.Truncated
	}
	o.observe(runID, StateFetching, "", fields)
	log.InfoContext(ctx, "run prepared", slog.Int("files", len(files.Paths)))
	return plan, nil
}

// Template returns the template used when a run has no TemplateURL or its
// fetch fails.
func (o *Orchestrator) Template() llm.Template { return o.template }

func (o *Orchestrator) loadTemplate(ctx context.Context, log *slog.Logger, url string) llm.Template {
	if strings.TrimSpace(url) == "" {
		return o.template
	}
	t, err := llm.FetchTemplate(ctx, o.client, url)
	if err != nil {
		log.WarnContext(ctx, "prompt template unavailable, using bundled copy",
			slog.String("url", url), logging.Error(err))
		return o.template
	}
	return t
}

// Run translates the planned files one after another, writing engine output
// to out as it arrives, and finishes out with the reconstructed tree. Any
// error ends the run; nothing further is written.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan, out *Streamer) error {
	log := o.log.With(logging.RunID(plan.RunID))
	names := identmap.New()
	record := make(map[string]string, len(plan.Files.Paths))
	skipped := 0

	for _, p := range plan.Files.Paths {
		key := p.String()
		if err := ctx.Err(); err != nil {
			return o.fail(plan.RunID, key, err)
		}
		leaf, ok := plan.Tree.Lookup(p.Segments)
		content := leaf.Content()
		if !ok || content == "" {
			skipped++
			log.DebugContext(ctx, "skipping empty file", logging.Path(key))
			continue
		}

		start := time.Now()
		code, entries, err := o.translateFile(ctx, plan, key, content, names, out)
		if err != nil {
			log.ErrorContext(ctx, "translation failed", logging.Path(key), logging.Error(err))
			return o.fail(plan.RunID, key, err)
		}

		o.observe(plan.RunID, StateMerging, key, map[string]any{"renamed": len(entries)})
		record[key] = code
		names.Merge(entries)
		log.DebugContext(ctx, "file translated",
			logging.Path(key),
			slog.Int("renamed", len(entries)),
			logging.Elapsed(start))
	}

	o.observe(plan.RunID, StateReconstructing, "", nil)
	tree := filetree.Reconstruct(plan.Files.Paths, record)
	if err := out.Finish(tree); err != nil {
		log.ErrorContext(ctx, "write result failed", logging.Error(err))
		return o.fail(plan.RunID, "", fmt.Errorf("write result: %w", err))
	}

	o.observe(plan.RunID, StateDone, "", map[string]any{
		"translated":  len(record),
		"skipped":     skipped,
		"identifiers": names.Len(),
		"bytes":       out.Written(),
	})
	log.InfoContext(ctx, "run finished",
		slog.Int("translated", len(record)),
		slog.Int("skipped", skipped),
		logging.Elapsed(plan.Started))
	return nil
}

func (o *Orchestrator) translateFile(
	ctx context.Context,
	plan *Plan,
	key, content string,
	names *identmap.Map,
	out *Streamer,
) (string, []identmap.Hint, error) {
	hints := names.HintsFor(content)
	o.observe(plan.RunID, StateRequesting, key, map[string]any{"hints": len(hints)})
	prompt := plan.Template.Render(content, identmap.FormatHints(hints), plan.Request.TargetLanguage)

	body, err := o.engine.Complete(ctx, llm.Request{Prompt: prompt, Authorization: plan.Request.Authorization})
	if err != nil {
		return "", nil, fmt.Errorf("request %s: %w", key, err)
	}
	defer body.Close()

	o.observe(plan.RunID, StateStreaming, key, nil)
	var answer strings.Builder
	if _, err := io.Copy(io.MultiWriter(out, &answer), body); err != nil {
		return "", nil, fmt.Errorf("stream %s: %w", key, err)
	}

	o.observe(plan.RunID, StateParsing, key, map[string]any{"bytes": answer.Len()})
	code, renames, err := codeblock.Pair(answer.String())
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, key, err)
	}
	entries, err := identmap.ParseEntries(renames.Code)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, key, err)
	}
	return code.Code, entries, nil
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"codeshift/internal/logging"
	"codeshift/internal/source"
	"codeshift/internal/translate"
)

// Runner is the part of translate.Orchestrator the handlers need.
type Runner interface {
	Prepare(ctx context.Context, req translate.Request) (*translate.Plan, error)
	Run(ctx context.Context, plan *translate.Plan, out *translate.Streamer) error
}

// TranslateHandler streams a repository translation as plain text.
type TranslateHandler struct {
	runner    Runner
	log       *slog.Logger
	promptURL string
}

// NewTranslateHandler creates the handler. promptURL is where runs fetch the
// prompt template; empty means the orchestrator's own template.
func NewTranslateHandler(runner Runner, log *slog.Logger, promptURL string) *TranslateHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &TranslateHandler{runner: runner, log: log, promptURL: strings.TrimSpace(promptURL)}
}

var errMissingParams = errors.New("owner, repo and targetLanguage are required")

// parseRequest reads the run parameters from the query string or, for the
// /api/{owner}/{repo}/{targetLanguage} route, from the path.
func (h *TranslateHandler) parseRequest(r *http.Request) (translate.Request, error) {
	q := r.URL.Query()
	pick := func(name string) string {
		if v := strings.TrimSpace(r.PathValue(name)); v != "" {
			return v
		}
		return strings.TrimSpace(q.Get(name))
	}
	req := translate.Request{
		RunID:          uuid.NewString(),
		Owner:          pick("owner"),
		Repo:           pick("repo"),
		TargetLanguage: pick("targetLanguage"),
		Authorization:  r.Header.Get("Authorization"),
		TemplateURL:    h.promptURL,
	}
	if req.Owner == "" || req.Repo == "" || req.TargetLanguage == "" {
		return translate.Request{}, errMissingParams
	}
	return req, nil
}

// prepare runs the fetch phase and answers the request itself when it fails.
// It returns nil in that case.
func (h *TranslateHandler) prepare(w http.ResponseWriter, r *http.Request) *translate.Plan {
	req, err := h.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	log := h.log.With(logging.RunID(req.RunID))
	plan, err := h.runner.Prepare(r.Context(), req)
	if err != nil {
		var su *translate.SourceUnavailableError
		if errors.As(err, &su) {
			log.WarnContext(r.Context(), "source unavailable",
				slog.String("call", su.Call),
				slog.Int("status", su.Status),
				logging.Error(su.Err))
			writeText(w, su.Status, su.Error())
			return nil
		}
		if errors.Is(err, source.ErrInvalidRef) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil
		}
		log.ErrorContext(r.Context(), "prepare failed", logging.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	return plan
}

func (h *TranslateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	plan := h.prepare(w, r)
	if plan == nil {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Run-Id", plan.RunID)
	w.WriteHeader(http.StatusOK)

	out := translate.NewStreamer(w)
	if err := h.runner.Run(r.Context(), plan, out); err != nil {
		h.log.ErrorContext(r.Context(), "run failed",
			logging.RunID(plan.RunID),
			slog.Int64("bytes", out.Written()),
			logging.Error(err))
		// 200 is already sent; reset the stream
		panic(http.ErrAbortHandler)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

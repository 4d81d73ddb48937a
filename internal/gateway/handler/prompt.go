package handler

import (
	"io"
	"net/http"

	"codeshift/internal/llm"
)

// PromptHandler serves the prompt template that runs fetch from /prompt.md.
type PromptHandler struct {
	template llm.Template
}

func NewPromptHandler(t llm.Template) *PromptHandler {
	return &PromptHandler{template: t}
}

func (h *PromptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.WriteString(w, h.template.Text())
}

// HandleHealth answers liveness probes.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

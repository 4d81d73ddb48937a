package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"codeshift/internal/gateway/run"
)

type TraceHandler struct {
	traces *run.TraceStore
}

func NewTraceHandler(traces *run.TraceStore) *TraceHandler {
	return &TraceHandler{traces: traces}
}

// HandleFrontendTrace lets a client attach its own events to a run.
func (h *TraceHandler) HandleFrontendTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Timestamp string         `json:"timestamp"`
		RunID     string         `json:"run_id"`
		Stage     string         `json:"stage"`
		Level     string         `json:"level"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	runID := strings.TrimSpace(in.RunID)
	stage := strings.TrimSpace(in.Stage)
	if runID == "" || stage == "" {
		http.Error(w, "run_id and stage are required", http.StatusBadRequest)
		return
	}
	fields := map[string]any{}
	for k, v := range in.Fields {
		fields[k] = v
	}
	if lvl := strings.TrimSpace(in.Level); lvl != "" {
		fields["level"] = lvl
	}
	if ts := strings.TrimSpace(in.Timestamp); ts != "" {
		fields["frontend_timestamp"] = ts
	}
	h.traces.Append(runID, "frontend", stage, "", fields)
	writeJSON(w, map[string]any{"ok": true})
}

func (h *TraceHandler) HandleRunLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		writeJSON(w, map[string]any{"runs": h.traces.Recent()})
		return
	}
	events, err := h.traces.Read(r.Context(), runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"run_id": runID,
		"events": events,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

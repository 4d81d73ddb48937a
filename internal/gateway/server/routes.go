package server

import (
	"log/slog"
	"net/http"

	"codeshift/internal/gateway/handler"
	"codeshift/internal/gateway/middleware"
)

func NewMux(
	translateHandler *handler.TranslateHandler,
	promptHandler *handler.PromptHandler,
	traceHandler *handler.TraceHandler,
	log *slog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Translation
	mux.Handle("GET /api/translate", translateHandler)
	mux.HandleFunc("GET /api/translate/ws", translateHandler.ServeWS)
	mux.Handle("GET /api/{owner}/{repo}/{targetLanguage}", translateHandler)

	// Assets
	mux.Handle("GET /prompt.md", promptHandler)
	mux.HandleFunc("GET /healthz", handler.HandleHealth)

	// Debug Handlers
	mux.HandleFunc("/debug/frontend-trace", traceHandler.HandleFrontendTrace)
	mux.HandleFunc("/debug/run-logs", traceHandler.HandleRunLogs)

	// Middleware
	return middleware.Logging(log)(middleware.CORS(mux))
}

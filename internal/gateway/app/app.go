package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"codeshift/internal/gateway/config"
	"codeshift/internal/gateway/handler"
	"codeshift/internal/gateway/run"
	"codeshift/internal/gateway/server"
	"codeshift/internal/translate"
)

type App struct {
	server  *server.Server
	handler http.Handler
	traces  *run.TraceStore
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	// Dependencies
	orch, traces, err := NewOrchestrator(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	translateHandler := handler.NewTranslateHandler(orch, log, cfg.Prompt.URL)
	promptHandler := handler.NewPromptHandler(orch.Template())
	traceHandler := handler.NewTraceHandler(traces)

	// Routing & Server
	mux := server.NewMux(translateHandler, promptHandler, traceHandler, log)
	srv := server.New(cfg.Port, mux, log)

	return &App{
		server:  srv,
		handler: mux,
		traces:  traces,
	}, nil
}

// NewOrchestrator wires the configured source, engine and trace store into
// an orchestrator. The caller owns the returned trace store.
func NewOrchestrator(ctx context.Context, cfg *config.Config, log *slog.Logger) (*translate.Orchestrator, *run.TraceStore, error) {
	src, err := initSource(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	engine, err := initEngine(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := loadTemplate(cfg)
	if err != nil {
		return nil, nil, err
	}
	traces, err := initTraceStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize trace store: %w", err)
	}
	orch := translate.New(src, engine,
		translate.WithTemplate(tpl),
		translate.WithObserver(traces),
		translate.WithLogger(log),
		translate.WithMaxDepth(cfg.MaxDepth),
	)
	return orch, traces, nil
}

// Handler returns the routed handler, for tests.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Serve(l net.Listener) error {
	return a.server.Serve(l)
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.traces.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

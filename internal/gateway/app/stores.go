package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"codeshift/internal/gateway/config"
	"codeshift/internal/gateway/run"
	"codeshift/internal/llm"
	"codeshift/internal/source"
)

func initSource(cfg *config.Config, log *slog.Logger) (source.Provider, error) {
	switch cfg.Source.Backend {
	case "s3":
		s3 := cfg.Source.S3
		p, err := source.NewObjectStoreProvider(source.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object store source: %w", err)
		}
		log.Info("source: s3", slog.String("bucket", s3.Bucket), slog.String("endpoint", s3.Endpoint))
		return p, nil
	case "dir":
		p, err := source.NewDirProvider(cfg.Source.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize directory source: %w", err)
		}
		log.Info("source: dir", slog.String("root", p.Root()))
		return p, nil
	default:
		log.Info("source: http", slog.String("base_url", cfg.Source.BaseURL))
		return source.NewHTTPProvider(cfg.Source.BaseURL, nil), nil
	}
}

func initEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (llm.Engine, error) {
	var (
		engine llm.Engine
		err    error
	)
	switch cfg.Engine.Backend {
	case "gemini":
		engine, err = llm.NewGeminiEngine(ctx, cfg.Engine.GeminiAPIKey, cfg.Engine.GeminiModel)
	case "openai":
		engine, err = llm.NewOpenAIEngine(cfg.Engine.OpenAIAPIKey, cfg.Engine.OpenAIModel, cfg.Engine.OpenAIBaseURL)
	case "fake":
		engine = llm.NewFakeEngine(0)
	default:
		engine = llm.NewHTTPEngine(cfg.Engine.URL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s engine: %w", cfg.Engine.Backend, err)
	}
	log.Info("engine ready", slog.String("engine", engine.Name()))
	return llm.Wrap(engine,
		llm.WithLogging(log),
		llm.RateLimit(cfg.Engine.RPS, cfg.Engine.Burst),
	), nil
}

func loadTemplate(cfg *config.Config) (llm.Template, error) {
	path := strings.TrimSpace(cfg.Prompt.File)
	if path == "" {
		return llm.DefaultTemplate(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return llm.Template{}, fmt.Errorf("failed to read prompt file: %w", err)
	}
	return llm.NewTemplate(string(raw)), nil
}

func initTraceStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*run.TraceStore, error) {
	var sinks []run.Sink

	dir := strings.TrimSpace(cfg.Trace.Dir)
	if dir == "" && cfg.IsLocal() {
		dir = run.DefaultTraceDir()
	}
	if dir != "" {
		fs, err := run.NewFileSink(dir)
		if err != nil {
			return nil, err
		}
		log.Info("trace sink: jsonl", slog.String("dir", dir))
		sinks = append(sinks, fs)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pg, err := run.NewPostgresSink(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace db: %w", err)
		}
		log.Info("trace sink: postgres")
		sinks = append(sinks, pg)
	}

	return run.NewTraceStore(cfg.Trace.CacheSize, log, sinks...)
}

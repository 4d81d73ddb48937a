package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"PORT" envDefault:":8080"`
	Env       string `env:"APP_ENV" envDefault:"local"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	MaxDepth  int    `env:"MAX_DEPTH" envDefault:"20"`

	// DatabaseURL enables the Postgres trace sink when set.
	DatabaseURL string `env:"DATABASE_URL"`

	Source SourceConfig
	Engine EngineConfig
	Prompt PromptConfig
	Trace  TraceConfig
}

type SourceConfig struct {
	Backend string   `env:"SOURCE_BACKEND" envDefault:"http"`
	BaseURL string   `env:"SOURCE_BASE_URL" envDefault:"https://github.actionschema.com"`
	Dir     string   `env:"SOURCE_DIR"`
	S3      S3Config `envPrefix:"SOURCE_S3_"`
}

type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"codeshift-sources"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
}

func (c S3Config) CanUse() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

type EngineConfig struct {
	Backend string `env:"ENGINE_BACKEND" envDefault:"http"`
	URL     string `env:"ENGINE_URL" envDefault:"https://chat.actionschema.com/chat/simple"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// RPS <= 0 disables throttling.
	RPS   float64 `env:"ENGINE_RPS"`
	Burst int     `env:"ENGINE_BURST" envDefault:"1"`
}

type PromptConfig struct {
	// URL overrides where runs fetch the template from. Empty means the
	// gateway's own /prompt.md.
	URL string `env:"PROMPT_URL"`
	// File replaces the embedded template served at /prompt.md.
	File string `env:"PROMPT_FILE"`
}

type TraceConfig struct {
	CacheSize int    `env:"TRACE_CACHE_SIZE" envDefault:"256"`
	Dir       string `env:"TRACE_DIR"`
}

// Load reads .env if present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Port = NormalizePort(cfg.Port)
	cfg.Source.Backend = strings.ToLower(strings.TrimSpace(cfg.Source.Backend))
	cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Source.Backend {
	case "http":
	case "dir":
		if strings.TrimSpace(c.Source.Dir) == "" {
			return fmt.Errorf("config: SOURCE_BACKEND=dir needs SOURCE_DIR")
		}
	case "s3":
		if !c.Source.S3.CanUse() {
			return fmt.Errorf("config: SOURCE_BACKEND=s3 needs SOURCE_S3_ENDPOINT, SOURCE_S3_ACCESS_KEY, SOURCE_S3_SECRET_KEY and SOURCE_S3_BUCKET")
		}
	default:
		return fmt.Errorf("config: unknown SOURCE_BACKEND %q", c.Source.Backend)
	}
	switch c.Engine.Backend {
	case "http", "fake":
	case "gemini":
		if strings.TrimSpace(c.Engine.GeminiAPIKey) == "" {
			return fmt.Errorf("config: ENGINE_BACKEND=gemini needs GEMINI_API_KEY")
		}
	case "openai":
		if strings.TrimSpace(c.Engine.OpenAIAPIKey) == "" {
			return fmt.Errorf("config: ENGINE_BACKEND=openai needs OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown ENGINE_BACKEND %q", c.Engine.Backend)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("config: MAX_DEPTH must be positive, got %d", c.MaxDepth)
	}
	if c.Trace.CacheSize <= 0 {
		return fmt.Errorf("config: TRACE_CACHE_SIZE must be positive, got %d", c.Trace.CacheSize)
	}
	return nil
}

// NormalizePort accepts "8080" or ":8080" and returns the listen address form.
func NormalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// IsLocal reports whether the gateway runs in the local development profile.
func (c *Config) IsLocal() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "local")
}

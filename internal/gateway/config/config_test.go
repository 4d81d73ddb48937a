package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, "http", cfg.Source.Backend)
	assert.Equal(t, "https://github.actionschema.com", cfg.Source.BaseURL)
	assert.Equal(t, "http", cfg.Engine.Backend)
	assert.Equal(t, "https://chat.actionschema.com/chat/simple", cfg.Engine.URL)
	assert.Equal(t, 20, cfg.MaxDepth)
	assert.Equal(t, 256, cfg.Trace.CacheSize)
	assert.Equal(t, 1, cfg.Engine.Burst)
	assert.Zero(t, cfg.Engine.RPS)
	assert.True(t, cfg.Source.S3.UseSSL)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"PORT":                 "9000",
		"APP_ENV":              "production",
		"SOURCE_BACKEND":       "S3",
		"SOURCE_S3_ENDPOINT":   "minio:9000",
		"SOURCE_S3_ACCESS_KEY": "ak",
		"SOURCE_S3_SECRET_KEY": "sk",
		"SOURCE_S3_USE_SSL":    "false",
		"ENGINE_BACKEND":       "openai",
		"OPENAI_API_KEY":       "sk-test",
		"OPENAI_BASE_URL":      "http://localhost:11434/v1",
		"ENGINE_RPS":           "2.5",
		"MAX_DEPTH":            "5",
		"TRACE_DIR":            "/tmp/traces",
		"DATABASE_URL":         "postgres://u:p@db/codeshift",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Port)
	assert.False(t, cfg.IsLocal())
	assert.Equal(t, "s3", cfg.Source.Backend)
	assert.Equal(t, "minio:9000", cfg.Source.S3.Endpoint)
	assert.Equal(t, "codeshift-sources", cfg.Source.S3.Bucket)
	assert.False(t, cfg.Source.S3.UseSSL)
	assert.Equal(t, "openai", cfg.Engine.Backend)
	assert.Equal(t, 2.5, cfg.Engine.RPS)
	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, "/tmp/traces", cfg.Trace.Dir)
	assert.Equal(t, "postgres://u:p@db/codeshift", cfg.DatabaseURL)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown source":  {"SOURCE_BACKEND": "ftp"},
		"incomplete s3":   {"SOURCE_BACKEND": "s3", "SOURCE_S3_ENDPOINT": "minio:9000"},
		"dir no root":     {"SOURCE_BACKEND": "dir"},
		"unknown engine":  {"ENGINE_BACKEND": "carrier-pigeon"},
		"gemini no key":   {"ENGINE_BACKEND": "gemini"},
		"openai no key":   {"ENGINE_BACKEND": "openai"},
		"zero depth":      {"MAX_DEPTH": "0"},
		"bad depth":       {"MAX_DEPTH": "deep"},
		"zero trace size": {"TRACE_CACHE_SIZE": "0"},
	}
	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(environ)
			assert.Error(t, err)
		})
	}
}

func TestNormalizePort(t *testing.T) {
	assert.Equal(t, ":8080", NormalizePort("8080"))
	assert.Equal(t, ":8080", NormalizePort(" :8080 "))
	assert.Equal(t, "127.0.0.1:8080", NormalizePort("127.0.0.1:8080"))
	assert.Equal(t, "", NormalizePort(""))
}

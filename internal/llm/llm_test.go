package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshift/internal/codeblock"
)

func TestHTTPEngineStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "translate me", string(body))

		f := w.(http.Flusher)
		for _, part := range []string{"```go\n", "x := 1\n", "```\n"} {
			_, _ = io.WriteString(w, part)
			f.Flush()
		}
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.URL, nil)
	rc, err := e.Complete(context.Background(), Request{Prompt: "translate me", Authorization: "Bearer abc"})
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "```go\nx := 1\n```\n", string(got))
}

func TestHTTPEngineStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPEngine(srv.URL, nil).Complete(context.Background(), Request{Prompt: "p"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "overloaded", se.Body)
}

func TestEnginesRejectEmptyPrompt(t *testing.T) {
	_, err := NewHTTPEngine("http://127.0.0.1:1", nil).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	_, err = NewFakeEngine(0).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestNewOpenAIEngineRequiresKey(t *testing.T) {
	_, err := NewOpenAIEngine(" ", "", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	e, err := NewOpenAIEngine("sk-test", "", "https://api.groq.com/openai/v1")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI:"+DefaultOpenAIModel, e.Name())
}

func TestFakeEngineOutputHasTwoBlocks(t *testing.T) {
	prompt := DefaultTemplate().Render("print('hi')", "", "go")
	rc, err := NewFakeEngine(7).Complete(context.Background(), Request{Prompt: prompt})
	require.NoError(t, err)
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	require.NoError(t, err)

	code, names, err := codeblock.Pair(string(raw))
	require.NoError(t, err)
	assert.Equal(t, prompt, code.Code)
	assert.Equal(t, "{}", names.Code)
}

func TestPipeStreamCloseCancelsProducer(t *testing.T) {
	stopped := make(chan struct{})
	rc := pipeStream(context.Background(), func(ctx context.Context, emit emitFunc) error {
		defer close(stopped)
		for {
			if err := emit("tick"); err != nil {
				return err
			}
		}
	})
	buf := make([]byte, 4)
	_, err := io.ReadFull(rc, buf)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("producer kept running after Close")
	}
}

func TestPipeStreamPropagatesError(t *testing.T) {
	boom := errors.New("stream broke")
	rc := pipeStream(context.Background(), func(ctx context.Context, emit emitFunc) error {
		_ = emit("partial")
		return boom
	})
	defer rc.Close()
	got, err := io.ReadAll(rc)
	assert.Equal(t, "partial", string(got))
	assert.ErrorIs(t, err, boom)
}

func TestTemplateRenderFirstOccurrenceOnly(t *testing.T) {
	tpl := NewTemplate("lang={targetLanguage}\nhints:{variableNameMapListString}\ncode:{codeString}\nagain {targetLanguage}")
	got := tpl.Render("x = '{targetLanguage}'", "\n- a: A", "go")
	assert.Equal(t, "lang=go\nhints:\n- a: A\ncode:x = '{targetLanguage}'\nagain {targetLanguage}", got)
}

func TestTemplateRenderMissingPlaceholder(t *testing.T) {
	got := NewTemplate("only {codeString}").Render("body", "ignored", "go")
	assert.Equal(t, "only body", got)
}

func TestDefaultTemplateHasPlaceholders(t *testing.T) {
	text := DefaultTemplate().Text()
	for _, p := range []string{PlaceholderCode, PlaceholderHints, PlaceholderLanguage} {
		assert.Equal(t, 1, strings.Count(text, p), p)
	}

	out := DefaultTemplate().Render("print(1)", "\n- x: y", "go")
	for _, p := range []string{PlaceholderCode, PlaceholderHints, PlaceholderLanguage} {
		assert.NotContains(t, out, p)
	}
	assert.Contains(t, out, "print(1)")
	assert.Contains(t, out, "into go.")
}

func TestFetchTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt.md" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "T {codeString}")
	}))
	defer srv.Close()

	tpl, err := FetchTemplate(context.Background(), nil, srv.URL+"/prompt.md")
	require.NoError(t, err)
	assert.Equal(t, "T {codeString}", tpl.Text())

	_, err = FetchTemplate(context.Background(), nil, srv.URL+"/missing.md")
	assert.Error(t, err)
}

type countingEngine struct {
	calls int
}

func (c *countingEngine) Name() string { return "counting" }

func (c *countingEngine) Complete(context.Context, Request) (io.ReadCloser, error) {
	c.calls++
	return io.NopCloser(strings.NewReader("ok")), nil
}

func TestWrapOrderAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	inner := &countingEngine{}

	e := Wrap(inner, WithLogging(logger), RateLimit(0, 0))
	assert.Equal(t, "counting", e.Name())

	rc, err := e.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	_, _ = io.ReadAll(rc)
	require.NoError(t, rc.Close())

	assert.Equal(t, 1, inner.calls)
	assert.Contains(t, buf.String(), "llm response drained")
	assert.Contains(t, buf.String(), "bytes=2")
}

func TestRateLimitHonoursContext(t *testing.T) {
	e := Wrap(&countingEngine{}, RateLimit(0.001, 1))
	_, err := e.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Complete(ctx, Request{Prompt: "p"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRPSLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := newRPSLimiter(2, 2)
	l.now = func() time.Time { return now }
	l.last = now

	assert.Zero(t, l.reserve())
	assert.Zero(t, l.reserve())
	assert.Equal(t, 500*time.Millisecond, l.reserve())

	now = now.Add(time.Second)
	assert.Zero(t, l.reserve())
	assert.Zero(t, l.reserve())
	assert.Positive(t, l.reserve())
}

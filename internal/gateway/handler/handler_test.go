package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshift/internal/gateway/handler"
	"codeshift/internal/gateway/run"
	"codeshift/internal/gateway/server"
	"codeshift/internal/llm"
	"codeshift/internal/logging"
	"codeshift/internal/source"
	"codeshift/internal/translate"
)

// newSourceServer serves one repository, octo/demo, in both tree forms.
func newSourceServer(t *testing.T, tree string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/octo/demo/search" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("size") == "lines" {
			_, _ = io.WriteString(w, "a.py: 1\n")
			return
		}
		_, _ = io.WriteString(w, tree)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type countingEngine struct {
	llm.Engine
	calls atomic.Int32
}

func (c *countingEngine) Complete(ctx context.Context, r llm.Request) (io.ReadCloser, error) {
	c.calls.Add(1)
	return c.Engine.Complete(ctx, r)
}

type gateway struct {
	*httptest.Server
	engine *countingEngine
	traces *run.TraceStore
}

func newGateway(t *testing.T, sourceURL string) *gateway {
	return newGatewayWith(t, sourceURL, llm.NewFakeEngine(5))
}

func newGatewayWith(t *testing.T, sourceURL string, engine llm.Engine) *gateway {
	t.Helper()
	log := logging.Discard()
	traces, err := run.NewTraceStore(16, log)
	require.NoError(t, err)

	tpl := llm.NewTemplate("{codeString}")
	eng := &countingEngine{Engine: engine}
	orch := translate.New(source.NewHTTPProvider(sourceURL, nil), eng,
		translate.WithTemplate(tpl),
		translate.WithObserver(traces),
		translate.WithLogger(log))

	mux := server.NewMux(
		handler.NewTranslateHandler(orch, log, ""),
		handler.NewPromptHandler(tpl),
		handler.NewTraceHandler(traces),
		log,
	)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &gateway{Server: srv, engine: eng, traces: traces}
}

// fakeAnswer is what llm.FakeEngine streams for a prompt without backticks.
func fakeAnswer(prompt string) string {
	return "```text\n" + prompt + "\n```\n\n```json\n{}\n```\n"
}

const identityTree = `{"a.py":{"content":"x=1"},"b/c.py":{"content":"y=2"}}`

func get(t *testing.T, url string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestTranslateStreamsOutputThenTree(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, body := get(t, gw.URL+"/api/translate?owner=octo&repo=demo&targetLanguage=go", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Run-Id"))
	want := fakeAnswer("x=1") + fakeAnswer("y=2") + translate.Delimiter + `{"a.py":"x=1","b":{"c.py":"y=2"}}`
	assert.Equal(t, want, body)
	assert.EqualValues(t, 2, gw.engine.calls.Load())
}

// plainEngine answers every prompt with the same text.
type plainEngine string

func (e plainEngine) Name() string { return "plain" }

func (e plainEngine) Complete(context.Context, llm.Request) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(e))), nil
}

func TestTranslateFailedRunBreaksBody(t *testing.T) {
	gw := newGatewayWith(t, newSourceServer(t, identityTree).URL, plainEngine("no fences here"))

	resp, err := http.Get(gw.URL + "/api/translate?owner=octo&repo=demo&targetLanguage=go")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
	assert.NotContains(t, string(body), translate.Delimiter)
	assert.EqualValues(t, 1, gw.engine.calls.Load())
}

func TestTranslateIgnoresClientHostForTemplate(t *testing.T) {
	var hits atomic.Int32
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "HIJACKED {codeString}")
	}))
	defer elsewhere.Close()
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	req, err := http.NewRequest(http.MethodGet, gw.URL+"/api/translate?owner=octo&repo=demo&targetLanguage=go", nil)
	require.NoError(t, err)
	req.Host = strings.TrimPrefix(elsewhere.URL, "http://")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Zero(t, hits.Load())
	assert.NotContains(t, string(body), "HIJACKED")
}

func TestTranslateOriginalRouteShape(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, body := get(t, gw.URL+"/api/octo/demo/go", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasSuffix(body, translate.Delimiter+`{"a.py":"x=1","b":{"c.py":"y=2"}}`))
}

func TestTranslateUnknownRepository(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, body := get(t, gw.URL+"/api/translate?owner=nobody&repo=nothing&targetLanguage=go", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404: Could not find your code", body)
	assert.EqualValues(t, 0, gw.engine.calls.Load())
}

func TestTranslateForwardsAuthorization(t *testing.T) {
	var seen atomic.Value
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{}`)
	}))
	defer src.Close()
	gw := newGateway(t, src.URL)

	resp, _ := get(t, gw.URL+"/api/translate?owner=octo&repo=demo&targetLanguage=go",
		http.Header{"Authorization": {"Bearer secret"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer secret", seen.Load())
}

func TestTranslateMissingParameters(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, _ := get(t, gw.URL+"/api/translate?owner=octo&repo=demo", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 0, gw.engine.calls.Load())
}

func TestTranslateRejectsDotSegments(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, _ := get(t, gw.URL+"/api/translate?owner=octo&repo=..&targetLanguage=go", nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, gw.engine.calls.Load())
}

func TestRunLogsAfterRun(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, _ := get(t, gw.URL+"/api/translate?owner=octo&repo=demo&targetLanguage=go", nil)
	runID := resp.Header.Get("X-Run-Id")
	require.NotEmpty(t, runID)

	_, body := get(t, gw.URL+"/debug/run-logs?run_id="+runID, nil)
	var out struct {
		RunID  string           `json:"run_id"`
		Events []run.TraceEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.NotEmpty(t, out.Events)
	assert.Equal(t, runID, out.RunID)
	assert.Equal(t, "done", out.Events[len(out.Events)-1].Stage)

	_, body = get(t, gw.URL+"/debug/run-logs", nil)
	assert.Contains(t, body, runID)
}

func TestFrontendTrace(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, err := http.Post(gw.URL+"/debug/frontend-trace", "application/json",
		strings.NewReader(`{"run_id":"r1","stage":"rendered","level":"info"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events, err := gw.traces.Read(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "frontend", events[0].Source)
	assert.Equal(t, "info", events[0].Fields["level"])

	resp, err = http.Post(gw.URL+"/debug/frontend-trace", "application/json", strings.NewReader(`{"run_id":"r1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPromptAndHealth(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	resp, body := get(t, gw.URL+"/prompt.md", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "{codeString}", body)

	resp, body = get(t, gw.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)
}

func TestCORSPreflight(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	req, err := http.NewRequest(http.MethodOptions, gw.URL+"/api/translate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestTranslateOverWebSocket(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(gw.URL)+"/api/translate/ws?owner=octo&repo=demo&targetLanguage=go", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Run-Id"))

	var messages []string
	var closeErr error
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}
		messages = append(messages, string(msg))
	}

	assert.True(t, websocket.IsCloseError(closeErr, websocket.CloseNormalClosure), "got %v", closeErr)
	require.GreaterOrEqual(t, len(messages), 3)
	assert.Equal(t, translate.Delimiter, messages[len(messages)-2])
	assert.Equal(t, `{"a.py":"x=1","b":{"c.py":"y=2"}}`, messages[len(messages)-1])
	assert.Equal(t, fakeAnswer("x=1")+fakeAnswer("y=2"), strings.Join(messages[:len(messages)-2], ""))
}

func TestWebSocketUnknownRepositoryIsPlainHTTP(t *testing.T) {
	gw := newGateway(t, newSourceServer(t, identityTree).URL)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(gw.URL)+"/api/translate/ws?owner=nobody&repo=x&targetLanguage=go", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404: Could not find your code", string(body))
}

package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
)

const DefaultEngineURL = "https://chat.actionschema.com/chat/simple"

// HTTPEngine posts the rendered prompt to a chat endpoint that answers with a
// streamed markdown body.
type HTTPEngine struct {
	http     *http.Client
	endpoint string
}

// NewHTTPEngine creates an engine for endpoint. No client timeout is set; a
// stalled response is bounded only by the request context.
func NewHTTPEngine(endpoint string, client *http.Client) *HTTPEngine {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEngineURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPEngine{http: client, endpoint: endpoint}
}

func (e *HTTPEngine) Name() string { return "HTTP:" + e.endpoint }

func (e *HTTPEngine) Complete(ctx context.Context, r Request) (io.ReadCloser, error) {
	if r.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(r.Prompt))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if r.Authorization != "" {
		req.Header.Set("Authorization", r.Authorization)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Engine: e.Name(), Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp.Body, nil
}

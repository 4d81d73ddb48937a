package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"codeshift/internal/filetree"
)

const DefaultBaseURL = "https://github.actionschema.com"

// HTTPProvider reads trees from the repository search service.
type HTTPProvider struct {
	http    *http.Client
	baseURL string
}

// NewHTTPProvider creates a provider for baseURL. A nil client uses a plain
// http.Client without timeout; the request context bounds each call.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProvider{http: client, baseURL: baseURL}
}

func (p *HTTPProvider) searchURL(ref Ref) string {
	return p.baseURL + "/" + url.PathEscape(ref.Owner) + "/" + url.PathEscape(ref.Repo) + "/search"
}

// Tree fetches GET {base}/{owner}/{repo}/search and decodes the JSON tree.
func (p *HTTPProvider) Tree(ctx context.Context, ref Ref) (*filetree.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	body, err := p.get(ctx, "content", p.searchURL(ref), ref.Authorization, "application/json")
	if err != nil {
		return nil, err
	}
	root, err := filetree.Decode(body, filetree.HasContent)
	if err != nil {
		return nil, fmt.Errorf("decode content tree: %w", err)
	}
	return root, nil
}

// Lines fetches GET {base}/{owner}/{repo}/search?size=lines as text.
func (p *HTTPProvider) Lines(ctx context.Context, ref Ref) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	body, err := p.get(ctx, "lines", p.searchURL(ref)+"?size=lines", ref.Authorization, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (p *HTTPProvider) get(ctx context.Context, call, target, auth, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", call, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Call: call, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source %s: read body: %w", call, err)
	}
	return body, nil
}

package llm

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// Placeholders substituted into the prompt template.
const (
	PlaceholderCode     = "{codeString}"
	PlaceholderHints    = "{variableNameMapListString}"
	PlaceholderLanguage = "{targetLanguage}"
)

//go:embed prompt.md
var defaultPrompt string

// DefaultTemplate is the prompt bundled with the binary.
func DefaultTemplate() Template { return NewTemplate(defaultPrompt) }

// Template is the prompt document with its three placeholders.
type Template struct {
	text string
}

func NewTemplate(text string) Template { return Template{text: text} }

func (t Template) Text() string { return t.text }

// Render replaces the first occurrence of each placeholder. Positions are
// taken from the template itself, so placeholder-like text inside the
// substituted code is left alone. A missing placeholder is skipped.
func (t Template) Render(code, hints, language string) string {
	type slot struct {
		at    int
		key   string
		value string
	}
	var slots []slot
	for _, s := range []slot{
		{key: PlaceholderCode, value: code},
		{key: PlaceholderHints, value: hints},
		{key: PlaceholderLanguage, value: language},
	} {
		if i := strings.Index(t.text, s.key); i >= 0 {
			s.at = i
			slots = append(slots, s)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].at < slots[j].at })

	var b strings.Builder
	b.Grow(len(t.text) + len(code) + len(hints) + len(language))
	pos := 0
	for _, s := range slots {
		if s.at < pos {
			// overlaps the previous placeholder
			continue
		}
		b.WriteString(t.text[pos:s.at])
		b.WriteString(s.value)
		pos = s.at + len(s.key)
	}
	b.WriteString(t.text[pos:])
	return b.String()
}

// FetchTemplate downloads the template document from url.
func FetchTemplate(ctx context.Context, client *http.Client, url string) (Template, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Template{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Template{}, fmt.Errorf("fetch template: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Template{}, fmt.Errorf("fetch template: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Template{}, fmt.Errorf("fetch template: %w", err)
	}
	return NewTemplate(string(body)), nil
}

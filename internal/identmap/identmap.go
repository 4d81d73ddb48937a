// Package identmap accumulates identifier renames across the files of one
// translation run so later files can reuse the names chosen for earlier ones.
package identmap

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrInvalidEntries = errors.New("identmap: renaming payload is not a JSON object")

// Hint is one original → translated identifier pair.
type Hint struct {
	Original   string
	Translated string
}

// Map is an insertion-ordered rename table. Entries are never removed.
// A Map is owned by a single run and is not safe for concurrent use.
type Map struct {
	order []string
	names map[string]string
}

func New() *Map {
	return &Map{names: map[string]string{}}
}

func (m *Map) Len() int { return len(m.order) }

func (m *Map) Get(original string) (string, bool) {
	v, ok := m.names[original]
	return v, ok
}

// Entries returns every pair in insertion order.
func (m *Map) Entries() []Hint {
	out := make([]Hint, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, Hint{Original: k, Translated: m.names[k]})
	}
	return out
}

// HintsFor returns the entries whose original name occurs anywhere in text.
// Matching is a plain case-sensitive substring test, not a token match.
func (m *Map) HintsFor(text string) []Hint {
	var out []Hint
	for _, k := range m.order {
		if strings.Contains(text, k) {
			out = append(out, Hint{Original: k, Translated: m.names[k]})
		}
	}
	return out
}

// Merge adds entries in order. An existing original name is overwritten
// (last write wins) and keeps its first position.
func (m *Map) Merge(entries []Hint) {
	for _, e := range entries {
		if _, ok := m.names[e.Original]; !ok {
			m.order = append(m.order, e.Original)
		}
		m.names[e.Original] = e.Translated
	}
}

// FormatHints renders hints the way the prompt template expects them,
// one "\n- original: translated" line per hint.
func FormatHints(hints []Hint) string {
	var b strings.Builder
	for _, h := range hints {
		b.WriteString("\n- ")
		b.WriteString(h.Original)
		b.WriteString(": ")
		b.WriteString(h.Translated)
	}
	return b.String()
}

// ParseEntries reads a JSON object of renames keeping member order.
// Non-string values are kept as their raw JSON text.
func ParseEntries(raw string) ([]Hint, error) {
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) {
		return nil, ErrInvalidEntries
	}
	obj := gjson.Parse(raw)
	if !obj.IsObject() {
		return nil, ErrInvalidEntries
	}
	var out []Hint
	obj.ForEach(func(key, value gjson.Result) bool {
		v := value.String()
		if value.Type != gjson.String {
			v = value.Raw
		}
		out = append(out, Hint{Original: key.String(), Translated: v})
		return true
	})
	return out, nil
}

package source

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LineTree is the parsed line-count form of a repository. Nothing in the
// translation path reads it yet; it is kept for telemetry.
type LineTree struct {
	root yaml.Node
}

func ParseLineTree(text string) (*LineTree, error) {
	var t LineTree
	if strings.TrimSpace(text) == "" {
		return &t, nil
	}
	if err := yaml.Unmarshal([]byte(text), &t.root); err != nil {
		return nil, fmt.Errorf("parse line tree: %w", err)
	}
	return &t, nil
}

// Files counts scalar leaves that are mapping values.
func (t *LineTree) Files() int {
	n := 0
	walkLeaves(&t.root, func(*yaml.Node) { n++ })
	return n
}

// TotalLines sums every integer leaf.
func (t *LineTree) TotalLines() int {
	total := 0
	walkLeaves(&t.root, func(v *yaml.Node) {
		if i, err := strconv.Atoi(strings.TrimSpace(v.Value)); err == nil {
			total += i
		}
	})
	return total
}

func walkLeaves(n *yaml.Node, fn func(*yaml.Node)) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			walkLeaves(c, fn)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			v := n.Content[i]
			if v.Kind == yaml.ScalarNode {
				fn(v)
				continue
			}
			walkLeaves(v, fn)
		}
	}
}

// lineDoc builds the YAML line-count document for a set of files. Keys are
// nested by "/" in the order given.
type lineDoc struct {
	root *yaml.Node
}

func newLineDoc() *lineDoc {
	return &lineDoc{root: &yaml.Node{Kind: yaml.MappingNode}}
}

func (d *lineDoc) add(path string, lines int) {
	segs := strings.Split(path, "/")
	cur := d.root
	for _, seg := range segs[:len(segs)-1] {
		cur = childMapping(cur, seg)
	}
	cur.Content = append(cur.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: segs[len(segs)-1]},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(lines)},
	)
}

func childMapping(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key && m.Content[i+1].Kind == yaml.MappingNode {
			return m.Content[i+1]
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
	return child
}

func (d *lineDoc) String() (string, error) {
	if len(d.root.Content) == 0 {
		return "{}\n", nil
	}
	out, err := yaml.Marshal(d.root)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

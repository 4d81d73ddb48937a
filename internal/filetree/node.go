// Package filetree models a repository as an ordered tree of files and
// directories, and converts between that tree and a flat list of leaf paths.
package filetree

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Separator joins the segments of a LeafPath.
const Separator = "/"

// Node is either a leaf holding file content or a directory holding an
// ordered set of named children. Key order of a directory is significant.
type Node struct {
	leaf     bool
	content  string
	keys     []string
	children map[string]*Node
}

func NewLeaf(content string) *Node {
	return &Node{leaf: true, content: content}
}

func NewDir() *Node {
	return &Node{children: map[string]*Node{}}
}

func (n *Node) IsLeaf() bool { return n != nil && n.leaf }

func (n *Node) IsDir() bool { return n != nil && !n.leaf }

// Content returns the file text of a leaf; directories return "".
func (n *Node) Content() string {
	if !n.IsLeaf() {
		return ""
	}
	return n.content
}

// Keys returns child names in stored order.
func (n *Node) Keys() []string {
	if !n.IsDir() {
		return nil
	}
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

func (n *Node) Len() int {
	if !n.IsDir() {
		return 0
	}
	return len(n.keys)
}

func (n *Node) Child(name string) (*Node, bool) {
	if !n.IsDir() {
		return nil, false
	}
	c, ok := n.children[name]
	return c, ok
}

// Set stores child under name. Replacing an existing name keeps its position.
func (n *Node) Set(name string, child *Node) {
	if !n.IsDir() {
		return
	}
	if _, ok := n.children[name]; !ok {
		n.keys = append(n.keys, name)
	}
	n.children[name] = child
}

// Lookup walks segments from n and returns the node found there.
func (n *Node) Lookup(segments []string) (*Node, bool) {
	cur := n
	for _, seg := range segments {
		next, ok := cur.Child(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// MarshalJSON encodes a leaf as a JSON string and a directory as an object
// whose members follow stored key order. HTML characters are not escaped.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	if n.leaf {
		return writeString(buf, n.content)
	}
	buf.WriteByte('{')
	for i, k := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := n.children[k].writeJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// LeafPath identifies one leaf by the raw keys leading to it.
type LeafPath struct {
	Segments []string
}

func NewLeafPath(segments ...string) LeafPath {
	return LeafPath{Segments: append([]string(nil), segments...)}
}

func (p LeafPath) String() string {
	return strings.Join(p.Segments, Separator)
}

func (p LeafPath) child(name string) LeafPath {
	segs := make([]string, len(p.Segments), len(p.Segments)+1)
	copy(segs, p.Segments)
	return LeafPath{Segments: append(segs, name)}
}

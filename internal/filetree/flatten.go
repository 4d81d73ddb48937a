package filetree

import "strings"

// DefaultMaxDepth bounds how many directory levels Flatten descends.
const DefaultMaxDepth = 20

// LeafFunc reports whether a node is a file.
type LeafFunc func(*Node) bool

// IsLeaf is the default LeafFunc.
func IsLeaf(n *Node) bool { return n.IsLeaf() }

// FlattenResult is the ordered leaf list plus the directories that were not
// expanded because they sit deeper than the depth cap.
type FlattenResult struct {
	Paths     []LeafPath
	Truncated []string
}

// Strings returns the joined form of every path.
func (r FlattenResult) Strings() []string {
	out := make([]string, len(r.Paths))
	for i, p := range r.Paths {
		out[i] = p.String()
	}
	return out
}

type frame struct {
	node  *Node
	path  LeafPath
	level int
}

// Flatten lists the leaves under root in depth-first, stored-key order.
// Directories below maxDepth are skipped and reported in Truncated; the
// partial result is still returned. maxDepth <= 0 selects DefaultMaxDepth.
func Flatten(root *Node, isLeaf LeafFunc, maxDepth int) FlattenResult {
	if isLeaf == nil {
		isLeaf = IsLeaf
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var res FlattenResult
	if !root.IsDir() {
		return res
	}

	stack := []frame{{node: root, level: 0}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.level > 0 && isLeaf(top.node) {
			res.Paths = append(res.Paths, top.path)
			continue
		}
		if !top.node.IsDir() {
			continue
		}
		if top.level > maxDepth {
			res.Truncated = append(res.Truncated, top.path.String())
			continue
		}
		keys := top.node.keys
		for i := len(keys) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:  top.node.children[keys[i]],
				path:  top.path.child(keys[i]),
				level: top.level + 1,
			})
		}
	}
	return res
}

// Reconstruct builds a tree from the ordered path list, inserting the recorded
// text of every path that has one. Paths without a record are left out.
func Reconstruct(paths []LeafPath, record map[string]string) *Node {
	root := NewDir()
	for _, p := range paths {
		key := p.String()
		text, ok := record[key]
		if !ok {
			continue
		}
		SetPath(root, strings.Split(key, Separator), NewLeaf(text))
	}
	return root
}

// SetPath stores value at segments below root, creating directories for
// intermediate segments that are missing or not directories.
func SetPath(root *Node, segments []string, value *Node) {
	if !root.IsDir() || len(segments) == 0 {
		return
	}
	cur := root
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur.Child(seg)
		if !ok || !next.IsDir() {
			next = NewDir()
			cur.Set(seg, next)
		}
		cur = next
	}
	cur.Set(segments[len(segments)-1], value)
}

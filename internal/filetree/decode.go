package filetree

import (
	"errors"

	"github.com/tidwall/gjson"
)

var ErrInvalidTree = errors.New("filetree: payload is not a JSON object")

// JSONLeafFunc classifies a raw JSON value as a file.
type JSONLeafFunc func(v gjson.Result) bool

// HasContent treats an object whose "content" member is not itself an object
// as a file, so a directory literally named "content" stays a directory.
func HasContent(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	c := v.Get("content")
	return c.Exists() && !c.IsObject()
}

// Decode parses the content form of a repository listing. Object member order
// is kept. Values that are neither files nor objects become empty leaves.
func Decode(raw []byte, isLeaf JSONLeafFunc) (*Node, error) {
	if isLeaf == nil {
		isLeaf = HasContent
	}
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidTree
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, ErrInvalidTree
	}
	return decodeDir(root, isLeaf), nil
}

func decodeDir(v gjson.Result, isLeaf JSONLeafFunc) *Node {
	dir := NewDir()
	v.ForEach(func(key, value gjson.Result) bool {
		dir.Set(key.String(), decodeValue(value, isLeaf))
		return true
	})
	return dir
}

func decodeValue(v gjson.Result, isLeaf JSONLeafFunc) *Node {
	switch {
	case isLeaf(v):
		c := v.Get("content")
		if c.Type == gjson.String {
			return NewLeaf(c.String())
		}
		return NewLeaf("")
	case v.IsObject():
		return decodeDir(v, isLeaf)
	default:
		return NewLeaf("")
	}
}

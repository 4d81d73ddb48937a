package source

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestDirProviderTreeAndLines(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"octo/demo/main.py":           "print(1)\nprint(2)\n",
		"octo/demo/lib/util.py":       "x = 1",
		"octo/demo/.git/HEAD":         "ref: main",
		"octo/demo/node_modules/a.js": "skip",
		"octo/other/ignored.py":       "nope",
	})
	p, err := NewDirProvider(root)
	require.NoError(t, err)
	ref := Ref{Owner: "octo", Repo: "demo"}

	tree, err := p.Tree(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "main.py"}, tree.Keys())
	leaf, ok := tree.Lookup([]string{"lib", "util.py"})
	require.True(t, ok)
	assert.Equal(t, "x = 1", leaf.Content())

	lines, err := p.Lines(context.Background(), ref)
	require.NoError(t, err)
	lt, err := ParseLineTree(lines)
	require.NoError(t, err)
	assert.Equal(t, 2, lt.Files())
	assert.Equal(t, 3, lt.TotalLines())
}

func TestDirProviderMissingRepoIs404(t *testing.T) {
	p, err := NewDirProvider(t.TempDir())
	require.NoError(t, err)
	_, err = p.Tree(context.Background(), Ref{Owner: "octo", Repo: "nope"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestDirProviderRejectsTraversal(t *testing.T) {
	outer := t.TempDir()
	root := filepath.Join(outer, "repos")
	writeFiles(t, outer, map[string]string{"secret/x/key.txt": "s3cr3t"})
	require.NoError(t, os.MkdirAll(root, 0o755))
	p, err := NewDirProvider(root)
	require.NoError(t, err)

	_, err = p.Tree(context.Background(), Ref{Owner: "..", Repo: "secret"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Status)
}

func TestNewDirProviderRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := NewDirProvider(f)
	assert.Error(t, err)
	_, err = NewDirProvider("")
	assert.Error(t, err)
}

func TestDirProviderRejectsDotRepo(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"octo/demo/a.py": "x", "other/secret/k.py": "s"})
	p, err := NewDirProvider(root)
	require.NoError(t, err)

	_, err = p.Tree(context.Background(), Ref{Owner: "octo", Repo: ".."})
	assert.ErrorIs(t, err, ErrInvalidRef)
	_, err = p.Lines(context.Background(), Ref{Owner: ".", Repo: "."})
	assert.ErrorIs(t, err, ErrInvalidRef)
}

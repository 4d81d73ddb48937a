package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeshift/internal/filetree"
)

// skipDirs are never walked.
var skipDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".svn": {}, "node_modules": {}, "vendor": {},
	"target": {}, "build": {}, ".next": {}, ".cache": {},
}

// DirProvider serves repositories checked out under a local directory as
// "{root}/{owner}/{repo}". Paths are confined to root after symlink resolution.
type DirProvider struct {
	root string
}

func NewDirProvider(root string) (*DirProvider, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("source dir: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source dir: %s is not a directory", abs)
	}
	return &DirProvider{root: abs}, nil
}

func (p *DirProvider) Root() string { return p.root }

// Tree reads every regular file of the repository into a tree. Keys are in
// lexical walk order.
func (p *DirProvider) Tree(ctx context.Context, ref Ref) (*filetree.Node, error) {
	files, base, err := p.files(ctx, ref, "content")
	if err != nil {
		return nil, err
	}
	root := filetree.NewDir()
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("source content: read %s: %w", rel, err)
		}
		filetree.SetPath(root, strings.Split(rel, "/"), filetree.NewLeaf(string(data)))
	}
	return root, nil
}

func (p *DirProvider) Lines(ctx context.Context, ref Ref) (string, error) {
	files, base, err := p.files(ctx, ref, "lines")
	if err != nil {
		return "", err
	}
	doc := newLineDoc()
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("source lines: read %s: %w", rel, err)
		}
		doc.add(rel, countLines(string(data)))
	}
	return doc.String()
}

// files lists repo-relative, slash-separated paths of regular files.
func (p *DirProvider) files(ctx context.Context, ref Ref, call string) ([]string, string, error) {
	if err := ref.Validate(); err != nil {
		return nil, "", err
	}
	base, err := p.resolve(filepath.Join(ref.Owner, ref.Repo))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", &StatusError{Call: call, Status: http.StatusNotFound, Body: ref.String() + " not found"}
		}
		return nil, "", &StatusError{Call: call, Status: http.StatusForbidden, Body: err.Error()}
	}

	var files []string
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip && path != base {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("source %s: walk: %w", call, err)
	}
	if len(files) == 0 {
		return nil, "", &StatusError{Call: call, Status: http.StatusNotFound, Body: ref.String() + " has no files"}
	}
	sort.Strings(files)
	return files, base, nil
}

// resolve joins rel onto root and rejects anything that escapes it.
func (p *DirProvider) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("path traversal not allowed")
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(p.root, clean))
	if err != nil {
		return "", err
	}
	if !within(resolved, p.root) {
		return "", fmt.Errorf("%s resolves outside %s", rel, p.root)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", rel, fs.ErrNotExist)
	}
	return resolved, nil
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	return strings.HasPrefix(path, strings.TrimSuffix(root, sep)+sep)
}

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"codeshift/internal/filetree"
)

// S3Config points the object-store provider at an S3-compatible bucket that
// mirrors repositories under "{owner}/{repo}/".
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// bucket is the subset of object storage the provider needs.
type bucket interface {
	list(ctx context.Context, prefix string) ([]string, error)
	read(ctx context.Context, key string) ([]byte, error)
}

// ObjectStoreProvider builds both tree forms from a bucket listing.
type ObjectStoreProvider struct {
	store bucket
}

func NewObjectStoreProvider(cfg S3Config) (*ObjectStoreProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &ObjectStoreProvider{store: newMinioBucket(client, name)}, nil
}

func repoPrefix(ref Ref) string {
	return strings.Trim(ref.Owner, "/") + "/" + strings.Trim(ref.Repo, "/") + "/"
}

// Tree reads every object under the repository prefix into a file tree.
// An empty prefix is reported as a 404 so callers treat it like a missing repo.
func (p *ObjectStoreProvider) Tree(ctx context.Context, ref Ref) (*filetree.Node, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	keys, err := p.keys(ctx, ref, "content")
	if err != nil {
		return nil, err
	}
	prefix := repoPrefix(ref)
	root := filetree.NewDir()
	for _, key := range keys {
		data, err := p.store.read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("source content: read %s: %w", key, err)
		}
		rel := strings.TrimPrefix(key, prefix)
		filetree.SetPath(root, strings.Split(rel, "/"), filetree.NewLeaf(string(data)))
	}
	return root, nil
}

// Lines renders the YAML line-count document for the repository.
func (p *ObjectStoreProvider) Lines(ctx context.Context, ref Ref) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	keys, err := p.keys(ctx, ref, "lines")
	if err != nil {
		return "", err
	}
	prefix := repoPrefix(ref)
	doc := newLineDoc()
	for _, key := range keys {
		data, err := p.store.read(ctx, key)
		if err != nil {
			return "", fmt.Errorf("source lines: read %s: %w", key, err)
		}
		doc.add(strings.TrimPrefix(key, prefix), countLines(string(data)))
	}
	return doc.String()
}

func (p *ObjectStoreProvider) keys(ctx context.Context, ref Ref, call string) ([]string, error) {
	keys, err := p.store.list(ctx, repoPrefix(ref))
	if err != nil {
		return nil, fmt.Errorf("source %s: list: %w", call, err)
	}
	if len(keys) == 0 {
		return nil, &StatusError{Call: call, Status: http.StatusNotFound, Body: "no objects under " + repoPrefix(ref)}
	}
	return keys, nil
}

type minioBucket struct {
	client *minio.Client
	name   string
	exists func(ctx context.Context, name string) (bool, error)

	mu      sync.Mutex
	checked bool
}

func newMinioBucket(client *minio.Client, name string) *minioBucket {
	return &minioBucket{client: client, name: name, exists: client.BucketExists}
}

// ensureBucket checks the bucket once it succeeds; failures are retried on
// the next call.
func (b *minioBucket) ensureBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.checked {
		return nil
	}
	ok, err := b.exists(ctx, b.name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", b.name)
	}
	b.checked = true
	return nil
}

func (b *minioBucket) list(ctx context.Context, prefix string) ([]string, error) {
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, 32)
	for obj := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *minioBucket) read(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Source lists and reads guideline documents. Keys are slash-separated and
// relative to the source root.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	// Locate returns the stable location recorded as a document's source path.
	Locate(key string) string
}

// DirSource reads documents from a local directory tree.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (s *DirSource) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !Supported(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *DirSource) Read(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(s.Locate(key))
}

func (s *DirSource) Locate(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// ObjectStore is the subset of the S3 client a BucketSource needs.
type ObjectStore interface {
	Bucket() string
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// BucketSource reads documents from an object store under a key prefix.
type BucketSource struct {
	store  ObjectStore
	prefix string
}

func NewBucketSource(store ObjectStore, prefix string) *BucketSource {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &BucketSource{store: store, prefix: prefix}
}

func (s *BucketSource) List(ctx context.Context) ([]string, error) {
	objects, err := s.store.ListKeys(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj, "/") || !Supported(obj) {
			continue
		}
		keys = append(keys, strings.TrimPrefix(obj, s.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BucketSource) Read(ctx context.Context, key string) ([]byte, error) {
	return s.store.GetObject(ctx, s.prefix+key)
}

func (s *BucketSource) Locate(key string) string {
	return "s3://" + path.Join(s.store.Bucket(), s.prefix+key)
}

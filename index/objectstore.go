package index

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type ObjectStore interface {
	// List returns the names of all objects whose name starts with prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Open(ctx context.Context, bucket, name string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, name string, r io.Reader) error
}

func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Stage downloads every object under prefix into dir, keeping the object
// names relative to the prefix.
func Stage(ctx context.Context, store ObjectStore, bucket, prefix, dir string) (n int, err error) {
	prefix = dirPrefix(prefix)
	names, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return 0, fmt.Errorf("index: failed to list gs://%s/%s: %w", bucket, prefix, err)
	}
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			continue
		}
		rel := strings.TrimPrefix(name, prefix)
		if rel == "" {
			continue
		}
		local := filepath.FromSlash(rel)
		if !filepath.IsLocal(local) {
			return n, fmt.Errorf("index: object %q escapes the staging directory", name)
		}
		if err = stageObject(ctx, store, bucket, name, filepath.Join(dir, local)); err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("index: no objects found under gs://%s/%s", bucket, prefix)
	}
	return n, nil
}

func stageObject(ctx context.Context, store ObjectStore, bucket, name, dst string) (err error) {
	if err = os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("index: failed to create directory for %q: %w", name, err)
	}
	r, err := store.Open(ctx, bucket, name)
	if err != nil {
		return fmt.Errorf("index: failed to open object %q: %w", name, err)
	}
	defer r.Close()
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("index: failed to create %s: %w", dst, err)
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("index: failed to download object %q: %w", name, err)
	}
	return f.Close()
}

// Publish uploads every file in dir to bucket under prefix.
func Publish(ctx context.Context, store ObjectStore, dir, bucket, prefix string) (n int, err error) {
	prefix = dirPrefix(prefix)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		name := path.Join(prefix, filepath.ToSlash(rel))
		if err = store.Put(ctx, bucket, name, f); err != nil {
			return fmt.Errorf("index: failed to upload %q: %w", name, err)
		}
		n++
		return nil
	})
	return n, err
}

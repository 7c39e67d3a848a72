package index

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS is an ObjectStore backed by Google Cloud Storage.
type GCS struct {
	client *storage.Client
}

var _ ObjectStore = (*GCS)(nil)

func NewGCS(ctx context.Context, project, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("index: failed to create storage client: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) List(ctx context.Context, bucket, prefix string) (names []string, err error) {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return names, err
		}
		names = append(names, attrs.Name)
	}
}

func (g *GCS) Open(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	return g.client.Bucket(bucket).Object(name).NewReader(ctx)
}

func (g *GCS) Put(ctx context.Context, bucket, name string, r io.Reader) error {
	w := g.client.Bucket(bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (g *GCS) Close() error {
	return g.client.Close()
}

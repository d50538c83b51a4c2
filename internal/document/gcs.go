package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const gcsScheme = "gs://"

// GCSSource reads statements stored under a Cloud Storage prefix.
type GCSSource struct {
	client     *storage.Client
	Bucket     string
	Prefix     string
	Extensions []string
}

// ParseGCSURI splits gs://bucket/prefix into its parts.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return "", "", fmt.Errorf("not a gs:// URI: %s", uri)
	}
	rest := strings.TrimPrefix(uri, gcsScheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", uri)
	}
	return bucket, prefix, nil
}

// NewGCSSource creates a Cloud Storage source using application default
// credentials.
func NewGCSSource(ctx context.Context, uri string, extensions []string) (*GCSSource, error) {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSource{client: client, Bucket: bucket, Prefix: prefix, Extensions: extensions}, nil
}

// List returns every object under the prefix with a matching extension.
func (s *GCSSource) List(ctx context.Context) ([]Ref, error) {
	it := s.client.Bucket(s.Bucket).Objects(ctx, &storage.Query{Prefix: s.Prefix})

	var refs []Ref
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.Bucket, s.Prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") || !matchesExtension(attrs.Name, s.Extensions) {
			continue
		}
		refs = append(refs, Ref{Path: gcsScheme + s.Bucket + "/" + attrs.Name, Size: attrs.Size})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// Open downloads the object into memory.
func (s *GCSSource) Open(ctx context.Context, ref Ref) (*Document, error) {
	bucket, object, err := ParseGCSURI(ref.Path)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", ref.Path, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref.Path, err)
	}
	return New(ref.Path, data), nil
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	return s.client.Close()
}

package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// Ref identifies a document inside a Source without loading it.
type Ref struct {
	Path string
	Size int64
}

// Source lists and opens statement documents.
type Source interface {
	List(ctx context.Context) ([]Ref, error)
	Open(ctx context.Context, ref Ref) (*Document, error)
}

// NewSource picks the source implementation for location: gs:// URIs are
// read from Cloud Storage, anything else from the local filesystem.
func NewSource(ctx context.Context, location string, extensions []string) (Source, error) {
	if strings.HasPrefix(location, gcsScheme) {
		return NewGCSSource(ctx, location, extensions)
	}
	return NewLocalSource(location, extensions), nil
}

// LocalSource reads a single file or every matching file under a directory.
type LocalSource struct {
	Root       string
	Extensions []string
}

// NewLocalSource creates a filesystem source.
func NewLocalSource(root string, extensions []string) *LocalSource {
	return &LocalSource{Root: root, Extensions: extensions}
}

// List walks Root and returns matching files sorted by path.
func (s *LocalSource) List(ctx context.Context) ([]Ref, error) {
	info, err := os.Stat(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", s.Root, err)
	}
	if !info.IsDir() {
		return []Ref{{Path: s.Root, Size: info.Size()}}, nil
	}

	var refs []Ref
	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != s.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesExtension(path, s.Extensions) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		refs = append(refs, Ref{Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.Root, err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// Open reads the file into memory.
func (s *LocalSource) Open(_ context.Context, ref Ref) (*Document, error) {
	content, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref.Path, err)
	}
	return New(ref.Path, content), nil
}

func matchesExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
}

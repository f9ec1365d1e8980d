// Package fsstore implements the content store on the local filesystem.
// Buckets map to directories under the configured root.
package fsstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"medley/internal/contentstore"
	"medley/internal/jobs"
)

// Store keeps objects under root/bucket/key.
type Store struct {
	root string
}

// New creates a filesystem store rooted at the given directory.
func New(root string) (*Store, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "", "open content store", "root directory not set", nil)
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, jobs.Wrap(jobs.ErrObjectStore, "", "open content store", "create root directory", err)
	}
	return &Store{root: trimmed}, nil
}

// Root returns the base directory of the store.
func (s *Store) Root() string { return s.root }

func (s *Store) Get(ctx context.Context, loc contentstore.Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(loc)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, jobs.Wrap(jobs.ErrNotFound, "", "get object", loc.String(), err)
		}
		return nil, jobs.Wrap(jobs.ErrObjectStore, "", "get object", loc.String(), err)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, loc contentstore.Locator, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return jobs.Wrap(jobs.ErrObjectStore, "", "put object", loc.String(), err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return jobs.Wrap(jobs.ErrObjectStore, "", "put object", loc.String(), err)
	}
	return nil
}

func (s *Store) Copy(ctx context.Context, src, dst contentstore.Locator) error {
	body, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	return s.Put(ctx, dst, body, "")
}

func (s *Store) List(ctx context.Context, prefix contentstore.Locator) ([]contentstore.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucketDir := filepath.Join(s.root, prefix.Bucket)
	if _, err := os.Stat(bucketDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, jobs.Wrap(jobs.ErrObjectStore, "", "list objects", prefix.String(), err)
	}

	keyPrefix := strings.Trim(prefix.Key, "/")
	var found []contentstore.Locator
	err := filepath.WalkDir(bucketDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(bucketDir, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if keyPrefix != "" && !strings.HasPrefix(key, keyPrefix) {
			return nil
		}
		found = append(found, contentstore.Locator{
			Scheme: contentstore.SchemeFile,
			Bucket: prefix.Bucket,
			Key:    key,
		})
		return nil
	})
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrObjectStore, "", "list objects", prefix.String(), err)
	}
	return found, nil
}

func (s *Store) resolve(loc contentstore.Locator) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", jobs.Wrap(jobs.ErrValidation, "", "resolve object path", fmt.Sprintf("incomplete locator %q", loc.String()), nil)
	}
	path := filepath.Join(s.root, loc.Bucket, filepath.FromSlash(loc.Key))
	base := filepath.Clean(s.root) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(path)+string(filepath.Separator), base) {
		return "", jobs.Wrap(jobs.ErrValidation, "", "resolve object path", fmt.Sprintf("locator escapes store root: %q", loc.String()), nil)
	}
	return path, nil
}

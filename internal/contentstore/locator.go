package contentstore

import (
	"fmt"
	"strings"

	"medley/internal/jobs"
)

// Supported locator schemes.
const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Locator names an object as scheme://bucket/key. For the file scheme the
// bucket is a directory under the store root.
type Locator struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocator splits a scheme://bucket/key string into its parts.
func ParseLocator(value string) (Locator, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Locator{}, jobs.Wrap(jobs.ErrValidation, "", "parse locator", "empty locator", nil)
	}
	scheme, rest, ok := strings.Cut(trimmed, "://")
	if !ok || scheme == "" {
		return Locator{}, jobs.Wrap(jobs.ErrValidation, "", "parse locator", fmt.Sprintf("missing scheme in %q", value), nil)
	}
	scheme = strings.ToLower(scheme)
	if scheme != SchemeS3 && scheme != SchemeFile {
		return Locator{}, jobs.Wrap(jobs.ErrValidation, "", "parse locator", fmt.Sprintf("unsupported scheme %q", scheme), nil)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Locator{}, jobs.Wrap(jobs.ErrValidation, "", "parse locator", fmt.Sprintf("missing bucket in %q", value), nil)
	}
	return Locator{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// String renders the locator back into scheme://bucket/key form.
func (l Locator) String() string {
	if l.Key == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// IsZero reports whether the locator carries no object reference.
func (l Locator) IsZero() bool {
	return l.Scheme == "" && l.Bucket == "" && l.Key == ""
}

// Join appends path elements to the locator key.
func (l Locator) Join(elems ...string) Locator {
	parts := make([]string, 0, len(elems)+1)
	if l.Key != "" {
		parts = append(parts, strings.TrimSuffix(l.Key, "/"))
	}
	for _, elem := range elems {
		elem = strings.Trim(elem, "/")
		if elem != "" {
			parts = append(parts, elem)
		}
	}
	out := l
	out.Key = strings.Join(parts, "/")
	return out
}

// Base returns the final path element of the key.
func (l Locator) Base() string {
	if l.Key == "" {
		return ""
	}
	key := strings.TrimSuffix(l.Key, "/")
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// Package contentstore abstracts object storage for media payloads and
// derived artifacts behind scheme://bucket/key locators. Two backends exist:
// a filesystem store for local operation and an S3 store for cloud operation.
package contentstore

import "context"

// Store reads and writes media objects by locator.
type Store interface {
	// Get returns the full object body.
	Get(ctx context.Context, loc Locator) ([]byte, error)
	// Put writes the object body, creating or replacing it.
	Put(ctx context.Context, loc Locator, body []byte, contentType string) error
	// Copy duplicates an object without the body passing through the caller.
	Copy(ctx context.Context, src, dst Locator) error
	// List returns locators for every object under the given key prefix.
	List(ctx context.Context, prefix Locator) ([]Locator, error)
}

package blob

import (
	"context"
	"time"
)

// Client is a remote object store keyed by forward-slash relative paths.
//
// Upload has overwrite semantics: a second upload to the same key replaces the
// first, no versions are kept. List always returns the complete listing for the
// prefix; adapters page internally.
type Client interface {
	// Provider returns the identifier the client was created for
	Provider() string

	// Upload streams the file at localPath to key
	Upload(ctx context.Context, localPath string, key string) (*BlobInfo, error)

	// Download writes the object at key to localPath, replacing it atomically
	Download(ctx context.Context, key string, localPath string) error

	// List returns every object whose key starts with prefix. An empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]*BlobInfo, error)

	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)

	// GetInfo returns the object's metadata, or nil when it does not exist
	GetInfo(ctx context.Context, key string) (*BlobInfo, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// BlobInfo describes one remote object. Not every store exposes every field:
// Size is -1 and ContentHash is empty when unknown, LastModified is zero.
type BlobInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentHash  string    `json:"hash,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// HasHash reports whether the store exposed a content hash for the object.
func (b *BlobInfo) HasHash() bool {
	return b != nil && b.ContentHash != ""
}

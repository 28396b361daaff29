// Package storage keeps artifact and upload bytes. Records in the database
// refer to objects by key; a FileStore resolves keys to bytes and URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Storage errors
var (
	// ErrObjectNotFound is returned when no object exists for a key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("invalid object key")
)

// FileStore stores objects by key.
type FileStore interface {
	// Put writes the object. The object becomes visible under key only once
	// it has been written completely.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL clients can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
}

// CleanKey normalizes a key to a slash-separated relative path.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// UploadKey returns the key for a reference image uploaded by owner.
func UploadKey(owner, id, ext string) string {
	return path.Join("uploads", owner, id+strings.ToLower(ext))
}

// ArtifactKey returns the key for one variant of an artifact.
func ArtifactKey(owner, artifactID, variant string) string {
	return path.Join("artifacts", owner, artifactID, variant+".png")
}

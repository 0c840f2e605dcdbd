// Package tree abstracts access to the two source trees the reconciler
// works against: the downstream tree holding the overrides and the
// upstream (base) tree they were copied or derived from.
//
// All access goes through small interfaces so tests and callers can
// substitute an in-memory tree for the real filesystem. Paths crossing
// these interfaces are always the normalized forward-slash form produced
// by pathutil; implementations map them to their own storage.
package tree

import (
	"context"
	"errors"
)

// ErrVersionNotFound is returned by VersionedReader implementations when
// the requested version label has no stored content.
var ErrVersionNotFound = errors.New("version not found")

// Reader provides read access to one source tree.
type Reader interface {
	// FileExists reports whether path resolves to a regular file.
	FileExists(ctx context.Context, path string) (bool, error)

	// DirExists reports whether path resolves to a directory.
	DirExists(ctx context.Context, path string) (bool, error)

	// ReadFile returns the raw bytes of the file at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// ListFiles returns the normalized paths of all regular files under
	// dir, relative to dir, sorted lexicographically. A missing dir is an
	// error; an existing empty dir returns an empty slice.
	ListFiles(ctx context.Context, dir string) ([]string, error)
}

// Writer extends Reader with mutation. WriteFile must be staged: partial
// content is never observable at the final path, even when the context is
// cancelled mid-write.
type Writer interface {
	Reader
	WriteFile(ctx context.Context, path string, data []byte) error
	Remove(ctx context.Context, path string) error
}

// VersionedReader reads upstream content, optionally at a historical
// version label. ReadFileAt with the empty version reads the current tree.
type VersionedReader interface {
	Reader
	ReadFileAt(ctx context.Context, path, version string) ([]byte, error)
}

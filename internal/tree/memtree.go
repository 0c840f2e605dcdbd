package tree

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"overtrack/internal/pathutil"
	"overtrack/internal/sortutil"
)

// MemTree is an in-memory Reader/Writer/VersionedReader used by tests and
// anywhere a real filesystem is unwanted. A directory exists iff at least
// one file lives under it; there are no empty directories.
type MemTree struct {
	mu        sync.RWMutex
	files     map[string][]byte
	snapshots map[string]map[string][]byte
}

// NewMemTree returns an empty in-memory tree.
func NewMemTree() *MemTree {
	return &MemTree{
		files:     make(map[string][]byte),
		snapshots: make(map[string]map[string][]byte),
	}
}

// Put stores content at the normalized path, overwriting any previous
// content.
func (t *MemTree) Put(path string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[pathutil.Normalize(path)] = append([]byte(nil), data...)
}

// PutAt stores content at path within the named version snapshot.
func (t *MemTree) PutAt(version, path string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snapshots[version]
	if !ok {
		snap = make(map[string][]byte)
		t.snapshots[version] = snap
	}
	snap[pathutil.Normalize(path)] = append([]byte(nil), data...)
}

// Snapshot records the current files under the given version label.
func (t *MemTree) Snapshot(version string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make(map[string][]byte, len(t.files))
	for p, b := range t.files {
		snap[p] = append([]byte(nil), b...)
	}
	t.snapshots[version] = snap
}

func (t *MemTree) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.files[pathutil.Normalize(path)]
	return ok, nil
}

func (t *MemTree) DirExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	prefix := pathutil.Normalize(path) + "/"
	t.mu.RLock()
	defer t.mu.RUnlock()
	for p := range t.files {
		if strings.HasPrefix(p, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (t *MemTree) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.files[pathutil.Normalize(path)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return append([]byte(nil), b...), nil
}

func (t *MemTree) ListFiles(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm := pathutil.Normalize(dir)
	prefix := norm + "/"
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for p := range t.files {
		if rel, ok := strings.CutPrefix(p, prefix); ok {
			out = append(out, rel)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, fs.ErrNotExist)
	}
	return sortutil.StablePathSort(out), nil
}

func (t *MemTree) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Put(path, data)
	return nil
}

// Remove deletes the file at path, or every file under it when path names
// a directory. Missing targets are not an error.
func (t *MemTree) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	norm := pathutil.Normalize(path)
	prefix := norm + "/"
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, norm)
	for p := range t.files {
		if strings.HasPrefix(p, prefix) {
			delete(t.files, p)
		}
	}
	return nil
}

func (t *MemTree) ReadFileAt(ctx context.Context, path, version string) ([]byte, error) {
	if version == "" {
		return t.ReadFile(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.snapshots[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVersionNotFound, version)
	}
	b, ok := snap[pathutil.Normalize(path)]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", path, version, fs.ErrNotExist)
	}
	return append([]byte(nil), b...), nil
}

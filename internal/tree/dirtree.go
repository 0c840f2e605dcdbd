package tree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"overtrack/internal/pathutil"
	"overtrack/internal/sortutil"
)

// DirTree is a Reader/Writer rooted at a filesystem directory. All paths
// are interpreted relative to the root; a path escaping the root is
// rejected rather than resolved.
type DirTree struct {
	root string
}

// NewDirTree returns a tree rooted at root. The directory does not have
// to exist yet; writes create it on demand.
func NewDirTree(root string) *DirTree {
	return &DirTree{root: root}
}

// Root returns the filesystem root of the tree.
func (t *DirTree) Root() string { return t.root }

func (t *DirTree) resolve(path string) (string, error) {
	norm := pathutil.Normalize(path)
	if norm == ".." || strings.HasPrefix(norm, "../") {
		return "", fmt.Errorf("path %q escapes tree root", path)
	}
	return filepath.Join(t.root, filepath.FromSlash(norm)), nil
}

func (t *DirTree) FileExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := t.resolve(path)
	if err != nil {
		return false, err
	}
	st, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Mode().IsRegular(), nil
}

func (t *DirTree) DirExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := t.resolve(path)
	if err != nil {
		return false, err
	}
	st, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.IsDir(), nil
}

func (t *DirTree) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// ListFiles walks dir depth-first and returns sorted dir-relative paths
// of regular files, forward slashes regardless of platform.
func (t *DirTree) ListFiles(ctx context.Context, dir string) ([]string, error) {
	full, err := t.resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	walkErr := filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(full, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return sortutil.StablePathSort(out), nil
}

// WriteFile stages data into a temporary file in the destination
// directory, then renames it into place so readers never observe a
// partially-written file.
func (t *DirTree) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := t.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(full)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, full)
}

// Remove deletes a file or directory subtree. Missing targets are not an
// error.
func (t *DirTree) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := t.resolve(path)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

// SnapshotDirTree extends DirTree with historical versions stored as
// sibling subtrees: <snapshots>/<version-label>/<path>. It serves the
// pinned-version reads a three-way merge needs when the upstream is a
// plain directory rather than a version-controlled checkout.
type SnapshotDirTree struct {
	DirTree
	snapshots string
}

// NewSnapshotDirTree returns a versioned tree whose current content
// lives at root and whose per-version snapshots live under snapshots.
func NewSnapshotDirTree(root, snapshots string) *SnapshotDirTree {
	return &SnapshotDirTree{DirTree: DirTree{root: root}, snapshots: snapshots}
}

func (t *SnapshotDirTree) ReadFileAt(ctx context.Context, path, version string) ([]byte, error) {
	if version == "" {
		return t.ReadFile(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(version, `/\`) {
		return nil, fmt.Errorf("invalid version label %q", version)
	}
	verRoot := filepath.Join(t.snapshots, version)
	if _, err := os.Stat(verRoot); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrVersionNotFound, version)
	}
	snap := DirTree{root: verRoot}
	return snap.ReadFile(ctx, path)
}

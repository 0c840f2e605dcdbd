package upgrade

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"overtrack/internal/merge"
	"overtrack/internal/pathutil"
	"overtrack/internal/tree"
)

// Applier executes upgrade strategies. Overrides is the downstream tree
// (written to), Base the upstream tree (read-only, version-aware).
type Applier struct {
	Overrides tree.Writer
	Base      tree.VersionedReader

	// AllowConflicts lets a conflicted merge be written out with
	// markers for manual resolution. When false (the default) a
	// conflicted file is not written at all and Apply returns
	// ErrConflict.
	AllowConflicts bool
}

// Result reports what an Apply did.
type Result struct {
	Kind Kind
	// Written counts files committed to the override tree.
	Written int
	// Removed counts override-tree files deleted because they no longer
	// exist upstream (directory copies only).
	Removed int
	// Conflicts counts unresolved merge regions. Nonzero only for
	// three-way merges, and only written out under AllowConflicts.
	Conflicts int
	// Normalized reports that merging rewrote line endings or invalid
	// UTF-8 in the committed content. Three-way merges only.
	Normalized bool
}

// Apply runs one strategy to completion. Errors from upstream resolution
// carry enough context to report per override; the caller decides
// whether to continue the batch.
func (a Applier) Apply(ctx context.Context, s Strategy) (Result, error) {
	switch s.Kind {
	case KindAssumeUpToDate:
		return Result{Kind: s.Kind}, nil
	case KindCopyFile:
		return a.copyFile(ctx, s)
	case KindCopyDirectory:
		return a.copyDirectory(ctx, s)
	case KindThreeWayMerge:
		return a.threeWayMerge(ctx, s)
	default:
		return Result{}, fmt.Errorf("unknown upgrade strategy %q", s.Kind)
	}
}

func (a Applier) copyFile(ctx context.Context, s Strategy) (Result, error) {
	data, err := a.Base.ReadFile(ctx, s.BaseFile)
	if err != nil {
		return Result{Kind: s.Kind}, fmt.Errorf("resolve base %s: %w", s.BaseFile, err)
	}
	if err := a.Overrides.WriteFile(ctx, s.File, data); err != nil {
		return Result{Kind: s.Kind}, fmt.Errorf("write %s: %w", s.File, err)
	}
	return Result{Kind: s.Kind, Written: 1}, nil
}

func (a Applier) copyDirectory(ctx context.Context, s Strategy) (Result, error) {
	res := Result{Kind: s.Kind}
	baseFiles, err := a.Base.ListFiles(ctx, s.BaseDirectory)
	if err != nil {
		return res, fmt.Errorf("resolve base directory %s: %w", s.BaseDirectory, err)
	}
	inBase := make(map[string]struct{}, len(baseFiles))
	for _, rel := range baseFiles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inBase[pathutil.Normalize(rel)] = struct{}{}
		data, err := a.Base.ReadFile(ctx, pathutil.Join(s.BaseDirectory, rel))
		if err != nil {
			return res, fmt.Errorf("read base %s: %w", pathutil.Join(s.BaseDirectory, rel), err)
		}
		dst := pathutil.Join(s.Directory, rel)
		if err := a.Overrides.WriteFile(ctx, dst, data); err != nil {
			return res, fmt.Errorf("write %s: %w", dst, err)
		}
		res.Written++
	}

	// Drop override-tree files with no upstream counterpart so the
	// subtree ends byte-for-byte equal.
	existing, err := a.Overrides.ListFiles(ctx, s.Directory)
	if errors.Is(err, fs.ErrNotExist) {
		// The directory did not exist before this copy; nothing to prune.
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("list %s: %w", s.Directory, err)
	}
	for _, rel := range existing {
		if _, ok := inBase[pathutil.Normalize(rel)]; ok {
			continue
		}
		if err := a.Overrides.Remove(ctx, pathutil.Join(s.Directory, rel)); err != nil {
			return res, fmt.Errorf("remove %s: %w", pathutil.Join(s.Directory, rel), err)
		}
		res.Removed++
	}
	return res, nil
}

func (a Applier) threeWayMerge(ctx context.Context, s Strategy) (Result, error) {
	res := Result{Kind: s.Kind}
	pinned, err := a.Base.ReadFileAt(ctx, s.BaseFile, s.BaseVersion)
	if err != nil {
		return res, fmt.Errorf("resolve base %s at %s: %w", s.BaseFile, s.BaseVersion, err)
	}
	current, err := a.Base.ReadFile(ctx, s.BaseFile)
	if err != nil {
		return res, fmt.Errorf("resolve base %s: %w", s.BaseFile, err)
	}
	ours, err := a.Overrides.ReadFile(ctx, s.File)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", s.File, err)
	}

	m := merge.Merge(pinned, ours, current, merge.Options{
		OursLabel:   s.File,
		BaseLabel:   s.BaseVersion,
		TheirsLabel: s.BaseFile,
	})
	res.Conflicts = m.Conflicts
	res.Normalized = m.Normalized
	if m.Conflicts > 0 && !a.AllowConflicts {
		return res, fmt.Errorf("%s: %d unresolved regions: %w", s.File, m.Conflicts, ErrConflict)
	}
	if err := a.Overrides.WriteFile(ctx, s.File, m.Merged); err != nil {
		return res, fmt.Errorf("write %s: %w", s.File, err)
	}
	res.Written = 1
	return res, nil
}

package override

import (
	"context"
	"errors"
	"fmt"

	"overtrack/internal/pathutil"
	"overtrack/internal/tree"
)

// ErrIssueRequired is returned when creating a copy, patch or directory
// override without a tracking reference. Only pre-existing entries may
// carry the legacy sentinel; brand-new work needs a real ticket.
var ErrIssueRequired = errors.New("tracking issue required")

// TreeFactory builds freshly pinned overrides from an upstream tree.
// Every override it creates is pinned to the tree's current content and
// stamped with the configured version label.
type TreeFactory struct {
	base    tree.VersionedReader
	version string
}

// NewTreeFactory returns a factory pinning against base, labelling new
// overrides with version.
func NewTreeFactory(base tree.VersionedReader, version string) *TreeFactory {
	return &TreeFactory{base: base, version: version}
}

func (f *TreeFactory) CreatePlatformOverride(ctx context.Context, file string) (Override, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Platform{File: pathutil.Normalize(file)}, nil
}

func (f *TreeFactory) CreateCopyOverride(ctx context.Context, file, baseFile string, issue Issue) (Override, error) {
	if issue.IsZero() {
		return nil, fmt.Errorf("copy override %s: %w", file, ErrIssueRequired)
	}
	lnk, err := f.pinFile(ctx, file, baseFile, issue)
	if err != nil {
		return nil, err
	}
	return Copy{fileLinked: lnk}, nil
}

func (f *TreeFactory) CreateDerivedOverride(ctx context.Context, file, baseFile string, issue Issue) (Override, error) {
	lnk, err := f.pinFile(ctx, file, baseFile, issue)
	if err != nil {
		return nil, err
	}
	return Derived{fileLinked: lnk}, nil
}

func (f *TreeFactory) CreatePatchOverride(ctx context.Context, file, baseFile string, issue Issue) (Override, error) {
	if issue.IsZero() {
		return nil, fmt.Errorf("patch override %s: %w", file, ErrIssueRequired)
	}
	lnk, err := f.pinFile(ctx, file, baseFile, issue)
	if err != nil {
		return nil, err
	}
	return Patch{fileLinked: lnk}, nil
}

func (f *TreeFactory) CreateDirectoryCopyOverride(ctx context.Context, dir, baseDir string, issue Issue) (Override, error) {
	if issue.IsZero() {
		return nil, fmt.Errorf("directory override %s: %w", dir, ErrIssueRequired)
	}
	baseDir = pathutil.Normalize(baseDir)
	ok, err := f.base.DirExists(ctx, baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory %s: %w", baseDir, err)
	}
	if !ok {
		return nil, fmt.Errorf("resolve base directory %s: not found in upstream", baseDir)
	}
	hash, err := tree.HashDirectory(ctx, f.base, baseDir)
	if err != nil {
		return nil, fmt.Errorf("hash base directory %s: %w", baseDir, err)
	}
	return DirectoryCopy{
		Directory:     pathutil.Normalize(dir),
		BaseDirectory: baseDir,
		BaseVersion:   f.version,
		BaseHash:      hash,
		Issue:         issue,
	}, nil
}

// pinFile resolves baseFile in the current upstream tree and captures
// its hash under the factory's version label.
func (f *TreeFactory) pinFile(ctx context.Context, file, baseFile string, issue Issue) (fileLinked, error) {
	baseFile = pathutil.Normalize(baseFile)
	ok, err := f.base.FileExists(ctx, baseFile)
	if err != nil {
		return fileLinked{}, fmt.Errorf("resolve base file %s: %w", baseFile, err)
	}
	if !ok {
		return fileLinked{}, fmt.Errorf("resolve base file %s: not found in upstream", baseFile)
	}
	hash, err := tree.HashFile(ctx, f.base, baseFile)
	if err != nil {
		return fileLinked{}, fmt.Errorf("hash base file %s: %w", baseFile, err)
	}
	return fileLinked{
		File:        pathutil.Normalize(file),
		BaseFile:    baseFile,
		BaseVersion: f.version,
		BaseHash:    hash,
		Issue:       issue,
	}, nil
}

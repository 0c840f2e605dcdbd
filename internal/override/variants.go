package override

import (
	"context"

	"overtrack/internal/pathutil"
	"overtrack/internal/upgrade"
	"overtrack/internal/validate"
)

// fileLinked carries the attributes shared by every variant pinned to a
// single upstream file. BaseHash is the hash of the upstream file at the
// time the override was last reconciled, not the current upstream hash;
// validation recomputing the current hash against it is what detects
// staleness.
type fileLinked struct {
	File        string
	BaseFile    string
	BaseVersion string
	BaseHash    string
	Issue       Issue
}

func (l fileLinked) Name() string { return l.File }

func (l fileLinked) IncludesFile(path string) bool {
	return pathutil.Equal(l.File, path)
}

func (l fileLinked) record(typ string) Record {
	return Record{
		Type:        typ,
		File:        l.File,
		BaseFile:    l.BaseFile,
		BaseVersion: l.BaseVersion,
		BaseHash:    l.BaseHash,
		Issue:       issueRef(l.Issue),
	}
}

// baseStrategies are the checks every file-linked variant shares;
// variant-specific content checks are appended to them.
func (l fileLinked) baseStrategies() []validate.Strategy {
	return []validate.Strategy{
		validate.OverrideFileExists(l.File),
		validate.BaseFileExists(l.BaseFile),
		validate.BaseFileUpToDate(l.BaseFile, l.BaseHash),
	}
}

// Platform is a downstream-only file with no upstream counterpart. It
// can never go stale.
type Platform struct {
	File string
}

func (o Platform) Name() string { return pathutil.Normalize(o.File) }

func (o Platform) IncludesFile(path string) bool { return pathutil.Equal(o.File, path) }

func (o Platform) Serialize() Record {
	return Record{Type: TypePlatform, File: pathutil.Normalize(o.File)}
}

func (o Platform) CreateUpdated(ctx context.Context, f Factory) (Override, error) {
	return f.CreatePlatformOverride(ctx, o.File)
}

func (o Platform) UpgradeStrategy() upgrade.Strategy {
	return upgrade.AssumeUpToDate(o.File)
}

func (o Platform) ValidationStrategies() []validate.Strategy {
	return []validate.Strategy{validate.OverrideFileExists(o.File)}
}

// Copy is an exact copy of one upstream file.
type Copy struct {
	fileLinked
}

func (o Copy) Serialize() Record { return o.record(TypeCopy) }

func (o Copy) CreateUpdated(ctx context.Context, f Factory) (Override, error) {
	return f.CreateCopyOverride(ctx, o.File, o.BaseFile, o.Issue)
}

func (o Copy) UpgradeStrategy() upgrade.Strategy {
	return upgrade.CopyFile(o.File, o.BaseFile)
}

func (o Copy) ValidationStrategies() []validate.Strategy {
	return append(o.baseStrategies(), validate.OverrideCopyOfBase(o.File, o.BaseFile))
}

// Derived is a downstream file whose content diverges from its upstream
// source by design.
type Derived struct {
	fileLinked
}

func (o Derived) Serialize() Record { return o.record(TypeDerived) }

func (o Derived) CreateUpdated(ctx context.Context, f Factory) (Override, error) {
	return f.CreateDerivedOverride(ctx, o.File, o.BaseFile, o.Issue)
}

func (o Derived) UpgradeStrategy() upgrade.Strategy {
	return upgrade.ThreeWayMerge(o.File, o.BaseFile, o.BaseVersion)
}

func (o Derived) ValidationStrategies() []validate.Strategy {
	return append(o.baseStrategies(), validate.OverrideDifferentFromBase(o.File, o.BaseFile))
}

// Patch is a minor downstream modification of an upstream file.
type Patch struct {
	fileLinked
}

func (o Patch) Serialize() Record { return o.record(TypePatch) }

func (o Patch) CreateUpdated(ctx context.Context, f Factory) (Override, error) {
	return f.CreatePatchOverride(ctx, o.File, o.BaseFile, o.Issue)
}

func (o Patch) UpgradeStrategy() upgrade.Strategy {
	return upgrade.ThreeWayMerge(o.File, o.BaseFile, o.BaseVersion)
}

func (o Patch) ValidationStrategies() []validate.Strategy {
	return append(o.baseStrategies(), validate.OverrideDifferentFromBase(o.File, o.BaseFile))
}

// DirectoryCopy tracks a whole downstream subtree as an exact copy of an
// upstream directory. It shares the "copy" wire tag with Copy and is
// told apart by its directory fields.
type DirectoryCopy struct {
	Directory     string
	BaseDirectory string
	BaseVersion   string
	BaseHash      string
	Issue         Issue
}

func (o DirectoryCopy) Name() string { return pathutil.Normalize(o.Directory) }

// IncludesFile reports containment via relative-path decomposition; a
// path whose decomposition escapes the directory is excluded.
func (o DirectoryCopy) IncludesFile(path string) bool {
	return pathutil.Contains(o.Directory, path)
}

func (o DirectoryCopy) Serialize() Record {
	return Record{
		Type:          TypeCopy,
		Directory:     pathutil.Normalize(o.Directory),
		BaseDirectory: pathutil.Normalize(o.BaseDirectory),
		BaseVersion:   o.BaseVersion,
		BaseHash:      o.BaseHash,
		Issue:         issueRef(o.Issue),
	}
}

func (o DirectoryCopy) CreateUpdated(ctx context.Context, f Factory) (Override, error) {
	return f.CreateDirectoryCopyOverride(ctx, o.Directory, o.BaseDirectory, o.Issue)
}

func (o DirectoryCopy) UpgradeStrategy() upgrade.Strategy {
	return upgrade.CopyDirectory(o.Directory, o.BaseDirectory)
}

func (o DirectoryCopy) ValidationStrategies() []validate.Strategy {
	return []validate.Strategy{
		validate.OverrideDirectoryExists(o.Directory),
		validate.BaseDirectoryExists(o.BaseDirectory),
		validate.BaseDirectoryUpToDate(o.BaseDirectory, o.BaseHash),
		validate.OverrideDirectoryCopyOfBase(o.Directory, o.BaseDirectory),
	}
}

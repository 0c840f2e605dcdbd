// Package override models tracked divergences between a downstream
// source tree and the upstream ("base") tree it was forked from. Each
// override describes one file or directory the downstream intentionally
// owns: a platform-only addition, an exact copy, a derived or patched
// variant of an upstream file, or a whole copied subtree.
//
// Overrides are immutable once constructed. Bringing one up to date
// never mutates it; CreateUpdated produces a fresh instance re-pinned to
// the factory's current upstream snapshot and the caller replaces the
// old entry in its manifest.
package override

import (
	"context"

	"overtrack/internal/upgrade"
	"overtrack/internal/validate"
)

// Override is the uniform contract over all variants.
type Override interface {
	// Name is the override's stable identity: the normalized downstream
	// path of its file or directory. Unique within a manifest.
	Name() string

	// IncludesFile reports whether the given path, after normalization,
	// equals (file variants) or lies within (directory variant) the
	// override's claimed scope.
	IncludesFile(path string) bool

	// Serialize returns the wire record sufficient to reconstruct the
	// same variant via FromRecord.
	Serialize() Record

	// CreateUpdated asks the factory for a fresh override of the same
	// variant, re-pinned to the factory's current upstream snapshot.
	// Fails when the factory cannot resolve the upstream counterpart.
	CreateUpdated(ctx context.Context, f Factory) (Override, error)

	// UpgradeStrategy returns the reconciliation algorithm for this
	// variant. Pure, no I/O.
	UpgradeStrategy() upgrade.Strategy

	// ValidationStrategies returns the ordered checks this variant must
	// satisfy. Pure, no I/O.
	ValidationStrategies() []validate.Strategy
}

// Factory constructs freshly pinned overrides against the current
// upstream state. It is the injected boundary behind which upstream
// access (filesystem, checkout, network) lives, so tests substitute an
// in-memory implementation.
type Factory interface {
	CreatePlatformOverride(ctx context.Context, file string) (Override, error)
	CreateCopyOverride(ctx context.Context, file, baseFile string, issue Issue) (Override, error)
	CreateDerivedOverride(ctx context.Context, file, baseFile string, issue Issue) (Override, error)
	CreatePatchOverride(ctx context.Context, file, baseFile string, issue Issue) (Override, error)
	CreateDirectoryCopyOverride(ctx context.Context, dir, baseDir string, issue Issue) (Override, error)
}

// Package validate implements the composable checks a tracked override
// must satisfy. Each strategy inspects the downstream and upstream trees
// and reports pass/fail with a stable code and a human-readable reason.
//
// Strategies are independent and order-insensitive for correctness;
// callers evaluate them in the order returned by an override so reports
// stay deterministic. No strategy mutates either tree.
package validate

import (
	"bytes"
	"context"
	"fmt"

	"overtrack/internal/tree"
)

// Code categorizes a failed check. Callers branch on Code, not Reason.
type Code string

const (
	// CodeOverrideMissing: the downstream file or directory is gone.
	CodeOverrideMissing Code = "overrideMissing"
	// CodeBaseMissing: the upstream counterpart cannot be found in the
	// currently checked-out base tree.
	CodeBaseMissing Code = "baseMissing"
	// CodeOutOfDate: the upstream content hash no longer matches the
	// hash stored at the last reconciliation. Not fatal; the signal to
	// re-create the override against the new upstream.
	CodeOutOfDate Code = "outOfDate"
	// CodeNotACopy: a copy override's content drifted from its base.
	CodeNotACopy Code = "notACopy"
	// CodeSameAsBase: a derived/patch override became byte-identical to
	// its base, meaning the local modification was dropped or is
	// redundant.
	CodeSameAsBase Code = "sameAsBase"
	// CodeIOError: a tree read failed for a reason other than absence.
	CodeIOError Code = "ioError"
)

// Result is the outcome of one strategy for one override.
type Result struct {
	Strategy string
	OK       bool
	Code     Code
	Reason   string
}

func pass(name string) Result {
	return Result{Strategy: name, OK: true}
}

func fail(name string, code Code, format string, args ...any) Result {
	return Result{Strategy: name, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Trees carries the two trees a strategy checks against.
type Trees struct {
	Override tree.Reader
	Base     tree.Reader
}

// Strategy is one independent check.
type Strategy interface {
	// Name identifies the check in reports.
	Name() string
	// Check runs the strategy. I/O failures surface as failing results,
	// never panics, so one broken override cannot stop a batch.
	Check(ctx context.Context, trees Trees) Result
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context, trees Trees) Result
}

func (c checkFunc) Name() string { return c.name }

func (c checkFunc) Check(ctx context.Context, trees Trees) Result { return c.fn(ctx, trees) }

// OverrideFileExists checks that the downstream file is present.
func OverrideFileExists(file string) Strategy {
	const name = "overrideFileExists"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ok, err := trees.Override.FileExists(ctx, file)
		if err != nil {
			return fail(name, CodeIOError, "stat %s: %v", file, err)
		}
		if !ok {
			return fail(name, CodeOverrideMissing, "override file %s does not exist", file)
		}
		return pass(name)
	}}
}

// OverrideDirectoryExists checks that the downstream directory is present.
func OverrideDirectoryExists(dir string) Strategy {
	const name = "overrideDirectoryExists"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ok, err := trees.Override.DirExists(ctx, dir)
		if err != nil {
			return fail(name, CodeIOError, "stat %s: %v", dir, err)
		}
		if !ok {
			return fail(name, CodeOverrideMissing, "override directory %s does not exist", dir)
		}
		return pass(name)
	}}
}

// BaseFileExists checks that the upstream file resolves in the currently
// checked-out base tree.
func BaseFileExists(baseFile string) Strategy {
	const name = "baseFileExists"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ok, err := trees.Base.FileExists(ctx, baseFile)
		if err != nil {
			return fail(name, CodeIOError, "stat base %s: %v", baseFile, err)
		}
		if !ok {
			return fail(name, CodeBaseMissing, "base file %s does not exist", baseFile)
		}
		return pass(name)
	}}
}

// BaseDirectoryExists checks that the upstream directory resolves.
func BaseDirectoryExists(baseDir string) Strategy {
	const name = "baseDirectoryExists"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ok, err := trees.Base.DirExists(ctx, baseDir)
		if err != nil {
			return fail(name, CodeIOError, "stat base %s: %v", baseDir, err)
		}
		if !ok {
			return fail(name, CodeBaseMissing, "base directory %s does not exist", baseDir)
		}
		return pass(name)
	}}
}

// BaseFileUpToDate recomputes the current hash of the upstream file and
// compares it to the hash stored when the override was last reconciled.
// A mismatch means the upstream has moved out from under the override.
func BaseFileUpToDate(baseFile, storedHash string) Strategy {
	const name = "baseUpToDate"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		current, err := tree.HashFile(ctx, trees.Base, baseFile)
		if err != nil {
			return fail(name, CodeIOError, "hash base %s: %v", baseFile, err)
		}
		if current != storedHash {
			return fail(name, CodeOutOfDate,
				"base file %s has changed since last reconciliation (stored %.12s, current %.12s)",
				baseFile, storedHash, current)
		}
		return pass(name)
	}}
}

// BaseDirectoryUpToDate is BaseFileUpToDate over a directory subtree,
// using the canonical directory hash.
func BaseDirectoryUpToDate(baseDir, storedHash string) Strategy {
	const name = "baseUpToDate"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		current, err := tree.HashDirectory(ctx, trees.Base, baseDir)
		if err != nil {
			return fail(name, CodeIOError, "hash base directory %s: %v", baseDir, err)
		}
		if current != storedHash {
			return fail(name, CodeOutOfDate,
				"base directory %s has changed since last reconciliation (stored %.12s, current %.12s)",
				baseDir, storedHash, current)
		}
		return pass(name)
	}}
}

// OverrideCopyOfBase checks byte-for-byte equality between the override
// file and its base file.
func OverrideCopyOfBase(file, baseFile string) Strategy {
	const name = "overrideCopyOfBase"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ours, err := trees.Override.ReadFile(ctx, file)
		if err != nil {
			return fail(name, CodeIOError, "read %s: %v", file, err)
		}
		theirs, err := trees.Base.ReadFile(ctx, baseFile)
		if err != nil {
			return fail(name, CodeIOError, "read base %s: %v", baseFile, err)
		}
		if !bytes.Equal(ours, theirs) {
			return fail(name, CodeNotACopy, "%s is not an exact copy of %s", file, baseFile)
		}
		return pass(name)
	}}
}

// OverrideDirectoryCopyOfBase checks recursive byte-for-byte equality of
// a directory subtree against its base, via the canonical directory hash
// (which covers both content and the set of files).
func OverrideDirectoryCopyOfBase(dir, baseDir string) Strategy {
	const name = "overrideCopyOfBase"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ours, err := tree.HashDirectory(ctx, trees.Override, dir)
		if err != nil {
			return fail(name, CodeIOError, "hash %s: %v", dir, err)
		}
		theirs, err := tree.HashDirectory(ctx, trees.Base, baseDir)
		if err != nil {
			return fail(name, CodeIOError, "hash base %s: %v", baseDir, err)
		}
		if ours != theirs {
			return fail(name, CodeNotACopy, "%s is not an exact copy of %s", dir, baseDir)
		}
		return pass(name)
	}}
}

// OverrideDifferentFromBase checks that a derived/patch override still
// differs from its base. Becoming identical means the intended local
// modification was lost or is redundant, which must be flagged.
func OverrideDifferentFromBase(file, baseFile string) Strategy {
	const name = "overrideDifferentFromBase"
	return checkFunc{name: name, fn: func(ctx context.Context, trees Trees) Result {
		ours, err := trees.Override.ReadFile(ctx, file)
		if err != nil {
			return fail(name, CodeIOError, "read %s: %v", file, err)
		}
		theirs, err := trees.Base.ReadFile(ctx, baseFile)
		if err != nil {
			return fail(name, CodeIOError, "read base %s: %v", baseFile, err)
		}
		if bytes.Equal(ours, theirs) {
			return fail(name, CodeSameAsBase, "%s is byte-identical to its base %s", file, baseFile)
		}
		return pass(name)
	}}
}

// Run evaluates strategies in order and returns every result; it never
// short-circuits, so a report always covers the full list.
func Run(ctx context.Context, trees Trees, strategies []Strategy) []Result {
	out := make([]Result, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s.Check(ctx, trees))
	}
	return out
}

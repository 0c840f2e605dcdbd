// Package upgrade defines the algorithm family used to bring an override
// back to a valid state against a new upstream snapshot, and the applier
// that executes those algorithms against a pair of trees.
//
// A Strategy is pure data: which algorithm, over which paths, pinned to
// which upstream version. All I/O happens in Applier.Apply, which stages
// every write so cancellation mid-batch never leaves a partially
// overwritten file.
package upgrade

import "errors"

// ErrConflict marks a three-way merge that could not be auto-resolved.
// The merge never silently favors either side; callers decide whether
// conflict markers may be written out for manual resolution.
var ErrConflict = errors.New("merge conflict")

// Kind selects the reconciliation algorithm.
type Kind string

const (
	// KindAssumeUpToDate performs no content transformation. Used only
	// for overrides with no upstream counterpart.
	KindAssumeUpToDate Kind = "assumeUpToDate"
	// KindCopyFile replaces the override with a verbatim byte copy of
	// its base file.
	KindCopyFile Kind = "copyFile"
	// KindCopyDirectory recursively re-copies the base directory
	// subtree.
	KindCopyDirectory Kind = "copyDirectory"
	// KindThreeWayMerge re-applies the override's net modifications
	// onto the new upstream baseline.
	KindThreeWayMerge Kind = "threeWayMerge"
)

// Strategy describes how to reconcile one override. Construct via the
// helpers below; which fields are set depends on Kind.
type Strategy struct {
	Kind Kind

	File     string
	BaseFile string

	Directory     string
	BaseDirectory string

	// BaseVersion is the upstream version label the override was last
	// reconciled against; the merge reads pinned content at this label.
	BaseVersion string
}

// AssumeUpToDate is the no-op strategy for platform-only overrides.
func AssumeUpToDate(file string) Strategy {
	return Strategy{Kind: KindAssumeUpToDate, File: file}
}

// CopyFile re-copies baseFile over file.
func CopyFile(file, baseFile string) Strategy {
	return Strategy{Kind: KindCopyFile, File: file, BaseFile: baseFile}
}

// CopyDirectory re-copies the baseDir subtree over dir.
func CopyDirectory(dir, baseDir string) Strategy {
	return Strategy{Kind: KindCopyDirectory, Directory: dir, BaseDirectory: baseDir}
}

// ThreeWayMerge merges the override's changes (relative to baseFile at
// baseVersion) onto the current upstream content of baseFile.
func ThreeWayMerge(file, baseFile, baseVersion string) Strategy {
	return Strategy{Kind: KindThreeWayMerge, File: file, BaseFile: baseFile, BaseVersion: baseVersion}
}

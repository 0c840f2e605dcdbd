package manifest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"overtrack/internal/diff"
	"overtrack/internal/override"
	"overtrack/internal/tree"
	"overtrack/internal/validate"
)

// fixture wires two in-memory trees, a factory pinned at toVersion, and
// an engine over the given manifest.
type fixture struct {
	overrides *tree.MemTree
	base      *tree.MemTree
	engine    *Engine
}

func newFixture(t *testing.T, m *Manifest, toVersion string) *fixture {
	t.Helper()
	ovTree := tree.NewMemTree()
	baseTree := tree.NewMemTree()
	factory := override.NewTreeFactory(baseTree, toVersion)
	eng := NewEngine(m, ovTree, baseTree, factory, zap.NewNop())
	eng.Concurrency = 4
	return &fixture{overrides: ovTree, base: baseTree, engine: eng}
}

func copyRecord(file, baseFile, version string, hash string) override.Record {
	issue := override.IssueNumber(100)
	return override.Record{Type: override.TypeCopy, File: file, BaseFile: baseFile,
		BaseVersion: version, BaseHash: hash, Issue: &issue}
}

func TestValidatePartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypePlatform, File: "src/ok1.cpp"})))
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypePlatform, File: "src/missing.cpp"})))
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypePlatform, File: "src/ok2.cpp"})))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/ok1.cpp", []byte("x"))
	fx.overrides.Put("src/ok2.cpp", []byte("y"))

	report, err := fx.engine.Validate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 3)
	assert.False(t, report.OK())

	byName := map[string]EntryStatus{}
	for _, e := range report.Entries {
		byName[e.Name] = e
	}
	assert.True(t, byName["src/ok1.cpp"].OK())
	assert.True(t, byName["src/ok2.cpp"].OK())

	broken := byName["src/missing.cpp"]
	require.False(t, broken.OK())
	require.Len(t, broken.Failures(), 1)
	assert.Equal(t, validate.CodeOverrideMissing, broken.Failures()[0].Code)
}

func TestValidateDetectsStaleness(t *testing.T) {
	ctx := context.Background()
	pinned := []byte("old upstream\n")
	m := New()
	require.NoError(t, m.Add(rec(t, copyRecord("src/a.cpp", "base/a.cpp", "v1", tree.HashBytes(pinned)))))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/a.cpp", []byte("new upstream\n"))
	fx.base.Put("base/a.cpp", []byte("new upstream\n"))

	report, err := fx.engine.Validate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	entry := report.Entries[0]
	assert.True(t, entry.Stale())

	var stale *validate.Result
	for i, r := range entry.Results {
		if r.Code == validate.CodeOutOfDate {
			stale = &entry.Results[i]
		}
	}
	require.NotNil(t, stale)
	assert.Contains(t, stale.Reason, "changed since last reconciliation")
}

func TestValidateRejectsOverlapBeforeIO(t *testing.T) {
	issue := override.IssueNumber(5)
	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeCopy, Directory: "src/dir",
		BaseDirectory: "base/dir", BaseVersion: "v1", BaseHash: fakeHash("aa"), Issue: &issue})))
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypePlatform, File: "src/dir/file.cpp"})))

	fx := newFixture(t, m, "v2")
	_, err := fx.engine.Validate(context.Background())
	assert.ErrorIs(t, err, ErrOverlappingScopes)
	_, err = fx.engine.Upgrade(context.Background())
	assert.ErrorIs(t, err, ErrOverlappingScopes)
}

func TestUpgradeStaleCopyOverride(t *testing.T) {
	ctx := context.Background()
	oldContent := []byte("old upstream\n")
	newContent := []byte("new upstream\n")

	m := New()
	require.NoError(t, m.Add(rec(t, copyRecord("src/a.cpp", "base/a.cpp", "v1", tree.HashBytes(oldContent)))))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/a.cpp", oldContent)
	fx.base.Put("base/a.cpp", newContent)

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, ActionUpgraded, report.Entries[0].Action)

	// Content recopied verbatim.
	got, err := fx.overrides.ReadFile(ctx, "src/a.cpp")
	require.NoError(t, err)
	assert.Equal(t, newContent, got)

	// Manifest entry re-pinned to the current upstream.
	fresh, ok := m.Get("src/a.cpp")
	require.True(t, ok)
	assert.Equal(t, "v2", fresh.Serialize().BaseVersion)
	assert.Equal(t, tree.HashBytes(newContent), fresh.Serialize().BaseHash)

	// The full validation pass is clean afterwards.
	vr, err := fx.engine.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, vr.OK())
}

func TestUpgradeMergesPatchOverride(t *testing.T) {
	ctx := context.Background()
	pinnedBase := []byte("alpha\nbeta\ngamma\n")
	newBase := []byte("alpha\nbeta2\ngamma\n")
	patched := []byte("alpha\nbeta\ngamma\nlocal addition\n")

	m := New()
	issue := override.IssueNumber(42)
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypePatch,
		File: "src/p.cpp", BaseFile: "base/p.cpp",
		BaseVersion: "v1", BaseHash: tree.HashBytes(pinnedBase), Issue: &issue})))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/p.cpp", patched)
	fx.base.Put("base/p.cpp", newBase)
	fx.base.PutAt("v1", "base/p.cpp", pinnedBase)

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	require.Equal(t, ActionUpgraded, report.Entries[0].Action)

	got, err := fx.overrides.ReadFile(ctx, "src/p.cpp")
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta2\ngamma\nlocal addition\n", string(got))

	fresh, _ := m.Get("src/p.cpp")
	assert.Equal(t, tree.HashBytes(newBase), fresh.Serialize().BaseHash)
}

func TestUpgradeReportsLineEndingNormalization(t *testing.T) {
	ctx := context.Background()
	pinnedBase := []byte("alpha\nbeta\ngamma\n")
	newBase := []byte("alpha\nbeta2\ngamma\n")
	patched := []byte("alpha\r\nbeta\r\ngamma\r\nlocal addition\r\n")

	m := New()
	issue := override.IssueNumber(43)
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypePatch,
		File: "src/crlf.cpp", BaseFile: "base/crlf.cpp",
		BaseVersion: "v1", BaseHash: tree.HashBytes(pinnedBase), Issue: &issue})))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/crlf.cpp", patched)
	fx.base.Put("base/crlf.cpp", newBase)
	fx.base.PutAt("v1", "base/crlf.cpp", pinnedBase)

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	require.Equal(t, ActionUpgraded, report.Entries[0].Action)
	assert.True(t, report.Entries[0].Normalized,
		"rewriting CRLF content must be reported, not silent")

	got, err := fx.overrides.ReadFile(ctx, "src/crlf.cpp")
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta2\ngamma\nlocal addition\n", string(got))
}

func TestUpgradeConflictIsSurfacedNotGuessed(t *testing.T) {
	ctx := context.Background()
	pinnedBase := []byte("foo\n")
	newBase := []byte("bar\n")
	ours := []byte("baz\n")

	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeDerived,
		File: "src/d.cpp", BaseFile: "base/d.cpp",
		BaseVersion: "v1", BaseHash: tree.HashBytes(pinnedBase)})))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/d.cpp", ours)
	fx.base.Put("base/d.cpp", newBase)
	fx.base.PutAt("v1", "base/d.cpp", pinnedBase)

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, ActionConflicted, report.Entries[0].Action)
	assert.False(t, report.OK())

	// Without AllowConflicts the downstream file is untouched and the
	// manifest entry keeps its old pin.
	got, err := fx.overrides.ReadFile(ctx, "src/d.cpp")
	require.NoError(t, err)
	assert.Equal(t, ours, got)
	entry, _ := m.Get("src/d.cpp")
	assert.Equal(t, "v1", entry.Serialize().BaseVersion)
}

func TestUpgradeConflictWrittenWhenAllowed(t *testing.T) {
	ctx := context.Background()
	pinnedBase := []byte("foo\n")

	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeDerived,
		File: "src/d.cpp", BaseFile: "base/d.cpp",
		BaseVersion: "v1", BaseHash: tree.HashBytes(pinnedBase)})))

	fx := newFixture(t, m, "v2")
	fx.engine.AllowConflicts = true
	fx.overrides.Put("src/d.cpp", []byte("baz\n"))
	fx.base.Put("base/d.cpp", []byte("bar\n"))
	fx.base.PutAt("v1", "base/d.cpp", pinnedBase)

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionConflicted, report.Entries[0].Action)
	assert.Equal(t, 1, report.Entries[0].Conflicts)

	got, err := fx.overrides.ReadFile(ctx, "src/d.cpp")
	require.NoError(t, err)
	assert.Contains(t, string(got), "<<<<<<<")
	// The entry is re-pinned so the conflict is resolved against the
	// new upstream, not rediscovered forever.
	entry, _ := m.Get("src/d.cpp")
	assert.Equal(t, "v2", entry.Serialize().BaseVersion)
}

func TestUpgradeResolutionFailureAbortsOnlyThatOverride(t *testing.T) {
	ctx := context.Background()
	oldContent := []byte("old\n")
	newContent := []byte("new\n")

	m := New()
	require.NoError(t, m.Add(rec(t, copyRecord("src/good.cpp", "base/good.cpp", "v1", tree.HashBytes(oldContent)))))
	require.NoError(t, m.Add(rec(t, copyRecord("src/orphan.cpp", "base/gone.cpp", "v1", tree.HashBytes(oldContent)))))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/good.cpp", oldContent)
	fx.overrides.Put("src/orphan.cpp", oldContent)
	fx.base.Put("base/good.cpp", newContent)
	// base/gone.cpp deliberately absent.

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Len(t, report.Entries, 2)

	byName := map[string]UpgradeOutcome{}
	for _, e := range report.Entries {
		byName[e.Name] = e
	}
	assert.Equal(t, ActionUpgraded, byName["src/good.cpp"].Action)
	// The orphan fails its baseFileExists check, which no upgrade can
	// repair, and is reported without stopping the batch.
	assert.Equal(t, ActionSkipped, byName["src/orphan.cpp"].Action)
	assert.Contains(t, byName["src/orphan.cpp"].Reason, "baseFileExists")
}

func TestUpgradeToSameVersionLeavesContentUnchanged(t *testing.T) {
	ctx := context.Background()
	base := []byte("one\ntwo\n")
	derived := []byte("one\ntwo\nthree downstream\n")

	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeDerived,
		File: "src/d.cpp", BaseFile: "base/d.cpp",
		BaseVersion: "v1", BaseHash: tree.HashBytes(base)})))

	fx := newFixture(t, m, "v1")
	fx.overrides.Put("src/d.cpp", derived)
	fx.base.Put("base/d.cpp", base)
	fx.base.PutAt("v1", "base/d.cpp", base)

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	// Hash still matches: nothing to do.
	assert.Equal(t, ActionUpToDate, report.Entries[0].Action)

	got, err := fx.overrides.ReadFile(ctx, "src/d.cpp")
	require.NoError(t, err)
	assert.Equal(t, derived, got)
}

func TestUpgradeDirectoryCopy(t *testing.T) {
	ctx := context.Background()
	m := New()
	issue := override.IssueNumber(77)
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeCopy,
		Directory: "src/vendored", BaseDirectory: "base/vendored",
		BaseVersion: "v1", BaseHash: fakeHash("00"), Issue: &issue})))

	fx := newFixture(t, m, "v2")
	fx.overrides.Put("src/vendored/keep.txt", []byte("stale\n"))
	fx.overrides.Put("src/vendored/extinct.txt", []byte("gone upstream\n"))
	fx.base.Put("base/vendored/keep.txt", []byte("fresh\n"))
	fx.base.Put("base/vendored/added.txt", []byte("brand new\n"))

	report, err := fx.engine.Upgrade(ctx)
	require.NoError(t, err)
	require.Equal(t, ActionUpgraded, report.Entries[0].Action)

	got, err := fx.overrides.ReadFile(ctx, "src/vendored/keep.txt")
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(got))
	_, err = fx.overrides.ReadFile(ctx, "src/vendored/extinct.txt")
	assert.Error(t, err)
	added, err := fx.overrides.ReadFile(ctx, "src/vendored/added.txt")
	require.NoError(t, err)
	assert.Equal(t, "brand new\n", string(added))

	vr, err := fx.engine.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, vr.OK())
}

func TestDerivedIdenticalToBaseIsFlagged(t *testing.T) {
	ctx := context.Background()
	content := []byte("no longer different\n")

	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeDerived,
		File: "src/d.cpp", BaseFile: "base/d.cpp",
		BaseVersion: "v1", BaseHash: tree.HashBytes(content)})))

	fx := newFixture(t, m, "v1")
	fx.overrides.Put("src/d.cpp", content)
	fx.base.Put("base/d.cpp", content)

	report, err := fx.engine.Validate(ctx)
	require.NoError(t, err)
	entry := report.Entries[0]
	require.False(t, entry.OK())
	assert.Equal(t, validate.CodeSameAsBase, entry.Failures()[0].Code)
}

func TestDiffFileOverride(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeDerived,
		File: "src/d.cpp", BaseFile: "base/d.cpp",
		BaseVersion: "v1", BaseHash: fakeHash("11")})))

	fx := newFixture(t, m, "v1")
	fx.overrides.Put("src/d.cpp", []byte("a\nlocal\n"))
	fx.base.Put("base/d.cpp", []byte("a\n"))

	body, err := fx.engine.Diff(ctx, "src/d.cpp", diff.Options{})
	require.NoError(t, err)
	assert.Contains(t, body, "+local")
	assert.Contains(t, body, "--- base/d.cpp")

	_, err = fx.engine.Diff(ctx, "nope", diff.Options{})
	assert.ErrorIs(t, err, ErrUnknownOverride)
}

func TestDiffDirectoryOverrideListsDrift(t *testing.T) {
	ctx := context.Background()
	issue := override.IssueNumber(12)
	m := New()
	require.NoError(t, m.Add(rec(t, override.Record{Type: override.TypeCopy,
		Directory: "src/vendored", BaseDirectory: "base/vendored",
		BaseVersion: "v1", BaseHash: fakeHash("22"), Issue: &issue})))

	fx := newFixture(t, m, "v1")
	fx.overrides.Put("src/vendored/same.txt", []byte("x\n"))
	fx.overrides.Put("src/vendored/drift.txt", []byte("ours\n"))
	fx.overrides.Put("src/vendored/extra.txt", []byte("only here\n"))
	fx.base.Put("base/vendored/same.txt", []byte("x\n"))
	fx.base.Put("base/vendored/drift.txt", []byte("theirs\n"))
	fx.base.Put("base/vendored/missing.txt", []byte("only base\n"))

	body, err := fx.engine.Diff(ctx, "src/vendored", diff.Options{})
	require.NoError(t, err)
	assert.Contains(t, body, "content differs: src/vendored/drift.txt")
	assert.Contains(t, body, "only in override: src/vendored/extra.txt")
	assert.Contains(t, body, "only in base: base/vendored/missing.txt")
	assert.False(t, strings.Contains(body, "same.txt"))
}

package manifest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"overtrack/internal/diff"
	"overtrack/internal/override"
	"overtrack/internal/tree"
	"overtrack/internal/upgrade"
	"overtrack/internal/validate"
)

// Engine runs batch validation and reconciliation over a manifest.
// Overrides run independently: each instance is immutable and the
// manifest is mutated only by whole-entry replacement after an
// override's upgrade completes, so a bounded fan-out is safe.
type Engine struct {
	manifest *Manifest
	ovTree   tree.Writer
	baseTree tree.VersionedReader
	factory  override.Factory
	log      *zap.Logger

	// Concurrency bounds the fan-out; <= 0 means sequential.
	Concurrency int
	// AllowConflicts lets merge upgrades write conflict markers out
	// for manual resolution instead of failing the file.
	AllowConflicts bool
}

// NewEngine wires an engine. The logger may not be nil; pass zap.NewNop
// for silence.
func NewEngine(m *Manifest, overrides tree.Writer, base tree.VersionedReader, factory override.Factory, log *zap.Logger) *Engine {
	return &Engine{
		manifest: m,
		ovTree:   overrides,
		baseTree: base,
		factory:  factory,
		log:      log,
	}
}

// EntryStatus aggregates all check results for one override.
type EntryStatus struct {
	Name    string
	Results []validate.Result
}

// OK reports whether every check passed.
func (s EntryStatus) OK() bool {
	for _, r := range s.Results {
		if !r.OK {
			return false
		}
	}
	return true
}

// Stale reports whether the upstream moved since last reconciliation.
// This is the one condition an upgrade can repair.
func (s EntryStatus) Stale() bool {
	for _, r := range s.Results {
		if !r.OK && r.Code == validate.CodeOutOfDate {
			return true
		}
	}
	return false
}

// Failures returns the failing results only.
func (s EntryStatus) Failures() []validate.Result {
	var out []validate.Result
	for _, r := range s.Results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}

// Report is the outcome of one validation pass, one entry per override,
// sorted by name.
type Report struct {
	Entries []EntryStatus
}

// OK reports whether every override passed every check.
func (r Report) OK() bool {
	for _, e := range r.Entries {
		if !e.OK() {
			return false
		}
	}
	return true
}

// Validate runs every override's validation strategies in a single
// pass. One broken override never prevents reporting on the rest; the
// only errors returned are manifest-invariant violations and
// cancellation.
func (e *Engine) Validate(ctx context.Context) (Report, error) {
	if err := e.manifest.Check(); err != nil {
		return Report{}, err
	}

	all := e.manifest.All()
	statuses := make([]EntryStatus, len(all))
	trees := validate.Trees{Override: e.ovTree, Base: e.baseTree}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, ov := range all {
		i, ov := i, ov
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			statuses[i] = EntryStatus{
				Name:    ov.Name(),
				Results: validate.Run(gctx, trees, ov.ValidationStrategies()),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Entries: statuses}
	for _, s := range report.Entries {
		if !s.OK() {
			for _, f := range s.Failures() {
				e.log.Info("override failed validation",
					zap.String("override", s.Name),
					zap.String("check", f.Strategy),
					zap.String("code", string(f.Code)),
					zap.String("reason", f.Reason))
			}
		}
	}
	return report, nil
}

// Action describes what an upgrade pass did with one override.
type Action string

const (
	ActionUpToDate   Action = "up-to-date"
	ActionUpgraded   Action = "upgraded"
	ActionConflicted Action = "conflicted"
	ActionFailed     Action = "failed"
	ActionSkipped    Action = "skipped"
)

// UpgradeOutcome is the per-override result of an upgrade pass.
type UpgradeOutcome struct {
	Name      string
	Action    Action
	Conflicts int
	// Normalized reports that the merge rewrote line endings or invalid
	// UTF-8 in the committed content.
	Normalized bool
	// Reason carries the failure or skip explanation, empty otherwise.
	Reason string
}

// UpgradeReport summarizes an upgrade pass, sorted by name.
type UpgradeReport struct {
	Entries []UpgradeOutcome
}

// OK reports whether no override failed or conflicted.
func (r UpgradeReport) OK() bool {
	for _, e := range r.Entries {
		if e.Action == ActionFailed || e.Action == ActionConflicted {
			return false
		}
	}
	return true
}

// upgradeResult pairs an outcome with the replacement entry to commit
// after the fan-out completes.
type upgradeResult struct {
	outcome UpgradeOutcome
	fresh   override.Override
}

// Upgrade brings every stale override back up to date: the variant's
// upgrade strategy reconciles content (merging against the previously
// pinned upstream version where required), then the factory re-pins a
// fresh override which replaces the old manifest entry. Overrides that
// fail validation for reasons other than staleness are skipped and
// reported; a resolution error aborts only that override's upgrade.
func (e *Engine) Upgrade(ctx context.Context) (UpgradeReport, error) {
	if err := e.manifest.Check(); err != nil {
		return UpgradeReport{}, err
	}

	all := e.manifest.All()
	results := make([]upgradeResult, len(all))
	trees := validate.Trees{Override: e.ovTree, Base: e.baseTree}
	applier := upgrade.Applier{
		Overrides:      e.ovTree,
		Base:           e.baseTree,
		AllowConflicts: e.AllowConflicts,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, ov := range all {
		i, ov := i, ov
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.upgradeOne(gctx, ov, trees, applier)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return UpgradeReport{}, err
	}

	// Whole-entry replacement happens only after the fan-out, never
	// concurrently with an in-flight read of the same entry.
	report := UpgradeReport{Entries: make([]UpgradeOutcome, 0, len(results))}
	for _, r := range results {
		if r.fresh != nil {
			if err := e.manifest.Replace(r.fresh); err != nil {
				return UpgradeReport{}, err
			}
		}
		report.Entries = append(report.Entries, r.outcome)
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].Name < report.Entries[j].Name
	})
	return report, nil
}

func (e *Engine) upgradeOne(ctx context.Context, ov override.Override, trees validate.Trees, applier upgrade.Applier) upgradeResult {
	name := ov.Name()
	status := EntryStatus{Name: name, Results: validate.Run(ctx, trees, ov.ValidationStrategies())}

	switch {
	case status.OK():
		return upgradeResult{outcome: UpgradeOutcome{Name: name, Action: ActionUpToDate}}
	case !status.Stale():
		// Broken for a reason no upgrade can repair; surface it.
		f := status.Failures()[0]
		return upgradeResult{outcome: UpgradeOutcome{
			Name:   name,
			Action: ActionSkipped,
			Reason: fmt.Sprintf("%s: %s", f.Strategy, f.Reason),
		}}
	}

	res, err := applier.Apply(ctx, ov.UpgradeStrategy())
	if err != nil {
		if errors.Is(err, upgrade.ErrConflict) {
			e.log.Warn("merge conflict", zap.String("override", name), zap.Int("regions", res.Conflicts))
			return upgradeResult{outcome: UpgradeOutcome{
				Name:      name,
				Action:    ActionConflicted,
				Conflicts: res.Conflicts,
				Reason:    err.Error(),
			}}
		}
		e.log.Warn("upgrade failed", zap.String("override", name), zap.Error(err))
		return upgradeResult{outcome: UpgradeOutcome{Name: name, Action: ActionFailed, Reason: err.Error()}}
	}

	fresh, err := ov.CreateUpdated(ctx, e.factory)
	if err != nil {
		e.log.Warn("re-pin failed", zap.String("override", name), zap.Error(err))
		return upgradeResult{outcome: UpgradeOutcome{Name: name, Action: ActionFailed, Reason: err.Error()}}
	}

	e.log.Info("override upgraded",
		zap.String("override", name),
		zap.String("strategy", string(ov.UpgradeStrategy().Kind)),
		zap.Int("written", res.Written),
		zap.Int("conflicts", res.Conflicts),
		zap.Bool("normalized", res.Normalized))
	outcome := UpgradeOutcome{Name: name, Action: ActionUpgraded, Conflicts: res.Conflicts, Normalized: res.Normalized}
	if res.Conflicts > 0 {
		outcome.Action = ActionConflicted
		outcome.Reason = "written with conflict markers"
	}
	return upgradeResult{outcome: outcome, fresh: fresh}
}

// Diff renders what the named override changes relative to its base: a
// unified diff for file-linked variants, the full content for platform
// files, and a per-file hash comparison for directory copies.
func (e *Engine) Diff(ctx context.Context, name string, opt diff.Options) (string, error) {
	ov, ok := e.manifest.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOverride, name)
	}

	rec := ov.Serialize()
	switch {
	case rec.Type == override.TypePlatform:
		data, err := e.ovTree.ReadFile(ctx, rec.File)
		if err != nil {
			return "", err
		}
		body, _ := diff.Added(rec.File, data, opt)
		return body, nil
	case rec.Directory != "":
		return e.diffDirectory(ctx, rec)
	default:
		ours, err := e.ovTree.ReadFile(ctx, rec.File)
		if err != nil {
			return "", err
		}
		theirs, err := e.baseTree.ReadFile(ctx, rec.BaseFile)
		if err != nil {
			return "", err
		}
		body, _ := diff.Unified(rec.BaseFile, rec.File, theirs, ours, opt)
		return body, nil
	}
}

// diffDirectory lists per-file drift rather than content hunks:
// directory copies are supposed to be byte-identical, so naming the
// offending files is the useful report.
func (e *Engine) diffDirectory(ctx context.Context, rec override.Record) (string, error) {
	ourFiles, err := e.ovTree.ListFiles(ctx, rec.Directory)
	if err != nil {
		return "", err
	}
	baseFiles, err := e.baseTree.ListFiles(ctx, rec.BaseDirectory)
	if err != nil {
		return "", err
	}
	ourSet := make(map[string]struct{}, len(ourFiles))
	for _, f := range ourFiles {
		ourSet[f] = struct{}{}
	}
	baseSet := make(map[string]struct{}, len(baseFiles))
	for _, f := range baseFiles {
		baseSet[f] = struct{}{}
	}

	var out []string
	for _, f := range ourFiles {
		if _, ok := baseSet[f]; !ok {
			out = append(out, fmt.Sprintf("only in override: %s/%s", rec.Directory, f))
			continue
		}
		oh, err := tree.HashFile(ctx, e.ovTree, rec.Directory+"/"+f)
		if err != nil {
			return "", err
		}
		bh, err := tree.HashFile(ctx, e.baseTree, rec.BaseDirectory+"/"+f)
		if err != nil {
			return "", err
		}
		if oh != bh {
			out = append(out, fmt.Sprintf("content differs: %s/%s", rec.Directory, f))
		}
	}
	for _, f := range baseFiles {
		if _, ok := ourSet[f]; !ok {
			out = append(out, fmt.Sprintf("only in base: %s/%s", rec.BaseDirectory, f))
		}
	}
	if len(out) == 0 {
		return "", nil
	}
	s := ""
	for _, ln := range out {
		s += ln + "\n"
	}
	return s, nil
}

func (e *Engine) limit() int {
	if e.Concurrency <= 0 {
		return 1
	}
	return e.Concurrency
}

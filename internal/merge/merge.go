// Package merge implements a three-way line merge over the matching-block
// machinery of github.com/pmezard/go-difflib/difflib.
//
// Inputs are the upstream content at the pinned version (base), the
// current downstream content (ours) and the upstream content at the new
// target version (theirs). The result applies the downstream's net
// modifications onto the new upstream baseline.
//
// Conflict policy: a region changed on both sides with different content
// is never resolved by favoring either side. It is emitted with
// git-style markers and counted, and the caller decides whether such a
// result may be committed anywhere.
package merge

import (
	"bytes"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"overtrack/internal/textutil"
)

// Options controls marker labels on conflict regions.
type Options struct {
	// OursLabel annotates the downstream side of a conflict.
	OursLabel string
	// BaseLabel annotates the pinned-upstream middle section.
	BaseLabel string
	// TheirsLabel annotates the new-upstream side.
	TheirsLabel string
}

func (o Options) withDefaults() Options {
	if o.OursLabel == "" {
		o.OursLabel = "ours"
	}
	if o.BaseLabel == "" {
		o.BaseLabel = "base"
	}
	if o.TheirsLabel == "" {
		o.TheirsLabel = "theirs"
	}
	return o
}

// Result is the outcome of a merge.
type Result struct {
	// Merged is the combined content. When Conflicts > 0 it contains
	// conflict markers and must not be treated as resolved.
	Merged []byte
	// Conflicts counts regions that could not be auto-resolved.
	Conflicts int
	// Normalized reports that at least one input was altered by
	// CRLF/UTF-8 normalization before merging.
	Normalized bool
}

// syncRegion is a run of lines present identically in all three inputs.
// Half-open line intervals: base[baseLo:baseHi] == ours[oursLo:oursHi] ==
// theirs[theirsLo:theirsHi].
type syncRegion struct {
	baseLo, baseHi     int
	oursLo, oursHi     int
	theirsLo, theirsHi int
}

// Merge merges ours and theirs relative to their common ancestor base.
// Inputs pass through CRLF/UTF-8 normalization so the merge is stable
// across platforms; raw-byte identity checks belong to validation, not
// here.
func Merge(base, ours, theirs []byte, opt Options) Result {
	opt = opt.withDefaults()

	nb := textutil.NormalizeUTF8LF(base)
	no := textutil.NormalizeUTF8LF(ours)
	nt := textutil.NormalizeUTF8LF(theirs)
	normalized := !bytes.Equal(nb, base) || !bytes.Equal(no, ours) || !bytes.Equal(nt, theirs)

	baseLines := textutil.SplitLinesKeepNL(string(nb))
	oursLines := textutil.SplitLinesKeepNL(string(no))
	theirsLines := textutil.SplitLinesKeepNL(string(nt))

	regions := findSyncRegions(baseLines, oursLines, theirsLines)

	var out bytes.Buffer
	conflicts := 0
	ib, io, it := 0, 0, 0
	for _, r := range regions {
		conflicts += emitRegion(&out, opt,
			baseLines[ib:r.baseLo], oursLines[io:r.oursLo], theirsLines[it:r.theirsLo])
		for _, ln := range baseLines[r.baseLo:r.baseHi] {
			out.WriteString(ln)
		}
		ib, io, it = r.baseHi, r.oursHi, r.theirsHi
	}
	conflicts += emitRegion(&out, opt, baseLines[ib:], oursLines[io:], theirsLines[it:])

	return Result{Merged: out.Bytes(), Conflicts: conflicts, Normalized: normalized}
}

// emitRegion resolves one unmatched region. Returns 1 when the region is
// a conflict, 0 otherwise.
func emitRegion(out *bytes.Buffer, opt Options, base, ours, theirs []string) int {
	if len(base) == 0 && len(ours) == 0 && len(theirs) == 0 {
		return 0
	}
	oursText := strings.Join(ours, "")
	theirsText := strings.Join(theirs, "")
	baseText := strings.Join(base, "")

	switch {
	case oursText == theirsText:
		// Same change on both sides (or both untouched).
		out.WriteString(oursText)
	case oursText == baseText:
		// Only upstream moved.
		out.WriteString(theirsText)
	case theirsText == baseText:
		// Only the override moved.
		out.WriteString(oursText)
	default:
		writeConflict(out, opt, baseText, oursText, theirsText)
		return 1
	}
	return 0
}

func writeConflict(out *bytes.Buffer, opt Options, base, ours, theirs string) {
	out.WriteString("<<<<<<< " + opt.OursLabel + "\n")
	writeBlock(out, ours)
	out.WriteString("||||||| " + opt.BaseLabel + "\n")
	writeBlock(out, base)
	out.WriteString("=======\n")
	writeBlock(out, theirs)
	out.WriteString(">>>>>>> " + opt.TheirsLabel + "\n")
}

// writeBlock emits a conflict section, making sure the following marker
// starts on its own line even when the content lacks a final newline.
func writeBlock(out *bytes.Buffer, text string) {
	out.Write(textutil.EnsureTrailingLF([]byte(text)))
}

// findSyncRegions intersects the matching blocks of base↔ours with those
// of base↔theirs: wherever both sides agree with the same base interval,
// all three texts are aligned. Regions are returned in order, and the
// intervals between consecutive regions carry the changes to resolve.
func findSyncRegions(base, ours, theirs []string) []syncRegion {
	am := difflib.NewMatcher(base, ours).GetMatchingBlocks()
	bm := difflib.NewMatcher(base, theirs).GetMatchingBlocks()

	var regions []syncRegion
	ia, ib := 0, 0
	for ia < len(am) && ib < len(bm) {
		a := am[ia]
		b := bm[ib]
		aLo, aHi := a.A, a.A+a.Size
		bLo, bHi := b.A, b.A+b.Size

		lo := max(aLo, bLo)
		hi := min(aHi, bHi)
		if hi > lo {
			regions = append(regions, syncRegion{
				baseLo:   lo,
				baseHi:   hi,
				oursLo:   a.B + (lo - aLo),
				oursHi:   a.B + (lo - aLo) + (hi - lo),
				theirsLo: b.B + (lo - bLo),
				theirsHi: b.B + (lo - bLo) + (hi - lo),
			})
		}
		if aHi <= bHi {
			ia++
		} else {
			ib++
		}
	}
	return regions
}

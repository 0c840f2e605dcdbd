// Package diff renders unified diffs between override content and its
// upstream base. It uses github.com/pmezard/go-difflib/difflib to produce
// classic unified patches (---/+++ headers, @@ hunks, lines prefixed with
// ' ', '-', '+').
package diff

import (
	"fmt"

	difflib "github.com/pmezard/go-difflib/difflib"

	"overtrack/internal/textutil"
)

// Options controls diff rendering behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a minimal placeholder diff is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context controls the number of context lines in unified hunks.
	// If 0, default to 4.
	Context int
}

// Unified produces a classic unified patch for a↦b.
// Returns the patch body and a flag indicating it was omitted due to size.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && (len(a)+len(b)) > opt.MaxBytes {
		return omitted(aName, bName), true
	}

	ctx := opt.Context
	if ctx <= 0 {
		ctx = 4
	}

	u := difflib.UnifiedDiff{
		A:        textutil.SplitLinesKeepNL(string(a)),
		B:        textutil.SplitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName), false
	}
	if s == "" {
		// Identical inputs produce no hunks; an empty body is the honest
		// answer for a diff report.
		return "", false
	}
	return s, false
}

// Added produces a patch that introduces the entire content b, for
// overrides whose base file does not exist at the current upstream.
func Added(bName string, b []byte, opt Options) (string, bool) {
	if opt.MaxBytes > 0 && len(b) > opt.MaxBytes {
		return omitted("/dev/null", bName), true
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 4
	}
	u := difflib.UnifiedDiff{
		A:        []string{},
		B:        textutil.SplitLinesKeepNL(string(b)),
		FromFile: "/dev/null",
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		return omitted("/dev/null", bName), false
	}
	return s, false
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}

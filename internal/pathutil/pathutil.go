// Package pathutil canonicalizes file paths across platform separators.
// Every path stored in a manifest or compared against one goes through
// Normalize first, so the same file referenced with backslashes, "./"
// prefixes or redundant separators always lands on one stable key.
//
// Conventions:
//   - Forward slashes only; backslashes are converted, never preserved.
//   - No leading "./", no duplicate or trailing slashes.
//   - "." and ".." segments are resolved; ".." that would climb above the
//     root is kept, so callers can detect scope escapes.
//   - Comparison is case-sensitive. Normalize is idempotent, and the
//     normalized form is also the serialization form.
package pathutil

import "strings"

// Normalize returns the canonical forward-slash form of p.
func Normalize(p string) string {
	s := strings.ReplaceAll(p, `\`, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if n := len(stack); n > 0 && stack[n-1] != ".." {
				stack = stack[:n-1]
				continue
			}
			stack = append(stack, part)
		default:
			stack = append(stack, part)
		}
	}
	return strings.Join(stack, "/")
}

// Equal reports whether two paths refer to the same entry after
// normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Relative decomposes target against the directory dir. Both inputs are
// normalized first. The second return is false when target does not lie
// under dir (its decomposition would start with a parent reference).
// Relative(dir, dir) returns ("", true): the directory is its own scope.
func Relative(dir, target string) (string, bool) {
	d := Normalize(dir)
	t := Normalize(target)
	if d == "" {
		return t, !isEscape(t)
	}
	if t == d {
		return "", true
	}
	if strings.HasPrefix(t, d+"/") {
		return t[len(d)+1:], true
	}
	return "", false
}

// Contains reports whether target lies within the directory dir (or is
// dir itself) after normalization.
func Contains(dir, target string) bool {
	_, ok := Relative(dir, target)
	return ok
}

// Join concatenates normalized segments with forward slashes, skipping
// empty ones, and normalizes the result.
func Join(segments ...string) string {
	kept := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return Normalize(strings.Join(kept, "/"))
}

func isEscape(normalized string) bool {
	return normalized == ".." || strings.HasPrefix(normalized, "../")
}

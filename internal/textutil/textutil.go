// Package textutil holds the small text-shaping helpers shared by the
// merge and diff layers. Content hashing and copying always operate on
// raw bytes; these helpers are applied only where line-oriented
// comparison needs stable input.
package textutil

import (
	"bytes"
	"strings"
)

// NormalizeUTF8LF converts CRLF/CR to LF and ensures the output is valid
// UTF-8 by replacing invalid byte sequences with the Unicode replacement
// character.
func NormalizeUTF8LF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return bytes.ToValidUTF8(b, []byte("�"))
}

// EnsureTrailingLF appends a single \n if not already present.
func EnsureTrailingLF(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(b, '\n')
}

// SplitLinesKeepNL splits into lines keeping the newline at the end of
// each element, which keeps line-based diffing and merging exact. A file
// not ending in a newline yields a final element without one.
func SplitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

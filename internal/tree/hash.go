package tree

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"

	"overtrack/internal/pathutil"
	"overtrack/internal/sortutil"
)

// HashBytes returns the lowercase hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile computes the content hash of a single file.
func HashFile(ctx context.Context, r Reader, path string) (string, error) {
	data, err := r.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashDirectory computes a canonical hash over a directory subtree.
// It concatenates lines "<normalized-relpath>:<lowercase-hash>\n" sorted
// by path, then hashes the UTF-8 bytes. The result is stable across
// platforms and listing order, and an empty directory hashes to
// sha256 of the empty input.
func HashDirectory(ctx context.Context, r Reader, dir string) (string, error) {
	files, err := r.ListFiles(ctx, dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return HashBytes(nil), nil
	}
	lines := make([]string, 0, len(files))
	for _, rel := range files {
		h, err := HashFile(ctx, r, pathutil.Join(dir, rel))
		if err != nil {
			return "", err
		}
		lines = append(lines, pathutil.Normalize(rel)+":"+h)
	}
	lines = sortutil.StablePathSort(lines)
	var buf bytes.Buffer
	for _, ln := range lines {
		buf.WriteString(ln)
		buf.WriteByte('\n')
	}
	return HashBytes(buf.Bytes()), nil
}

// IsContentHash reports whether s looks like a sha256 content hash
// (64 lowercase hex chars).
func IsContentHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

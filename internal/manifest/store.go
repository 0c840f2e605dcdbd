package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"overtrack/internal/override"
)

// fileData is the on-disk shape of a manifest: one discriminated record
// per override.
type fileData struct {
	Overrides []override.Record `json:"overrides"`
}

// Load reads and rehydrates a manifest file. Decoding is strict:
// unknown fields and malformed records fail the load instead of being
// silently dropped.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var data fileData
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m, err := FromRecords(data.Overrides)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Save writes the manifest atomically: into a temporary file in the
// same directory, then renamed, so readers never observe a
// partially-written manifest.
func Save(path string, m *Manifest) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fileData{Overrides: m.Records()}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

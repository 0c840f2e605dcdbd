package override

import (
	"errors"
	"fmt"

	"overtrack/internal/pathutil"
	"overtrack/internal/tree"
)

// Wire discriminator values. "copy" covers both the single-file and the
// directory variant; the presence of a directory field disambiguates.
// That shared tag is a wire-format wart older manifests depend on, so it
// is reproduced exactly.
const (
	TypePlatform = "platform"
	TypeCopy     = "copy"
	TypeDerived  = "derived"
	TypePatch    = "patch"
)

var (
	// ErrMalformedRecord marks a record missing required fields or
	// carrying values that cannot reconstruct a variant.
	ErrMalformedRecord = errors.New("malformed override record")
	// ErrAmbiguousRecord marks a record whose field shape matches more
	// than one variant (or none) under the shared "copy" tag.
	ErrAmbiguousRecord = errors.New("ambiguous override record")
)

// Record is the persisted form of one override. Field names are wire
// names and must not change.
type Record struct {
	Type          string `json:"type"`
	File          string `json:"file,omitempty"`
	Directory     string `json:"directory,omitempty"`
	BaseFile      string `json:"baseFile,omitempty"`
	BaseDirectory string `json:"baseDirectory,omitempty"`
	BaseVersion   string `json:"baseVersion,omitempty"`
	BaseHash      string `json:"baseHash,omitempty"`
	Issue         *Issue `json:"issue,omitempty"`
}

func (r Record) issue() Issue {
	if r.Issue == nil {
		return Issue{}
	}
	return *r.Issue
}

// issueRef converts a value Issue back to the record's optional form.
func issueRef(i Issue) *Issue {
	if i.IsZero() {
		return nil
	}
	return &i
}

// FromRecord rehydrates a record into its typed variant. Deserialization
// is total: any shape that does not reconstruct exactly one variant is
// an error, never a silently degraded override.
func FromRecord(rec Record) (Override, error) {
	switch rec.Type {
	case TypePlatform:
		if rec.File == "" {
			return nil, fmt.Errorf("%w: platform override requires file", ErrMalformedRecord)
		}
		if rec.Directory != "" || rec.BaseFile != "" || rec.BaseDirectory != "" {
			return nil, fmt.Errorf("%w: platform override %q must not carry base fields", ErrMalformedRecord, rec.File)
		}
		if rec.BaseVersion != "" || rec.BaseHash != "" || rec.Issue != nil {
			return nil, fmt.Errorf("%w: platform override %q must not carry pin or issue fields", ErrMalformedRecord, rec.File)
		}
		return Platform{File: pathutil.Normalize(rec.File)}, nil

	case TypeCopy:
		hasFile := rec.File != "" || rec.BaseFile != ""
		hasDir := rec.Directory != "" || rec.BaseDirectory != ""
		switch {
		case hasFile && hasDir:
			return nil, fmt.Errorf("%w: copy record mixes file and directory fields", ErrAmbiguousRecord)
		case hasDir:
			if rec.Directory == "" || rec.BaseDirectory == "" {
				return nil, fmt.Errorf("%w: directory copy requires directory and baseDirectory", ErrMalformedRecord)
			}
			if err := checkPin(rec); err != nil {
				return nil, err
			}
			return DirectoryCopy{
				Directory:     pathutil.Normalize(rec.Directory),
				BaseDirectory: pathutil.Normalize(rec.BaseDirectory),
				BaseVersion:   rec.BaseVersion,
				BaseHash:      rec.BaseHash,
				Issue:         rec.issue(),
			}, nil
		case hasFile:
			lnk, err := fileLink(rec)
			if err != nil {
				return nil, err
			}
			return Copy{fileLinked: lnk}, nil
		default:
			return nil, fmt.Errorf("%w: copy record carries neither file nor directory", ErrAmbiguousRecord)
		}

	case TypeDerived:
		lnk, err := fileLink(rec)
		if err != nil {
			return nil, err
		}
		return Derived{fileLinked: lnk}, nil

	case TypePatch:
		lnk, err := fileLink(rec)
		if err != nil {
			return nil, err
		}
		return Patch{fileLinked: lnk}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedRecord, rec.Type)
	}
}

func fileLink(rec Record) (fileLinked, error) {
	if rec.File == "" || rec.BaseFile == "" {
		return fileLinked{}, fmt.Errorf("%w: %s override requires file and baseFile", ErrMalformedRecord, rec.Type)
	}
	if rec.Directory != "" || rec.BaseDirectory != "" {
		return fileLinked{}, fmt.Errorf("%w: %s override %q must not carry directory fields", ErrMalformedRecord, rec.Type, rec.File)
	}
	if err := checkPin(rec); err != nil {
		return fileLinked{}, err
	}
	return fileLinked{
		File:        pathutil.Normalize(rec.File),
		BaseFile:    pathutil.Normalize(rec.BaseFile),
		BaseVersion: rec.BaseVersion,
		BaseHash:    rec.BaseHash,
		Issue:       rec.issue(),
	}, nil
}

func checkPin(rec Record) error {
	if rec.BaseVersion == "" {
		return fmt.Errorf("%w: %s override requires baseVersion", ErrMalformedRecord, rec.Type)
	}
	if !tree.IsContentHash(rec.BaseHash) {
		return fmt.Errorf("%w: %s override carries invalid baseHash %q", ErrMalformedRecord, rec.Type, rec.BaseHash)
	}
	return nil
}

package override

import (
	"encoding/json"
	"fmt"
)

// legacySentinel is the wire value marking pre-existing overrides that
// predate mandatory issue tracking. Preserved verbatim for wire
// compatibility; new copy/patch/directory overrides must carry a real
// ticket number.
const legacySentinel = "legacy/no-ticket"

// Issue references the tracking ticket that motivated an override.
// The zero value means "no issue recorded".
type Issue struct {
	Number int
	Legacy bool
}

// IssueLegacy is the carve-out for entries that predate mandatory
// tracking.
var IssueLegacy = Issue{Legacy: true}

// IssueNumber returns an issue referencing a concrete ticket.
func IssueNumber(n int) Issue { return Issue{Number: n} }

// IsZero reports whether no issue is recorded at all.
func (i Issue) IsZero() bool { return !i.Legacy && i.Number == 0 }

func (i Issue) String() string {
	switch {
	case i.Legacy:
		return legacySentinel
	case i.Number > 0:
		return fmt.Sprintf("#%d", i.Number)
	default:
		return ""
	}
}

// MarshalJSON emits either the ticket number or the legacy sentinel.
// Zero issues are omitted at the record level, never marshalled.
func (i Issue) MarshalJSON() ([]byte, error) {
	if i.Legacy {
		return json.Marshal(legacySentinel)
	}
	return json.Marshal(i.Number)
}

// UnmarshalJSON accepts an integer or the legacy sentinel and rejects
// everything else loudly.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return fmt.Errorf("issue must be a positive ticket number, got %d", n)
		}
		*i = Issue{Number: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != legacySentinel {
			return fmt.Errorf("issue must be a ticket number or %q, got %q", legacySentinel, s)
		}
		*i = IssueLegacy
		return nil
	}
	return fmt.Errorf("issue must be a ticket number or %q, got %s", legacySentinel, string(data))
}

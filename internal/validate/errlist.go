package validate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrList aggregates multiple validation issues into a single error so a
// caller sees everything wrong at once instead of fixing one issue per
// run.
type ErrList struct {
	msgs []string
}

// Add records one issue.
func (e *ErrList) Add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

// Empty reports whether no issues were recorded.
func (e *ErrList) Empty() bool { return e == nil || len(e.msgs) == 0 }

// Err returns nil when no issues were recorded, or one error listing all
// of them.
func (e *ErrList) Err() error {
	if e.Empty() {
		return nil
	}
	if len(e.msgs) == 1 {
		return errors.New(e.msgs[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d issues found:", len(e.msgs))
	for _, m := range e.msgs {
		b.WriteString("\n  - ")
		b.WriteString(m)
	}
	return errors.New(b.String())
}

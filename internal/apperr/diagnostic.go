package apperr

import "strings"

// Diagnostic accumulates path-prefixed validation errors across an entire
// bundle (spec §4.3: "errors are accumulated across the whole bundle to
// produce a single diagnostic (never a partial result)").
type Diagnostic struct {
	issues []Issue
}

// Issue is one offending path plus a human-readable message.
type Issue struct {
	Path    string
	Message string
}

// Add records one issue.
func (d *Diagnostic) Add(path, message string) {
	d.issues = append(d.issues, Issue{Path: path, Message: message})
}

// Addf records one issue with a printf-style message is intentionally not
// provided — callers build the message explicitly so every issue stays
// translatable without format-string surprises.

// Empty reports whether no issues were recorded.
func (d *Diagnostic) Empty() bool { return len(d.issues) == 0 }

// Issues returns the recorded issues in insertion order.
func (d *Diagnostic) Issues() []Issue { return d.issues }

// Err returns nil if empty, or a single *GraphError (CodeValidation) whose
// message is the newline-separated, path-prefixed aggregate and whose
// Details["issues"] carries the structured list.
func (d *Diagnostic) Err() error {
	if d.Empty() {
		return nil
	}
	lines := make([]string, len(d.issues))
	for i, iss := range d.issues {
		lines[i] = iss.Path + ": " + iss.Message
	}
	ge := New(CodeValidation, strings.Join(lines, "\n"))
	ge.WithDetail("issues", d.issues)
	return ge
}

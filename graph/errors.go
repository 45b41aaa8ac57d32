package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph operations.
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrNoGraph      = errors.New("no graph loaded")
)

// MalformedError indicates a graph document that violates basic structural
// typing: unparseable JSON, a missing required field, or a field of the wrong
// type. Malformed input is fatal and never retried.
type MalformedError struct {
	// Detail describes the structural problem.
	Detail string

	// Cause is the underlying decode error, if any.
	Cause error
}

// Error implements error.
func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed graph document: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("malformed graph document: %s", e.Detail)
}

// Unwrap returns the underlying decode error.
func (e *MalformedError) Unwrap() error {
	return e.Cause
}

// Violation is a single schema invariant failure, carrying the exact
// offending node/edge identifier and the invariant it violated.
type Violation struct {
	// Subject is the offending node ID or edge key rendering.
	Subject string `json:"subject"`

	// Invariant names the violated rule (e.g. "ring out of range").
	Invariant string `json:"invariant"`

	// Detail elaborates with the observed value.
	Detail string `json:"detail,omitempty"`
}

// String renders the violation for error output.
func (v Violation) String() string {
	if v.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", v.Subject, v.Invariant, v.Detail)
	}
	return fmt.Sprintf("%s: %s", v.Subject, v.Invariant)
}

// SchemaError indicates a structurally well-formed document that violates
// graph schema invariants: duplicate node ID, out-of-range ring, unknown
// node/edge type, non-positive line, or a dangling edge reference. It
// collects every violation found, not just the first.
type SchemaError struct {
	Violations []Violation
}

// Error implements error.
func (e *SchemaError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("graph schema violation: %s", e.Violations[0])
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("graph schema violations (%d): %s",
		len(e.Violations), strings.Join(parts, "; "))
}

// add records a violation.
func (e *SchemaError) add(subject, invariant, detail string) {
	e.Violations = append(e.Violations, Violation{
		Subject:   subject,
		Invariant: invariant,
		Detail:    detail,
	})
}

// orNil returns the error if any violations were collected, else nil.
func (e *SchemaError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

package denorm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch matches any *SchemaMismatchError via errors.Is.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrEmptyHierarchy matches any *EmptyHierarchyError via errors.Is.
	ErrEmptyHierarchy = errors.New("empty hierarchy")
)

// SchemaMismatchError reports a fact payload whose shape does not match the
// declared hierarchies and measures. It aborts the run.
type SchemaMismatchError struct {
	QueryID string
	// Row is the offending row index, or -1 when the payload has no rows.
	Row  int
	Want int
	Got  int

	// Column is set when a dimension alias or measure name is declared
	// twice; Row is -1 then.
	Column string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("denorm: schema mismatch in query %q: column %q declared more than once", e.QueryID, e.Column)
	}
	if e.Row < 0 {
		return fmt.Sprintf("denorm: schema mismatch in query %q: no data rows, want %d columns", e.QueryID, e.Want)
	}
	return fmt.Sprintf("denorm: schema mismatch in query %q: row %d has %d cells, want %d", e.QueryID, e.Row, e.Got, e.Want)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// EmptyHierarchyError reports a dimension whose tree could not be used. The
// dimension is skipped and the run continues.
type EmptyHierarchyError struct {
	Dimension string
	Reason    string
	Err       error
}

func (e *EmptyHierarchyError) Error() string {
	msg := fmt.Sprintf("denorm: dimension %q skipped: %s", e.Dimension, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmptyHierarchyError) Unwrap() error { return e.Err }

func (e *EmptyHierarchyError) Is(target error) bool { return target == ErrEmptyHierarchy }

// AmbiguousJoinKeyWarning reports a join key shared by several hierarchy
// rows of one dimension. The first row in traversal order was used.
type AmbiguousJoinKeyWarning struct {
	Dimension string
	Key       string
	NodeIDs   []string
	// FactRows is the number of fact rows that hit this key.
	FactRows int
}

func (w *AmbiguousJoinKeyWarning) Error() string {
	return fmt.Sprintf("denorm: dimension %q: key %q matches nodes [%s], using %s for %d fact rows",
		w.Dimension, w.Key, strings.Join(w.NodeIDs, " "), w.NodeIDs[0], w.FactRows)
}

// Package etlerr holds the fatal error taxonomy shared by the pipeline stages.
//
// Data-shape violations that mean the upstream contract changed are fatal and
// are reported with one of the types below. Recoverable conditions (join
// misses, odd tag shapes) are never errors; they surface as counters.
package etlerr

import (
	"errors"
	"fmt"
)

// FormatError reports a malformed scalar value, e.g. a run duration that is
// not of the form H:M:S.
type FormatError struct {
	Stage  string // e.g. "runs"
	Index  int    // position of the offending record in its input, -1 if unknown
	Key    string // record identifier when available
	Field  string
	Value  any
	Reason string
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("format error: %s: field %q value %v: %s", e.Stage, e.Field, e.Value, e.Reason)
	if e.Key != "" {
		msg += fmt.Sprintf(" (record %d, id=%s)", e.Index, e.Key)
	} else if e.Index >= 0 {
		msg += fmt.Sprintf(" (record %d)", e.Index)
	}
	return msg
}

// ShapeError reports a structural violation: a missing array, a non-object
// element, a duplicated primary key.
type ShapeError struct {
	Stage  string
	Path   string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("shape error: %s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("shape error: %s: %s: %s", e.Stage, e.Path, e.Reason)
}

// FetchError reports a failed enrichment chunk request. It aborts the
// enrichment stage; earlier tables are unaffected.
type FetchError struct {
	Chunk  int // 0-based chunk index
	Offset int // index of the first id of the chunk
	Size   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error: chunk %d (ids %d..%d): %v", e.Chunk, e.Offset, e.Offset+e.Size-1, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFatalData reports whether err carries a FormatError or ShapeError.
func IsFatalData(err error) bool {
	var fe *FormatError
	var se *ShapeError
	return errors.As(err, &fe) || errors.As(err, &se)
}

// Package records defines the generic row value that flows between pipeline
// stages.
//
// A Record is a flat or nested map keyed by field name. Two states of
// "nothing" are distinguished:
//
//   - an absent key means the field was omitted upstream;
//   - a present key holding nil is an explicit "no value" marker (JSON null).
//
// Numbers decoded from JSON are json.Number so callers decide how to map them.
package records

import "sort"

// Record is a single row or raw document object.
type Record map[string]any

// Clone returns a shallow copy of r. Nested maps and slices are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasValue reports whether at least one field carries a non-nil value.
func (r Record) HasValue() bool {
	for _, v := range r {
		if v != nil {
			return true
		}
	}
	return false
}

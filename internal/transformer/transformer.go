// Package transformer defines record-slice transforms and their chaining.
package transformer

import "gdqvods/pkg/records"

// Transformer maps a slice of records to a new slice. Implementations may
// reuse the input's backing records but must not reorder surviving rows
// unless documented.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in []records.Record) []records.Record {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}

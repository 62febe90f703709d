// Package table provides the in-memory table value handed from the pipeline
// stages to a storage sink.
//
// A Table owns an ordered column list and a slice of records. Columns are
// grown on Append: keys a row introduces are added after the existing columns
// in sorted order, so the final layout is deterministic for a given input
// order. Missing keys read as nil.
package table

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gdqvods/pkg/records"
)

// Table is a named, column-ordered collection of rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []records.Record

	index map[string]struct{}
}

// New returns an empty table whose first columns are lead.
func New(name string, lead ...string) *Table {
	t := &Table{Name: name, index: map[string]struct{}{}}
	for _, c := range lead {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(c string) {
	if t.index == nil {
		t.index = make(map[string]struct{}, len(t.Columns))
		for _, existing := range t.Columns {
			t.index[existing] = struct{}{}
		}
	}
	if _, ok := t.index[c]; ok {
		return
	}
	t.index[c] = struct{}{}
	t.Columns = append(t.Columns, c)
}

// AddColumns appends columns that are not yet present, in the given order.
func (t *Table) AddColumns(cols ...string) {
	for _, c := range cols {
		t.addColumn(c)
	}
}

// Append adds r as the next row and extends the column list with its unseen
// keys.
func (t *Table) Append(r records.Record) {
	var fresh []string
	for k := range r {
		if t.index == nil {
			t.addColumn(k)
			continue
		}
		if _, ok := t.index[k]; !ok {
			fresh = append(fresh, k)
		}
	}
	sort.Strings(fresh)
	for _, k := range fresh {
		t.addColumn(k)
	}
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Derive returns an empty table with the same name and columns as t.
func (t *Table) Derive() *Table {
	return New(t.Name, t.Columns...)
}

// Values returns the rows as positional slices aligned to Columns. Sequence
// and object values are rendered as JSON text so every cell is a scalar.
func (t *Table) Values() [][]any {
	out := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = Scalar(r[c])
		}
		out[i] = row
	}
	return out
}

// Strings returns the rows as text cells aligned to Columns; nil becomes "".
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = Format(r[c])
		}
		out[i] = row
	}
	return out
}

// Scalar maps v onto a database-friendly scalar. json.Number becomes int64
// when integral, float64 otherwise.
func Scalar(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any, map[string]any, records.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// Format renders a cell as text. nil is the empty string.
func Format(v any) string {
	switch t := Scalar(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Key renders an identifier value as an opaque string key. It returns false
// for nil and for non-scalar values.
func Key(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case []any, map[string]any, records.Record:
		return "", false
	case string:
		return t, strings.TrimSpace(t) != ""
	}
	s := Format(v)
	return s, strings.TrimSpace(s) != ""
}

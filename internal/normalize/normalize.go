// Package normalize derives the primary run table from the raw run records.
//
// Each raw record is flattened to dotted paths, noise fields are dropped, and
// the clock-style duration ("H:M:S") is converted to whole seconds. A
// malformed duration is fatal: it means the data source changed its contract.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gdqvods/internal/etlerr"
	"gdqvods/internal/flatten"
	"gdqvods/internal/table"
	"gdqvods/pkg/records"
)

const stage = "runs"

// RunOptions configures Runs.
type RunOptions struct {
	// Table is the output table name.
	Table string
	// IDField names the primary key path (default "id").
	IDField string
	// DropFields are exact flattened paths removed from every row, typically
	// the relation fields exploded into link tables.
	DropFields []string
	// DropSuffixes removes any path whose last segment matches, e.g.
	// "__typename".
	DropSuffixes []string
	// DurationField is the clock-style duration path (default "duration").
	DurationField string
	// DurationColumn receives the duration in seconds (default
	// "duration_seconds"). The source field is removed when the names differ.
	DurationColumn string
}

func (o RunOptions) withDefaults() RunOptions {
	if o.IDField == "" {
		o.IDField = "id"
	}
	if o.DurationField == "" {
		o.DurationField = "duration"
	}
	if o.DurationColumn == "" {
		o.DurationColumn = "duration_seconds"
	}
	if o.Table == "" {
		o.Table = "runs"
	}
	return o
}

// Runs builds the run table. Row order follows recs.
func Runs(recs []records.Record, opts RunOptions) (*table.Table, error) {
	opts = opts.withDefaults()
	out := table.New(opts.Table, opts.IDField)
	seen := make(map[string]int, len(recs))

	for i, raw := range recs {
		row, ferr := flatten.Flatten(raw)
		if ferr != nil {
			return nil, &etlerr.ShapeError{
				Stage:  stage,
				Path:   fmt.Sprintf("[%d]", i),
				Reason: ferr.Error(),
			}
		}
		flatten.Drop(row, opts.DropFields, opts.DropSuffixes)

		id, ok := table.Key(row[opts.IDField])
		if !ok {
			return nil, &etlerr.ShapeError{
				Stage:  stage,
				Path:   fmt.Sprintf("[%d].%s", i, opts.IDField),
				Reason: "run has no identifier",
			}
		}
		if prev, dup := seen[id]; dup {
			return nil, &etlerr.ShapeError{
				Stage:  stage,
				Path:   fmt.Sprintf("[%d].%s", i, opts.IDField),
				Reason: fmt.Sprintf("duplicate run id %q (first seen at %d)", id, prev),
			}
		}
		seen[id] = i
		row[opts.IDField] = id

		secs, err := durationOf(row, opts.DurationField)
		if err != nil {
			err.Index, err.Key = i, id
			return nil, err
		}
		if opts.DurationColumn != opts.DurationField {
			delete(row, opts.DurationField)
		}
		row[opts.DurationColumn] = secs

		out.Append(row)
	}
	return out, nil
}

func durationOf(row records.Record, field string) (int64, *etlerr.FormatError) {
	v, ok := row[field]
	s, isStr := v.(string)
	if !ok || !isStr {
		return 0, &etlerr.FormatError{
			Stage:  stage,
			Field:  field,
			Value:  v,
			Reason: "duration must be an H:M:S string",
		}
	}
	secs, err := ParseClock(s)
	if err != nil {
		fe := err.(*etlerr.FormatError)
		fe.Field = field
		return 0, fe
	}
	return secs, nil
}

// ParseClock converts "H:M:S" into seconds. Hours are unbounded; every token
// must be a non-empty run of ASCII digits.
func ParseClock(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, &etlerr.FormatError{
			Stage:  stage,
			Index:  -1,
			Value:  s,
			Reason: fmt.Sprintf("expected 3 ':'-separated tokens, got %d", len(parts)),
		}
	}
	var n [3]int64
	for i, p := range parts {
		v, ok := digits(p)
		if !ok {
			return 0, &etlerr.FormatError{
				Stage:  stage,
				Index:  -1,
				Value:  s,
				Reason: fmt.Sprintf("token %q is not a non-negative integer", p),
			}
		}
		n[i] = v
	}
	secs, ok := clockSeconds(n[0], n[1], n[2])
	if !ok {
		return 0, &etlerr.FormatError{
			Stage:  stage,
			Index:  -1,
			Value:  s,
			Reason: "duration overflows int64 seconds",
		}
	}
	return secs, nil
}

// clockSeconds returns h*3600 + m*60 + sec, or false on int64 overflow.
func clockSeconds(h, m, sec int64) (int64, bool) {
	if m > (math.MaxInt64-sec)/60 {
		return 0, false
	}
	rest := m*60 + sec
	if h > (math.MaxInt64-rest)/3600 {
		return 0, false
	}
	return h*3600 + rest, true
}

// digits parses an unsigned decimal without sign or whitespace that fits in
// an int64.
func digits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}

package builtin

import (
	"encoding/json"
	"strconv"
	"strings"

	"gdqvods/pkg/records"
)

// Coerce converts decimal counter values in Fields to int64 in place. Only
// string and json.Number inputs are converted; nil and missing fields are
// left alone.
type Coerce struct {
	Fields []string

	// NullOnError replaces unparseable values with nil instead of keeping
	// the original text.
	NullOnError bool
}

func (c Coerce) Apply(in []records.Record) []records.Record {
	if len(c.Fields) == 0 {
		return in
	}
	for _, r := range in {
		for _, field := range c.Fields {
			var s string
			switch t := r[field].(type) {
			case string:
				s = strings.TrimSpace(t)
			case json.Number:
				s = t.String()
			default:
				continue
			}
			i, err := strconv.ParseInt(s, 10, 64)
			switch {
			case err == nil:
				r[field] = i
			case c.NullOnError:
				r[field] = nil
			}
		}
	}
	return in
}

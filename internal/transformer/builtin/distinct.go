package builtin

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"gdqvods/pkg/records"
)

// Distinct removes exact duplicate records, keeping the first occurrence and
// the input order of the survivors.
//
// Two records are duplicates when every field matches. A missing field and a
// nil field compare equal. Records are fingerprinted with a 128-bit xxh3 hash
// of a canonical encoding (sorted keys, type-tagged values), so json.Number
// "1" and string "1" stay distinct.
type Distinct struct{}

// Apply returns a new slice without duplicates. Running it twice yields the
// same result as running it once.
func (Distinct) Apply(in []records.Record) []records.Record {
	if len(in) < 2 {
		return in
	}
	seen := make(map[xxh3.Uint128]struct{}, len(in))
	out := make([]records.Record, 0, len(in))
	for _, r := range in {
		h := fingerprint(r)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, r)
	}
	return out
}

// fingerprint hashes the canonical encoding of r.
func fingerprint(r records.Record) xxh3.Uint128 {
	var b strings.Builder
	writeCanonical(&b, r)
	return xxh3.HashString128(b.String())
}

func writeCanonical(b *strings.Builder, r records.Record) {
	keys := make([]string, 0, len(r))
	for k, v := range r {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
		writeValue(b, r[k])
		b.WriteByte('\x1e')
	}
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case string:
		b.WriteByte('s')
		b.WriteString(strconv.Itoa(len(t)))
		b.WriteByte(':')
		b.WriteString(t)
	case json.Number:
		b.WriteByte('n')
		b.WriteString(t.String())
	case int:
		b.WriteByte('i')
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteByte('f')
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case bool:
		b.WriteByte('b')
		b.WriteString(strconv.FormatBool(t))
	default:
		// Sequences and objects: encoding/json sorts map keys.
		raw, err := json.Marshal(t)
		if err != nil {
			raw = []byte(fmt.Sprint(t))
		}
		b.WriteByte('j')
		b.WriteString(strconv.Itoa(len(raw)))
		b.WriteByte(':')
		b.Write(raw)
	}
}

// Package flatten converts nested JSON-like objects into flat records keyed by
// dotted field paths.
//
// The accepted value kinds are closed:
//
//   - scalars (string, json.Number, float64, int, int64, bool) are copied;
//   - nil is kept under its path as the explicit "no value" marker;
//   - objects (map[string]any or records.Record) are descended into;
//   - sequences ([]any) are kept intact as leaves so later stages can explode
//     them.
//
// An empty nested object contributes no keys.
package flatten

import (
	"fmt"

	"gdqvods/pkg/records"
)

// Separator joins path segments.
const Separator = "."

// CollisionError reports two source keys that land on the same path, e.g. a
// literal "a.b" key next to {"a": {"b": ...}}.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("path %q is produced by more than one key", e.Path)
}

// Flatten returns a flat copy of in. It fails with a *CollisionError when two
// keys flatten to the same path.
func Flatten(in map[string]any) (records.Record, error) {
	out := make(records.Record, len(in))
	if err := walk(out, "", in); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(out records.Record, prefix string, m map[string]any) error {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + Separator + k
		}
		var err error
		switch t := v.(type) {
		case map[string]any:
			err = walk(out, path, t)
		case records.Record:
			err = walk(out, path, t)
		default:
			if _, dup := out[path]; dup {
				return &CollisionError{Path: path}
			}
			out[path] = v
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Object reports whether v is an object value Flatten can descend into and
// returns it as a map.
func Object(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case records.Record:
		return t, true
	}
	return nil, false
}

// Drop removes exact paths and any path whose last segment matches one of
// suffixes. It mutates and returns r.
func Drop(r records.Record, paths, suffixes []string) records.Record {
	for _, p := range paths {
		delete(r, p)
	}
	if len(suffixes) == 0 {
		return r
	}
	for k := range r {
		last := lastSegment(k)
		for _, s := range suffixes {
			if last == s {
				delete(r, k)
				break
			}
		}
	}
	return r
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == Separator[0] {
			return path[i+1:]
		}
	}
	return path
}

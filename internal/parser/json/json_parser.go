// Package json extracts arrays of JSON objects from a document as
// records.Record values.
//
// The array is located with a gjson path (e.g. "data.runs" or "items"), then
// decoded with encoding/json in UseNumber mode so integers survive unchanged
// until a typed stage decides what to do with them.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"gdqvods/internal/etlerr"
	"gdqvods/pkg/records"
)

// Records reads the whole document from r and returns the objects of the
// array at path. stage labels ShapeErrors.
func Records(r io.Reader, path, stage string) ([]records.Record, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("json parser: read: %w", err)
	}
	return RecordsBytes(b, path, stage)
}

// RecordsBytes is Records over an in-memory document.
//
// A missing path or a value that is not an array is a *etlerr.ShapeError, as
// is any array element that is not an object.
func RecordsBytes(b []byte, path, stage string) ([]records.Record, error) {
	if !gjson.ValidBytes(b) {
		return nil, &etlerr.ShapeError{Stage: stage, Reason: "document is not valid JSON"}
	}
	res := gjson.GetBytes(b, path)
	if !res.Exists() {
		return nil, &etlerr.ShapeError{Stage: stage, Path: path, Reason: "path not found"}
	}
	if !res.IsArray() {
		return nil, &etlerr.ShapeError{Stage: stage, Path: path, Reason: fmt.Sprintf("expected an array, got %s", res.Type)}
	}

	d := json.NewDecoder(bytes.NewReader([]byte(res.Raw)))
	d.UseNumber()
	var elems []any
	if err := d.Decode(&elems); err != nil {
		return nil, fmt.Errorf("json parser: decode %s: %w", path, err)
	}

	out := make([]records.Record, 0, len(elems))
	for i, elem := range elems {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, &etlerr.ShapeError{
				Stage:  stage,
				Path:   fmt.Sprintf("%s[%d]", path, i),
				Reason: fmt.Sprintf("expected an object, got %T", elem),
			}
		}
		out = append(out, records.Record(obj))
	}
	return out, nil
}

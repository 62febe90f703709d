// Package link explodes one-to-many relations of the raw run records into
// link tables keyed by the parent's identifier.
//
// A relation is either one-level (one row per child object) or two-level (one
// row per child and per identifier held in a list-valued field of the child).
// Children whose attributes are all null are discarded: upstream represents an
// absent optional relation with an empty placeholder object.
package link

import (
	"fmt"

	"gdqvods/internal/etlerr"
	"gdqvods/internal/flatten"
	"gdqvods/internal/table"
	"gdqvods/pkg/records"
)

// Relation declares how one relation field is exploded.
type Relation struct {
	// Name is the output table name.
	Name string
	// Field is the relation field on the parent record, e.g. "runners".
	Field string
	// ParentKey is the parent's identifier field (default "id").
	ParentKey string
	// ForeignKey is the column carrying the parent identifier (default
	// "run_id").
	ForeignKey string
	// DropFields and DropSuffixes remove noise from each flattened child.
	DropFields   []string
	DropSuffixes []string
	// Explode names a list-valued child field to explode a second time.
	// Empty means a one-level relation.
	Explode string
	// ExplodeAs is the singular output column for exploded values (default:
	// Explode).
	ExplodeAs string
}

func (r Relation) withDefaults() Relation {
	if r.ParentKey == "" {
		r.ParentKey = "id"
	}
	if r.ForeignKey == "" {
		r.ForeignKey = "run_id"
	}
	if r.Name == "" {
		r.Name = r.Field
	}
	if r.Explode != "" && r.ExplodeAs == "" {
		r.ExplodeAs = r.Explode
	}
	return r
}

// TwoLevel reports whether the relation explodes a second time.
func (r Relation) TwoLevel() bool { return r.Explode != "" }

// Build returns the link table for rel over the raw parent records.
func Build(parents []records.Record, rel Relation) (*table.Table, error) {
	rel = rel.withDefaults()
	if rel.Field == "" {
		return nil, fmt.Errorf("link: relation %q has no field", rel.Name)
	}
	stage := "link:" + rel.Name
	out := table.New(rel.Name, rel.ForeignKey)

	for i, p := range parents {
		parentID, ok := table.Key(p[rel.ParentKey])
		if !ok {
			return nil, &etlerr.ShapeError{
				Stage:  stage,
				Path:   fmt.Sprintf("[%d].%s", i, rel.ParentKey),
				Reason: "parent has no identifier",
			}
		}

		children, err := childrenOf(p, rel.Field)
		if err != nil {
			return nil, &etlerr.ShapeError{
				Stage:  stage,
				Path:   fmt.Sprintf("[%d].%s", i, rel.Field),
				Reason: err.Error(),
			}
		}

		for j, c := range children {
			row, keep, err := flattenChild(c, rel)
			if err != nil {
				return nil, &etlerr.ShapeError{
					Stage:  stage,
					Path:   fmt.Sprintf("[%d].%s[%d]", i, rel.Field, j),
					Reason: err.Error(),
				}
			}
			if !keep {
				continue
			}
			if !rel.TwoLevel() {
				row[rel.ForeignKey] = parentID
				out.Append(row)
				continue
			}
			for _, v := range explodeValues(row, rel.Explode) {
				r := row.Clone()
				delete(r, rel.Explode)
				r[rel.ExplodeAs] = v
				r[rel.ForeignKey] = parentID
				out.Append(r)
			}
		}
	}
	return out, nil
}

// childrenOf reads the relation field as a sequence. Missing and null fields
// are empty.
func childrenOf(p records.Record, field string) ([]any, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("relation field is %T, want a sequence", v)
	}
	return seq, nil
}

// flattenChild returns the flattened child and whether it carries any value.
func flattenChild(c any, rel Relation) (records.Record, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	obj, ok := flatten.Object(c)
	if !ok {
		return nil, false, fmt.Errorf("child is %T, want an object", c)
	}
	flat, err := flatten.Flatten(obj)
	if err != nil {
		return nil, false, err
	}
	row := flatten.Drop(flat, rel.DropFields, rel.DropSuffixes)
	if !row.HasValue() {
		return nil, false, nil
	}
	return row, true, nil
}

// explodeValues lists the identifiers held by field. A scalar is one value;
// a missing, null, or empty list yields a single nil so the child reference is
// kept with no identifier.
func explodeValues(row records.Record, field string) []any {
	switch t := row[field].(type) {
	case nil:
		return []any{nil}
	case []any:
		if len(t) == 0 {
			return []any{nil}
		}
		return t
	default:
		return []any{t}
	}
}

package transformer

import (
	"reflect"
	"testing"

	"gdqvods/pkg/records"
)

type appendTrail string

func (a appendTrail) Apply(in []records.Record) []records.Record {
	out := make([]records.Record, 0, len(in))
	for _, r := range in {
		c := r.Clone()
		c["trail"] = c["trail"].(string) + string(a)
		out = append(out, c)
	}
	return out
}

func TestChain_AppliesInOrder(t *testing.T) {
	t.Parallel()

	in := []records.Record{{"trail": ""}}
	got := Chain{appendTrail("a"), appendTrail("b"), appendTrail("c")}.Apply(in)
	want := []records.Record{{"trail": "abc"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Chain.Apply = %#v; want %#v", got, want)
	}
	if in[0]["trail"] != "" {
		t.Fatalf("input mutated: %#v", in)
	}
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()

	in := []records.Record{{"a": 1}}
	if got := (Chain{}).Apply(in); !reflect.DeepEqual(got, in) {
		t.Fatalf("empty chain changed input: %#v", got)
	}
}

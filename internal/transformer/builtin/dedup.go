// Package builtin contains the record transformers shared by the link and
// enrichment stages.
//
// Distinct (distinct.go) collapses exact duplicate rows. Coerce (coerce.go)
// turns counter text into int64. UniqueStrings removes repeated lookup ids.
package builtin

// UniqueStrings returns vals without duplicates, keeping first occurrences.
func UniqueStrings(vals []string) []string {
	if len(vals) == 0 {
		return vals
	}
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Package sqlident folds arbitrary column and table names into portable SQL
// identifiers: ASCII letters, digits and underscores, not starting with a
// digit. Accented letters lose their marks ("Pokémon" becomes "Pokemon").
package sqlident

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLen bounds identifier length (Postgres truncates at 63 bytes).
const MaxLen = 63

// Fold returns the identifier form of name.
func Fold(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}

	var b strings.Builder
	underscore := false
	for _, r := range s {
		ok := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
		if !ok {
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			underscore = true
			continue
		}
		b.WriteRune(r)
		underscore = false
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "col"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	if len(out) > MaxLen {
		out = out[:MaxLen]
	}
	return out
}

// FoldAll folds names and disambiguates collisions with numeric suffixes,
// keeping the first occurrence unchanged. Comparison is case-insensitive.
func FoldAll(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		base := Fold(n)
		cand := base
		for k := 2; ; k++ {
			if _, dup := seen[strings.ToLower(cand)]; !dup {
				break
			}
			suffix := "_" + strconv.Itoa(k)
			if len(base)+len(suffix) > MaxLen {
				cand = base[:MaxLen-len(suffix)] + suffix
			} else {
				cand = base + suffix
			}
		}
		seen[strings.ToLower(cand)] = struct{}{}
		out[i] = cand
	}
	return out
}

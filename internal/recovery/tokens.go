// internal/recovery/tokens.go
package recovery

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/xkilldash9x/locus/internal/scanner"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "in": true, "into": true,
	"for": true, "with": true, "and": true, "or": true, "on": true, "your": true, "my": true,
	"enter": true, "please": true, "field": true, "input": true,
}

var folder = cases.Fold()

// Fold lower-cases s with full Unicode case folding and strips diacritics, so "Prénom" and
// "PRENOM" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return folder.String(strings.Join(strings.Fields(out), " "))
}

// Tokenize splits s into folded word tokens, breaking on punctuation and camelCase boundaries
// and dropping stopwords and single characters.
func Tokenize(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && i > 0 && unicode.IsLower(rs[i-1]) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()

	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		w = Fold(w)
		if len([]rune(w)) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// queryTokens collects the tokens describing what the caller is looking for.
func queryTokens(rc Context) []string {
	parts := []string{rc.Target}
	for _, k := range []string{HintLabel, HintText, HintName, HintID, HintPlaceholder, HintAriaLabel, HintTestID, HintAutocomplete} {
		if v := rc.Hint(k); v != "" {
			parts = append(parts, v)
		}
	}
	return Tokenize(strings.Join(parts, " "))
}

func fieldTokens(f scanner.FieldDescriptor) []string {
	return Tokenize(strings.Join([]string{
		f.ID, f.Name, f.Label, f.Placeholder, f.AccessibleName, f.TestID, f.Autocomplete, f.Text,
	}, " "))
}

// score sums the weights of query tokens that overlap a field token by substring. Tokens of at
// least longLen runes weigh 2.
func score(query, field []string, longLen int) int {
	total := 0
	for _, q := range query {
		for _, f := range field {
			if strings.Contains(f, q) || (len(f) >= 3 && strings.Contains(q, f)) {
				if len([]rune(q)) >= longLen {
					total += 2
				} else {
					total++
				}
				break
			}
		}
	}
	return total
}

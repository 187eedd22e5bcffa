// internal/command/normalize.go
package command

import (
	"regexp"
	"strings"
	"unicode"
)

// typos maps known misspellings to their correction. Keys are lower case.
var typos = map[string]string{
	"fil": "fill", "fll": "fill", "flil": "fill",
	"clik": "click", "clcik": "click", "clck": "click", "cilck": "click", "clikc": "click",
	"scrol": "scroll", "scoll": "scroll", "srcoll": "scroll", "scrll": "scroll",
	"emial": "email", "emal": "email", "e-mail": "email", "eamil": "email",
	"pasword": "password", "passwrod": "password", "passowrd": "password", "pwd": "password",
	"adress": "address", "addres": "address", "adddress": "address",
	"wiat": "wait", "wati": "wait",
	"typ": "type", "tpye": "type", "tyep": "type",
	"extarct": "extract", "exract": "extract", "extrat": "extract",
	"submti": "submit", "sumbit": "submit",
	"buton": "button", "butto": "button",
	"nmae": "name", "naem": "name",
	"phnoe": "phone", "phoen": "phone",
	"wtih": "with", "wiht": "with", "whit": "with",
	"itno": "into", "inot": "into", "intp": "into",
	"frmo": "from", "fomr": "from",
}

var spacedInto = regexp.MustCompile(`(?i)\b(in|on) to\b`)

// Normalize returns the canonical lower-case form of a command: whitespace collapsed, known
// misspellings corrected, quoted text kept verbatim.
func Normalize(s string) string {
	return clean(s, true)
}

// clean corrects s word by word. Text inside quotes is never touched; with lower set, everything
// else is lower-cased.
func clean(s string, lower bool) string {
	var out []string
	for _, w := range words(spacedInto.ReplaceAllString(s, "${1}to")) {
		if isQuoted(w) {
			out = append(out, w)
			continue
		}
		if fix, ok := typos[strings.ToLower(w)]; ok {
			w = fix
		} else if lower {
			w = strings.ToLower(w)
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

var (
	verbs      = map[string]bool{"fill": true, "click": true, "scroll": true, "wait": true, "type": true, "extract": true, "submit": true}
	connectors = map[string]bool{"with": true, "into": true, "from": true}
	courtesy   = map[string]bool{"please": true, "now": true, "then": true}
)

// correctVerb fixes a misspelled verb at the head of a clause and leaves every other word alone,
// so values such as "Fil" or "pwd" reach the page as typed.
func correctVerb(clause string) string {
	ws := words(clause)
	for i, w := range ws {
		lw := strings.ToLower(w)
		if courtesy[lw] {
			continue
		}
		if fix, ok := typos[lw]; ok && verbs[fix] {
			ws[i] = fix
		}
		break
	}
	return strings.Join(ws, " ")
}

// correctConnectors fixes misspelled joining words like "wtih".
func correctConnectors(clause string) string {
	ws := words(clause)
	for i, w := range ws {
		if isQuoted(w) {
			continue
		}
		if fix, ok := typos[strings.ToLower(w)]; ok && connectors[fix] {
			ws[i] = fix
		}
	}
	return strings.Join(ws, " ")
}

// collapse joins "in to" and squeezes whitespace outside quotes without correcting anything.
func collapse(s string) string {
	return strings.Join(words(spacedInto.ReplaceAllString(s, "${1}to")), " ")
}

// words splits on whitespace but keeps "quoted strings" and 'quoted strings' as single words.
func words(s string) []string {
	var out []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case (r == '"' || r == '\'') && cur.Len() == 0:
			quote = r
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func isQuoted(w string) bool {
	return len(w) >= 2 && (w[0] == '"' || w[0] == '\'') && w[len(w)-1] == w[0]
}

// unquote strips one pair of matching quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

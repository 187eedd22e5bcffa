// internal/locator/css.go
package locator

import (
	"fmt"
	"strings"
)

// CSSString quotes s as a CSS string literal.
func CSSString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\a `)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\%x `, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// CSSIdent escapes s for use as a CSS identifier (for example after '#').
func CSSIdent(s string) string {
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-' && i > 0, r >= 0x80:
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 || (i == 1 && s[0] == '-') {
				fmt.Fprintf(&sb, `\%x `, r)
			} else {
				sb.WriteRune(r)
			}
		case r == '-':
			if len(s) == 1 {
				sb.WriteString(`\-`)
			} else {
				sb.WriteRune(r)
			}
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// IDSelector builds a CSS selector matching an element id.
func IDSelector(id string) string {
	return "#" + CSSIdent(id)
}

// AttrSelector builds an exact attribute match.
func AttrSelector(attr, value string) string {
	return fmt.Sprintf("[%s=%s]", attr, CSSString(value))
}

// AttrContains builds a case-insensitive substring attribute match.
func AttrContains(attr, value string) string {
	return fmt.Sprintf("[%s*=%s i]", attr, CSSString(value))
}

// internal/classifier/sensitive.go
package classifier

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/locus/internal/scanner"
)

var sensitivePattern = regexp.MustCompile(
	`pass(word|code)?\b|passwd|pwd|\bssn\b|social.?security|card|\bcc\b|cvv|cvc|\bcsc\b|token|secret|\bpin\b|\botp\b|one.?time|\biban\b|account.?(number|no\b)|routing|security.?code`)

var sensitiveTypes = map[SemanticType]bool{
	Password: true, SSN: true, CreditCard: true, CVV: true, CardExpiry: true, OTP: true,
}

// IsSensitive reports whether a field may hold a secret. Its value must never be captured,
// logged or returned.
func IsSensitive(f scanner.FieldDescriptor) bool {
	if f.InputType == "password" {
		return true
	}
	ac := strings.ToLower(f.Autocomplete)
	if strings.HasPrefix(ac, "cc-") || strings.Contains(ac, "password") || ac == "one-time-code" {
		return true
	}
	text := strings.ToLower(strings.Join([]string{f.Name, f.ID, f.Autocomplete, f.Label}, " "))
	return sensitivePattern.MatchString(text) || sensitivePattern.MatchString(separators.Replace(text))
}

// IsSensitiveType reports whether a semantic type always denotes a secret.
func IsSensitiveType(t SemanticType) bool { return sensitiveTypes[t] }

// Reveal returns value unless the field is sensitive, in which case it returns "".
func Reveal(f scanner.FieldDescriptor, value string) string {
	if IsSensitive(f) || IsSensitiveType(New().Classify(f)) {
		return ""
	}
	return value
}

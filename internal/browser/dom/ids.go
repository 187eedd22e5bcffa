// internal/browser/dom/ids.go
package dom

import (
	"regexp"
	"strings"
)

var generatedIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^:r[0-9a-z]+:$`),                   // React useId
	regexp.MustCompile(`^(ember|ext-gen|yui_|gwt-uid-)\d+`), // framework counters
	regexp.MustCompile(`^(mui|headlessui|radix|react-select)-`),
	regexp.MustCompile(`\d{4,}`),
	regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-`),
	regexp.MustCompile(`^[0-9a-f]{10,}$`),
}

// LooksGenerated reports whether an id appears to be produced by a framework at render time
// and is therefore unlikely to survive a re-render.
func LooksGenerated(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return true
	}
	for _, re := range generatedIDPatterns {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}

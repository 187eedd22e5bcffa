// internal/formstate/fingerprint.go
package formstate

import (
	"strings"

	"github.com/xkilldash9x/locus/internal/scanner"
)

// Fingerprint identifies a field independently of its locators: the non-empty values of tag,
// type, name, id, label, placeholder and autocomplete, each as "key=value", joined by "|".
func Fingerprint(f scanner.FieldDescriptor) string {
	var parts []string
	for _, kv := range [][2]string{
		{"tag", f.Tag},
		{"type", f.InputType},
		{"name", f.Name},
		{"id", f.ID},
		{"label", f.Label},
		{"placeholder", f.Placeholder},
		{"autocomplete", f.Autocomplete},
	} {
		v := strings.TrimSpace(strings.ReplaceAll(kv[1], "|", " "))
		if v == "" {
			continue
		}
		parts = append(parts, kv[0]+"="+strings.ToLower(v))
	}
	return strings.Join(parts, "|")
}

// Segments splits a fingerprint.
func Segments(fp string) []string {
	if fp == "" {
		return nil
	}
	return strings.Split(fp, "|")
}

// overlap counts the segments of want also present in have.
func overlap(want, have []string) int {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	n := 0
	for _, s := range want {
		if set[s] {
			n++
		}
	}
	return n
}

// hints turns fingerprint segments into recovery hints.
func hints(fp string) map[string]string {
	out := make(map[string]string)
	for _, seg := range Segments(fp) {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "tag" {
			continue
		}
		out[k] = v
	}
	return out
}

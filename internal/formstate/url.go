// internal/formstate/url.go
package formstate

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "mc_eid": true,
	"_ga": true, "ref": true, "yclid": true,
}

// NormalizeURL strips tracking parameters and the fragment so that snapshots survive campaign
// links. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment, u.RawFragment = "", ""
	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

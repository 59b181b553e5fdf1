// Package normalize reduces any spelling of a content URL to one canonical
// string so that two URLs differing only in host case, tracking parameters,
// query order, or an index.html suffix compare equal.
package normalize

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are dropped regardless of position; utm_* is matched by prefix.
var trackingParams = map[string]struct{}{
	"gclid":  {},
	"fbclid": {},
	"mc_cid": {},
	"mc_eid": {},
}

// URL returns the canonical string form of raw: host lowercased (path case
// preserved), fragment removed, "/index.html" suffix collapsed to "/", and
// tracking query parameters stripped with the remainder stably sorted by key.
//
// URL is idempotent: URL(URL(u)) == URL(u) for every u it successfully parses.
func URL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Path = collapseIndexHTML(parsed.Path)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.RawQuery = stripAndSortQuery(parsed.RawQuery)

	return parsed.String(), nil
}

func collapseIndexHTML(path string) string {
	const suffix = "/index.html"
	if strings.HasSuffix(path, suffix) {
		return strings.TrimSuffix(path, suffix) + "/"
	}
	return path
}

// stripAndSortQuery drops tracking parameters and re-encodes the remainder
// sorted by key, preserving blank values and ties in order of appearance.
func stripAndSortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	type pair struct {
		key, value string
	}

	var kept []pair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, value := part, ""
		if i := strings.IndexByte(part, '='); i >= 0 {
			key, value = part[:i], part[i+1:]
		}
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		if isTrackingParam(decodedKey) {
			continue
		}
		kept = append(kept, pair{key: key, value: value})
	}

	if len(kept) == 0 {
		return ""
	}

	// Stable sort: ties (equal keys) keep their original relative order.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].key < kept[j].key
	})

	var b strings.Builder
	for i, p := range kept {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, blocked := trackingParams[key]
	return blocked
}

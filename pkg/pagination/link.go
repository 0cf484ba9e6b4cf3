package pagination

import (
	"net/http"
	"strings"
)

// NextURL extracts the rel="next" URL from the Link header of h.
// Repeated Link header values are joined before scanning, because one
// logical header can legally be split across wire values. Only an entry
// whose relation is exactly "next" advances pagination; any other
// relation (prev, first, last) is ignored.
func NextURL(h http.Header) (string, bool) {
	values := h.Values("Link")
	if len(values) == 0 {
		return "", false
	}

	for _, entry := range splitEntries(strings.Join(values, ", ")) {
		target, params, ok := parseEntry(entry)
		if !ok {
			continue
		}
		if relOf(params) == "next" {
			return target, true
		}
	}
	return "", false
}

// splitEntries splits a joined Link header on commas that are not inside
// a <...> URL delimiter.
func splitEntries(s string) []string {
	var entries []string
	var inURL bool
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			inURL = true
		case '>':
			inURL = false
		case ',':
			if !inURL {
				entries = append(entries, s[start:i])
				start = i + 1
			}
		}
	}
	entries = append(entries, s[start:])
	return entries
}

// parseEntry parses one `<url>; param; param` entry.
func parseEntry(entry string) (target string, params []string, ok bool) {
	entry = strings.TrimSpace(entry)
	if !strings.HasPrefix(entry, "<") {
		return "", nil, false
	}
	end := strings.IndexByte(entry, '>')
	if end < 0 {
		return "", nil, false
	}
	target = entry[1:end]
	for _, p := range strings.Split(entry[end+1:], ";") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return target, params, true
}

// relOf returns the value of the rel parameter, unquoted.
func relOf(params []string) string {
	for _, p := range params {
		k, v, found := strings.Cut(p, "=")
		if !found || strings.TrimSpace(k) != "rel" {
			continue
		}
		return strings.Trim(strings.TrimSpace(v), `"`)
	}
	return ""
}

// Package fuzz places the marker token into URL templates and substitutes
// payloads for it.
package fuzz

import (
	"net/url"
	"strings"
)

// DefaultMarker is the keyword replaced by each payload.
const DefaultMarker = "FUZZ"

// HasMarker reports whether rawURL already carries marker verbatim.
func HasMarker(rawURL, marker string) bool {
	return marker != "" && strings.Contains(rawURL, marker)
}

// Inject returns the URL used for fuzzing. A URL that already contains the
// marker is returned unchanged. Otherwise every query parameter value is
// replaced by the marker, keeping parameter names and their order. Bare names
// (?flag) and blank values are fuzzed too. Only query values are fuzzed; path
// segments are left alone.
func Inject(rawURL, marker string) string {
	if HasMarker(rawURL, marker) {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	names := queryNames(u.RawQuery)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		// The marker goes in unescaped so Fill can find it again.
		parts = append(parts, url.QueryEscape(name)+"="+marker)
	}
	u.RawQuery = strings.Join(parts, "&")
	u.ForceQuery = false
	return u.String()
}

// Fill substitutes payload for every occurrence of marker in template.
func Fill(template, marker, payload string) string {
	if marker == "" {
		return template
	}
	return strings.ReplaceAll(template, marker, payload)
}

// queryNames returns the parameter names of rawQuery in their original
// order, duplicates included.
func queryNames(rawQuery string) []string {
	var names []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

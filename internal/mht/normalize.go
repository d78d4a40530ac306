package mht

import (
	"net/url"
	"strings"
)

// normalizeKey maps a raw resource identifier (an src value, a Content-ID or
// a Content-Location) to its canonical lookup form. The same function is used
// when building the resource map and when resolving references, which is what
// makes cross-matching between the three spellings reliable.
func normalizeKey(raw string) string {
	val := raw
	if decoded, err := url.PathUnescape(val); err == nil {
		val = decoded
	}
	val = strings.TrimSpace(val)
	val = strings.ReplaceAll(val, "\\", "/")
	if len(val) >= 4 && strings.EqualFold(val[:4], "cid:") {
		val = "cid:" + val[4:]
	}
	return val
}

// basename returns the final path segment of a location, or "" when the
// location ends in a separator. Unlike path.Base it never returns ".".
func basename(location string) string {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

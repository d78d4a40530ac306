package mht

import (
	"encoding/base64"
	"strings"
)

// candidate is a decoded non-HTML part that can be addressed from the
// document, via a Content-ID, a Content-Location, or both.
type candidate struct {
	contentType     string
	payload         []byte
	contentID       string
	contentLocation string
}

// resourceMap maps every plausible spelling of a resource reference to the
// data URI holding the resource's payload.
type resourceMap map[string]string

// Producers disagree on whether references use a cid: URL, a bare identifier
// or a location path, so each identifier is deliberately registered under
// every spelling a consuming document might use. The variants are kept as
// explicit rule tables so the set is testable on its own.
var idKeyRules = []func(string) string{
	func(s string) string { return "cid:" + s },
	func(s string) string { return "CID:" + s },
	func(s string) string { return s },
	func(s string) string { return normalizeKey("cid:" + s) },
}

var locationKeyRules = []func(string) string{
	func(s string) string { return s },
	func(s string) string { return "cid:" + s },
	func(s string) string { return "CID:" + s },
	normalizeKey,
}

func buildResourceMap(candidates []candidate) resourceMap {
	resources := resourceMap{}
	for _, c := range candidates {
		uri := dataURI(c.contentType, c.payload)
		if c.contentID != "" {
			resources.register(idKeyRules, strings.Trim(c.contentID, "<>"), uri)
		}
		if c.contentLocation != "" {
			clean := strings.Trim(strings.TrimSpace(c.contentLocation), "<>")
			resources.register(locationKeyRules, clean, uri)
			if base := basename(normalizeKey(clean)); base != "" {
				resources.register(locationKeyRules, base, uri)
			}
		}
	}
	return resources
}

// register applies every rule to the cleaned identifier. When two resources
// collide on a key the one appearing later in part order wins; silent
// shadowing matches how browsers resolve duplicate archive members.
func (m resourceMap) register(rules []func(string) string, clean, uri string) {
	for _, rule := range rules {
		m[rule(clean)] = uri
	}
}

// resolve looks a raw src value up, falling back to its basename. The second
// miss returns ok=false so the caller leaves the reference untouched; a
// dangling reference is a valid real-world outcome, not an error.
func (m resourceMap) resolve(src string) (string, bool) {
	lookup := normalizeKey(src)
	if uri, ok := m[lookup]; ok {
		return uri, true
	}
	if uri, ok := m[basename(lookup)]; ok {
		return uri, true
	}
	return "", false
}

func dataURI(contentType string, payload []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

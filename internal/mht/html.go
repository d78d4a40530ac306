package mht

import (
	"strings"

	"golang.org/x/net/html"
)

// findAll walks the tree depth-first and collects every node matching the
// predicate. Traversal and mutation are kept as separate steps: callers query
// first, then edit the returned nodes.
func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var matches []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			matches = append(matches, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return matches
}

func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	if matches := findAll(root, pred); len(matches) > 0 {
		return matches[0]
	}
	return nil
}

func isElement(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

func hasAttr(key string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		_, ok := attrValue(n, key)
		return ok
	}
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func parseHTML(text string) (*html.Node, error) {
	return html.Parse(strings.NewReader(text))
}

func render(n *html.Node) string {
	var buf strings.Builder
	_ = html.Render(&buf, n)
	return buf.String()
}

// rehydrate resolves every src-bearing element against the resource map.
// Hits replace the src value with a data URI; misses leave the attribute
// byte-for-byte unchanged. Nothing but src values is ever touched.
func rehydrate(root *html.Node, resources resourceMap) {
	for _, n := range findAll(root, hasAttr("src")) {
		src, _ := attrValue(n, "src")
		if uri, ok := resources.resolve(src); ok {
			setAttr(n, "src", uri)
		}
	}
}

// extractTitle returns the trimmed text of the document's first <title>
// element, or the fallback when it is missing or empty.
func extractTitle(root *html.Node, fallback string) string {
	title := findFirst(root, isElement("title"))
	if title == nil {
		return fallback
	}
	var text strings.Builder
	for c := title.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}
	if trimmed := strings.TrimSpace(text.String()); trimmed != "" {
		return trimmed
	}
	return fallback
}

// renderBody serializes the <body> subtree, wrapper element included, or the
// whole document when no body exists.
func renderBody(root *html.Node) string {
	if body := findFirst(root, isElement("body")); body != nil {
		return render(body)
	}
	return render(root)
}

// StripEmbeddedImages blanks the src of every image that already holds a
// data URI, keeping editor payloads small. The input is returned unchanged
// when no image qualifies, so untouched documents are never reformatted.
// Applying the function twice yields the same result as applying it once.
func StripEmbeddedImages(doc string) string {
	root, err := parseHTML(doc)
	if err != nil {
		return doc
	}
	changed := false
	for _, img := range findAll(root, isElement("img")) {
		if src, ok := attrValue(img, "src"); ok && strings.HasPrefix(src, "data:") {
			setAttr(img, "src", "")
			changed = true
		}
	}
	if !changed {
		return doc
	}
	return renderBody(root)
}

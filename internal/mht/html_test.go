package mht

import (
	"strings"
	"testing"
)

func TestStripEmbeddedImages(t *testing.T) {
	in := `<body><p>text</p><img src="data:image/png;base64,AAAA"><img src="http://example.com/x.png"></body>`
	out := StripEmbeddedImages(in)
	if strings.Contains(out, "data:image/png") {
		t.Errorf("data URI survived stripping: %q", out)
	}
	if !strings.Contains(out, `src="http://example.com/x.png"`) {
		t.Errorf("external src must be preserved: %q", out)
	}
	if !strings.Contains(out, "<p>text</p>") {
		t.Errorf("content must be preserved: %q", out)
	}
}

func TestStripEmbeddedImagesUnchangedInput(t *testing.T) {
	in := `<body><p>no images at all</p></body>`
	if out := StripEmbeddedImages(in); out != in {
		t.Errorf("document without data URIs must be returned unchanged, got %q", out)
	}
}

func TestStripEmbeddedImagesIdempotent(t *testing.T) {
	in := `<body><img src="data:image/gif;base64,R0lGODdh"><img src="pic.png"></body>`
	once := StripEmbeddedImages(in)
	twice := StripEmbeddedImages(once)
	if once != twice {
		t.Errorf("strip must be idempotent: first %q, second %q", once, twice)
	}
}

func TestExtractTitleBody(t *testing.T) {
	title, body := ExtractTitleBody("<html><head><title> Hi </title></head><body><p>a</p></body></html>", "fallback")
	if title != "Hi" {
		t.Errorf("title = %q, want %q", title, "Hi")
	}
	if body != "<body><p>a</p></body>" {
		t.Errorf("body = %q", body)
	}
}

func TestExtractTitleBodyFallback(t *testing.T) {
	title, _ := ExtractTitleBody("<html><head><title>   </title></head><body></body></html>", "from-filename")
	if title != "from-filename" {
		t.Errorf("title = %q, want fallback", title)
	}
}

func TestRehydrateOnlyTouchesSrc(t *testing.T) {
	resources := buildResourceMap([]candidate{
		{contentType: "image/png", payload: []byte("p"), contentID: "<r1>"},
	})
	root, err := parseHTML(`<html><body><img src="cid:r1" alt="keep" class="c"><a href="cid:r1">link</a></body></html>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rehydrate(root, resources)
	out := renderBody(root)
	if !strings.Contains(out, `alt="keep"`) || !strings.Contains(out, `class="c"`) {
		t.Errorf("non-src attributes must be preserved: %q", out)
	}
	if !strings.Contains(out, `href="cid:r1"`) {
		t.Errorf("href must never be rewritten: %q", out)
	}
	if !strings.Contains(out, `src="data:image/png;base64,`) {
		t.Errorf("src must be rewritten: %q", out)
	}
}

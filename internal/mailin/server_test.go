package mailin

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestExtractDocumentsHTMLBody(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: bob@notes
Subject: Meeting notes
MIME-Version: 1.0
Content-Type: text/html; charset="utf-8"

<html><head><title>Q3 plan</title></head><body><p>hello</p></body></html>
`)
	docs := extractDocuments(raw, discard())
	if len(docs) != 1 {
		t.Fatalf("extractDocuments returned %d docs, want 1", len(docs))
	}
	if docs[0].Title != "Q3 plan" {
		t.Errorf("Title = %q, want the document title", docs[0].Title)
	}
	if !strings.Contains(docs[0].BodyHTML, "<p>hello</p>") {
		t.Errorf("BodyHTML = %q", docs[0].BodyHTML)
	}
}

func TestExtractDocumentsTextBody(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: bob@notes
Subject: Quick thought
MIME-Version: 1.0
Content-Type: text/plain; charset="utf-8"

a < b & c
`)
	docs := extractDocuments(raw, discard())
	if len(docs) != 1 {
		t.Fatalf("extractDocuments returned %d docs, want 1", len(docs))
	}
	if docs[0].Title != "Quick thought" {
		t.Errorf("Title = %q, want subject", docs[0].Title)
	}
	if !strings.Contains(docs[0].BodyHTML, "a &lt; b &amp; c") {
		t.Errorf("text body must be escaped, got %q", docs[0].BodyHTML)
	}
}

func TestExtractDocumentsEmpty(t *testing.T) {
	raw := crlf(`From: alice@example.com
Subject: nothing
MIME-Version: 1.0
Content-Type: text/plain; charset="utf-8"

`)
	if docs := extractDocuments(raw, discard()); len(docs) != 0 {
		t.Errorf("expected no documents for an empty body, got %d", len(docs))
	}
}

// Package mht turns MIME multipart "saved web page" archives into
// self-contained HTML: every resource the archive carries is inlined into the
// document as a base64 data URI, and a title plus body fragment suitable for
// storage are extracted. The package is purely computational; independent
// archives can be processed concurrently.
package mht

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Document is the result of ingesting one archive or HTML file.
type Document struct {
	Title    string
	BodyHTML string
}

// NoHTMLPartError reports an archive that contains no text/html part. It is
// fatal for that single archive only; callers importing a batch are expected
// to record it and keep going.
type NoHTMLPartError struct {
	Filename string
}

func (e *NoHTMLPartError) Error() string {
	return fmt.Sprintf("%s: no text/html part found", e.Filename)
}

// MalformedArchiveError reports bytes that cannot be parsed as MIME at all.
type MalformedArchiveError struct {
	Filename string
	Err      error
}

func (e *MalformedArchiveError) Error() string {
	return fmt.Sprintf("%s: malformed mime structure: %v", e.Filename, e.Err)
}

func (e *MalformedArchiveError) Unwrap() error { return e.Err }

// ParseArchive ingests a .mht archive: decode the multipart envelope, inline
// every addressable resource into the document's src attributes, and extract
// the title and body. References that match nothing in the archive pass
// through unchanged. The filename is only used in errors and as the title
// fallback, minus its extension.
func ParseArchive(data []byte, filename string) (Document, error) {
	htmlText, candidates, err := decodeArchive(data, filename)
	if err != nil {
		return Document{}, err
	}

	root, err := parseHTML(htmlText)
	if err != nil {
		return Document{}, &MalformedArchiveError{Filename: filename, Err: err}
	}
	rehydrate(root, buildResourceMap(candidates))

	return Document{
		Title:    extractTitle(root, fallbackTitle(filename)),
		BodyHTML: renderBody(root),
	}, nil
}

// ParseHTMLFile ingests a plain HTML file, applying the same title and body
// extraction as ParseArchive but with no resource resolution.
func ParseHTMLFile(data []byte, filename string) (Document, error) {
	root, err := parseHTML(strings.ToValidUTF8(string(data), "�"))
	if err != nil {
		return Document{}, &MalformedArchiveError{Filename: filename, Err: err}
	}
	return Document{
		Title:    extractTitle(root, fallbackTitle(filename)),
		BodyHTML: renderBody(root),
	}, nil
}

// ExtractTitleBody derives a title and storable body fragment from already
// rehydrated HTML text. Exposed for ingestion paths that receive HTML from
// somewhere other than an archive.
func ExtractTitleBody(htmlText, fallback string) (string, string) {
	root, err := parseHTML(htmlText)
	if err != nil {
		return fallback, htmlText
	}
	return extractTitle(root, fallback), renderBody(root)
}

func fallbackTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

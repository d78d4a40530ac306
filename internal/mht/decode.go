package mht

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// decodeArchive parses an RFC 2557 multipart archive into the decoded text of
// its first text/html part plus the ordered list of addressable resource
// parts. Nested multiparts are flattened into one sequence. Parts carrying
// neither a Content-ID nor a Content-Location are dropped: nothing in the
// document can reference them.
func decodeArchive(data []byte, filename string) (string, []candidate, error) {
	entity, err := message.Read(bytes.NewReader(data))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", nil, &MalformedArchiveError{Filename: filename, Err: err}
	}

	var w partWalker
	if err := w.walk(entity); err != nil {
		return "", nil, &MalformedArchiveError{Filename: filename, Err: err}
	}
	if !w.htmlFound {
		return "", nil, &NoHTMLPartError{Filename: filename}
	}
	return w.htmlText, w.candidates, nil
}

type partWalker struct {
	htmlFound  bool
	htmlText   string
	candidates []candidate
}

func (w *partWalker) walk(entity *message.Entity) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return err
			}
			if err := w.walk(part); err != nil {
				return err
			}
		}
	}
	w.leaf(entity)
	return nil
}

func (w *partWalker) leaf(entity *message.Entity) {
	contentType, _, err := entity.Header.ContentType()
	if err != nil {
		contentType = "text/plain"
	}

	if contentType == "text/html" && !w.htmlFound {
		// go-message converts known charsets to UTF-8 while reading;
		// whatever still is not valid UTF-8 is substituted rather than
		// failing the archive.
		body, _ := io.ReadAll(entity.Body)
		w.htmlFound = true
		w.htmlText = strings.ToValidUTF8(string(body), "�")
		return
	}

	contentID := entity.Header.Get("Content-Id")
	contentLocation := entity.Header.Get("Content-Location")
	if contentID == "" && contentLocation == "" {
		return
	}
	payload, _ := io.ReadAll(entity.Body)
	w.candidates = append(w.candidates, candidate{
		contentType:     contentType,
		payload:         payload,
		contentID:       contentID,
		contentLocation: contentLocation,
	})
}

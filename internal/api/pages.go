package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yuhoo68/notes/internal/mht"
	"github.com/yuhoo68/notes/internal/pagination"
	"github.com/yuhoo68/notes/internal/store"
)

const maxImportBytes = 64 << 20

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handlePageList(w, r, login)
	case http.MethodPost:
		s.handlePageCreate(w, r, login)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePageList(w http.ResponseWriter, r *http.Request, login string) {
	query := r.URL.Query()
	filter := store.PageFilter{}
	if raw := query.Get("notebook"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.NotebookID = id
		}
	}
	if raw := query.Get("section"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.SectionID = id
		}
	}

	// A leading # narrows the search to tags, as in "#planning".
	search := strings.TrimSpace(query.Get("search"))
	if strings.HasPrefix(search, "#") {
		filter.TagsOnly = true
		search = strings.TrimSpace(search[1:])
	}
	filter.Search = search

	params := pagination.FromQuery(query)
	filter.Limit = params.Limit
	filter.Offset = params.Offset

	pages, total, err := s.store.ListPages(r.Context(), login, filter)
	if err != nil {
		http.Error(w, "unable to list pages", http.StatusInternalServerError)
		return
	}

	response := struct {
		Pages   []pageSummary `json:"pages"`
		Total   int32         `json:"total"`
		HasMore bool          `json:"hasMore"`
	}{
		Pages:   make([]pageSummary, 0, len(pages)),
		Total:   total,
		HasMore: pagination.HasNext(params.Offset, params.Limit, total),
	}
	for _, page := range pages {
		response.Pages = append(response.Pages, toPageSummary(page))
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handlePageCreate(w http.ResponseWriter, r *http.Request, login string) {
	var payload struct {
		SectionID int64  `json:"sectionId"`
		Title     string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	section, err := s.store.GetSection(r.Context(), payload.SectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "unknown section", http.StatusBadRequest)
			return
		}
		http.Error(w, "unable to load section", http.StatusInternalServerError)
		return
	}
	if !s.requireOwner(w, r, section.NotebookID, login) {
		return
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = "Untitled page"
	}
	now := time.Now()
	page := store.Page{
		ID:        uuid.NewString(),
		SectionID: section.ID,
		Title:     title,
		CreatedBy: login,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertPage(r.Context(), page); err != nil {
		http.Error(w, "unable to create page", http.StatusInternalServerError)
		return
	}
	s.notifyPage(r, section.NotebookID, "created", page.ID, page.Title)
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": page.ID})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/pages/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	page, err := s.store.GetPage(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "unable to load page", http.StatusInternalServerError)
		return
	}
	if !s.canViewPage(w, r, page, login) {
		return
	}

	if len(parts) == 2 && parts[1] == "editable" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// Inlined images are stripped before the body reaches the
		// rich-text editor; they come back when the page is viewed.
		s.respondJSON(w, http.StatusOK, pageDetail{
			ID:       page.ID,
			Title:    page.Title,
			Tag:      page.Tag,
			BodyHTML: mht.StripEmbeddedImages(page.BodyHTML),
		})
		return
	}
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.respondJSON(w, http.StatusOK, toPageDetail(page))
	case http.MethodPut:
		if !s.requireOwner(w, r, page.NotebookID, login) {
			return
		}
		var payload struct {
			Title    string `json:"title"`
			Tag      string `json:"tag"`
			BodyHTML string `json:"bodyHtml"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		title := strings.TrimSpace(payload.Title)
		if title == "" {
			title = "Untitled"
		}
		if err := s.store.UpdatePage(r.Context(), id, title, strings.TrimSpace(payload.Tag), payload.BodyHTML, time.Now()); err != nil {
			http.Error(w, "unable to update page", http.StatusInternalServerError)
			return
		}
		s.notifyPage(r, page.NotebookID, "updated", id, title)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !s.requireOwner(w, r, page.NotebookID, login) {
			return
		}
		deleted, err := s.store.DeletePage(r.Context(), id)
		if err != nil {
			http.Error(w, "unable to delete page", http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.notifyPage(r, page.NotebookID, "deleted", id, page.Title)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleImport ingests one or more uploaded .mht or .html files into a
// section. Each file is parsed independently: one malformed archive is
// reported by name and the rest of the batch still imports.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	sectionID, err := strconv.ParseInt(r.FormValue("sectionId"), 10, 64)
	if err != nil || sectionID <= 0 {
		http.Error(w, "sectionId required", http.StatusBadRequest)
		return
	}
	section, err := s.store.GetSection(r.Context(), sectionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "unknown section", http.StatusBadRequest)
			return
		}
		http.Error(w, "unable to load section", http.StatusInternalServerError)
		return
	}
	if !s.requireOwner(w, r, section.NotebookID, login) {
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	result := importResult{Imported: []importedPage{}, Errors: []string{}}
	for _, header := range files {
		pageID, err := s.importOne(r, header, section, login)
		if err != nil {
			result.Errors = append(result.Errors, header.Filename+": "+errorReason(err))
			s.logger.Warn("import file", "file", header.Filename, "error", err)
			continue
		}
		result.Imported = append(result.Imported, importedPage{ID: pageID, Filename: header.Filename})
	}
	s.logger.Info("import finished", "section", sectionID, "imported", len(result.Imported), "failed", len(result.Errors))
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) importOne(r *http.Request, header *multipart.FileHeader, section store.Section, login string) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}

	var doc mht.Document
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".mht", ".mhtml":
		doc, err = mht.ParseArchive(data, header.Filename)
	default:
		doc, err = mht.ParseHTMLFile(data, header.Filename)
	}
	if err != nil {
		return "", err
	}

	now := time.Now()
	page := store.Page{
		ID:        uuid.NewString(),
		SectionID: section.ID,
		Title:     doc.Title,
		BodyHTML:  doc.BodyHTML,
		CreatedBy: login,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertPage(r.Context(), page); err != nil {
		return "", err
	}
	s.notifyPage(r, section.NotebookID, "created", page.ID, page.Title)
	return page.ID, nil
}

func (s *Server) canViewPage(w http.ResponseWriter, r *http.Request, page store.Page, login string) bool {
	notebook, err := s.store.GetNotebook(r.Context(), page.NotebookID)
	if err != nil {
		http.Error(w, "unable to load page", http.StatusInternalServerError)
		return false
	}
	if !notebook.Closed {
		return true
	}
	owner, err := s.store.IsOwner(r.Context(), page.NotebookID, login)
	if err != nil {
		http.Error(w, "unable to check permissions", http.StatusInternalServerError)
		return false
	}
	if !owner {
		http.Error(w, "not found", http.StatusNotFound)
		return false
	}
	return true
}

// errorReason keeps user-facing import errors short; typed engine errors
// already carry the filename, so strip it from the message.
func errorReason(err error) string {
	var noHTML *mht.NoHTMLPartError
	if errors.As(err, &noHTML) {
		return "no text/html part found"
	}
	var malformed *mht.MalformedArchiveError
	if errors.As(err, &malformed) {
		return "malformed mime structure"
	}
	return err.Error()
}

type importResult struct {
	Imported []importedPage `json:"imported"`
	Errors   []string       `json:"errors"`
}

type importedPage struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type pageSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Tag          string `json:"tag"`
	SectionID    int64  `json:"sectionId"`
	SectionName  string `json:"sectionName"`
	NotebookID   int64  `json:"notebookId"`
	NotebookName string `json:"notebookName"`
	CreatedBy    string `json:"createdBy"`
	UpdatedAt    string `json:"updatedAt"`
}

type pageDetail struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Tag          string `json:"tag"`
	BodyHTML     string `json:"bodyHtml"`
	SectionID    int64  `json:"sectionId,omitempty"`
	SectionName  string `json:"sectionName,omitempty"`
	NotebookID   int64  `json:"notebookId,omitempty"`
	NotebookName string `json:"notebookName,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

func toPageSummary(page store.PageSummary) pageSummary {
	return pageSummary{
		ID:           page.ID,
		Title:        page.Title,
		Tag:          page.Tag,
		SectionID:    page.SectionID,
		SectionName:  page.SectionName,
		NotebookID:   page.NotebookID,
		NotebookName: page.NotebookName,
		CreatedBy:    page.CreatedBy,
		UpdatedAt:    page.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toPageDetail(page store.Page) pageDetail {
	return pageDetail{
		ID:           page.ID,
		Title:        page.Title,
		Tag:          page.Tag,
		BodyHTML:     page.BodyHTML,
		SectionID:    page.SectionID,
		SectionName:  page.SectionName,
		NotebookID:   page.NotebookID,
		NotebookName: page.NotebookName,
		CreatedBy:    page.CreatedBy,
		UpdatedAt:    page.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

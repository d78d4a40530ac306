package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yuhoo68/notes/internal/auth"
	"github.com/yuhoo68/notes/internal/config"
	"github.com/yuhoo68/notes/internal/sse"
	"github.com/yuhoo68/notes/internal/store"
	webassets "github.com/yuhoo68/notes/web"
)

type Server struct {
	cfg      config.Config
	store    *store.Store
	auth     *auth.Manager
	hub      *sse.Hub
	logger   *slog.Logger
	mux      *http.ServeMux
	staticFS fs.FS
	staticOK bool
}

func NewServer(cfg config.Config, store *store.Store, authManager *auth.Manager, hub *sse.Hub, logger *slog.Logger) *Server {
	staticFS, err := webassets.Dist()
	staticOK := err == nil
	if err != nil {
		logger.Warn("ui assets not embedded", "error", err)
	}
	server := &Server{
		cfg:      cfg,
		store:    store,
		auth:     authManager,
		hub:      hub,
		logger:   logger,
		staticFS: staticFS,
		staticOK: staticOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", server.handleLogin)
	mux.HandleFunc("/api/logout", server.handleLogout)
	mux.HandleFunc("/api/me", server.handleMe)
	mux.HandleFunc("/api/users", server.handleUsers)
	mux.HandleFunc("/api/notebooks", server.handleNotebooks)
	mux.HandleFunc("/api/notebooks/", server.handleNotebook)
	mux.HandleFunc("/api/sections", server.handleSections)
	mux.HandleFunc("/api/pages", server.handlePages)
	mux.HandleFunc("/api/pages/", server.handlePage)
	mux.HandleFunc("/api/import", server.handleImport)
	mux.HandleFunc("/api/stream", server.handleStream)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.mux.ServeHTTP(w, r)
		return
	}
	if r.URL.Path == "/health" {
		s.respondText(w, http.StatusOK, "ok")
		return
	}
	s.serveStatic(w, r)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if !s.staticOK {
		s.respondText(w, http.StatusNotFound, "UI assets missing from build")
		return
	}

	cleaned := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if cleaned == "" {
		cleaned = "index.html"
	}
	if s.serveEmbeddedFile(w, r, cleaned) {
		return
	}
	if s.serveEmbeddedFile(w, r, "index.html") {
		return
	}
	s.respondText(w, http.StatusNotFound, "not found")
}

func (s *Server) serveEmbeddedFile(w http.ResponseWriter, r *http.Request, name string) bool {
	file, err := s.staticFS.Open(name)
	if err != nil {
		return false
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(data))
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Login    string `json:"login"`
		FullName string `json:"fullName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	login, err := auth.NormalizeLogin(payload.Login)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fullName := strings.TrimSpace(payload.FullName)
	if fullName == "" {
		fullName = login
	}
	now := time.Now()
	if err := s.store.UpsertUser(r.Context(), login, fullName, now); err != nil {
		http.Error(w, "unable to save user", http.StatusInternalServerError)
		return
	}
	token, err := s.auth.Issue(login, now)
	if err != nil {
		http.Error(w, "unable to create session", http.StatusInternalServerError)
		return
	}
	s.setSessionCookie(w, token, now)
	s.respondJSON(w, http.StatusOK, map[string]string{"login": login, "fullName": fullName})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"login": login})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.sessionLogin(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		http.Error(w, "unable to list users", http.StatusInternalServerError)
		return
	}
	response := make([]userSummary, 0, len(users))
	for _, user := range users {
		response = append(response, userSummary{Login: user.Login, FullName: user.FullName})
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleNotebooks(w http.ResponseWriter, r *http.Request) {
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		notebooks, err := s.store.ListNotebooks(r.Context(), login)
		if err != nil {
			http.Error(w, "unable to list notebooks", http.StatusInternalServerError)
			return
		}
		response := make([]notebookSummary, 0, len(notebooks))
		for _, notebook := range notebooks {
			response = append(response, toNotebookSummary(notebook))
		}
		s.respondJSON(w, http.StatusOK, response)
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(payload.Name)
		if name == "" {
			name = "New notebook"
		}
		id, err := s.store.CreateNotebook(r.Context(), name, login, time.Now())
		if err != nil {
			http.Error(w, "unable to create notebook", http.StatusInternalServerError)
			return
		}
		s.respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleNotebook(w http.ResponseWriter, r *http.Request) {
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/notebooks/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	notebookID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid notebook id", http.StatusBadRequest)
		return
	}

	switch parts[1] {
	case "closed":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.requireOwner(w, r, notebookID, login) {
			return
		}
		var payload struct {
			Closed bool `json:"closed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if err := s.store.SetNotebookClosed(r.Context(), notebookID, payload.Closed, time.Now()); err != nil {
			http.Error(w, "unable to update notebook", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "owners":
		switch r.Method {
		case http.MethodGet:
			owners, err := s.store.ListOwners(r.Context(), notebookID)
			if err != nil {
				http.Error(w, "unable to list owners", http.StatusInternalServerError)
				return
			}
			response := make([]userSummary, 0, len(owners))
			for _, owner := range owners {
				response = append(response, userSummary{Login: owner.Login, FullName: owner.FullName})
			}
			s.respondJSON(w, http.StatusOK, response)
		case http.MethodPost:
			if !s.requireOwner(w, r, notebookID, login) {
				return
			}
			var payload struct {
				Login string `json:"login"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
			newOwner, err := auth.NormalizeLogin(payload.Login)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			exists, err := s.store.UserExists(r.Context(), newOwner)
			if err != nil {
				http.Error(w, "unable to add owner", http.StatusInternalServerError)
				return
			}
			if !exists {
				http.Error(w, "unknown user", http.StatusBadRequest)
				return
			}
			if err := s.store.AddOwner(r.Context(), notebookID, newOwner); err != nil {
				http.Error(w, "unable to add owner", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method {
	case http.MethodGet:
		notebookID, err := strconv.ParseInt(r.URL.Query().Get("notebook"), 10, 64)
		if err != nil || notebookID <= 0 {
			http.Error(w, "notebook query parameter required", http.StatusBadRequest)
			return
		}
		sections, err := s.store.ListSections(r.Context(), notebookID)
		if err != nil {
			http.Error(w, "unable to list sections", http.StatusInternalServerError)
			return
		}
		response := make([]sectionSummary, 0, len(sections))
		for _, section := range sections {
			response = append(response, sectionSummary{
				ID:         section.ID,
				NotebookID: section.NotebookID,
				Name:       section.Name,
			})
		}
		s.respondJSON(w, http.StatusOK, response)
	case http.MethodPost:
		var payload struct {
			NotebookID int64  `json:"notebookId"`
			Name       string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if !s.requireOwner(w, r, payload.NotebookID, login) {
			return
		}
		name := strings.TrimSpace(payload.Name)
		if name == "" {
			name = "New section"
		}
		id, err := s.store.CreateSection(r.Context(), payload.NotebookID, name, login, time.Now())
		if err != nil {
			http.Error(w, "unable to create section", http.StatusInternalServerError)
			return
		}
		s.respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	login, err := s.sessionLogin(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe(login)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

// requireOwner writes the error response itself when the login does not own
// the notebook.
func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request, notebookID int64, login string) bool {
	owner, err := s.store.IsOwner(r.Context(), notebookID, login)
	if err != nil {
		http.Error(w, "unable to check permissions", http.StatusInternalServerError)
		return false
	}
	if !owner {
		http.Error(w, "notebook owner required", http.StatusForbidden)
		return false
	}
	return true
}

func (s *Server) sessionLogin(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.auth.CookieName())
	if err != nil {
		return "", errors.New("missing session")
	}
	return s.auth.Parse(cookie.Value, time.Now())
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string, now time.Time) {
	maxAge := int(s.auth.MaxAge().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  now.Add(s.auth.MaxAge()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

// notifyPage tells every owner of the notebook about a page change.
func (s *Server) notifyPage(r *http.Request, notebookID int64, action, pageID, title string) {
	owners, err := s.store.ListOwners(r.Context(), notebookID)
	if err != nil {
		s.logger.Warn("list owners for event", "error", err)
		return
	}
	logins := make([]string, 0, len(owners))
	for _, owner := range owners {
		logins = append(logins, owner.Login)
	}
	s.hub.Broadcast(logins, buildPageEvent(action, pageID, title, notebookID))
}

func buildPageEvent(action, pageID, title string, notebookID int64) []byte {
	payload := map[string]any{
		"action":     action,
		"id":         pageID,
		"title":      title,
		"notebookId": notebookID,
	}
	data, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: page\ndata: %s\n\n", data))
}

type userSummary struct {
	Login    string `json:"login"`
	FullName string `json:"fullName"`
}

type notebookSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
	Closed    bool   `json:"closed"`
	UpdatedAt string `json:"updatedAt"`
}

type sectionSummary struct {
	ID         int64  `json:"id"`
	NotebookID int64  `json:"notebookId"`
	Name       string `json:"name"`
}

func toNotebookSummary(notebook store.Notebook) notebookSummary {
	return notebookSummary{
		ID:        notebook.ID,
		Name:      notebook.Name,
		CreatedBy: notebook.CreatedBy,
		Closed:    notebook.Closed,
		UpdatedAt: notebook.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

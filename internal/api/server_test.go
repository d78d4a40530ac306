package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yuhoo68/notes/internal/auth"
	"github.com/yuhoo68/notes/internal/config"
	"github.com/yuhoo68/notes/internal/sse"
	"github.com/yuhoo68/notes/internal/store"
)

type testEnv struct {
	server *Server
	store  *store.Store
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	authManager, err := auth.New("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("auth.New() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(config.Config{}, db, authManager, sse.NewHub(), logger)
	return &testEnv{server: server, store: db}
}

func (e *testEnv) login(t *testing.T, login string) {
	t.Helper()
	body := bytes.NewBufferString(fmt.Sprintf(`{"login":%q}`, login))
	req := httptest.NewRequest(http.MethodPost, "/api/login", body)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == e.server.auth.CookieName() {
			e.cookie = cookie
			return
		}
	}
	t.Fatal("login response has no session cookie")
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSection(t *testing.T) int64 {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/notebooks", strings.NewReader(`{"name":"Imports"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create notebook status = %d: %s", rec.Code, rec.Body.String())
	}
	var notebook struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&notebook); err != nil {
		t.Fatalf("decode notebook: %v", err)
	}

	payload := fmt.Sprintf(`{"notebookId":%d,"name":"Saved pages"}`, notebook.ID)
	rec = e.do(t, http.MethodPost, "/api/sections", strings.NewReader(payload), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create section status = %d: %s", rec.Code, rec.Body.String())
	}
	var section struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&section); err != nil {
		t.Fatalf("decode section: %v", err)
	}
	return section.ID
}

func mhtFixture(title string) string {
	return strings.ReplaceAll(fmt.Sprintf(`MIME-Version: 1.0
Content-Type: text/html; charset="utf-8"

<html><head><title>%s</title></head><body><p>content</p></body></html>
`, title), "\n", "\r\n")
}

// The archive without an HTML part fails alone; the valid archives in the
// same upload still import.
func TestImportBatchIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")
	sectionID := env.createSection(t)

	broken := strings.ReplaceAll(`MIME-Version: 1.0
Content-Type: multipart/related; boundary="b"

--b
Content-Type: image/png
Content-ID: <only>

AAAA
--b--
`, "\n", "\r\n")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("sectionId", fmt.Sprint(sectionID))
	for name, content := range map[string]string{
		"one.mht":    mhtFixture("One"),
		"broken.mht": broken,
		"two.mht":    mhtFixture("Two"),
		"three.mht":  mhtFixture("Three"),
	} {
		part, err := form.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	_ = form.Close()

	rec := env.do(t, http.MethodPost, "/api/import", &buf, form.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Imported []struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
		} `json:"imported"`
		Errors []string `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	if len(result.Imported) != 3 {
		t.Errorf("imported %d files, want 3", len(result.Imported))
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "broken.mht") {
		t.Errorf("errors = %v, want one naming broken.mht", result.Errors)
	}
}

func TestImportRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")
	sectionID := env.createSection(t)

	env.login(t, "bob")
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("sectionId", fmt.Sprint(sectionID))
	part, _ := form.CreateFormFile("files", "one.mht")
	_, _ = part.Write([]byte(mhtFixture("One")))
	_ = form.Close()

	rec := env.do(t, http.MethodPost, "/api/import", &buf, form.FormDataContentType())
	if rec.Code != http.StatusForbidden {
		t.Errorf("import by non-owner status = %d, want 403", rec.Code)
	}
}

func TestEditablePageStripsDataURIs(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")
	sectionID := env.createSection(t)

	rec := env.do(t, http.MethodPost, "/api/pages",
		strings.NewReader(fmt.Sprintf(`{"sectionId":%d,"title":"Pic"}`, sectionID)), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create page status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&created)

	update := `{"title":"Pic","bodyHtml":"<body><img src=\"data:image/png;base64,AAAA\"><p>text</p></body>"}`
	rec = env.do(t, http.MethodPut, "/api/pages/"+created.ID, strings.NewReader(update), "application/json")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update page status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/pages/"+created.ID+"/editable", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("editable status = %d: %s", rec.Code, rec.Body.String())
	}
	var editable struct {
		BodyHTML string `json:"bodyHtml"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&editable)
	if strings.Contains(editable.BodyHTML, "data:image/png") {
		t.Errorf("editable body still carries a data URI: %q", editable.BodyHTML)
	}
	if !strings.Contains(editable.BodyHTML, "<p>text</p>") {
		t.Errorf("editable body lost content: %q", editable.BodyHTML)
	}

	rec = env.do(t, http.MethodGet, "/api/pages/"+created.ID, nil, "")
	var full struct {
		BodyHTML string `json:"bodyHtml"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&full)
	if !strings.Contains(full.BodyHTML, "data:image/png") {
		t.Error("stored page must keep its inlined images")
	}
}

func TestUnauthorizedWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/pages", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestClosedNotebookHiddenFromOthers(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice")
	sectionID := env.createSection(t)

	rec := env.do(t, http.MethodPost, "/api/pages",
		strings.NewReader(fmt.Sprintf(`{"sectionId":%d,"title":"Secret"}`, sectionID)), "application/json")
	var created struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&created)

	page, err := env.store.GetPage(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/notebooks/%d/closed", page.NotebookID),
		strings.NewReader(`{"closed":true}`), "application/json")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close notebook status = %d", rec.Code)
	}

	env.login(t, "bob")
	rec = env.do(t, http.MethodGet, "/api/pages/"+created.ID, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("page in closed notebook visible to non-owner, status = %d", rec.Code)
	}
}

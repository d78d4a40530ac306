// Package mailin accepts pages over SMTP: a message sent to
// <login>@<domain> is stored in that user's Inbox section. An attached .mht
// archive is run through the rehydration pipeline; otherwise the message's
// HTML or text body becomes the page content.
package mailin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/yuhoo68/notes/internal/auth"
	"github.com/yuhoo68/notes/internal/mht"
	"github.com/yuhoo68/notes/internal/sse"
	"github.com/yuhoo68/notes/internal/store"
)

type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

type Server struct {
	smtp   *smtp.Server
	logger *slog.Logger
}

func New(store *store.Store, hub *sse.Hub, logger *slog.Logger, addr, domain string, authCfg AuthConfig) *Server {
	backend := &backend{
		store:        store,
		hub:          hub,
		logger:       logger,
		domain:       domain,
		authEnabled:  authCfg.Enabled,
		authUsername: authCfg.Username,
		authPassword: authCfg.Password,
	}
	server := smtp.NewServer(backend)
	server.Addr = addr
	server.Domain = domain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 15 * time.Second
	server.WriteTimeout = 15 * time.Second
	server.MaxRecipients = 20
	server.MaxMessageBytes = 64 << 20

	return &Server{smtp: server, logger: logger}
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("mail-in server listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

func (s *Server) Close() error {
	return s.smtp.Close()
}

type backend struct {
	store        *store.Store
	hub          *sse.Hub
	logger       *slog.Logger
	domain       string
	authEnabled  bool
	authUsername string
	authPassword string
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend       *backend
	from          string
	to            []string
	authenticated bool
}

func (s *session) AuthMechanisms() []string {
	if s.backend.authEnabled {
		return []string{sasl.Plain}
	}
	return nil
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if !s.backend.authEnabled {
		return nil, errors.New("authentication not enabled")
	}
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username == s.backend.authUsername && password == s.backend.authPassword {
			s.authenticated = true
			return nil
		}
		return errors.New("invalid credentials")
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.authEnabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = strings.TrimSpace(strings.ToLower(from))
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.authEnabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.to = append(s.to, strings.TrimSpace(strings.ToLower(to)))
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	docs := extractDocuments(data, s.backend.logger)
	if len(docs) == 0 {
		s.backend.logger.Warn("mail-in message had no usable content", "from", s.from)
		return nil
	}

	ctx := context.Background()
	now := time.Now()
	for _, rcpt := range s.to {
		login, ok := s.backend.loginFor(ctx, rcpt)
		if !ok {
			s.backend.logger.Warn("mail-in recipient rejected", "rcpt", rcpt)
			continue
		}
		sectionID, err := s.backend.store.EnsureInbox(ctx, login, now)
		if err != nil {
			s.backend.logger.Error("ensure inbox", "login", login, "error", err)
			continue
		}
		for _, doc := range docs {
			page := store.Page{
				ID:        uuid.NewString(),
				SectionID: sectionID,
				Title:     doc.Title,
				BodyHTML:  doc.BodyHTML,
				CreatedBy: login,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.backend.store.InsertPage(ctx, page); err != nil {
				s.backend.logger.Error("store mail-in page", "login", login, "error", err)
				continue
			}
			s.backend.hub.Broadcast([]string{login}, buildPageEvent(page))
		}
	}
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

// loginFor maps an envelope recipient to an existing user. Only the local
// part matters; unknown users are dropped rather than auto-created.
func (b *backend) loginFor(ctx context.Context, rcpt string) (string, bool) {
	local := rcpt
	if i := strings.Index(rcpt, "@"); i >= 0 {
		local = rcpt[:i]
	}
	login, err := auth.NormalizeLogin(local)
	if err != nil {
		return "", false
	}
	exists, err := b.store.UserExists(ctx, login)
	if err != nil {
		b.logger.Error("check mail-in user", "login", login, "error", err)
		return "", false
	}
	return login, exists
}

// extractDocuments turns a raw message into one or more pages: every .mht
// attachment becomes its own page, and when none parse, the message body
// itself does. Archive failures are logged per attachment and skipped, never
// failing the whole delivery.
func extractDocuments(raw []byte, logger *slog.Logger) []mht.Document {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		logger.Warn("parse mail-in message", "error", err)
		return nil
	}

	subject := ""
	if s, err := reader.Header.Subject(); err == nil {
		subject = strings.TrimSpace(s)
	}
	if subject == "" {
		subject = "Mailed-in page"
	}

	var docs []mht.Document
	htmlBody := ""
	textBody := ""
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("read mail-in part", "error", err)
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				if textBody == "" {
					textBody = string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			ext := strings.ToLower(filepath.Ext(filename))
			if ext != ".mht" && ext != ".mhtml" {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			doc, err := mht.ParseArchive(body, filename)
			if err != nil {
				logger.Warn("parse mailed archive", "file", filename, "error", err)
				continue
			}
			docs = append(docs, doc)
		}
	}

	if len(docs) > 0 {
		return docs
	}
	if htmlBody != "" {
		title, body := mht.ExtractTitleBody(htmlBody, subject)
		return []mht.Document{{Title: title, BodyHTML: body}}
	}
	if strings.TrimSpace(textBody) != "" {
		return []mht.Document{{Title: subject, BodyHTML: textToHTML(textBody)}}
	}
	return nil
}

func textToHTML(text string) string {
	var b strings.Builder
	b.WriteString("<body>")
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		b.WriteString("<p>")
		b.WriteString(escapeHTML(line))
		b.WriteString("</p>")
	}
	b.WriteString("</body>")
	return b.String()
}

func escapeHTML(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}

func buildPageEvent(page store.Page) []byte {
	payload := map[string]any{
		"action": "created",
		"id":     page.ID,
		"title":  page.Title,
	}
	data, _ := json.Marshal(payload)
	return []byte("event: page\ndata: " + string(data) + "\n\n")
}

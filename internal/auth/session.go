package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	cookieName = "notes_session"
)

type Manager struct {
	secret []byte
	maxAge time.Duration
}

func New(secret string, maxAge time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(generated)
	}
	return &Manager{secret: []byte(secret), maxAge: maxAge}, nil
}

func (m *Manager) CookieName() string {
	return cookieName
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *Manager) Issue(login string, now time.Time) (string, error) {
	normalized, err := NormalizeLogin(login)
	if err != nil {
		return "", err
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)
	payload := normalized + "|" + timestamp
	token := payload + "|" + m.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func (m *Manager) Parse(token string, now time.Time) (string, error) {
	if token == "" {
		return "", errors.New("missing session token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errors.New("invalid session token")
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return "", errors.New("invalid session token")
	}
	payload := parts[0] + "|" + parts[1]
	if !m.verify(payload, parts[2]) {
		return "", errors.New("invalid session token")
	}
	timestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", errors.New("invalid session token")
	}
	issuedAt := time.Unix(timestamp, 0)
	if now.Sub(issuedAt) > m.maxAge {
		return "", errors.New("session expired")
	}
	return NormalizeLogin(parts[0])
}

// NormalizeLogin lowercases and trims a login and rejects anything that is
// not a short alphanumeric identifier. Logins double as mail-in local parts,
// so the character set stays conservative.
func NormalizeLogin(login string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(login))
	if trimmed == "" {
		return "", errors.New("login is required")
	}
	if len(trimmed) > 64 {
		return "", errors.New("login is too long")
	}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return "", errors.New("login may only contain letters, digits, '.', '_' and '-'")
		}
	}
	return trimmed, nil
}

func (m *Manager) sign(payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(payload, signature string) bool {
	expected := m.sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

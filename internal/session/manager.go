package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/qrcare/internal/access"
)

const flashCookie = "qrcare_flash"

type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager binds sessions to cookies.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewManager(store Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "qrcare_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

func (m *Manager) TTL() time.Duration { return m.cfg.TTL }

// Start replaces any existing session with a fresh one for p.
func (m *Manager) Start(c *gin.Context, p access.Principal) (*Session, error) {
	if err := m.Destroy(c); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Principal: p,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.Save(c.Request.Context(), sess, m.cfg.TTL); err != nil {
		return nil, err
	}

	m.setCookie(c, m.cfg.CookieName, sess.ID, int(m.cfg.TTL.Seconds()))
	return sess, nil
}

// Load returns the caller's session or ErrNotFound.
func (m *Manager) Load(c *gin.Context) (*Session, error) {
	id, err := c.Cookie(m.cfg.CookieName)
	if err != nil || id == "" {
		return nil, ErrNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	sess, err := m.store.Load(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !sess.ExpiresAt.IsZero() && m.now().After(sess.ExpiresAt) {
		_ = m.store.Delete(c.Request.Context(), id)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Destroy removes the caller's session and clears the cookie.
func (m *Manager) Destroy(c *gin.Context) error {
	id, err := c.Cookie(m.cfg.CookieName)
	if err != nil || id == "" {
		return nil
	}
	m.setCookie(c, m.cfg.CookieName, "", -1)
	if err := m.store.Delete(c.Request.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// Flash stores a one-shot message shown on the next page.
func (m *Manager) Flash(c *gin.Context, message string) {
	m.setCookie(c, flashCookie, base64.RawURLEncoding.EncodeToString([]byte(message)), 60)
}

// PopFlash returns and clears the pending message.
func (m *Manager) PopFlash(c *gin.Context) string {
	v, err := c.Cookie(flashCookie)
	if err != nil || v == "" {
		return ""
	}
	m.setCookie(c, flashCookie, "", -1)
	msg, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return ""
	}
	return string(msg)
}

func (m *Manager) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", m.cfg.Secure, true)
}

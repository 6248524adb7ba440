package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/session"
	"github.com/jwalitptl/qrcare/pkg/logger"
)

const ContextPrincipal = "principal"

type AuthMiddleware struct {
	sessions *session.Manager
	gate     *access.Gate
}

func NewAuthMiddleware(sessions *session.Manager, gate *access.Gate) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		gate:     gate,
	}
}

// LoadSession resolves the caller's principal from the session cookie and
// stores it in the request context. Callers without a session are anonymous.
func (m *AuthMiddleware) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := &access.Principal{}
		sess, err := m.sessions.Load(c)
		switch {
		case err == nil:
			principal := sess.Principal
			p = &principal
		case !errors.Is(err, session.ErrNotFound):
			logger.FromContext(c.Request.Context()).Error().Err(err).Msg("failed to load session")
		}

		c.Set(ContextPrincipal, p)
		c.Request = c.Request.WithContext(access.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// Require authorizes action against the QR token in the qrParam route
// parameter. Denied callers are redirected to the matching login page.
func (m *AuthMiddleware) Require(action access.Action, qrParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		qrID := ""
		if qrParam != "" {
			qrID = c.Param(qrParam)
		}
		if err := m.gate.Authorize(access.FromContext(c.Request.Context()), action, qrID); err != nil {
			c.Redirect(http.StatusFound, access.LoginPath(action, qrID))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireJSON is Require for JSON endpoints: denied callers get a 401.
func (m *AuthMiddleware) RequireJSON(action access.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.gate.Authorize(access.FromContext(c.Request.Context()), action, ""); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// Gate exposes the gate for handlers that authorize after reading a resource.
func (m *AuthMiddleware) Gate() *access.Gate {
	return m.gate
}

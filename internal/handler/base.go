package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/middleware"
	"github.com/jwalitptl/qrcare/internal/session"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/logger"
)

// Guards bundles the middleware a handler needs when registering routes.
type Guards struct {
	Auth *middleware.AuthMiddleware
	// Throttle limits credential and sign-up POSTs per client.
	Throttle gin.HandlerFunc
	// NoStore marks pages that show patient data as uncacheable.
	NoStore gin.HandlerFunc
}

// BaseHandler carries what every HTML handler needs to render pages.
type BaseHandler struct {
	Sessions *session.Manager
}

func (h *BaseHandler) Principal(c *gin.Context) *access.Principal {
	return access.FromContext(c.Request.Context())
}

// Render writes page with the common layout fields filled in.
func (h *BaseHandler) Render(c *gin.Context, status int, page string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Principal"] = h.Principal(c)
	if _, ok := data["Flash"]; !ok && h.Sessions != nil {
		data["Flash"] = h.Sessions.PopFlash(c)
	}
	c.HTML(status, page, data)
}

// RenderForm re-renders a form after a failed submission. Validation and
// conflict errors are shown on the form itself; anything else goes to Fail.
func (h *BaseHandler) RenderForm(c *gin.Context, page string, data gin.H, err error) {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidation, apperrors.ErrConflict:
		if data == nil {
			data = gin.H{}
		}
		data["Error"] = apperrors.MessageOf(err)
		h.Render(c, http.StatusOK, page, data)
	default:
		h.Fail(c, err)
	}
}

// Fail renders the error page matching err.
func (h *BaseHandler) Fail(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	switch appErr.Code {
	case apperrors.ErrNotFound:
		h.Render(c, http.StatusNotFound, "not_found.html", gin.H{"Title": "Not found"})
	case apperrors.ErrUnauthorized:
		c.Redirect(http.StatusFound, "/")
	case apperrors.ErrValidation, apperrors.ErrConflict:
		h.Render(c, appErr.StatusCode(), "error.html", gin.H{"Title": "Error", "Error": appErr.Message})
	default:
		logger.FromContext(c.Request.Context()).Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		h.Render(c, http.StatusInternalServerError, "error.html", gin.H{"Title": "Error"})
	}
	c.Abort()
}

// StartSession replaces the caller's session with one for p.
func (h *BaseHandler) StartSession(c *gin.Context, p *access.Principal) error {
	if _, err := h.Sessions.Start(c, *p); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

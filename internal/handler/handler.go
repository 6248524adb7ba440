package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/pkg/logger"
)

// Handler serves the pages that belong to no single principal kind.
type Handler struct {
	*BaseHandler
}

func NewHandler(base *BaseHandler) *Handler {
	return &Handler{BaseHandler: base}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Home)
	r.GET("/logout", h.Logout)
}

// Home is the scanner gate: a QR code typed or scanned here opens /access.
func (h *Handler) Home(c *gin.Context) {
	if qr := strings.TrimSpace(c.Query("qr")); qr != "" {
		c.Redirect(http.StatusFound, "/access/"+url.PathEscape(qr))
		return
	}
	h.Render(c, http.StatusOK, "index.html", gin.H{})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.Sessions.Destroy(c); err != nil {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("failed to destroy session")
	}
	c.Redirect(http.StatusFound, "/")
}

// NoRoute renders the not-found page for unknown paths.
func (h *Handler) NoRoute(c *gin.Context) {
	h.Render(c, http.StatusNotFound, "not_found.html", gin.H{"Title": "Not found"})
}

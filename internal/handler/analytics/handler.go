package analytics

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	"github.com/jwalitptl/qrcare/internal/service/analytics"
)

type Handler struct {
	*handler.BaseHandler
	service *analytics.Service
}

func NewHandler(base *handler.BaseHandler, service *analytics.Service) *Handler {
	return &Handler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes mounts the HTML page on r and the JSON endpoint on api.
func (h *Handler) RegisterRoutes(r gin.IRouter, api gin.IRouter, g handler.Guards) {
	r.GET("/analytics", g.NoStore, g.Auth.Require(access.ViewAnalytics, ""), h.Page)
	api.GET("/analytics", g.NoStore, g.Auth.RequireJSON(access.ViewAnalytics), h.Summary)
}

func (h *Handler) Page(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "analytics.html", gin.H{"Title": "Analytics", "Analytics": summary})
}

// Summary returns the aggregate as JSON. Errors are left to the error
// middleware mounted on the API group.
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

package files

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/storage"
)

// Handler serves stored uploads. Lab reports are gated by owner; photos are
// public so guest views can show them.
type Handler struct {
	*handler.BaseHandler
	files    *storage.Store
	patients *patient.Service
	gate     *access.Gate
}

func NewHandler(base *handler.BaseHandler, files *storage.Store, patients *patient.Service, gate *access.Gate) *Handler {
	return &Handler{
		BaseHandler: base,
		files:       files,
		patients:    patients,
		gate:        gate,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter, g handler.Guards, assets gin.HandlerFunc) {
	r.GET("/labs/:filename", g.NoStore, h.Lab)
	r.GET("/photos/:filename", assets, h.Photo)
}

func (h *Handler) Lab(c *gin.Context) {
	name := c.Param("filename")
	owner, err := h.patients.LabOwner(c.Request.Context(), name)
	if err != nil {
		h.Fail(c, err)
		return
	}
	if err := h.gate.Authorize(h.Principal(c), access.DownloadLab, owner); err != nil {
		c.Redirect(http.StatusFound, access.LoginPath(access.DownloadLab, owner))
		return
	}
	h.serve(c, storage.Labs, name)
}

func (h *Handler) Photo(c *gin.Context) {
	h.serve(c, storage.Photos, c.Param("filename"))
}

func (h *Handler) serve(c *gin.Context, category storage.Category, name string) {
	f, err := h.files.Open(category, name)
	if err != nil {
		h.Fail(c, err)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(c.Writer, c.Request, name, modTime, f)
}

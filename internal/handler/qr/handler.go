package qr

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/service/qr"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

// MasterKeyVerifier checks the operator master key.
type MasterKeyVerifier interface {
	VerifyMasterKey(key string) bool
}

const HeaderMasterKey = "X-Master-Key"

type Handler struct {
	*handler.BaseHandler
	service  *qr.Service
	patients *patient.Service
	keys     MasterKeyVerifier
	gate     *access.Gate
}

func NewHandler(base *handler.BaseHandler, service *qr.Service, patients *patient.Service,
	keys MasterKeyVerifier, gate *access.Gate) *Handler {
	return &Handler{
		BaseHandler: base,
		service:     service,
		patients:    patients,
		keys:        keys,
		gate:        gate,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter, g handler.Guards) {
	r.GET("/access/:qr", h.Access)
	r.GET("/guest/:qr", h.Guest)
	r.POST("/admin/add_qr", g.Throttle, h.AddQR)
}

// Access resolves a scanned token and sends the caller where it leads.
func (h *Handler) Access(c *gin.Context) {
	qrID := c.Param("qr")
	p := h.Principal(c)

	status, err := h.service.Resolve(c.Request.Context(), qrID, p.Tag())
	if err != nil {
		h.Fail(c, err)
		return
	}

	switch status {
	case model.QRNotFound:
		h.Render(c, http.StatusNotFound, "not_found.html", gin.H{"Title": "Unknown QR code", "QRID": qrID})
	case model.QRUnassigned:
		c.Redirect(http.StatusFound, "/register/"+qrID)
	default:
		if p.Kind == access.Patient && p.QRID == qrID {
			c.Redirect(http.StatusFound, "/dashboard/"+qrID)
			return
		}
		c.Redirect(http.StatusFound, "/guest/"+qrID)
	}
}

// Guest shows the public projection of a registered patient.
func (h *Handler) Guest(c *gin.Context) {
	view, err := h.patients.GuestView(c.Request.Context(), c.Param("qr"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "guest.html", gin.H{"Title": view.Name, "Guest": view})
}

type addQRRequest struct {
	QRID      string `form:"qr_id" json:"qr_id" binding:"required,qrtoken"`
	MasterKey string `form:"master_key" json:"master_key"`
}

// AddQR seeds a token. Operators use it from their dashboard; scripts use
// the master key.
func (h *Handler) AddQR(c *gin.Context) {
	var req addQRRequest
	bindErr := c.ShouldBind(&req)

	key := c.GetHeader(HeaderMasterKey)
	if key == "" {
		key = req.MasterKey
	}
	p := h.Principal(c)
	if h.gate.Authorize(p, access.SeedQR, "") != nil && !h.keys.VerifyMasterKey(key) {
		if wantsJSON(c) {
			c.JSON(http.StatusUnauthorized, handler.JSONError("Unauthorized"))
			return
		}
		c.Redirect(http.StatusFound, access.LoginPath(access.SeedQR, ""))
		return
	}

	if bindErr != nil {
		h.respondAddQR(c, "", false, apperrors.Validation("a valid QR code is required"))
		return
	}
	created, err := h.service.Seed(c.Request.Context(), req.QRID)
	h.respondAddQR(c, strings.TrimSpace(req.QRID), created, err)
}

func (h *Handler) respondAddQR(c *gin.Context, qrID string, created bool, err error) {
	if wantsJSON(c) || h.Principal(c).Kind != access.Operator {
		if err != nil {
			status := http.StatusInternalServerError
			if apperrors.CodeOf(err) == apperrors.ErrValidation {
				status = http.StatusBadRequest
			}
			c.JSON(status, handler.JSONError(apperrors.MessageOf(err)))
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, handler.JSONOK(gin.H{"qr_id": qrID, "created": created}))
		return
	}

	switch {
	case err != nil:
		h.Sessions.Flash(c, apperrors.MessageOf(err))
	case created:
		h.Sessions.Flash(c, fmt.Sprintf("QR code %s added", qrID))
	default:
		h.Sessions.Flash(c, fmt.Sprintf("QR code %s already exists", qrID))
	}
	c.Redirect(http.StatusFound, "/operator_dashboard")
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") || c.ContentType() == "application/json"
}

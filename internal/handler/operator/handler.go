package operator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/service/analytics"
	"github.com/jwalitptl/qrcare/internal/service/auth"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/service/visit"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/logger"
	"github.com/jwalitptl/qrcare/pkg/validator"
)

type Handler struct {
	*handler.BaseHandler
	auth      *auth.Service
	patients  *patient.Service
	visits    *visit.Service
	analytics *analytics.Service
}

func NewHandler(base *handler.BaseHandler, authSvc *auth.Service, patients *patient.Service,
	visits *visit.Service, analyticsSvc *analytics.Service) *Handler {
	return &Handler{
		BaseHandler: base,
		auth:        authSvc,
		patients:    patients,
		visits:      visits,
		analytics:   analyticsSvc,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter, g handler.Guards) {
	r.GET("/create_operator", h.CreateOperatorForm)
	r.POST("/create_operator", g.Throttle, h.CreateOperator)
	r.GET("/operator_login", h.LoginForm)
	r.POST("/operator_login", g.Throttle, h.Login)

	staff := r.Group("", g.NoStore)
	staff.GET("/operator_dashboard", g.Auth.Require(access.SearchPatients, ""), h.Dashboard)
	staff.GET("/operator_edit/:qr", g.Auth.Require(access.EditClinical, "qr"), h.EditForm)
	staff.POST("/operator_edit/:qr", g.Auth.Require(access.EditClinical, "qr"), h.Edit)
	staff.GET("/patient_visits/:qr", g.Auth.Require(access.ListVisits, "qr"), h.Visits)
	staff.GET("/add_visit/:qr", g.Auth.Require(access.ViewPatient, "qr"), h.AddVisitForm)
	staff.POST("/add_visit/:qr", g.Auth.Require(access.AddVisit, "qr"), h.AddVisit)
	staff.GET("/export_visits/:qr", g.Auth.Require(access.ExportVisits, "qr"), h.Export)
}

type createOperatorForm struct {
	MasterKey string `form:"master_key" binding:"required"`
	Username  string `form:"username" binding:"required,max=64"`
	Password  string `form:"password" binding:"required"`
	FullName  string `form:"full_name" binding:"max=200"`
}

func (h *Handler) CreateOperatorForm(c *gin.Context) {
	h.Render(c, http.StatusOK, "create_operator.html", gin.H{"Title": "Create operator"})
}

func (h *Handler) CreateOperator(c *gin.Context) {
	var form createOperatorForm
	page := gin.H{"Title": "Create operator"}
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "create_operator.html", page, apperrors.Validation(validator.Describe(err)))
		return
	}
	page["Username"] = form.Username
	page["FullName"] = form.FullName

	_, err := h.auth.CreateOperator(c.Request.Context(), form.MasterKey, form.Username, form.Password, form.FullName)
	if errors.Is(err, apperrors.UnauthorizedErr) {
		h.RenderForm(c, "create_operator.html", page, apperrors.Validation("Invalid master key"))
		return
	}
	if err != nil {
		h.RenderForm(c, "create_operator.html", page, err)
		return
	}

	h.Sessions.Flash(c, fmt.Sprintf("Operator %s created, please log in", form.Username))
	c.Redirect(http.StatusFound, "/operator_login")
}

type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func loginPage(username string) gin.H {
	return gin.H{"Title": "Operator login", "Action": "/operator_login", "Username": username}
}

func (h *Handler) LoginForm(c *gin.Context) {
	h.Render(c, http.StatusOK, "login.html", loginPage(""))
}

func (h *Handler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "login.html", loginPage(form.Username), apperrors.Validation("Username and password are required"))
		return
	}

	p, err := h.auth.LoginOperator(c.Request.Context(), form.Username, form.Password)
	if errors.Is(err, apperrors.UnauthorizedErr) {
		h.RenderForm(c, "login.html", loginPage(form.Username), apperrors.Validation("Invalid username or password"))
		return
	}
	if err != nil {
		h.Fail(c, err)
		return
	}
	if err := h.StartSession(c, p); err != nil {
		h.Fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/operator_dashboard")
}

// Dashboard lists patients matching ?q= with the clinic totals on top.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	query := strings.TrimSpace(c.Query("q"))

	patients, err := h.patients.Search(ctx, model.PatientFilter{Query: query})
	if err != nil {
		h.Fail(c, err)
		return
	}
	totals, err := h.analytics.QuickTotals(ctx)
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "operator_dashboard.html", gin.H{
		"Title":    "Operator dashboard",
		"Query":    query,
		"Patients": patients,
		"Totals":   totals,
	})
}

type clinicalForm struct {
	ChronicDiseases  string `form:"chronic_diseases"`
	Medications      string `form:"medications"`
	EmergencyContact string `form:"emergency_contact"`
	OtherInfo        string `form:"other_info"`
}

func (h *Handler) EditForm(c *gin.Context) {
	p, err := h.patients.Get(c.Request.Context(), c.Param("qr"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "operator_edit.html", gin.H{"Title": "Edit patient", "Patient": p})
}

// Edit overwrites the clinical fields and optionally attaches a lab result
// to the patient record.
func (h *Handler) Edit(c *gin.Context) {
	ctx := c.Request.Context()
	qrID := c.Param("qr")
	p, err := h.patients.Get(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}

	var form clinicalForm
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "operator_edit.html", gin.H{"Title": "Edit patient", "Patient": p}, apperrors.Validation(validator.Describe(err)))
		return
	}

	uploads := &handler.Uploads{}
	defer uploads.Close()
	lab, err := uploads.File(c, "lab_file")
	if err == nil && lab != nil {
		_, err = h.patients.AttachRegistrationLab(ctx, qrID, h.Principal(c).Tag(), lab)
	}
	if err != nil {
		h.RenderForm(c, "operator_edit.html", gin.H{"Title": "Edit patient", "Patient": p}, err)
		return
	}

	err = h.patients.UpdateClinical(ctx, qrID, model.ClinicalUpdate{
		ChronicDiseases:  form.ChronicDiseases,
		Medications:      form.Medications,
		EmergencyContact: form.EmergencyContact,
		OtherInfo:        form.OtherInfo,
	})
	if err != nil {
		h.Fail(c, err)
		return
	}

	h.Sessions.Flash(c, "Patient updated")
	c.Redirect(http.StatusFound, "/operator_dashboard")
}

func (h *Handler) Visits(c *gin.Context) {
	ctx := c.Request.Context()
	qrID := c.Param("qr")
	p, err := h.patients.Get(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	visits, err := h.visits.ListVisits(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "patient_visits.html", gin.H{"Title": "Visits", "Patient": p, "Visits": visits})
}

func (h *Handler) AddVisitForm(c *gin.Context) {
	qrID := c.Param("qr")
	p, err := h.patients.Get(c.Request.Context(), qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "add_visit.html", gin.H{
		"Title":   "Add visit",
		"Patient": p,
		"Action":  "/add_visit/" + qrID,
		"Form":    &handler.VisitForm{},
	})
}

func (h *Handler) AddVisit(c *gin.Context) {
	ctx := c.Request.Context()
	qrID := c.Param("qr")
	p, err := h.patients.Get(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}

	var form handler.VisitForm
	uploads := &handler.Uploads{}
	defer uploads.Close()

	in, err := handler.BindVisit(c, qrID, &form, uploads)
	if err == nil {
		_, err = h.visits.AddVisit(ctx, in)
	}
	if err != nil {
		h.RenderForm(c, "add_visit.html", gin.H{"Title": "Add visit", "Patient": p, "Action": "/add_visit/" + qrID, "Form": &form}, err)
		return
	}

	h.Sessions.Flash(c, "Visit added")
	next := "/patient_visits/" + qrID
	if h.Principal(c).Kind == access.Doctor {
		next = "/doctor/dashboard/" + qrID
	}
	c.Redirect(http.StatusFound, next)
}

// Export streams the visit ledger as CSV, or as a workbook with ?format=xlsx.
func (h *Handler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	qrID := c.Param("qr")
	if _, err := h.patients.Get(ctx, qrID); err != nil {
		h.Fail(c, err)
		return
	}

	var err error
	if c.Query("format") == "xlsx" {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_visits.xlsx", qrID))
		err = h.visits.ExportXLSX(ctx, qrID, c.Writer)
	} else {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_visits.csv", qrID))
		err = h.visits.ExportCSV(ctx, qrID, c.Writer)
	}
	if err != nil {
		// Headers may already be on the wire; all that is left is to log.
		logger.FromContext(ctx).Error().Err(err).Str("qr_id", qrID).Msg("visit export failed")
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Content-Disposition")
			h.Fail(c, err)
		}
	}
}

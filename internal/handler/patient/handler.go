package patient

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/service/auth"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/service/qr"
	"github.com/jwalitptl/qrcare/internal/service/visit"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/validator"
)

type Handler struct {
	*handler.BaseHandler
	service *patient.Service
	visits  *visit.Service
	codes   *qr.Service
	auth    *auth.Service
}

func NewHandler(base *handler.BaseHandler, service *patient.Service, visits *visit.Service,
	codes *qr.Service, authSvc *auth.Service) *Handler {
	return &Handler{
		BaseHandler: base,
		service:     service,
		visits:      visits,
		codes:       codes,
		auth:        authSvc,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter, g handler.Guards) {
	r.GET("/register/:qr", h.RegisterForm)
	r.POST("/register/:qr", g.Throttle, h.Register)
	r.GET("/login/:qr", h.LoginForm)
	r.POST("/login/:qr", g.Throttle, h.Login)

	owner := r.Group("", g.NoStore)
	owner.GET("/dashboard/:qr", g.Auth.Require(access.ViewDashboard, "qr"), h.Dashboard)
	owner.GET("/timeline/:qr", g.Auth.Require(access.ViewTimeline, "qr"), h.Timeline)
	owner.GET("/profile/:qr", g.Auth.Require(access.EditProfile, "qr"), h.ProfileForm)
	owner.POST("/profile/:qr", g.Auth.Require(access.EditProfile, "qr"), h.UpdateProfile)
}

type registerForm struct {
	Username         string `form:"username" binding:"required,max=64"`
	Password         string `form:"password" binding:"required"`
	Name             string `form:"name" binding:"required,max=200"`
	Phone            string `form:"phone" binding:"max=50"`
	Email            string `form:"email" binding:"omitempty,email"`
	Birthdate        string `form:"birthdate" binding:"isodate"`
	Gender           string `form:"gender" binding:"max=20"`
	BloodType        string `form:"blood_type" binding:"bloodtype"`
	MonthlyPills     int    `form:"monthly_pills" binding:"min=0"`
	Medications      string `form:"medications"`
	ChronicDiseases  string `form:"chronic_diseases"`
	EmergencyContact string `form:"emergency_contact"`
	OtherInfo        string `form:"other_info"`
}

// checkUnassigned makes sure qrID can still be registered. It renders the
// response itself and returns false when it cannot.
func (h *Handler) checkUnassigned(c *gin.Context, qrID string) bool {
	code, err := h.codes.Get(c.Request.Context(), qrID)
	if err != nil {
		h.Fail(c, err)
		return false
	}
	if code.Assigned {
		h.Sessions.Flash(c, "This QR code is already registered")
		c.Redirect(http.StatusFound, "/login/"+qrID)
		return false
	}
	return true
}

func (h *Handler) RegisterForm(c *gin.Context) {
	qrID := c.Param("qr")
	if !h.checkUnassigned(c, qrID) {
		return
	}
	h.Render(c, http.StatusOK, "register.html", gin.H{"Title": "Register", "QRID": qrID, "Form": &registerForm{}})
}

func (h *Handler) Register(c *gin.Context) {
	qrID := c.Param("qr")
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "register.html", gin.H{"Title": "Register", "QRID": qrID, "Form": &form},
			apperrors.Validation(validator.Describe(err)))
		return
	}
	birthdate, _ := model.ParseDate(form.Birthdate)

	uploads := &handler.Uploads{}
	defer uploads.Close()
	photo, err := uploads.File(c, "photo")
	if err != nil {
		h.RenderForm(c, "register.html", gin.H{"Title": "Register", "QRID": qrID, "Form": &form}, err)
		return
	}
	labs, err := uploads.Files(c, "lab_files")
	if err != nil {
		h.RenderForm(c, "register.html", gin.H{"Title": "Register", "QRID": qrID, "Form": &form}, err)
		return
	}

	_, err = h.service.Register(c.Request.Context(), &model.Registration{
		QRID:             qrID,
		Username:         form.Username,
		Password:         form.Password,
		Name:             form.Name,
		Phone:            form.Phone,
		Email:            form.Email,
		Birthdate:        birthdate,
		Gender:           form.Gender,
		BloodType:        form.BloodType,
		MonthlyPills:     form.MonthlyPills,
		Medications:      form.Medications,
		ChronicDiseases:  form.ChronicDiseases,
		EmergencyContact: form.EmergencyContact,
		OtherInfo:        form.OtherInfo,
		Photo:            photo,
		Labs:             labs,
	})
	if err != nil {
		h.RenderForm(c, "register.html", gin.H{"Title": "Register", "QRID": qrID, "Form": &form}, err)
		return
	}

	h.Sessions.Flash(c, "Registration successful, please log in")
	c.Redirect(http.StatusFound, "/login/"+qrID)
}

type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func loginPage(qrID, username string) gin.H {
	return gin.H{"Title": "Patient login", "Action": "/login/" + qrID, "Username": username}
}

func (h *Handler) LoginForm(c *gin.Context) {
	h.Render(c, http.StatusOK, "login.html", loginPage(c.Param("qr"), ""))
}

func (h *Handler) Login(c *gin.Context) {
	qrID := c.Param("qr")
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "login.html", loginPage(qrID, form.Username), apperrors.Validation("Username and password are required"))
		return
	}

	p, err := h.auth.LoginPatient(c.Request.Context(), qrID, form.Username, form.Password)
	if errors.Is(err, apperrors.UnauthorizedErr) {
		h.RenderForm(c, "login.html", loginPage(qrID, form.Username), apperrors.Validation("Invalid username or password"))
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
	c.Redirect(http.StatusFound, "/dashboard/"+qrID)
}

func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	qrID := c.Param("qr")

	p, err := h.service.Get(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	visits, err := h.visits.ListVisits(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	labs, err := h.service.ListLabs(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "dashboard.html", gin.H{"Title": "Dashboard", "Patient": p, "Visits": visits, "Labs": labs})
}

func (h *Handler) Timeline(c *gin.Context) {
	qrID := c.Param("qr")
	entries, err := h.service.Timeline(c.Request.Context(), qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "timeline.html", gin.H{"Title": "Timeline", "QRID": qrID, "Entries": entries})
}

type profileForm struct {
	Phone            string `form:"phone" binding:"max=50"`
	Email            string `form:"email" binding:"omitempty,email"`
	EmergencyContact string `form:"emergency_contact"`
}

func (h *Handler) ProfileForm(c *gin.Context) {
	qrID := c.Param("qr")
	p, err := h.service.Get(c.Request.Context(), qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "profile.html", gin.H{"Title": "Profile", "QRID": qrID, "Patient": p})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	qrID := c.Param("qr")
	p, err := h.service.Get(ctx, qrID)
	if err != nil {
		h.Fail(c, err)
		return
	}

	var form profileForm
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "profile.html", gin.H{"Title": "Profile", "QRID": qrID, "Patient": p},
			apperrors.Validation(validator.Describe(err)))
		return
	}

	uploads := &handler.Uploads{}
	defer uploads.Close()
	photo, err := uploads.File(c, "photo")
	if err == nil && photo != nil {
		_, err = h.service.UpdatePhoto(ctx, qrID, photo)
	}
	if err != nil {
		h.RenderForm(c, "profile.html", gin.H{"Title": "Profile", "QRID": qrID, "Patient": p}, err)
		return
	}

	err = h.service.UpdateContact(ctx, qrID, model.ContactUpdate{
		Phone:            form.Phone,
		Email:            form.Email,
		EmergencyContact: form.EmergencyContact,
	})
	if err != nil {
		h.Fail(c, err)
		return
	}

	h.Sessions.Flash(c, "Profile updated")
	c.Redirect(http.StatusFound, "/dashboard/"+qrID)
}

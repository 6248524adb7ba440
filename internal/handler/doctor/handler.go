package doctor

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/handler"
	"github.com/jwalitptl/qrcare/internal/service/auth"
	"github.com/jwalitptl/qrcare/internal/service/patient"
	"github.com/jwalitptl/qrcare/internal/service/visit"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/validator"
)

type Handler struct {
	*handler.BaseHandler
	auth     *auth.Service
	patients *patient.Service
	visits   *visit.Service
}

func NewHandler(base *handler.BaseHandler, authSvc *auth.Service, patients *patient.Service, visits *visit.Service) *Handler {
	return &Handler{
		BaseHandler: base,
		auth:        authSvc,
		patients:    patients,
		visits:      visits,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter, g handler.Guards) {
	doctors := r.Group("/doctor")
	{
		doctors.GET("/register", h.RegisterForm)
		doctors.POST("/register", g.Throttle, h.Register)
		doctors.GET("/login/:qr", h.LoginForm)
		doctors.POST("/login/:qr", g.Throttle, h.Login)
		doctors.GET("/dashboard/:qr", g.NoStore, g.Auth.Require(access.ViewDoctorDesk, "qr"), h.Dashboard)
		doctors.POST("/dashboard/:qr", g.NoStore, g.Auth.Require(access.UploadDoctorLab, "qr"), h.AddVisit)
	}
}

type registerForm struct {
	Username  string `form:"username" binding:"required,max=64"`
	Password  string `form:"password" binding:"required"`
	FullName  string `form:"full_name" binding:"required,max=200"`
	Email     string `form:"email" binding:"required,email"`
	Hospital  string `form:"hospital" binding:"max=200"`
	Specialty string `form:"specialty" binding:"max=200"`
}

func (h *Handler) RegisterForm(c *gin.Context) {
	h.Render(c, http.StatusOK, "doctor_register.html", gin.H{"Title": "Doctor registration", "Form": &registerForm{}})
}

func (h *Handler) Register(c *gin.Context) {
	var form registerForm
	page := gin.H{"Title": "Doctor registration", "Form": &form}
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "doctor_register.html", page, apperrors.Validation(validator.Describe(err)))
		return
	}

	_, err := h.auth.RegisterDoctor(c.Request.Context(), auth.DoctorRegistration{
		Username:  form.Username,
		Password:  form.Password,
		FullName:  form.FullName,
		Email:     form.Email,
		Hospital:  form.Hospital,
		Specialty: form.Specialty,
	})
	if err != nil {
		h.RenderForm(c, "doctor_register.html", page, err)
		return
	}

	h.Sessions.Flash(c, "Registration successful. Scan a patient's QR code to log in.")
	c.Redirect(http.StatusFound, "/")
}

type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func loginPage(qrID, username string) gin.H {
	return gin.H{"Title": "Doctor login", "Action": "/doctor/login/" + qrID, "Username": username}
}

func (h *Handler) LoginForm(c *gin.Context) {
	h.Render(c, http.StatusOK, "login.html", loginPage(c.Param("qr"), ""))
}

// Login authenticates the doctor for the patient behind :qr only.
func (h *Handler) Login(c *gin.Context) {
	qrID := c.Param("qr")
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.RenderForm(c, "login.html", loginPage(qrID, form.Username), apperrors.Validation("Username and password are required"))
		return
	}

	p, err := h.auth.LoginDoctor(c.Request.Context(), qrID, form.Username, form.Password)
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
	c.Redirect(http.StatusFound, "/doctor/dashboard/"+qrID)
}

func (h *Handler) page(c *gin.Context, qrID string, form *handler.VisitForm) (gin.H, error) {
	ctx := c.Request.Context()
	p, err := h.patients.Get(ctx, qrID)
	if err != nil {
		return nil, err
	}
	visits, err := h.visits.ListVisits(ctx, qrID)
	if err != nil {
		return nil, err
	}
	labs, err := h.patients.ListLabs(ctx, qrID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"Title":   p.Name,
		"Patient": p,
		"Visits":  visits,
		"Labs":    labs,
		"Action":  "/doctor/dashboard/" + qrID,
		"Form":    form,
	}, nil
}

func (h *Handler) Dashboard(c *gin.Context) {
	data, err := h.page(c, c.Param("qr"), &handler.VisitForm{})
	if err != nil {
		h.Fail(c, err)
		return
	}
	h.Render(c, http.StatusOK, "doctor_dashboard.html", data)
}

// AddVisit records a visit, with optional lab files, from the doctor desk.
func (h *Handler) AddVisit(c *gin.Context) {
	qrID := c.Param("qr")
	var form handler.VisitForm
	uploads := &handler.Uploads{}
	defer uploads.Close()

	in, err := handler.BindVisit(c, qrID, &form, uploads)
	if err == nil {
		_, err = h.visits.AddVisit(c.Request.Context(), in)
	}
	if err != nil {
		data, pageErr := h.page(c, qrID, &form)
		if pageErr != nil {
			h.Fail(c, pageErr)
			return
		}
		h.RenderForm(c, "doctor_dashboard.html", data, err)
		return
	}

	h.Sessions.Flash(c, "Visit added")
	c.Redirect(http.StatusFound, "/doctor/dashboard/"+qrID)
}

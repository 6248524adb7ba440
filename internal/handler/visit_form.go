package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/validator"
)

// VisitForm is the shared add-visit form of operators and doctors.
type VisitForm struct {
	VisitDate string `form:"visit_date" binding:"isodate"`
	Diagnosis string `form:"diagnosis"`
	Treatment string `form:"treatment"`
	Medicines string `form:"medicines"`
}

// BindVisit binds the visit form and its lab uploads. The caller must close uploads.
func BindVisit(c *gin.Context, qrID string, form *VisitForm, uploads *Uploads) (*model.NewVisit, error) {
	if err := c.ShouldBind(form); err != nil {
		return nil, apperrors.Validation(validator.Describe(err))
	}
	date, err := model.ParseDate(form.VisitDate)
	if err != nil {
		return nil, apperrors.Validation("visit_date must be a date in YYYY-MM-DD format")
	}
	files, err := uploads.Files(c, "lab_files")
	if err != nil {
		return nil, err
	}
	return &model.NewVisit{
		QRID:        qrID,
		VisitDate:   date,
		Diagnosis:   form.Diagnosis,
		Treatment:   form.Treatment,
		Medicines:   form.Medicines,
		CreatedBy:   access.FromContext(c.Request.Context()).Tag(),
		Attachments: files,
	}, nil
}

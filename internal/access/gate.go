package access

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/jwalitptl/qrcare/pkg/auth"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

// Action is a protected operation.
type Action string

const (
	ViewDashboard   Action = "view_dashboard"
	ViewTimeline    Action = "view_timeline"
	EditProfile     Action = "edit_profile"
	SearchPatients  Action = "search_patients"
	EditClinical    Action = "edit_clinical"
	ListVisits      Action = "list_visits"
	AddVisit        Action = "add_visit"
	ExportVisits    Action = "export_visits"
	ViewPatient     Action = "view_patient"
	ViewAnalytics   Action = "view_analytics"
	SeedQR          Action = "seed_qr"
	DownloadLab     Action = "download_lab"
	ViewDoctorDesk  Action = "view_doctor_dashboard"
	UploadDoctorLab Action = "upload_doctor_lab"
)

var ErrDenied = errors.New("access denied")

type rule struct {
	patient  bool // owner of the requested qr
	operator bool
	doctor   bool // capability scoped to the requested qr
}

var rules = map[Action]rule{
	ViewDashboard:   {patient: true},
	ViewTimeline:    {patient: true},
	EditProfile:     {patient: true},
	SearchPatients:  {operator: true},
	EditClinical:    {operator: true},
	ListVisits:      {operator: true},
	AddVisit:        {operator: true, doctor: true},
	ExportVisits:    {operator: true},
	ViewPatient:     {operator: true, doctor: true},
	ViewAnalytics:   {operator: true},
	SeedQR:          {operator: true},
	DownloadLab:     {patient: true, operator: true, doctor: true},
	ViewDoctorDesk:  {doctor: true},
	UploadDoctorLab: {doctor: true},
}

// CapabilityVerifier checks doctor capabilities.
type CapabilityVerifier interface {
	Verify(token, qrID string) (*auth.CapabilityClaims, error)
}

// Gate decides whether a principal may perform an action on a QR token.
type Gate struct {
	caps CapabilityVerifier
}

func NewGate(caps CapabilityVerifier) *Gate {
	return &Gate{caps: caps}
}

// Authorize returns nil when p may perform action on qrID, or an Unauthorized
// error otherwise. qrID may be empty for actions that are not QR-scoped.
func (g *Gate) Authorize(p *Principal, action Action, qrID string) error {
	r, ok := rules[action]
	if !ok {
		return apperrors.Unauthorized(fmt.Errorf("%w: unknown action %q", ErrDenied, action))
	}
	if !p.Authenticated() {
		return apperrors.Unauthorized(ErrDenied)
	}

	switch p.Kind {
	case Operator:
		if r.operator {
			return nil
		}
	case Patient:
		if r.patient && qrID != "" && p.QRID == qrID {
			return nil
		}
	case Doctor:
		if r.doctor && qrID != "" && p.QRID == qrID {
			if _, err := g.caps.Verify(p.Capability, qrID); err != nil {
				return apperrors.Unauthorized(err)
			}
			return nil
		}
	}
	return apperrors.Unauthorized(fmt.Errorf("%w: %s may not %s on %q", ErrDenied, p.Kind, action, qrID))
}

// LoginPath is where a denied caller is sent to authenticate for action.
func LoginPath(action Action, qrID string) string {
	r := rules[action]
	q := url.PathEscape(qrID)
	switch {
	case r.patient && qrID != "":
		return "/login/" + q
	case r.doctor && !r.operator && qrID != "":
		return "/doctor/login/" + q
	case r.operator:
		return "/operator_login"
	case qrID != "":
		return "/login/" + q
	default:
		return "/"
	}
}

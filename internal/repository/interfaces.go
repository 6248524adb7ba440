package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
)

// All repository interfaces in one file
type (
	// QRRepository tracks the QR token lifecycle and scan counters
	QRRepository interface {
		// Seed inserts an unassigned token; it reports false if the token already existed.
		Seed(ctx context.Context, id string) (bool, error)
		Get(ctx context.Context, id string) (*model.QRCode, error)
		// RecordScan atomically increments scan_count and appends a scan event.
		RecordScan(ctx context.Context, id, scannedBy string, at time.Time) (*model.QRCode, error)
		ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	}

	// PatientRepository stores patient records keyed by QR token
	PatientRepository interface {
		// CreateWithAssignment inserts the patient and its registration labs and
		// flips the token to assigned, all in one transaction.
		CreateWithAssignment(ctx context.Context, patient *model.Patient, labs []*model.LabAttachment) error
		GetByQR(ctx context.Context, qrID string) (*model.Patient, error)
		GetByQRAndUsername(ctx context.Context, qrID, username string) (*model.Patient, error)
		Search(ctx context.Context, filter model.PatientFilter) ([]*model.PatientSummary, error)
		UpdateClinical(ctx context.Context, qrID string, update model.ClinicalUpdate) error
		UpdateContact(ctx context.Context, qrID string, update model.ContactUpdate) error
		// UpdatePhoto returns the previous photo file name.
		UpdatePhoto(ctx context.Context, qrID, fileName string) (string, error)
		AddLab(ctx context.Context, lab *model.LabAttachment) error
		ListLabs(ctx context.Context, qrID string) ([]*model.LabAttachment, error)
		GetLabByFile(ctx context.Context, fileName string) (*model.LabAttachment, error)
	}

	// VisitRepository is the append-only visit ledger
	VisitRepository interface {
		// Create inserts the visit and its attachments in one transaction.
		Create(ctx context.Context, visit *model.Visit) error
		// ListByQR returns visits newest first (visit_date DESC, id DESC).
		ListByQR(ctx context.Context, qrID string) ([]*model.Visit, error)
	}

	OperatorRepository interface {
		Create(ctx context.Context, operator *model.Operator) error
		GetByUsername(ctx context.Context, username string) (*model.Operator, error)
	}

	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		GetByUsername(ctx context.Context, username string) (*model.Doctor, error)
		GetByID(ctx context.Context, id int64) (*model.Doctor, error)
	}

	// AnalyticsRepository computes read-only rollups on demand
	AnalyticsRepository interface {
		Summary(ctx context.Context, now time.Time) (*model.Analytics, error)
		QuickTotals(ctx context.Context) (*model.QuickTotals, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Store groups the repositories of one backend.
type Store struct {
	QR        QRRepository
	Patients  PatientRepository
	Visits    VisitRepository
	Operators OperatorRepository
	Doctors   DoctorRepository
	Analytics AnalyticsRepository
	Health    Pinger
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

const patientColumns = `
	id, qr_id, username, password_hash, name, phone, email, birthdate, gender,
	blood_type, monthly_pills, medications, chronic_diseases, emergency_contact,
	other_info, photo_file, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) CreateWithAssignment(ctx context.Context, patient *model.Patient, labs []*model.LabAttachment) error {
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Claim the token first so a concurrent registration for the same QR
		// blocks on the row lock and then sees assigned = TRUE.
		res, err := tx.ExecContext(ctx,
			`UPDATE qr_codes SET assigned = TRUE WHERE qr_id = $1 AND assigned = FALSE`,
			patient.QRID,
		)
		if err != nil {
			return apperrors.Storage(fmt.Errorf("failed to assign qr code: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Storage(err)
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM qr_codes WHERE qr_id = $1)`, patient.QRID); err != nil {
				return apperrors.Storage(err)
			}
			if !exists {
				return apperrors.NotFound("qr code", nil)
			}
			return apperrors.Conflict("QR code already registered", nil)
		}

		query := `
			INSERT INTO patients (
				qr_id, username, password_hash, name, phone, email, birthdate, gender,
				blood_type, monthly_pills, medications, chronic_diseases, emergency_contact,
				other_info, photo_file, created_at, updated_at
			) VALUES (
				:qr_id, :username, :password_hash, :name, :phone, :email, :birthdate, :gender,
				:blood_type, :monthly_pills, :medications, :chronic_diseases, :emergency_contact,
				:other_info, :photo_file, :created_at, :updated_at
			) RETURNING id
		`
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return apperrors.Storage(fmt.Errorf("failed to prepare patient insert: %w", err))
		}
		defer stmt.Close()

		if err := stmt.GetContext(ctx, &patient.ID, patient); err != nil {
			return patientConflict(err)
		}

		for _, lab := range labs {
			lab.QRID = patient.QRID
			if err := insertLab(ctx, tx, lab); err != nil {
				return err
			}
		}
		return nil
	})
}

// patientConflict names the duplicated field so the form can say which one.
func patientConflict(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return apperrors.Storage(fmt.Errorf("failed to create patient: %w", err))
	}
	switch constraint {
	case "patients_username_key":
		return apperrors.Conflict("username already used", err)
	case "patients_qr_id_key":
		return apperrors.Conflict("QR code already registered", err)
	default:
		return apperrors.Conflict("username or QR already used", err)
	}
}

func (r *patientRepository) GetByQR(ctx context.Context, qrID string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE qr_id = $1`
	var patient model.Patient
	if err := r.GetDB().GetContext(ctx, &patient, query, qrID); err != nil {
		return nil, classify(err, "patient")
	}
	return &patient, nil
}

func (r *patientRepository) GetByQRAndUsername(ctx context.Context, qrID, username string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE qr_id = $1 AND username = $2`
	var patient model.Patient
	if err := r.GetDB().GetContext(ctx, &patient, query, qrID, username); err != nil {
		return nil, classify(err, "patient")
	}
	return &patient, nil
}

func (r *patientRepository) Search(ctx context.Context, filter model.PatientFilter) ([]*model.PatientSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultSearchLimit
	}

	query := `
		SELECT p.qr_id, p.name, p.phone, p.blood_type, COUNT(v.id) AS visit_count
		FROM patients p
		LEFT JOIN visits v ON v.qr_id = p.qr_id
		WHERE $1 = '' OR p.name ILIKE $2 ESCAPE '\' OR p.qr_id ILIKE $2 ESCAPE '\' OR p.phone ILIKE $2 ESCAPE '\'
		GROUP BY p.id
		ORDER BY p.name, p.qr_id
		LIMIT $3
	`
	pattern := "%" + escapeLike(filter.Query) + "%"

	var rows []*model.PatientSummary
	if err := r.GetDB().SelectContext(ctx, &rows, query, filter.Query, pattern, limit); err != nil {
		return nil, classify(fmt.Errorf("failed to search patients: %w", err), "patient")
	}
	return rows, nil
}

func (r *patientRepository) UpdateClinical(ctx context.Context, qrID string, update model.ClinicalUpdate) error {
	query := `
		UPDATE patients
		SET chronic_diseases = $1, medications = $2, emergency_contact = $3, other_info = $4, updated_at = $5
		WHERE qr_id = $6
	`
	res, err := r.GetDB().ExecContext(ctx, query,
		update.ChronicDiseases, update.Medications, update.EmergencyContact, update.OtherInfo,
		time.Now().UTC(), qrID,
	)
	return expectOne(res, err, "patient")
}

func (r *patientRepository) UpdateContact(ctx context.Context, qrID string, update model.ContactUpdate) error {
	query := `
		UPDATE patients
		SET phone = $1, email = $2, emergency_contact = $3, updated_at = $4
		WHERE qr_id = $5
	`
	res, err := r.GetDB().ExecContext(ctx, query,
		update.Phone, update.Email, update.EmergencyContact, time.Now().UTC(), qrID,
	)
	return expectOne(res, err, "patient")
}

func (r *patientRepository) UpdatePhoto(ctx context.Context, qrID, fileName string) (string, error) {
	var previous string
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &previous,
			`SELECT photo_file FROM patients WHERE qr_id = $1 FOR UPDATE`, qrID); err != nil {
			return classify(err, "patient")
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE patients SET photo_file = $1, updated_at = $2 WHERE qr_id = $3`,
			fileName, time.Now().UTC(), qrID,
		)
		if err != nil {
			return apperrors.Storage(fmt.Errorf("failed to update photo: %w", err))
		}
		return nil
	})
	return previous, err
}

func (r *patientRepository) AddLab(ctx context.Context, lab *model.LabAttachment) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return insertLab(ctx, tx, lab)
	})
}

func (r *patientRepository) ListLabs(ctx context.Context, qrID string) ([]*model.LabAttachment, error) {
	query := `
		SELECT id, qr_id, visit_id, kind, file_name, uploaded_by, uploaded_at
		FROM lab_attachments
		WHERE qr_id = $1 AND visit_id IS NULL
		ORDER BY uploaded_at DESC, id DESC
	`
	var labs []*model.LabAttachment
	if err := r.GetDB().SelectContext(ctx, &labs, query, qrID); err != nil {
		return nil, classify(err, "lab attachment")
	}
	return labs, nil
}

func (r *patientRepository) GetLabByFile(ctx context.Context, fileName string) (*model.LabAttachment, error) {
	query := `
		SELECT id, qr_id, visit_id, kind, file_name, uploaded_by, uploaded_at
		FROM lab_attachments WHERE file_name = $1
		ORDER BY id DESC LIMIT 1
	`
	var lab model.LabAttachment
	if err := r.GetDB().GetContext(ctx, &lab, query, fileName); err != nil {
		return nil, classify(err, "lab attachment")
	}
	return &lab, nil
}

func insertLab(ctx context.Context, tx *sqlx.Tx, lab *model.LabAttachment) error {
	if lab.UploadedAt.IsZero() {
		lab.UploadedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO lab_attachments (qr_id, visit_id, kind, file_name, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := tx.GetContext(ctx, &lab.ID, query,
		lab.QRID, lab.VisitID, lab.Kind, lab.FileName, lab.UploadedBy, lab.UploadedAt,
	)
	if err != nil {
		return apperrors.Storage(fmt.Errorf("failed to insert lab attachment: %w", err))
	}
	return nil
}

func expectOne(res interface{ RowsAffected() (int64, error) }, err error, resource string) error {
	if err != nil {
		return classify(err, resource)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage(err)
	}
	if n == 0 {
		return apperrors.NotFound(resource, nil)
	}
	return nil
}

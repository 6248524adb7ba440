package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type operatorRepository struct {
	BaseRepository
}

func NewOperatorRepository(base BaseRepository) repository.OperatorRepository {
	return &operatorRepository{base}
}

func (r *operatorRepository) Create(ctx context.Context, operator *model.Operator) error {
	operator.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO operators (username, password_hash, full_name, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.GetDB().GetContext(ctx, &operator.ID, query,
		operator.Username, operator.PasswordHash, operator.FullName, operator.CreatedAt,
	)
	if _, dup := uniqueConstraint(err); dup {
		return apperrors.Conflict("username already used", err)
	}
	if err != nil {
		return apperrors.Storage(fmt.Errorf("failed to create operator: %w", err))
	}
	return nil
}

func (r *operatorRepository) GetByUsername(ctx context.Context, username string) (*model.Operator, error) {
	query := `SELECT id, username, password_hash, full_name, created_at FROM operators WHERE username = $1`
	var operator model.Operator
	if err := r.GetDB().GetContext(ctx, &operator, query, username); err != nil {
		return nil, classify(err, "operator")
	}
	return &operator, nil
}

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	doctor.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO doctors (username, password_hash, full_name, email, hospital, specialty, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.GetDB().GetContext(ctx, &doctor.ID, query,
		doctor.Username, doctor.PasswordHash, doctor.FullName, doctor.Email,
		doctor.Hospital, doctor.Specialty, doctor.CreatedAt,
	)
	if constraint, dup := uniqueConstraint(err); dup {
		if constraint == "doctors_email_key" {
			return apperrors.Conflict("email already used", err)
		}
		return apperrors.Conflict("username already used", err)
	}
	if err != nil {
		return apperrors.Storage(fmt.Errorf("failed to create doctor: %w", err))
	}
	return nil
}

const doctorColumns = `id, username, password_hash, full_name, email, hospital, specialty, created_at`

func (r *doctorRepository) GetByUsername(ctx context.Context, username string) (*model.Doctor, error) {
	var doctor model.Doctor
	if err := r.GetDB().GetContext(ctx, &doctor,
		`SELECT `+doctorColumns+` FROM doctors WHERE username = $1`, username); err != nil {
		return nil, classify(err, "doctor")
	}
	return &doctor, nil
}

func (r *doctorRepository) GetByID(ctx context.Context, id int64) (*model.Doctor, error) {
	var doctor model.Doctor
	if err := r.GetDB().GetContext(ctx, &doctor,
		`SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id); err != nil {
		return nil, classify(err, "doctor")
	}
	return &doctor, nil
}

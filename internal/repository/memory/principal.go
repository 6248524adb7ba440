package memory

import (
	"context"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type operatorRepository struct {
	*db
}

func (r *operatorRepository) Create(_ context.Context, operator *model.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operators[operator.Username]; ok {
		return apperrors.Conflict("username already used", nil)
	}
	operator.ID = r.nextID()
	operator.CreatedAt = time.Now().UTC()
	c := *operator
	r.operators[operator.Username] = &c
	return nil
}

func (r *operatorRepository) GetByUsername(_ context.Context, username string) (*model.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.operators[username]
	if !ok {
		return nil, apperrors.NotFound("operator", nil)
	}
	c := *o
	return &c, nil
}

type doctorRepository struct {
	*db
}

func (r *doctorRepository) Create(_ context.Context, doctor *model.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[doctor.Username]; ok {
		return apperrors.Conflict("username already used", nil)
	}
	if _, ok := r.doctorMail[doctor.Email]; ok {
		return apperrors.Conflict("email already used", nil)
	}
	doctor.ID = r.nextID()
	doctor.CreatedAt = time.Now().UTC()
	c := *doctor
	r.doctors[doctor.Username] = &c
	r.doctorMail[doctor.Email] = doctor.Username
	return nil
}

func (r *doctorRepository) GetByUsername(_ context.Context, username string) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[username]
	if !ok {
		return nil, apperrors.NotFound("doctor", nil)
	}
	c := *d
	return &c, nil
}

func (r *doctorRepository) GetByID(_ context.Context, id int64) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.doctors {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("doctor", nil)
}

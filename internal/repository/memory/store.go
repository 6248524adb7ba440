// Package memory is a mutex-guarded in-process backend. It enforces the same
// uniqueness and atomicity rules as the postgres backend and is used for
// local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
)

type db struct {
	mu sync.RWMutex

	qrCodes    map[string]*model.QRCode
	scanEvents []model.ScanEvent

	patients   map[string]*model.Patient // by qr_id
	usernames  map[string]string         // patient username -> qr_id
	labs       []*model.LabAttachment
	visits     []*model.Visit
	operators  map[string]*model.Operator
	doctors    map[string]*model.Doctor
	doctorMail map[string]string

	seq int64
}

func (d *db) nextID() int64 {
	d.seq++
	return d.seq
}

// NewStore returns a fresh, empty in-memory store.
func NewStore() *repository.Store {
	d := &db{
		qrCodes:    make(map[string]*model.QRCode),
		patients:   make(map[string]*model.Patient),
		usernames:  make(map[string]string),
		operators:  make(map[string]*model.Operator),
		doctors:    make(map[string]*model.Doctor),
		doctorMail: make(map[string]string),
	}
	return &repository.Store{
		QR:        &qrRepository{d},
		Patients:  &patientRepository{d},
		Visits:    &visitRepository{d},
		Operators: &operatorRepository{d},
		Doctors:   &doctorRepository{d},
		Analytics: &analyticsRepository{d},
		Health:    d,
	}
}

func (d *db) Ping(context.Context) error { return nil }

func clonePatient(p *model.Patient) *model.Patient {
	c := *p
	if p.Birthdate != nil {
		b := *p.Birthdate
		c.Birthdate = &b
	}
	return &c
}

func cloneLab(l *model.LabAttachment) *model.LabAttachment {
	c := *l
	if l.VisitID != nil {
		id := *l.VisitID
		c.VisitID = &id
	}
	return &c
}

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type patientRepository struct {
	*db
}

func (r *patientRepository) CreateWithAssignment(_ context.Context, patient *model.Patient, labs []*model.LabAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	qr, ok := r.qrCodes[patient.QRID]
	if !ok {
		return apperrors.NotFound("qr code", nil)
	}
	if qr.Assigned {
		return apperrors.Conflict("QR code already registered", nil)
	}
	if _, taken := r.usernames[patient.Username]; taken {
		return apperrors.Conflict("username already used", nil)
	}

	now := time.Now().UTC()
	patient.ID = r.nextID()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	// All checks passed; the remaining mutations cannot fail.
	qr.Assigned = true
	r.patients[patient.QRID] = clonePatient(patient)
	r.usernames[patient.Username] = patient.QRID
	for _, lab := range labs {
		lab.QRID = patient.QRID
		r.insertLab(lab, now)
	}
	return nil
}

func (r *patientRepository) GetByQR(_ context.Context, qrID string) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[qrID]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	return clonePatient(p), nil
}

func (r *patientRepository) GetByQRAndUsername(_ context.Context, qrID, username string) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[qrID]
	if !ok || p.Username != username {
		return nil, apperrors.NotFound("patient", nil)
	}
	return clonePatient(p), nil
}

func (r *patientRepository) Search(_ context.Context, filter model.PatientFilter) ([]*model.PatientSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultSearchLimit
	}
	needle := strings.ToLower(filter.Query)

	visitCounts := make(map[string]int64)
	for _, v := range r.visits {
		visitCounts[v.QRID]++
	}

	var out []*model.PatientSummary
	for _, p := range r.patients {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.QRID), needle) &&
			!strings.Contains(strings.ToLower(p.Phone), needle) {
			continue
		}
		out = append(out, &model.PatientSummary{
			QRID:       p.QRID,
			Name:       p.Name,
			Phone:      p.Phone,
			BloodType:  p.BloodType,
			VisitCount: visitCounts[p.QRID],
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].QRID < out[j].QRID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *patientRepository) UpdateClinical(_ context.Context, qrID string, update model.ClinicalUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[qrID]
	if !ok {
		return apperrors.NotFound("patient", nil)
	}
	p.ChronicDiseases = update.ChronicDiseases
	p.Medications = update.Medications
	p.EmergencyContact = update.EmergencyContact
	p.OtherInfo = update.OtherInfo
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *patientRepository) UpdateContact(_ context.Context, qrID string, update model.ContactUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[qrID]
	if !ok {
		return apperrors.NotFound("patient", nil)
	}
	p.Phone = update.Phone
	p.Email = update.Email
	p.EmergencyContact = update.EmergencyContact
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *patientRepository) UpdatePhoto(_ context.Context, qrID, fileName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[qrID]
	if !ok {
		return "", apperrors.NotFound("patient", nil)
	}
	previous := p.PhotoFile
	p.PhotoFile = fileName
	p.UpdatedAt = time.Now().UTC()
	return previous, nil
}

func (r *patientRepository) AddLab(_ context.Context, lab *model.LabAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[lab.QRID]; !ok {
		return apperrors.NotFound("patient", nil)
	}
	r.insertLab(lab, time.Now().UTC())
	return nil
}

func (r *patientRepository) ListLabs(_ context.Context, qrID string) ([]*model.LabAttachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.LabAttachment
	for i := len(r.labs) - 1; i >= 0; i-- {
		l := r.labs[i]
		if l.QRID == qrID && l.VisitID == nil {
			out = append(out, cloneLab(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (r *patientRepository) GetLabByFile(_ context.Context, fileName string) (*model.LabAttachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.labs) - 1; i >= 0; i-- {
		if r.labs[i].FileName == fileName {
			return cloneLab(r.labs[i]), nil
		}
	}
	return nil, apperrors.NotFound("lab attachment", nil)
}

// insertLab must be called with the write lock held.
func (d *db) insertLab(lab *model.LabAttachment, now time.Time) {
	lab.ID = d.nextID()
	if lab.UploadedAt.IsZero() {
		lab.UploadedAt = now
	}
	d.labs = append(d.labs, cloneLab(lab))
}

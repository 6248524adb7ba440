package patient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/qrcare/internal/email"
	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/internal/storage"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/logger"
	"github.com/jwalitptl/qrcare/pkg/metrics"
	"github.com/jwalitptl/qrcare/pkg/security"
)

type Service struct {
	patients repository.PatientRepository
	visits   repository.VisitRepository
	files    *storage.Store
	hasher   security.PasswordHasher
	emailSvc email.Service
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(patients repository.PatientRepository, visits repository.VisitRepository,
	files *storage.Store, hasher security.PasswordHasher, emailSvc email.Service, m *metrics.Metrics) *Service {
	return &Service{
		patients: patients,
		visits:   visits,
		files:    files,
		hasher:   hasher,
		emailSvc: emailSvc,
		metrics:  m,
		now:      time.Now,
	}
}

// Register creates the patient for reg.QRID and assigns the token. Uploaded
// files are removed again if the record cannot be committed.
func (s *Service) Register(ctx context.Context, reg *model.Registration) (*model.Patient, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Username == "" || reg.Password == "" || reg.Name == "" {
		return nil, apperrors.Validation("username, password and name are required")
	}
	if reg.Photo != nil {
		if err := s.files.Validate(storage.Photos, reg.Photo); err != nil {
			return nil, err
		}
	}
	for _, lab := range reg.Labs {
		if err := s.files.Validate(storage.Labs, lab); err != nil {
			return nil, err
		}
	}

	hash, err := s.hashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	patient := &model.Patient{
		QRID:             reg.QRID,
		Username:         reg.Username,
		PasswordHash:     hash,
		Name:             reg.Name,
		Phone:            reg.Phone,
		Email:            reg.Email,
		Birthdate:        reg.Birthdate,
		Gender:           reg.Gender,
		BloodType:        strings.ToUpper(strings.TrimSpace(reg.BloodType)),
		MonthlyPills:     reg.MonthlyPills,
		Medications:      reg.Medications,
		ChronicDiseases:  reg.ChronicDiseases,
		EmergencyContact: reg.EmergencyContact,
		OtherInfo:        reg.OtherInfo,
	}

	var written []storedFile
	if reg.Photo != nil {
		name, err := s.files.Save(storage.Photos, reg.QRID, reg.Photo)
		if err != nil {
			return nil, err
		}
		patient.PhotoFile = name
		written = append(written, storedFile{storage.Photos, name})
	}

	labs := make([]*model.LabAttachment, 0, len(reg.Labs))
	for _, up := range reg.Labs {
		name, err := s.files.Save(storage.Labs, reg.QRID, up)
		if err != nil {
			s.discard(ctx, written)
			return nil, err
		}
		written = append(written, storedFile{storage.Labs, name})
		labs = append(labs, &model.LabAttachment{
			QRID:       reg.QRID,
			Kind:       model.AttachmentRegistration,
			FileName:   name,
			UploadedBy: "patient:" + reg.Username,
		})
	}

	if err := s.patients.CreateWithAssignment(ctx, patient, labs); err != nil {
		s.discard(ctx, written)
		return nil, fmt.Errorf("failed to register patient: %w", err)
	}

	for _, f := range written {
		s.metrics.Uploads.WithLabelValues(string(f.category)).Inc()
	}
	s.metrics.Registrations.Inc()
	logger.FromContext(ctx).Info().
		Str("qr_id", patient.QRID).
		Int64("patient_id", patient.ID).
		Msg("patient registered")

	if err := s.emailSvc.SendWelcome(ctx, patient.Email, patient.Name, patient.QRID); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("qr_id", patient.QRID).Msg("failed to send welcome email")
	}

	return patient, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return "", apperrors.Validation(err.Error())
	}
	if err != nil {
		return "", apperrors.Internal(err)
	}
	return hash, nil
}

type storedFile struct {
	category storage.Category
	name     string
}

func (s *Service) discard(ctx context.Context, files []storedFile) {
	for _, f := range files {
		if err := s.files.Remove(f.category, f.name); err != nil {
			logger.FromContext(ctx).Error().Err(err).
				Str("file", f.name).
				Msg("failed to remove upload after failed write")
		}
	}
}

func (s *Service) Get(ctx context.Context, qrID string) (*model.Patient, error) {
	return s.patients.GetByQR(ctx, qrID)
}

// GuestView returns the public projection of the patient behind qrID.
func (s *Service) GuestView(ctx context.Context, qrID string) (*model.GuestView, error) {
	p, err := s.patients.GetByQR(ctx, qrID)
	if err != nil {
		return nil, err
	}
	return p.Guest(s.now()), nil
}

// Authenticate checks the credentials of the patient owning qrID. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, qrID, username, password string) (*model.Patient, error) {
	p, err := s.patients.GetByQRAndUsername(ctx, qrID, strings.TrimSpace(username))
	if errors.Is(err, apperrors.NotFoundErr) {
		s.hasher.Burn(password)
		s.metrics.Logins.WithLabelValues("patient", "failure").Inc()
		return nil, apperrors.Unauthorized(security.ErrMismatch)
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		s.metrics.Logins.WithLabelValues("patient", "failure").Inc()
		return nil, apperrors.Unauthorized(err)
	}

	s.metrics.Logins.WithLabelValues("patient", "success").Inc()
	return p, nil
}

// UpdateClinical overwrites the clinical fields. Last write wins.
func (s *Service) UpdateClinical(ctx context.Context, qrID string, update model.ClinicalUpdate) error {
	if err := s.patients.UpdateClinical(ctx, qrID, update); err != nil {
		return fmt.Errorf("failed to update clinical fields: %w", err)
	}
	logger.FromContext(ctx).Info().Str("qr_id", qrID).Msg("clinical fields updated")
	return nil
}

func (s *Service) UpdateContact(ctx context.Context, qrID string, update model.ContactUpdate) error {
	if err := s.patients.UpdateContact(ctx, qrID, update); err != nil {
		return fmt.Errorf("failed to update contact fields: %w", err)
	}
	return nil
}

// UpdatePhoto stores up as the patient's photo and removes the old one.
func (s *Service) UpdatePhoto(ctx context.Context, qrID string, up *model.Upload) (string, error) {
	if _, err := s.patients.GetByQR(ctx, qrID); err != nil {
		return "", err
	}
	name, err := s.files.Save(storage.Photos, qrID, up)
	if err != nil {
		return "", err
	}

	previous, err := s.patients.UpdatePhoto(ctx, qrID, name)
	if err != nil {
		s.discard(ctx, []storedFile{{storage.Photos, name}})
		return "", fmt.Errorf("failed to update photo: %w", err)
	}
	s.metrics.Uploads.WithLabelValues(string(storage.Photos)).Inc()

	if previous != "" && previous != name {
		s.discard(ctx, []storedFile{{storage.Photos, previous}})
	}
	return name, nil
}

// AttachRegistrationLab stores a lab file against the patient rather than a visit.
func (s *Service) AttachRegistrationLab(ctx context.Context, qrID, uploadedBy string, up *model.Upload) (*model.LabAttachment, error) {
	if _, err := s.patients.GetByQR(ctx, qrID); err != nil {
		return nil, err
	}
	name, err := s.files.Save(storage.Labs, qrID, up)
	if err != nil {
		return nil, err
	}

	lab := &model.LabAttachment{
		QRID:       qrID,
		Kind:       model.AttachmentRegistration,
		FileName:   name,
		UploadedBy: uploadedBy,
	}
	if err := s.patients.AddLab(ctx, lab); err != nil {
		s.discard(ctx, []storedFile{{storage.Labs, name}})
		return nil, fmt.Errorf("failed to attach lab: %w", err)
	}
	s.metrics.Uploads.WithLabelValues(string(storage.Labs)).Inc()
	return lab, nil
}

func (s *Service) ListLabs(ctx context.Context, qrID string) ([]*model.LabAttachment, error) {
	return s.patients.ListLabs(ctx, qrID)
}

// Search lists patients matching the filter, ordered by name.
func (s *Service) Search(ctx context.Context, filter model.PatientFilter) ([]*model.PatientSummary, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	return s.patients.Search(ctx, filter)
}

// Timeline merges visits and registration labs, newest first.
func (s *Service) Timeline(ctx context.Context, qrID string) ([]*model.TimelineEntry, error) {
	if _, err := s.patients.GetByQR(ctx, qrID); err != nil {
		return nil, err
	}
	visits, err := s.visits.ListByQR(ctx, qrID)
	if err != nil {
		return nil, err
	}
	labs, err := s.patients.ListLabs(ctx, qrID)
	if err != nil {
		return nil, err
	}

	entries := make([]*model.TimelineEntry, 0, len(visits)+len(labs))
	for _, v := range visits {
		entries = append(entries, &model.TimelineEntry{Date: v.VisitDate, Kind: "visit", Visit: v})
	}
	for _, l := range labs {
		entries = append(entries, &model.TimelineEntry{Date: l.UploadedAt, Kind: "lab", Lab: l})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

// LabOwner returns the QR token a stored lab file belongs to.
func (s *Service) LabOwner(ctx context.Context, fileName string) (string, error) {
	lab, err := s.patients.GetLabByFile(ctx, fileName)
	if err == nil {
		return lab.QRID, nil
	}
	if !errors.Is(err, apperrors.NotFoundErr) {
		return "", err
	}
	if owner, ok := storage.OwnerOf(fileName); ok {
		return owner, nil
	}
	return "", apperrors.NotFound("file", nil)
}

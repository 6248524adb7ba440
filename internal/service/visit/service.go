package visit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/internal/storage"
	"github.com/jwalitptl/qrcare/pkg/logger"
	"github.com/jwalitptl/qrcare/pkg/metrics"
)

type Service struct {
	patients repository.PatientRepository
	visits   repository.VisitRepository
	files    *storage.Store
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(patients repository.PatientRepository, visits repository.VisitRepository,
	files *storage.Store, m *metrics.Metrics) *Service {
	return &Service{
		patients: patients,
		visits:   visits,
		files:    files,
		metrics:  m,
		now:      time.Now,
	}
}

// AddVisit appends a visit and its lab attachments to the ledger. The visit
// date defaults to today (UTC).
func (s *Service) AddVisit(ctx context.Context, in *model.NewVisit) (*model.Visit, error) {
	if _, err := s.patients.GetByQR(ctx, in.QRID); err != nil {
		return nil, err
	}
	for _, up := range in.Attachments {
		if err := s.files.Validate(storage.Labs, up); err != nil {
			return nil, err
		}
	}

	date := s.now().UTC().Truncate(24 * time.Hour)
	if in.VisitDate != nil {
		date = *in.VisitDate
	}

	v := &model.Visit{
		QRID:      in.QRID,
		VisitDate: date,
		Diagnosis: strings.TrimSpace(in.Diagnosis),
		Treatment: strings.TrimSpace(in.Treatment),
		Medicines: strings.TrimSpace(in.Medicines),
		CreatedBy: in.CreatedBy,
	}

	for _, up := range in.Attachments {
		name, err := s.files.Save(storage.Labs, in.QRID, up)
		if err != nil {
			s.discard(ctx, v.Attachments)
			return nil, err
		}
		v.Attachments = append(v.Attachments, &model.LabAttachment{
			QRID:       in.QRID,
			Kind:       model.AttachmentVisit,
			FileName:   name,
			UploadedBy: in.CreatedBy,
		})
	}

	if err := s.visits.Create(ctx, v); err != nil {
		s.discard(ctx, v.Attachments)
		return nil, fmt.Errorf("failed to add visit: %w", err)
	}

	s.metrics.VisitsCreated.WithLabelValues(creatorKind(in.CreatedBy)).Inc()
	if n := len(v.Attachments); n > 0 {
		s.metrics.Uploads.WithLabelValues(string(storage.Labs)).Add(float64(n))
	}
	logger.FromContext(ctx).Info().
		Str("qr_id", v.QRID).
		Int64("visit_id", v.ID).
		Str("created_by", v.CreatedBy).
		Msg("visit recorded")
	return v, nil
}

func (s *Service) discard(ctx context.Context, labs []*model.LabAttachment) {
	for _, l := range labs {
		if err := s.files.Remove(storage.Labs, l.FileName); err != nil {
			logger.FromContext(ctx).Error().Err(err).Str("file", l.FileName).Msg("failed to remove orphaned lab file")
		}
	}
}

// creatorKind extracts "operator" from a principal tag like "operator:bob".
func creatorKind(tag string) string {
	kind, _, _ := strings.Cut(tag, ":")
	if kind == "" {
		return "unknown"
	}
	return kind
}

// ListVisits returns the patient's visits, newest first.
func (s *Service) ListVisits(ctx context.Context, qrID string) ([]*model.Visit, error) {
	if _, err := s.patients.GetByQR(ctx, qrID); err != nil {
		return nil, err
	}
	return s.visits.ListByQR(ctx, qrID)
}

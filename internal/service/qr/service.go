package qr

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/logger"
	"github.com/jwalitptl/qrcare/pkg/metrics"
	"github.com/jwalitptl/qrcare/pkg/validator"
)

const (
	DefaultPrefix = "BRESCAN"
	MaxBatch      = 1000
)

type Service struct {
	repo    repository.QRRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.QRRepository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m, now: time.Now}
}

// Seed registers a token as unassigned. Seeding an existing token is a no-op.
func (s *Service) Seed(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if !validator.IsQRToken(id) {
		return false, apperrors.Validation("invalid QR code")
	}
	created, err := s.repo.Seed(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to seed qr code: %w", err)
	}
	if created {
		logger.FromContext(ctx).Info().Str("qr_id", id).Msg("qr code seeded")
	}
	return created, nil
}

// Generate seeds count new PREFIX-NNNN tokens numbered after the highest
// existing index for prefix.
func (s *Service) Generate(ctx context.Context, prefix string, count int) ([]string, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !validator.IsQRToken(prefix) {
		return nil, apperrors.Validation("invalid prefix")
	}
	if count <= 0 || count > MaxBatch {
		return nil, apperrors.Validation(fmt.Sprintf("count must be between 1 and %d", MaxBatch))
	}

	existing, err := s.repo.ListIDsWithPrefix(ctx, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to list qr codes: %w", err)
	}
	next := NextIndex(prefix, existing)

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%04d", prefix, next+i)
		if _, err := s.repo.Seed(ctx, id); err != nil {
			return ids, fmt.Errorf("failed to seed %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	logger.FromContext(ctx).Info().Str("prefix", prefix).Int("count", len(ids)).Msg("qr codes generated")
	return ids, nil
}

// NextIndex returns one past the highest numeric suffix among ids of the
// form PREFIX-<digits>.
func NextIndex(prefix string, ids []string) int {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d+)$`)
	highest := 0
	for _, id := range ids {
		m := pattern.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Resolve looks the token up and counts the access as a scan. Every
// resolution counts, whoever the caller is.
func (s *Service) Resolve(ctx context.Context, id, scannedBy string) (model.QRStatus, error) {
	qr, err := s.repo.RecordScan(ctx, id, scannedBy, s.now().UTC())
	if errors.Is(err, apperrors.NotFoundErr) {
		s.metrics.QRScans.WithLabelValues(string(model.QRNotFound)).Inc()
		logger.FromContext(ctx).Info().Str("qr_id", id).Msg("scan of unknown qr code")
		return model.QRNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve qr code: %w", err)
	}

	status := qr.Status()
	s.metrics.QRScans.WithLabelValues(string(status)).Inc()
	return status, nil
}

// Get reads a token without counting a scan.
func (s *Service) Get(ctx context.Context, id string) (*model.QRCode, error) {
	return s.repo.Get(ctx, id)
}

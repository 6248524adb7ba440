package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
)

// Service computes operator rollups on demand. Nothing is cached.
type Service struct {
	repo repository.AnalyticsRepository
	now  func() time.Time
}

func NewService(repo repository.AnalyticsRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Summary(ctx context.Context) (*model.Analytics, error) {
	a, err := s.repo.Summary(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to compute analytics: %w", err)
	}
	return a, nil
}

func (s *Service) QuickTotals(ctx context.Context) (*model.QuickTotals, error) {
	t, err := s.repo.QuickTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}
	return t, nil
}

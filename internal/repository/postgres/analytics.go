package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type analyticsRepository struct {
	BaseRepository
}

func NewAnalyticsRepository(base BaseRepository) repository.AnalyticsRepository {
	return &analyticsRepository{base}
}

type analyticsTotals struct {
	TotalPatients  int64 `db:"total_patients"`
	TotalVisits    int64 `db:"total_visits"`
	TotalScans     int64 `db:"total_scans"`
	TotalOperators int64 `db:"total_operators"`
	TotalDoctors   int64 `db:"total_doctors"`
	RecentVisits   int64 `db:"recent_visits"`
}

func (r *analyticsRepository) Summary(ctx context.Context, now time.Time) (*model.Analytics, error) {
	db := r.GetDB()

	var totals analyticsTotals
	totalsQuery := `
		SELECT
			(SELECT COUNT(*) FROM patients) AS total_patients,
			(SELECT COUNT(*) FROM visits) AS total_visits,
			(SELECT COALESCE(SUM(scan_count), 0) FROM qr_codes) AS total_scans,
			(SELECT COUNT(*) FROM operators) AS total_operators,
			(SELECT COUNT(*) FROM doctors) AS total_doctors,
			(SELECT COUNT(*) FROM visits WHERE visit_date >= $1) AS recent_visits
	`
	if err := db.GetContext(ctx, &totals, totalsQuery, repository.RecentVisitsSince(now)); err != nil {
		return nil, apperrors.Storage(fmt.Errorf("failed to compute totals: %w", err))
	}

	out := &model.Analytics{
		TotalPatients:         totals.TotalPatients,
		TotalVisits:           totals.TotalVisits,
		TotalScans:            totals.TotalScans,
		TotalOperators:        totals.TotalOperators,
		TotalDoctors:          totals.TotalDoctors,
		RecentVisits:          totals.RecentVisits,
		MonthlyTrends:         []model.MonthCount{},
		TopOperators:          []model.OperatorCount{},
		GenderDistribution:    []model.GenderCount{},
		BloodTypeDistribution: []model.BloodTypeCount{},
		TopQRCodes:            []model.QRScanCount{},
		RecentPatients:        []model.RecentPatient{},
	}

	queries := []struct {
		name  string
		dest  interface{}
		query string
		args  []interface{}
	}{
		{"monthly trends", &out.MonthlyTrends, `
			SELECT to_char(visit_date, 'YYYY-MM') AS month, COUNT(*) AS count
			FROM visits WHERE visit_date >= $1
			GROUP BY month ORDER BY month DESC LIMIT $2`,
			[]interface{}{repository.MonthlyTrendSince(now), repository.MonthlyTrendMonths}},
		{"top operators", &out.TopOperators, `
			SELECT created_by AS operator, COUNT(*) AS visits
			FROM visits GROUP BY created_by
			ORDER BY visits DESC, operator LIMIT $1`,
			[]interface{}{repository.TopOperatorsLimit}},
		{"gender distribution", &out.GenderDistribution, `
			SELECT COALESCE(NULLIF(gender, ''), $1) AS gender, COUNT(*) AS count
			FROM patients GROUP BY 1 ORDER BY count DESC, gender`,
			[]interface{}{repository.UnknownBucket}},
		{"blood type distribution", &out.BloodTypeDistribution, `
			SELECT COALESCE(NULLIF(blood_type, ''), $1) AS type, COUNT(*) AS count
			FROM patients GROUP BY 1 ORDER BY count DESC, type`,
			[]interface{}{repository.UnknownBucket}},
		{"top qr codes", &out.TopQRCodes, `
			SELECT qr_id, scan_count AS scans
			FROM qr_codes WHERE scan_count > 0
			ORDER BY scan_count DESC, qr_id LIMIT $1`,
			[]interface{}{repository.TopQRCodesLimit}},
		{"recent patients", &out.RecentPatients, `
			SELECT p.name, p.qr_id, p.phone, COUNT(v.id) AS visits
			FROM patients p LEFT JOIN visits v ON v.qr_id = p.qr_id
			GROUP BY p.id ORDER BY p.id DESC LIMIT $1`,
			[]interface{}{repository.RecentPatientsLimit}},
	}

	for _, q := range queries {
		if err := db.SelectContext(ctx, q.dest, q.query, q.args...); err != nil {
			return nil, apperrors.Storage(fmt.Errorf("failed to compute %s: %w", q.name, err))
		}
	}
	return out, nil
}

func (r *analyticsRepository) QuickTotals(ctx context.Context) (*model.QuickTotals, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM patients) AS patients,
			(SELECT COALESCE(SUM(scan_count), 0) FROM qr_codes) AS scans,
			(SELECT COUNT(*) FROM visits) AS visits
	`
	var totals model.QuickTotals
	if err := r.GetDB().GetContext(ctx, &totals, query); err != nil {
		return nil, apperrors.Storage(fmt.Errorf("failed to compute quick totals: %w", err))
	}
	return &totals, nil
}

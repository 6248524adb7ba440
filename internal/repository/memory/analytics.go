package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
)

type analyticsRepository struct {
	*db
}

func (r *analyticsRepository) Summary(_ context.Context, now time.Time) (*model.Analytics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := &model.Analytics{
		TotalPatients:         int64(len(r.patients)),
		TotalVisits:           int64(len(r.visits)),
		TotalOperators:        int64(len(r.operators)),
		TotalDoctors:          int64(len(r.doctors)),
		MonthlyTrends:         []model.MonthCount{},
		TopOperators:          []model.OperatorCount{},
		GenderDistribution:    []model.GenderCount{},
		BloodTypeDistribution: []model.BloodTypeCount{},
		TopQRCodes:            []model.QRScanCount{},
		RecentPatients:        []model.RecentPatient{},
	}

	for _, qr := range r.qrCodes {
		out.TotalScans += qr.ScanCount
		if qr.ScanCount > 0 {
			out.TopQRCodes = append(out.TopQRCodes, model.QRScanCount{QRID: qr.ID, Scans: qr.ScanCount})
		}
	}
	sort.Slice(out.TopQRCodes, func(i, j int) bool {
		a, b := out.TopQRCodes[i], out.TopQRCodes[j]
		if a.Scans != b.Scans {
			return a.Scans > b.Scans
		}
		return a.QRID < b.QRID
	})
	out.TopQRCodes = truncate(out.TopQRCodes, repository.TopQRCodesLimit)

	recentSince := repository.RecentVisitsSince(now)
	monthSince := repository.MonthlyTrendSince(now)
	months := make(map[string]int64)
	creators := make(map[string]int64)
	visitCounts := make(map[string]int64)
	for _, v := range r.visits {
		if !v.VisitDate.Before(recentSince) {
			out.RecentVisits++
		}
		if !v.VisitDate.Before(monthSince) {
			months[v.VisitDate.Format("2006-01")]++
		}
		creators[v.CreatedBy]++
		visitCounts[v.QRID]++
	}

	for m, c := range months {
		out.MonthlyTrends = append(out.MonthlyTrends, model.MonthCount{Month: m, Count: c})
	}
	sort.Slice(out.MonthlyTrends, func(i, j int) bool { return out.MonthlyTrends[i].Month > out.MonthlyTrends[j].Month })
	out.MonthlyTrends = truncate(out.MonthlyTrends, repository.MonthlyTrendMonths)

	for op, c := range creators {
		out.TopOperators = append(out.TopOperators, model.OperatorCount{Operator: op, Visits: c})
	}
	sort.Slice(out.TopOperators, func(i, j int) bool {
		a, b := out.TopOperators[i], out.TopOperators[j]
		if a.Visits != b.Visits {
			return a.Visits > b.Visits
		}
		return a.Operator < b.Operator
	})
	out.TopOperators = truncate(out.TopOperators, repository.TopOperatorsLimit)

	genders := make(map[string]int64)
	bloods := make(map[string]int64)
	patients := make([]*model.Patient, 0, len(r.patients))
	for _, p := range r.patients {
		genders[bucket(p.Gender)]++
		bloods[bucket(p.BloodType)]++
		patients = append(patients, p)
	}
	for g, c := range genders {
		out.GenderDistribution = append(out.GenderDistribution, model.GenderCount{Gender: g, Count: c})
	}
	sort.Slice(out.GenderDistribution, func(i, j int) bool {
		a, b := out.GenderDistribution[i], out.GenderDistribution[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Gender < b.Gender
	})
	for bt, c := range bloods {
		out.BloodTypeDistribution = append(out.BloodTypeDistribution, model.BloodTypeCount{Type: bt, Count: c})
	}
	sort.Slice(out.BloodTypeDistribution, func(i, j int) bool {
		a, b := out.BloodTypeDistribution[i], out.BloodTypeDistribution[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})

	sort.Slice(patients, func(i, j int) bool { return patients[i].ID > patients[j].ID })
	for _, p := range patients {
		if len(out.RecentPatients) == repository.RecentPatientsLimit {
			break
		}
		out.RecentPatients = append(out.RecentPatients, model.RecentPatient{
			Name:   p.Name,
			QRID:   p.QRID,
			Phone:  p.Phone,
			Visits: visitCounts[p.QRID],
		})
	}
	return out, nil
}

func (r *analyticsRepository) QuickTotals(_ context.Context) (*model.QuickTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := &model.QuickTotals{
		Patients: int64(len(r.patients)),
		Visits:   int64(len(r.visits)),
	}
	for _, qr := range r.qrCodes {
		totals.Scans += qr.ScanCount
	}
	return totals, nil
}

func bucket(s string) string {
	if s == "" {
		return repository.UnknownBucket
	}
	return s
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

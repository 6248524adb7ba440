package repository

import "time"

// Rollup limits and windows shared by every backend.
const (
	RecentVisitDays     = 30
	MonthlyTrendMonths  = 6
	TopOperatorsLimit   = 5
	TopQRCodesLimit     = 10
	RecentPatientsLimit = 5
	UnknownBucket       = "Unknown"
	DefaultSearchLimit  = 200
)

// RecentVisitsSince is the first calendar day counted as recent.
func RecentVisitsSince(now time.Time) time.Time {
	d := truncateDay(now)
	return d.AddDate(0, 0, -RecentVisitDays)
}

// MonthlyTrendSince is the first day of the oldest month in the histogram.
func MonthlyTrendSince(now time.Time) time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -(MonthlyTrendMonths - 1), 0)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

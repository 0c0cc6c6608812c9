package triage

import (
	"math"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
)

type Stats struct {
	Total              int     `json:"total"`
	Pending            int     `json:"pending"`
	InProgress         int     `json:"in_progress"`
	Resolved           int     `json:"resolved"`
	ThisMonth          int     `json:"this_month"`
	LastMonth          int     `json:"last_month"`
	MonthOverMonthPct  float64 `json:"month_over_month_pct"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
	// Degraded is set when the figures could not be computed and are zero.
	Degraded bool `json:"degraded,omitempty"`
}

// ComputeStats derives queue counters. Months are calendar months in loc;
// the average resolution time only covers reports with a resolution date.
func ComputeStats(reports []models.Report, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	thisStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	nextStart := thisStart.AddDate(0, 1, 0)
	lastStart := thisStart.AddDate(0, -1, 0)

	var s Stats
	var resolvedHours float64
	var resolvedCount int

	for i := range reports {
		r := &reports[i]
		s.Total++
		switch r.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusResolved:
			s.Resolved++
		}

		created := r.CreatedAt.In(loc)
		switch {
		case !created.Before(thisStart) && created.Before(nextStart):
			s.ThisMonth++
		case !created.Before(lastStart) && created.Before(thisStart):
			s.LastMonth++
		}

		if r.ResolutionDate != nil {
			resolvedHours += r.ResolutionDate.Sub(r.CreatedAt).Hours()
			resolvedCount++
		}
	}

	if resolvedCount > 0 {
		s.AvgResolutionHours = round2(resolvedHours / float64(resolvedCount))
	}
	s.MonthOverMonthPct = monthOverMonth(s.ThisMonth, s.LastMonth)
	return s
}

func monthOverMonth(this, last int) float64 {
	if last == 0 {
		if this > 0 {
			return 100
		}
		return 0
	}
	return round2(float64(this-last) / float64(last) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

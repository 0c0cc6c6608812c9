package triage

import (
	"math"
	"sort"
	"time"
)

// TrendScore is (2*up + comments - down) / ln(ageHours + 1) with the age
// floored at one hour.
func TrendScore(up, down, comments int, createdAt, now time.Time) float64 {
	ageHours := math.Max(1, now.Sub(createdAt).Hours())
	return float64(2*up+comments-down) / math.Log(ageHours+1)
}

// TrendingPolicy caps the trending view to max(Min, Fraction*total).
type TrendingPolicy struct {
	Min      int
	Fraction float64
}

func DefaultTrendingPolicy() TrendingPolicy {
	return TrendingPolicy{Min: 10, Fraction: 0.10}
}

func (p TrendingPolicy) Cap(total int) int {
	return max(p.Min, int(math.Floor(float64(total)*p.Fraction)))
}

// RankTrending keeps entries with a positive score, highest first, capped by
// the policy against len(entries). Equal scores go to the newer report, then
// to the lower id, so the order does not depend on storage iteration order.
func RankTrending(entries []Entry, policy TrendingPolicy) []Entry {
	ranked := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Score > 0 {
			ranked = append(ranked, e)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].ID.String() < ranked[j].ID.String()
	})

	if limit := policy.Cap(len(entries)); len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

package leaderboard

import (
	"math"
	"sort"

	"memecoin-calls/internal/domain"
)

// userStats accumulates one user's verified calls.
type userStats struct {
	total      int
	successful int

	ratioSum   float64
	ratioCount int

	multiplierSum   float64
	multiplierCount int

	marketCapSum   float64
	marketCapCount int
}

func (s *userStats) add(c *domain.TokenCall) {
	s.total++

	if c.Status == domain.CallStatusVerifiedSuccess {
		s.successful++
		if c.TimeToHitRatio != nil {
			s.ratioSum += *c.TimeToHitRatio
			s.ratioCount++
		}
		if m, ok := c.Multiplier(); ok {
			s.multiplierSum += m
			s.multiplierCount++
		}
	}

	if mc, ok := c.MarketCapAtCall(); ok {
		s.marketCapSum += mc
		s.marketCapCount++
	}
}

func (s *userStats) entry(userID string) *domain.LeaderboardEntry {
	e := &domain.LeaderboardEntry{
		UserID:                     userID,
		TotalCalls:                 s.total,
		SuccessfulCalls:            s.successful,
		AverageTimeToHitRatio:      average(s.ratioSum, s.ratioCount),
		AverageMultiplier:          average(s.multiplierSum, s.multiplierCount),
		AverageMarketCapAtCallTime: average(s.marketCapSum, s.marketCapCount),
	}
	if s.total > 0 {
		e.AccuracyRate = float64(s.successful) / float64(s.total)
		e.AdjustedScore = AdjustedScore(e.AccuracyRate, s.total)
	}
	return e
}

// AdjustedScore is accuracy * ln(total + 1), or 0 without calls.
func AdjustedScore(accuracy float64, total int) float64 {
	if total <= 0 {
		return 0
	}
	return accuracy * math.Log(float64(total)+1)
}

func average(sum float64, count int) *float64 {
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

// computeEntries aggregates calls per user and returns entries in ranking
// order: adjustedScore DESC, averageMultiplier DESC (nil as 0), totalCalls DESC.
// Users start in UserID order so equal keys keep a stable, repeatable order.
// Only VERIFIED_SUCCESS / VERIFIED_FAIL calls are counted. Rank is not set.
func computeEntries(calls []*domain.TokenCall) []*domain.LeaderboardEntry {
	byUser := make(map[string]*userStats)
	for _, c := range calls {
		if !c.Status.IsVerified() {
			continue
		}
		s, ok := byUser[c.UserID]
		if !ok {
			s = &userStats{}
			byUser[c.UserID] = s
		}
		s.add(c)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	entries := make([]*domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, byUser[u].entry(u))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AdjustedScore != b.AdjustedScore {
			return a.AdjustedScore > b.AdjustedScore
		}
		am, bm := valueOrZero(a.AverageMultiplier), valueOrZero(b.AverageMultiplier)
		if am != bm {
			return am > bm
		}
		return a.TotalCalls > b.TotalCalls
	})

	return entries
}

func valueOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

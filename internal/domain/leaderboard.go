package domain

// LeaderboardEntry is the per-user aggregate over verified calls.
// Derived at read time, never stored.
type LeaderboardEntry struct {
	Rank                       int      `json:"rank"`
	UserID                     string   `json:"userId"`
	TotalCalls                 int      `json:"totalCalls"`
	SuccessfulCalls            int      `json:"successfulCalls"`
	AccuracyRate               float64  `json:"accuracyRate"`
	AverageTimeToHitRatio      *float64 `json:"averageTimeToHitRatio"`
	AverageMultiplier          *float64 `json:"averageMultiplier"`
	AverageMarketCapAtCallTime *float64 `json:"averageMarketCapAtCallTime"`
	AdjustedScore              float64  `json:"adjustedScore"`
}

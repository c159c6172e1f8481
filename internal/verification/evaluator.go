// Package verification resolves due token calls against historical prices.
package verification

import (
	"time"

	"memecoin-calls/internal/domain"
)

// Evaluate scores call against history and returns the updated call.
// The input call is not modified. history must be ascending by time; it is
// scanned once in the given order.
//
// An empty history only stamps VerificationTimestamp and leaves the call
// PENDING so the next run retries it.
func Evaluate(call domain.TokenCall, history domain.PriceHistory, now time.Time) domain.TokenCall {
	out := *call.Clone()
	verifiedAt := now.UTC()
	out.VerificationTimestamp = &verifiedAt

	if len(history) == 0 {
		return out
	}

	peak := history[0].Value
	var hit *time.Time
	for _, s := range history {
		if s.Value > peak {
			peak = s.Value
		}
		if hit == nil && s.Value >= call.TargetPrice {
			ts := s.Time()
			hit = &ts
		}
	}
	final := history[len(history)-1].Value

	out.PeakPrice = &peak
	out.FinalPrice = &final

	if peak >= call.TargetPrice && hit != nil {
		ratio := timeToHitRatio(call.CallTimestamp, call.TargetDate, *hit)
		out.Status = domain.CallStatusVerifiedSuccess
		out.TargetHitTimestamp = hit
		out.TimeToHitRatio = &ratio
		return out
	}

	out.Status = domain.CallStatusVerifiedFail
	out.TargetHitTimestamp = nil
	out.TimeToHitRatio = nil
	return out
}

// timeToHitRatio is (hit - call) / (target - call) with the numerator
// clamped at zero. A non-positive window yields 1 if the hit came after
// the call and 0 otherwise.
func timeToHitRatio(callAt, targetAt, hitAt time.Time) float64 {
	window := targetAt.Sub(callAt)
	elapsed := hitAt.Sub(callAt)
	if window <= 0 {
		if elapsed > 0 {
			return 1
		}
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(elapsed) / float64(window)
}

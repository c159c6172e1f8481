// Package resolution selects price sampling resolutions for a time window.
package resolution

import (
	"time"

	"memecoin-calls/internal/domain"
)

// DefaultMaxCandles is the upstream cap on candles per OHLCV request.
const DefaultMaxCandles = 950

// windowBucket maps an inclusive upper bound on window length to a resolution.
type windowBucket struct {
	maxDuration time.Duration
	resolution  domain.Resolution
}

// windowBuckets are scanned in ascending order; the first bucket whose
// bound is >= the window wins.
var windowBuckets = []windowBucket{
	{time.Hour, domain.Resolution1m},
	{6 * time.Hour, domain.Resolution5m},
	{24 * time.Hour, domain.Resolution15m},
	{3 * 24 * time.Hour, domain.Resolution30m},
	{7 * 24 * time.Hour, domain.Resolution1H},
	{30 * 24 * time.Hour, domain.Resolution2H},
}

// coarsestWindowResolution is used for windows longer than every bucket.
const coarsestWindowResolution = domain.Resolution1D

// candleLadder is ordered finest to coarsest.
var candleLadder = []domain.Resolution{
	domain.Resolution1m,
	domain.Resolution3m,
	domain.Resolution5m,
	domain.Resolution15m,
	domain.Resolution30m,
	domain.Resolution1H,
	domain.Resolution2H,
	domain.Resolution4H,
	domain.Resolution6H,
	domain.Resolution8H,
	domain.Resolution12H,
	domain.Resolution1D,
	domain.Resolution3D,
	domain.Resolution1W,
}

// ForWindow returns the sampling resolution for a window of length d.
// Negative or zero windows get the finest resolution.
func ForWindow(d time.Duration) domain.Resolution {
	for _, b := range windowBuckets {
		if d <= b.maxDuration {
			return b.resolution
		}
	}
	return coarsestWindowResolution
}

// ForCall returns the sampling resolution for the call's prediction window.
func ForCall(call *domain.TokenCall) domain.Resolution {
	return ForWindow(call.Duration())
}

// ForCandles returns the finest resolution whose candle count over [from, to]
// does not exceed maxCandles. If none fits, the coarsest resolution is returned.
// maxCandles <= 0 uses DefaultMaxCandles.
func ForCandles(from, to time.Time, maxCandles int) domain.Resolution {
	if maxCandles <= 0 {
		maxCandles = DefaultMaxCandles
	}
	span := int64(to.Sub(from) / time.Second)
	if span < 0 {
		span = 0
	}

	for _, r := range candleLadder {
		if candleCount(span, r.Seconds()) <= int64(maxCandles) {
			return r
		}
	}
	return candleLadder[len(candleLadder)-1]
}

// candleCount returns ceil(span / step).
func candleCount(span, step int64) int64 {
	return (span + step - 1) / step
}

// Coarseness returns the position of r in the finest-to-coarsest ladder.
// Unknown resolutions return -1.
func Coarseness(r domain.Resolution) int {
	for i, c := range candleLadder {
		if c == r {
			return i
		}
	}
	return -1
}

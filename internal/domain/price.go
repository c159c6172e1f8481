package domain

import "time"

// PriceSample is a single (timestamp, price) observation from the price provider.
type PriceSample struct {
	UnixTime int64   `json:"unixTime"` // Unix timestamp in seconds
	Value    float64 `json:"value"`    // price in USD
}

// Time returns the sample timestamp as time.Time (UTC).
func (s PriceSample) Time() time.Time {
	return time.Unix(s.UnixTime, 0).UTC()
}

// PriceHistory is a sequence of samples ordered by UnixTime ASC.
type PriceHistory []PriceSample

// IsSorted reports whether samples are in non-decreasing timestamp order.
func (h PriceHistory) IsSorted() bool {
	for i := 1; i < len(h); i++ {
		if h[i].UnixTime < h[i-1].UnixTime {
			return false
		}
	}
	return true
}

// Candle is an OHLCV bar returned by the provider.
type Candle struct {
	UnixTime int64   `json:"unixTime"` // bar open time, seconds
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

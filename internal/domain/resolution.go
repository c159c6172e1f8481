package domain

// Resolution is a price sampling interval understood by the price provider.
type Resolution string

// Supported resolutions, finest to coarsest.
const (
	Resolution1m  Resolution = "1m"
	Resolution3m  Resolution = "3m"
	Resolution5m  Resolution = "5m"
	Resolution15m Resolution = "15m"
	Resolution30m Resolution = "30m"
	Resolution1H  Resolution = "1H"
	Resolution2H  Resolution = "2H"
	Resolution4H  Resolution = "4H"
	Resolution6H  Resolution = "6H"
	Resolution8H  Resolution = "8H"
	Resolution12H Resolution = "12H"
	Resolution1D  Resolution = "1D"
	Resolution3D  Resolution = "3D"
	Resolution1W  Resolution = "1W"
)

var resolutionSeconds = map[Resolution]int64{
	Resolution1m:  60,
	Resolution3m:  3 * 60,
	Resolution5m:  5 * 60,
	Resolution15m: 15 * 60,
	Resolution30m: 30 * 60,
	Resolution1H:  3600,
	Resolution2H:  2 * 3600,
	Resolution4H:  4 * 3600,
	Resolution6H:  6 * 3600,
	Resolution8H:  8 * 3600,
	Resolution12H: 12 * 3600,
	Resolution1D:  86400,
	Resolution3D:  3 * 86400,
	Resolution1W:  7 * 86400,
}

// String returns the string representation of Resolution.
func (r Resolution) String() string {
	return string(r)
}

// IsValid checks if the resolution is a supported value.
func (r Resolution) IsValid() bool {
	_, ok := resolutionSeconds[r]
	return ok
}

// Seconds returns the interval length in seconds, or 0 for unknown values.
func (r Resolution) Seconds() int64 {
	return resolutionSeconds[r]
}

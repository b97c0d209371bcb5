package scheduler

import (
	"FeeMint/internal/accrual"
	"FeeMint/internal/event"
	"math/big"
	"time"
)

// DefaultSampleWindow bounds how far back fee samples count toward the
// congestion decision.
const DefaultSampleWindow = 5 * time.Minute

// CongestionTracker keeps a short rolling window of observed network base
// fees and decides whether the network is congested relative to a baseline.
// Samples are never persisted. Not thread-safe — engine-loop owned.
type CongestionTracker struct {
	window  time.Duration
	samples []event.FeeSample
}

func NewCongestionTracker(window time.Duration) *CongestionTracker {
	if window <= 0 {
		window = DefaultSampleWindow
	}
	return &CongestionTracker{window: window}
}

// Observe adds a fee sample and prunes everything older than the window.
func (ct *CongestionTracker) Observe(sample event.FeeSample) {
	if sample.ObservedBaseFee <= 0 {
		return
	}
	ct.samples = append(ct.samples, sample)
	ct.prune(sample.Timestamp)
}

// Elevated reports whether the windowed average base fee exceeds
// multiplier × baselineFee. multiplier carries RatioConfig scale.
// With no samples in the window the network is assumed uncongested.
func (ct *CongestionTracker) Elevated(baselineFee, multiplier int64, now time.Time) bool {
	if baselineFee <= 0 || multiplier <= 0 {
		return false
	}

	ct.prune(now)
	if len(ct.samples) == 0 {
		return false
	}

	var total int64
	for _, s := range ct.samples {
		total += s.ObservedBaseFee
	}
	avg := total / int64(len(ct.samples))

	// avg > baseline * multiplier / ratioScale, compared cross-multiplied to
	// avoid truncating fractional multipliers
	threshold := new(big.Int).Mul(big.NewInt(baselineFee), big.NewInt(multiplier))
	observed := new(big.Int).Mul(big.NewInt(avg), big.NewInt(accrual.RatioConfig.Scale))
	return observed.Cmp(threshold) > 0
}

// SampleCount returns the number of samples currently in the window.
func (ct *CongestionTracker) SampleCount(now time.Time) int {
	ct.prune(now)
	return len(ct.samples)
}

func (ct *CongestionTracker) prune(now time.Time) {
	cutoff := now.Add(-ct.window)
	i := 0
	for i < len(ct.samples) && ct.samples[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		ct.samples = append(ct.samples[:0], ct.samples[i:]...)
	}
}

package rtcp

import (
	"math/rand"
	"time"
)

// absoluteMinInterval is the RFC 3550 Appendix A.7 floor for the
// non-initial-report interval: no compliant participant sends RTCP more
// often than this regardless of bandwidth.
const absoluteMinInterval = 1250 * time.Millisecond

// Scheduler computes the randomized, bandwidth-scaled RTCP transmission
// interval of spec §4.6: session bandwidth B is allocated 5% to RTCP, and
// the interval grows with the average compound-packet size and the number
// of participants so that no single session floods its peers as it scales.
//
// uvgRTP fixes its RTCP minimum interval at 5s regardless of bandwidth; this
// scheduler keeps that as the configurable default (MinInterval) while
// still honoring the RFC 3550 absolute floor of 1.25s, per the redesign
// note to "prefer the RFC formula while preserving the configurable
// minimum."
type Scheduler struct {
	// SessionBandwidthKbps is the configured session bandwidth. RTCP
	// traffic is budgeted at 5% of it.
	SessionBandwidthKbps float64

	// MinInterval is the configurable minimum transmission interval.
	// Defaults to 5s for uvgRTP compatibility (spec §4.6).
	MinInterval time.Duration

	// AverageCompoundSize tracks a running average of sent compound
	// packet sizes in bytes, seeded with a plausible SR+SDES size.
	AverageCompoundSize float64

	rng *rand.Rand
}

// NewScheduler returns a Scheduler with uvgRTP-compatible defaults.
func NewScheduler(sessionBandwidthKbps float64, seed int64) *Scheduler {
	return &Scheduler{
		SessionBandwidthKbps: sessionBandwidthKbps,
		MinInterval:          5 * time.Second,
		AverageCompoundSize:  100, // bytes; refined by Observe as real packets are sent
		rng:                  rand.New(rand.NewSource(seed)),
	}
}

// Observe folds a newly-sent or newly-seen compound packet's size into the
// running average (RFC 3550 Appendix A.7's "avg_rtcp_size").
func (s *Scheduler) Observe(sizeBytes int) {
	if s.AverageCompoundSize == 0 {
		s.AverageCompoundSize = float64(sizeBytes)
		return
	}
	s.AverageCompoundSize = (s.AverageCompoundSize + float64(sizeBytes)) / 2
}

// Interval returns the deterministic base interval T given the current
// number of session members, before the per-tick random scaling applied by
// Next. members must be at least 1 (ourselves).
func (s *Scheduler) Interval(members int) time.Duration {
	if members < 1 {
		members = 1
	}

	minInterval := s.MinInterval
	if minInterval < absoluteMinInterval {
		minInterval = absoluteMinInterval
	}

	if s.SessionBandwidthKbps <= 0 {
		return minInterval
	}

	rtcpBandwidthBytesPerSec := (0.05 * s.SessionBandwidthKbps * 1000) / 8
	bandwidthInterval := time.Duration(s.AverageCompoundSize * float64(members) / rtcpBandwidthBytesPerSec * float64(time.Second))

	if bandwidthInterval > minInterval {
		return bandwidthInterval
	}
	return minInterval
}

// Next returns the randomized interval to sleep before the next RTCP
// transmission: T scaled by a uniform factor in [0.5, 1.5], per spec §4.6.
func (s *Scheduler) Next(members int) time.Duration {
	t := s.Interval(members)
	factor := 0.5 + s.rng.Float64()
	return time.Duration(float64(t) * factor)
}

// Package metrics exposes counters and gauges for packets sent/received/
// dropped, jitter, auth-tag mismatches, replay drops and RTCP interval
// length, mirroring the collector-registration pattern
// runZeroInc-sockstats' pkg/exporter uses for its TCPInfoCollector, here
// built from plain prometheus.*Vec metrics instead of a custom Collector
// since govgrtp's metrics are simple request-style counters/gauges rather
// than an OS-level kernel struct needing translation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every metric this module exports. A nil *Registry is
// valid and every method on it no-ops, so instrumentation is optional.
type Registry struct {
	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	PacketsDropped  *prometheus.CounterVec
	Jitter          *prometheus.GaugeVec
	AuthTagMismatch *prometheus.CounterVec
	ReplayDrops     *prometheus.CounterVec
	RTCPInterval    *prometheus.GaugeVec
}

// NewRegistry builds and registers the metric families under reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govgrtp",
			Name:      "packets_sent_total",
			Help:      "RTP/RTCP packets sent, by stream label.",
		}, []string{"stream"}),
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govgrtp",
			Name:      "packets_received_total",
			Help:      "RTP/RTCP packets received, by stream label.",
		}, []string{"stream"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govgrtp",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped during reception, by reason.",
		}, []string{"stream", "reason"}),
		Jitter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "govgrtp",
			Name:      "rtp_jitter_timestamp_units",
			Help:      "Interarrival jitter estimate (RFC 3550 §6.4.1 units).",
		}, []string{"stream"}),
		AuthTagMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govgrtp",
			Name:      "srtp_auth_tag_mismatch_total",
			Help:      "SRTP/SRTCP packets rejected for authentication tag mismatch.",
		}, []string{"stream"}),
		ReplayDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "govgrtp",
			Name:      "srtp_replay_drops_total",
			Help:      "SRTP/SRTCP packets rejected by the replay window.",
		}, []string{"stream"}),
		RTCPInterval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "govgrtp",
			Name:      "rtcp_interval_seconds",
			Help:      "Most recently computed RTCP reporting interval.",
		}, []string{"stream"}),
	}
	if reg != nil {
		reg.MustRegister(r.PacketsSent, r.PacketsReceived, r.PacketsDropped,
			r.Jitter, r.AuthTagMismatch, r.ReplayDrops, r.RTCPInterval)
	}
	return r
}

func (r *Registry) incPacketsSent(stream string) {
	if r == nil {
		return
	}
	r.PacketsSent.WithLabelValues(stream).Inc()
}

func (r *Registry) incPacketsReceived(stream string) {
	if r == nil {
		return
	}
	r.PacketsReceived.WithLabelValues(stream).Inc()
}

func (r *Registry) incPacketsDropped(stream, reason string) {
	if r == nil {
		return
	}
	r.PacketsDropped.WithLabelValues(stream, reason).Inc()
}

func (r *Registry) setJitter(stream string, v float64) {
	if r == nil {
		return
	}
	r.Jitter.WithLabelValues(stream).Set(v)
}

func (r *Registry) incAuthTagMismatch(stream string) {
	if r == nil {
		return
	}
	r.AuthTagMismatch.WithLabelValues(stream).Inc()
}

func (r *Registry) incReplayDrop(stream string) {
	if r == nil {
		return
	}
	r.ReplayDrops.WithLabelValues(stream).Inc()
}

func (r *Registry) setRTCPInterval(stream string, seconds float64) {
	if r == nil {
		return
	}
	r.RTCPInterval.WithLabelValues(stream).Set(seconds)
}

// PacketSent records one outbound packet for stream.
func (r *Registry) PacketSent(stream string) { r.incPacketsSent(stream) }

// PacketReceived records one inbound packet for stream.
func (r *Registry) PacketReceived(stream string) { r.incPacketsReceived(stream) }

// PacketDropped records one dropped inbound packet with its drop reason.
func (r *Registry) PacketDropped(stream, reason string) { r.incPacketsDropped(stream, reason) }

// SetJitter records the latest RTP interarrival jitter estimate.
func (r *Registry) SetJitter(stream string, v float64) { r.setJitter(stream, v) }

// RecordAuthTagMismatch records one SRTP/SRTCP auth tag rejection.
func (r *Registry) RecordAuthTagMismatch(stream string) { r.incAuthTagMismatch(stream) }

// ReplayDrop records one SRTP/SRTCP replay-window rejection.
func (r *Registry) ReplayDrop(stream string) { r.incReplayDrop(stream) }

// SetRTCPInterval records the most recently computed RTCP interval.
func (r *Registry) SetRTCPInterval(stream string, seconds float64) { r.setRTCPInterval(stream, seconds) }

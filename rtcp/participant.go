package rtcp

import (
	"net"
	"time"

	"github.com/ultravideo/govgrtp/rtpctx"
)

// Role distinguishes the two kinds of RTCP statistics a Participant can
// carry, per spec §3.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Stats is the RTCP statistics block named in spec §3: "received_pkts,
// received_bytes, sent_pkts, sent_bytes, jitter, transit, base_seq, max_seq,
// cycles, bad_seq, lsr, sr_arrival_time, dropped_pkts".
type Stats struct {
	ReceivedPkts  uint32
	ReceivedBytes uint64
	SentPkts      uint32
	SentBytes     uint64
	DroppedPkts   uint32

	Jitter  float64 // RFC 3550 §6.4.1, in RTP timestamp units
	transit int64   // previous packet's relative transit time, for jitter calc

	seq rtpctx.ExtendedSequence

	// LSR: middle 32 bits of the NTP timestamp of the last SR we received
	// from this participant.
	LSR           uint32
	SRArrivalTime time.Time

	firstSeq         uint16
	intervalFirstSeq uint16
	intervalPkts     uint32
}

// Participant is one remote endpoint tracked by an RTCP Engine, spec §3.
type Participant struct {
	SSRC             uint32
	RemoteAddress    *net.UDPAddr
	Role             Role
	ProbationCounter int

	Stats Stats

	// Most recently received/sent frames of each type, for application
	// inspection via the install_*_hook callbacks.
	LastSR   *SenderReportInfo
	LastRR   *ReceiverReportInfo
	LastSDES *SDESInfo
	LastApp  *AppPacket
}

// SenderReportInfo mirrors the fields of an RFC 3550 Sender Report plus the
// reception reports it carries.
type SenderReportInfo struct {
	SSRC        uint32
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
	Reports     []ReceptionReportInfo
}

// ReceiverReportInfo mirrors an RFC 3550 Receiver Report.
type ReceiverReportInfo struct {
	SSRC    uint32
	Reports []ReceptionReportInfo
}

// ReceptionReportInfo mirrors one RFC 3550 reception report block.
type ReceptionReportInfo struct {
	SSRC               uint32
	FractionLost       uint8
	TotalLost          uint32
	LastSequenceNumber uint32
	Jitter             uint32
	LastSenderReport   uint32
	Delay              uint32
}

// SDESInfo mirrors a decoded RFC 3550 Source Description chunk.
type SDESInfo struct {
	SSRC  uint32
	CNAME string
	Items map[uint8]string
}

// NewParticipant creates a Participant tracking the given remote SSRC.
func NewParticipant(ssrc uint32, addr *net.UDPAddr, role Role) *Participant {
	p := &Participant{SSRC: ssrc, RemoteAddress: addr, Role: role}
	p.Stats.seq.Init(0)
	return p
}

// ObserveRTP folds a received RTP packet's sequence number and timestamp
// into the participant's jitter and loss-tracking state (RFC 3550 §6.4.1,
// Appendix A.8). clockRate is the payload's RTP clock rate.
func (p *Participant) ObserveRTP(seq uint16, timestamp uint32, payloadBytes int, arrival time.Time, clockRate uint32) {
	s := &p.Stats
	first := s.ReceivedPkts == 0

	if first {
		s.seq.Init(seq)
		s.firstSeq = seq
		s.intervalFirstSeq = seq
	} else {
		_ = s.seq.Update(seq) // bad/dupe sequences still count as received for loss stats
	}

	s.ReceivedPkts++
	s.ReceivedBytes += uint64(payloadBytes)
	s.intervalPkts++

	if !first {
		arrivalRTP := int64(arrival.Sub(time.Unix(0, 0)).Seconds() * float64(clockRate))
		transit := arrivalRTP - int64(timestamp)
		d := transit - s.transit
		if d < 0 {
			d = -d
		}
		s.Jitter += (float64(d) - s.Jitter) / 16
		s.transit = transit
	}
}

// ObserveSenderReport records an incoming SR so a subsequent reception
// report block can compute LSR/DLSR (RFC 3550 §6.4.1).
func (p *Participant) ObserveSenderReport(sr *SenderReportInfo, arrival time.Time) {
	p.LastSR = sr
	p.Stats.LSR = uint32(sr.NTPTime >> 16)
	p.Stats.SRArrivalTime = arrival
}

// BuildReceptionReport produces the reception-report block this engine
// should include for p, per RFC 3550 §6.4.1 and spec §4.6's fraction_lost
// formula: (expected - received_during_interval) / expected, in Q0.8.
func (p *Participant) BuildReceptionReport(now time.Time) ReceptionReportInfo {
	s := &p.Stats

	expectedInInterval := int64(s.seq.Current()) - int64(s.intervalFirstSeq) + 1
	if expectedInInterval < 0 {
		expectedInInterval += 1 << 16
	}
	lostInInterval := expectedInInterval - int64(s.intervalPkts)
	if lostInInterval < 0 {
		lostInInterval = 0
	}
	var fractionLost float64
	if expectedInInterval > 0 {
		fractionLost = float64(lostInInterval) / float64(expectedInInterval)
	}

	expectedTotal := s.seq.Extended() - uint64(s.firstSeq) + 1
	var totalLost uint32
	if expectedTotal > uint64(s.ReceivedPkts) {
		totalLost = uint32(expectedTotal - uint64(s.ReceivedPkts))
	}

	var delay uint32
	if !s.SRArrivalTime.IsZero() {
		delay = uint32(now.Sub(s.SRArrivalTime).Seconds() * 65536)
	}

	rr := ReceptionReportInfo{
		SSRC:               p.SSRC,
		FractionLost:       uint8(clamp(fractionLost*256, 0, 255)),
		TotalLost:          totalLost,
		LastSequenceNumber: uint32(s.seq.ROC())<<16 | uint32(s.seq.Current()),
		Jitter:             uint32(s.Jitter),
		LastSenderReport:   s.LSR,
		Delay:              delay,
	}

	s.intervalFirstSeq = s.seq.Current()
	s.intervalPkts = 0
	return rr
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

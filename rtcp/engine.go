package rtcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	prtcp "github.com/pion/rtcp"
	"github.com/rs/zerolog"
)

// SenderHook, ReceiverHook, SDESHook and AppHook back the four independent
// hook slots of spec §6: install_sender_hook, install_receiver_hook,
// install_sdes_hook, install_app_hook. Each fires on the reception of the
// named packet type from any participant.
type SenderHook func(ssrc uint32, sr SenderReportInfo)
type ReceiverHook func(ssrc uint32, rr ReceiverReportInfo)
type SDESHook func(ssrc uint32, sdes SDESInfo)
type AppHook func(ssrc uint32, app AppPacket)

// LocalStats mirrors what the Engine needs to know about the outgoing RTP
// stream to build its own Sender Report.
type LocalStats struct {
	SSRC             uint32
	PacketCount      uint32
	OctetCount       uint32
	LastRTPTimestamp uint32
	LastPacketTime   time.Time
	ClockRate        uint32
	SampleRate       uint32
	SendOnly         bool // true => engine never has reception reports to attach
}

// Engine is the per-stream RTCP statistics machine of spec §4.6: it tracks
// one Participant per remote SSRC, schedules periodic transmissions with
// Scheduler, assembles SR/RR/SDES/APP/BYE compound packets, and dispatches
// received ones to the four hook slots.
//
// Built on the same RTPSession jitter/LSR/DLSR bookkeeping a single-peer
// implementation would use, generalized behind Participant and a map so a
// multi-participant session (the "members" term in the bandwidth formula)
// works the same way.
type Engine struct {
	mu sync.Mutex

	LocalSSRC uint32
	CNAME     string

	participants map[uint32]*Participant
	scheduler    *Scheduler

	onSender   SenderHook
	onReceiver ReceiverHook
	onSDES     SDESHook
	onApp      AppHook

	log zerolog.Logger
}

func NewEngine(localSSRC uint32, cname string, sessionBandwidthKbps float64) *Engine {
	return &Engine{
		LocalSSRC:    localSSRC,
		CNAME:        cname,
		participants: make(map[uint32]*Participant),
		scheduler:    NewScheduler(sessionBandwidthKbps, int64(localSSRC)),
	}
}

func (e *Engine) SetLogger(l zerolog.Logger) { e.log = l }

// InstallSenderHook, InstallReceiverHook, InstallSDESHook and InstallAppHook
// implement spec §6's install_*_hook surface.
func (e *Engine) InstallSenderHook(h SenderHook)     { e.mu.Lock(); e.onSender = h; e.mu.Unlock() }
func (e *Engine) InstallReceiverHook(h ReceiverHook) { e.mu.Lock(); e.onReceiver = h; e.mu.Unlock() }
func (e *Engine) InstallSDESHook(h SDESHook)         { e.mu.Lock(); e.onSDES = h; e.mu.Unlock() }
func (e *Engine) InstallAppHook(h AppHook)           { e.mu.Lock(); e.onApp = h; e.mu.Unlock() }

func (e *Engine) participant(ssrc uint32, addr *net.UDPAddr) *Participant {
	p, ok := e.participants[ssrc]
	if !ok {
		p = NewParticipant(ssrc, addr, RoleReceiver)
		e.participants[ssrc] = p
	}
	return p
}

// MemberCount returns the current session membership for the bandwidth
// formula: every known participant, plus ourselves.
func (e *Engine) MemberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.participants) + 1
}

// NextInterval returns the randomized wait before the next scheduled
// transmission (spec §4.6).
func (e *Engine) NextInterval() time.Duration {
	return e.scheduler.Next(e.MemberCount())
}

// ObserveRTP feeds a received RTP packet into the sending participant's
// statistics, learning the participant if this is its first packet.
func (e *Engine) ObserveRTP(ssrc uint32, addr *net.UDPAddr, seq uint16, timestamp uint32, payloadBytes int, arrival time.Time, clockRate uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.participant(ssrc, addr)
	p.ObserveRTP(seq, timestamp, payloadBytes, arrival, clockRate)
}

// HandleCompound parses and dispatches one RTCP compound packet's worth of
// wire bytes, firing the installed hooks and folding reception reports into
// participant state. Malformed or unrecognized content is discarded and
// counted, per spec §4.6 failure semantics.
func (e *Engine) HandleCompound(buf []byte, from *net.UDPAddr) (discarded int) {
	pkts, err := prtcp.Unmarshal(buf)
	if err != nil {
		return 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()

	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *prtcp.SenderReport:
			info := SenderReportInfo{SSRC: p.SSRC, NTPTime: p.NTPTime, RTPTime: p.RTPTime, PacketCount: p.PacketCount, OctetCount: p.OctetCount}
			for _, rr := range p.Reports {
				info.Reports = append(info.Reports, convertReceptionReport(rr))
			}
			participant := e.participant(p.SSRC, from)
			participant.ObserveSenderReport(&info, now)
			if e.onSender != nil {
				e.onSender(p.SSRC, info)
			}

		case *prtcp.ReceiverReport:
			info := ReceiverReportInfo{SSRC: p.SSRC}
			for _, rr := range p.Reports {
				info.Reports = append(info.Reports, convertReceptionReport(rr))
			}
			e.participant(p.SSRC, from)
			if e.onReceiver != nil {
				e.onReceiver(p.SSRC, info)
			}

		case *prtcp.SourceDescription:
			for _, chunk := range p.Chunks {
				info := SDESInfo{SSRC: chunk.Source, Items: make(map[uint8]string, len(chunk.Items))}
				for _, item := range chunk.Items {
					info.Items[uint8(item.Type)] = item.Text
					if item.Type == prtcp.SDESCNAME {
						info.CNAME = item.Text
					}
				}
				participant := e.participant(chunk.Source, from)
				participant.LastSDES = &info
				if e.onSDES != nil {
					e.onSDES(chunk.Source, info)
				}
			}

		case *prtcp.Goodbye:
			for _, ssrc := range p.Sources {
				delete(e.participants, ssrc)
			}

		case prtcp.RawPacket:
			app, err := ParseApp(p)
			if err != nil {
				discarded++
				continue
			}
			participant := e.participant(app.SSRC, from)
			participant.LastApp = app
			if e.onApp != nil {
				e.onApp(app.SSRC, *app)
			}

		default:
			discarded++
		}
	}
	return discarded
}

func convertReceptionReport(rr prtcp.ReceptionReport) ReceptionReportInfo {
	return ReceptionReportInfo{
		SSRC:               rr.SSRC,
		FractionLost:       rr.FractionLost,
		TotalLost:          rr.TotalLost,
		LastSequenceNumber: rr.LastSequenceNumber,
		Jitter:             rr.Jitter,
		LastSenderReport:   rr.LastSenderReport,
		Delay:              rr.Delay,
	}
}

// BuildOutgoing assembles the compound packet this tick should send: a
// Sender Report (if local is sending) or otherwise a Receiver Report,
// followed by an SDES CNAME chunk, per spec §4.6 ("always go with sender
// report with reception reports" when we have a send-capable stream).
func (e *Engine) BuildOutgoing(local LocalStats) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()

	var reports []prtcp.ReceptionReport
	for _, p := range e.participants {
		rr := p.BuildReceptionReport(now)
		reports = append(reports, prtcp.ReceptionReport{
			SSRC:               rr.SSRC,
			FractionLost:       rr.FractionLost,
			TotalLost:          rr.TotalLost,
			LastSequenceNumber: rr.LastSequenceNumber,
			Jitter:             rr.Jitter,
			LastSenderReport:   rr.LastSenderReport,
			Delay:              rr.Delay,
		})
	}

	var pkts []prtcp.Packet
	if !local.SendOnly && local.PacketCount == 0 {
		pkts = append(pkts, &prtcp.ReceiverReport{SSRC: e.LocalSSRC, Reports: reports})
	} else {
		rtpTimestampOffset := now.Sub(local.LastPacketTime).Seconds() * float64(local.ClockRate)
		pkts = append(pkts, &prtcp.SenderReport{
			SSRC:        e.LocalSSRC,
			NTPTime:     NTPTimestamp(now),
			RTPTime:     local.LastRTPTimestamp + uint32(rtpTimestampOffset),
			PacketCount: local.PacketCount,
			OctetCount:  local.OctetCount,
			Reports:     reports,
		})
	}

	pkts = append(pkts, &prtcp.SourceDescription{
		Chunks: []prtcp.SourceDescriptionChunk{
			{
				Source: e.LocalSSRC,
				Items: []prtcp.SourceDescriptionItem{
					{Type: prtcp.SDESCNAME, Text: e.CNAME},
				},
			},
		},
	})

	out, err := prtcp.Marshal(pkts)
	if err != nil {
		return nil, fmt.Errorf("rtcp: marshal compound packet: %w", err)
	}
	e.scheduler.Observe(len(out))
	return out, nil
}

// BuildBye assembles a BYE packet for the given SSRC, used both for a
// normal stream teardown and for the SSRC-collision case of spec §7:
// "SSRC collision with our own SSRC triggers reinitialization of the local
// SSRC and an RTCP BYE for the old one."
func BuildBye(ssrc uint32, reason string) ([]byte, error) {
	return prtcp.Marshal([]prtcp.Packet{&prtcp.Goodbye{Sources: []uint32{ssrc}, Reason: reason}})
}

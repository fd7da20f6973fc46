// Package frame implements the send side of a stream: it packetizes a
// complete media frame into RTP fragments, paces them against the
// configured fps, and pushes them out as gather vectors through an
// optional SRTP pre-send transform (spec §4.4 Frame queue). Built on a
// packet-writer shape generalized from a single fixed payload writer into
// one driven by the formats.Packetizer interface, so several
// payload-specific packetizations can share one send path.
package frame

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultravideo/govgrtp/formats"
	"github.com/ultravideo/govgrtp/rtpctx"
	"github.com/ultravideo/govgrtp/socket"
)

// Sender is the minimal socket surface the queue needs, satisfied by
// *socket.Socket (kept as an interface so tests can fake it without a
// real UDP socket).
type Sender interface {
	SendVector(iov [][]byte) error
	SendBatch(iovs [][][]byte) error
}

// Queue paces and transmits frames for one outbound stream.
type Queue struct {
	sock       Sender
	ctx        *rtpctx.Context
	packetizer formats.Packetizer
	mtu        int

	fps     float64
	batch   bool
	nextDue time.Time

	// encode runs over every assembled RTP packet right before
	// transmission, used to splice in SRTP encryption (spec §4.4's
	// "optional SRTP pre-send transform") without the packetizer needing
	// any awareness of encryption.
	encode func(pkt []byte) ([]byte, error)

	log zerolog.Logger
}

// Config configures a Queue (spec §4.4: mtu, fps pacing, batching toggle).
type Config struct {
	MTU        int
	FPS        float64
	Batch      bool
	Packetizer formats.Packetizer
}

// NewQueue builds a frame queue writing through sock, framing RTP headers
// via ctx and fragmenting payloads via cfg.Packetizer.
func NewQueue(sock Sender, ctx *rtpctx.Context, cfg Config) *Queue {
	mtu := cfg.MTU
	if mtu <= 0 {
		mtu = 1200
	}
	return &Queue{
		sock:       sock,
		ctx:        ctx,
		packetizer: cfg.Packetizer,
		mtu:        mtu,
		fps:        cfg.FPS,
		batch:      cfg.Batch,
		log:        log.With().Str("component", "frame").Logger(),
	}
}

func (q *Queue) SetLogger(l zerolog.Logger) { q.log = l }

// SetEncoder installs (or clears, with nil) the per-packet transform
// applied right before transmission.
func (q *Queue) SetEncoder(enc func(pkt []byte) ([]byte, error)) {
	q.encode = enc
}

// PushFrame fragments frame, builds one RTP packet per fragment, paces
// delivery against fps, and transmits the whole frame all-or-nothing: if
// packetization fails no fragment is sent (spec §4.4 "all-or-nothing
// push-frame invariant").
func (q *Queue) PushFrame(frameData []byte) error {
	if q.fps > 0 {
		q.waitForDeadline()
	}

	fragments, err := q.packetizer.Packetize(frameData, q.mtu)
	if err != nil {
		return fmt.Errorf("frame: packetize: %w", err)
	}
	if len(fragments) == 0 {
		return nil
	}

	// All fragments of one frame share a single RTP timestamp (spec §4.3
	// step 1 computes it once per sent frame, not per packet) - it's the
	// key the receiver's reassembly table is built on (spec §3, §4.5.6).
	// Only the sequence number advances per fragment.
	ts := q.ctx.Timestamp(time.Now())
	packets := make([][]byte, 0, len(fragments))
	for i, frag := range fragments {
		marker := frag.Marker || i == len(fragments)-1
		hdr := q.ctx.Synthesize(marker, &ts)
		pkt, err := buildPacket(hdr, frag)
		if err != nil {
			return fmt.Errorf("frame: build packet %d/%d: %w", i, len(fragments), err)
		}
		if q.encode != nil {
			pkt, err = q.encode(pkt)
			if err != nil {
				return fmt.Errorf("frame: encode packet %d/%d: %w", i, len(fragments), err)
			}
		}
		packets = append(packets, pkt)
	}

	if q.batch {
		iovs := make([][][]byte, len(packets))
		for i, p := range packets {
			iovs[i] = [][]byte{p}
		}
		return q.sock.SendBatch(iovs)
	}

	for _, p := range packets {
		if err := q.sock.SendVector([][]byte{p}); err != nil {
			return fmt.Errorf("frame: send: %w", err)
		}
	}
	return nil
}

func (q *Queue) waitForDeadline() {
	now := time.Now()
	if q.nextDue.IsZero() {
		q.nextDue = now
	}
	if now.Before(q.nextDue) {
		time.Sleep(q.nextDue.Sub(now))
	}
	q.nextDue = q.nextDue.Add(time.Duration(float64(time.Second) / q.fps))
}

func buildPacket(hdr rtp.Header, frag formats.Fragment) ([]byte, error) {
	headerBytes, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}
	pkt := make([]byte, 0, len(headerBytes)+len(frag.Header)+len(frag.Payload))
	pkt = append(pkt, headerBytes...)
	pkt = append(pkt, frag.Header...)
	pkt = append(pkt, frag.Payload...)
	return pkt, nil
}

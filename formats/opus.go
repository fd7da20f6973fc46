package formats

import (
	"fmt"
	"time"

	"github.com/pion/opus"
)

// opusScratchSamples bounds the scratch decode buffer used to validate
// inbound packets: 1920 samples (40ms at 48kHz) covers the largest Opus
// frame duration, matching the sizing pion/opus callers use elsewhere in
// this pack.
const opusScratchSamples = 1920 * 2

// Opus implements the passthrough payload format of spec §4.5.5: RFC 7587
// never fragments, one Opus packet per RTP packet, marker set on every
// packet. The depacketizer runs each payload through a pion/opus decoder
// purely to validate it (reject corrupt or non-Opus payloads) before
// handing the still-encoded frame upward; this package never decodes to
// PCM for the caller; that is out of scope (spec Non-goals: no media
// encode/decode).
type Opus struct {
	Opts    Options
	decoder opus.Decoder
	scratch []byte
}

func NewOpus(opts Options) *Opus {
	return &Opus{Opts: opts, decoder: opus.NewDecoder(), scratch: make([]byte, opusScratchSamples)}
}

func (o *Opus) Packetize(frame []byte, mtu int) ([]Fragment, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("formats: empty Opus frame")
	}
	if len(frame) > mtu {
		return nil, fmt.Errorf("formats: Opus frame exceeds mtu, fragmentation is not defined by RFC 7587")
	}
	return []Fragment{{Payload: frame, Marker: true}}, nil
}

func (o *Opus) Ingest(seq uint16, timestamp uint32, marker bool, payload []byte, arrival time.Time) ([]byte, bool, error) {
	if len(payload) == 0 {
		return nil, false, fmt.Errorf("formats: empty Opus RTP payload")
	}
	if _, _, err := o.decoder.Decode(payload, o.scratch); err != nil {
		return nil, false, fmt.Errorf("formats: invalid Opus payload: %w", err)
	}
	return payload, true, nil
}

// GC is a no-op: Opus never buffers across Ingest calls.
func (o *Opus) GC(now time.Time, maxDelay time.Duration) {}

package rtpctx

import (
	"math/rand"
	"time"

	"github.com/pion/rtp"
)

// Context is the per-stream RTP identity: SSRC, sequence counter, timestamp
// clock and payload type (spec §3 "Stream state", §4.3).
type Context struct {
	SSRC        uint32
	RemoteSSRC  uint32
	PayloadType uint8
	ClockRate   uint32

	seq       ExtendedSequence
	tsStart   uint32
	wallStart time.Time
}

// NewContext allocates a fresh context with a random SSRC, random initial
// sequence number and random initial timestamp, per spec §4.3.
func NewContext(payloadType uint8, clockRate uint32) *Context {
	c := &Context{
		SSRC:        rand.Uint32(),
		PayloadType: payloadType,
		ClockRate:   clockRate,
		tsStart:     rand.Uint32(),
		wallStart:   time.Now(),
	}
	c.seq = NewExtendedSequence()
	return c
}

// Timestamp computes the current RTP timestamp from wall-clock elapsed time
// and the configured clock rate, unless the caller supplies one explicitly.
func (c *Context) Timestamp(now time.Time) uint32 {
	elapsedMs := now.Sub(c.wallStart).Milliseconds()
	return c.tsStart + uint32(elapsedMs*int64(c.ClockRate)/1000)
}

// NextSequence returns the next sequence number to stamp onto an outgoing
// packet, wrapping modulo 2^16.
func (c *Context) NextSequence() uint16 {
	return c.seq.Next()
}

// Synthesize fills the fixed RTP header fields for one outgoing packet.
// If tsOverride is non-nil, it is used verbatim instead of the wallclock
// derivation (spec §4.3: "honors an application-provided timestamp").
func (c *Context) Synthesize(marker bool, tsOverride *uint32) rtp.Header {
	ts := c.Timestamp(time.Now())
	if tsOverride != nil {
		ts = *tsOverride
	}
	return rtp.Header{
		Version:        2,
		Marker:         marker,
		PayloadType:    c.PayloadType,
		SequenceNumber: c.NextSequence(),
		Timestamp:      ts,
		SSRC:           c.SSRC,
	}
}

// LearnRemote records the remote SSRC the first time it is observed, or
// validates subsequent packets still originate from it. Returns true if this
// packet's SSRC collides with our own local SSRC (spec §7 SSRC collision).
func (c *Context) LearnRemote(ssrc uint32) (collides bool) {
	if c.RemoteSSRC == 0 {
		c.RemoteSSRC = ssrc
	}
	return ssrc == c.SSRC
}

// Reinitialize regenerates the local SSRC, used after an SSRC collision is
// detected (spec §7).
func (c *Context) Reinitialize() uint32 {
	old := c.SSRC
	c.SSRC = rand.Uint32()
	return old
}

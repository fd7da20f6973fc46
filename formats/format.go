// Package formats implements the pluggable packetizers/depacketizers of
// spec §4.5: generic, H.264 (RFC 6184), H.265 (RFC 7798), H.266 (RFC 9328)
// and Opus (RFC 7587). H.26x variants share a fragmentation/reassembly
// automaton (reassembly.go) keyed by RTP timestamp.
package formats

import "time"

// Fragment is one wire fragment of an application frame: an optional
// format-specific fragment header (FU-A/FU indicator+header, etc.) plus the
// payload slice it carries. The RTP fixed header is added by the caller
// (frame.Queue); Fragment never includes it.
type Fragment struct {
	Header  []byte
	Payload []byte
	Marker  bool // set on the last fragment of an access unit
}

// Packetizer splits one application frame into wire fragments sized to fit
// mtu (already reduced by the RTP/UDP/IP header overhead; spec §6
// "payload size = mtu - 40 - 12").
type Packetizer interface {
	Packetize(frame []byte, mtu int) ([]Fragment, error)
}

// Depacketizer consumes RTP payloads (already stripped of the fixed RTP
// header) keyed by their RTP timestamp and sequence number, and yields
// completed application frames when reassembly finishes.
type Depacketizer interface {
	// Ingest returns a completed frame (and true) once one is ready. A nil
	// frame with ok=false means the fragment was buffered/consumed but no
	// frame is ready yet.
	Ingest(seq uint16, timestamp uint32, marker bool, payload []byte, arrival time.Time) (frame []byte, ok bool, err error)
	// GC drops any incomplete reassembly state older than maxDelay,
	// applying the intra-delay policy of spec §4.5.6. DependencyEnforcement
	// is not consulted: inter frames are not dropped for missing
	// predecessors.
	GC(now time.Time, maxDelay time.Duration)
}

// Options configures a depacketizer's policy knobs, mapped from the RCE
// flag enumeration in spec §6.
type Options struct {
	PrependStartCode       bool // !h26x-do-not-prepend-sc
	DependencyEnforcement  bool // h26x-dependency-enforcement
	IntraDelayPolicy       bool // default true, see spec §4.5.6
	FragmentGeneric        bool // fragment-generic
}

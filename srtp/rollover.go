package srtp

// rolloverTolerance is the ±2^15 window spec §4.7 names for resolving
// sequence numbers that arrive just before or after a rollover-counter
// wraparound (RFC 3711 §3.3.1 "Guidelines for Rollover Counter").
const rolloverTolerance = 1 << 15

// RolloverTracker maintains the 32-bit rollover counter and highest-seen
// sequence number for one SRTP direction, spec §3: "Rollover counter (32
// bits), highest received sequence (16 bits)... ROC increments on wrap."
type RolloverTracker struct {
	roc         uint32
	highestSeq  uint16
	initialized bool
}

// Index returns the 48-bit packet index (ROC<<16 + seq) to use for a
// received sequence number, updating the tracker's ROC/highest-seq state
// per the RFC 3711 guideline.
func (r *RolloverTracker) Index(seq uint16) uint64 {
	if !r.initialized {
		r.initialized = true
		r.highestSeq = seq
		return uint64(r.roc)<<16 | uint64(seq)
	}

	v := r.roc
	if r.highestSeq >= rolloverTolerance {
		if int(r.highestSeq)-rolloverTolerance > int(seq) {
			v = r.roc + 1
		}
	} else {
		if int(seq)-int(r.highestSeq) > rolloverTolerance {
			v = r.roc - 1
		}
	}

	if v == r.roc+1 {
		r.roc = v
		r.highestSeq = seq
	} else if v == r.roc && seqGreaterThan(seq, r.highestSeq) {
		r.highestSeq = seq
	}

	return uint64(v)<<16 | uint64(seq)
}

// NextIndex returns the packet index for the next packet to send, advancing
// the sender-side ROC on 16-bit wraparound.
func (r *RolloverTracker) NextIndex(seq uint16) uint64 {
	if !r.initialized {
		r.initialized = true
		r.highestSeq = seq
		return uint64(r.roc)<<16 | uint64(seq)
	}
	if seq < r.highestSeq {
		r.roc++
	}
	r.highestSeq = seq
	return uint64(r.roc)<<16 | uint64(seq)
}

func seqGreaterThan(a, b uint16) bool {
	return int16(a-b) > 0
}

// ROC reports the current rollover counter value.
func (r *RolloverTracker) ROC() uint32 { return r.roc }

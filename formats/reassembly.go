package formats

import (
	"sort"
	"time"
)

// record is one entry of the reassembly table ("Reassembly table" in spec
// §3, state machine in §4.5.6): the per-RTP-timestamp accumulator of
// fragments belonging to one access unit / NAL unit.
type record struct {
	startSeq  *uint16
	endSeq    *uint16
	arrival   time.Time
	fragments map[uint16][]byte
	isIntra   bool
	held      bool // being protected by the intra-delay policy
}

// Reassembler implements the H.26x fragmentation reassembly automaton of
// spec §4.5.6. It is private to the reception-flow goroutine (spec §5:
// "Reassembly table: private to reception thread") so needs no locking.
type Reassembler struct {
	table map[uint32]*record

	// intra-delay policy state (spec §4.5.6 "Intra-delay policy")
	heldIntraTS  *uint32
	lastIntraOK  bool // a newer intra completed dependents tracking
	completedSeq *uint16
}

func NewReassembler() *Reassembler {
	return &Reassembler{table: make(map[uint32]*record)}
}

// Insert adds one fragment to the record for timestamp ts, creating it if
// necessary (step 1-3 of spec §4.5.6). Duplicate sequence numbers overwrite.
func (r *Reassembler) Insert(ts uint32, seq uint16, payload []byte, start, end, isIntra bool, arrival time.Time) {
	rec, ok := r.table[ts]
	if !ok {
		rec = &record{fragments: make(map[uint16][]byte), arrival: arrival, isIntra: isIntra}
		r.table[ts] = rec
		if isIntra {
			r.MarkNewIntraArrived(ts)
		}
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	rec.fragments[seq] = buf

	if start {
		s := seq
		rec.startSeq = &s
	}
	if end {
		e := seq
		rec.endSeq = &e
	}
}

// TryComplete reports whether the access unit at ts is fully present and,
// if so, returns its fragments concatenated in ascending sequence order
// (spec §4.5.6 step 4, invariant in spec §8: "concatenation order equals
// ascending sequence number from start-fragment to end-fragment").
func (r *Reassembler) TryComplete(ts uint32) (concatenated []byte, complete bool) {
	rec, ok := r.table[ts]
	if !ok || rec.startSeq == nil || rec.endSeq == nil {
		return nil, false
	}

	seqs := seqRangeModulo(*rec.startSeq, *rec.endSeq)
	for _, s := range seqs {
		if _, present := rec.fragments[s]; !present {
			return nil, false
		}
	}

	out := make([]byte, 0, 1500*len(seqs))
	for _, s := range seqs {
		out = append(out, rec.fragments[s]...)
	}
	delete(r.table, ts)
	if r.heldIntraTS != nil && *r.heldIntraTS == ts {
		r.heldIntraTS = nil
	}
	return out, true
}

// seqRangeModulo walks the inclusive sequence range [start, end] modulo
// 2^16, handling wraparound (spec §3 "mod 2^16").
func seqRangeModulo(start, end uint16) []uint16 {
	if start <= end {
		out := make([]uint16, 0, int(end-start)+1)
		for s := start; ; s++ {
			out = append(out, s)
			if s == end {
				break
			}
		}
		return out
	}
	out := make([]uint16, 0, int(65536-int(start)+int(end)+1))
	for s := start; ; s++ {
		out = append(out, s)
		if s == 65535 {
			break
		}
	}
	for s := uint16(0); ; s++ {
		out = append(out, s)
		if s == end {
			break
		}
	}
	return out
}

// GC drops incomplete records older than maxDelay (spec §4.5.6 step 5).
// When intraDelayPolicy is enabled, an over-age intra record is held rather
// than dropped, until the intra completes or a newer intra arrives (spec
// §4.5.6 "Intra-delay policy"). Over-age inter records are dropped either
// way; inter records younger than maxDelay are kept even while an intra is
// held.
func (r *Reassembler) GC(now time.Time, maxDelay time.Duration, intraDelayPolicy bool) (droppedTS []uint32) {
	type agedTS struct {
		ts  uint32
		rec *record
	}
	var aged []agedTS
	for ts, rec := range r.table {
		if now.Sub(rec.arrival) > maxDelay {
			aged = append(aged, agedTS{ts, rec})
		}
	}
	// Deterministic order for tests/logging.
	sort.Slice(aged, func(i, j int) bool { return aged[i].ts < aged[j].ts })

	for _, a := range aged {
		if intraDelayPolicy && a.rec.isIntra {
			// Hold this intra instead of dropping it.
			ts := a.ts
			r.heldIntraTS = &ts
			a.rec.held = true
			continue
		}
		if intraDelayPolicy && r.heldIntraTS != nil {
			// An intra is being held: this over-age inter is dropped as usual.
			delete(r.table, a.ts)
			droppedTS = append(droppedTS, a.ts)
			continue
		}
		delete(r.table, a.ts)
		droppedTS = append(droppedTS, a.ts)
	}
	return droppedTS
}

// MarkNewIntraArrived releases any held intra in favor of a freshly-arrived
// one, per spec §4.5.6: "until ... (b) a newer intra arrives".
func (r *Reassembler) MarkNewIntraArrived(ts uint32) {
	if r.heldIntraTS != nil && *r.heldIntraTS != ts {
		delete(r.table, *r.heldIntraTS)
		r.heldIntraTS = nil
	}
}

// Pending reports the number of incomplete records currently buffered.
func (r *Reassembler) Pending() int { return len(r.table) }

package formats

import "time"

// Generic implements the fragmentable generic payload of spec §4.5.1: one
// application frame <= MTU becomes one RTP packet; if larger and fragmented,
// MTU-sized packets with the marker bit set on the last one.
type Generic struct {
	Opts Options
	re   *Reassembler
}

func NewGeneric(opts Options) *Generic {
	return &Generic{Opts: opts, re: NewReassembler()}
}

func (g *Generic) Packetize(frame []byte, mtu int) ([]Fragment, error) {
	if len(frame) <= mtu || !g.Opts.FragmentGeneric {
		return []Fragment{{Payload: frame, Marker: true}}, nil
	}

	var frags []Fragment
	for off := 0; off < len(frame); off += mtu {
		end := min(off+mtu, len(frame))
		frags = append(frags, Fragment{Payload: frame[off:end], Marker: end == len(frame)})
	}
	return frags, nil
}

// Ingest treats the first fragment observed for a timestamp as the run's
// start and the marker-carrying fragment as its end, per spec §4.5.1:
// "Receiver reassembles by consecutive sequence numbers sharing a
// timestamp and finalizes on marker."
func (g *Generic) Ingest(seq uint16, timestamp uint32, marker bool, payload []byte, arrival time.Time) ([]byte, bool, error) {
	_, exists := g.re.table[timestamp]
	g.re.Insert(timestamp, seq, payload, !exists, marker, false, arrival)
	frame, ok := g.re.TryComplete(timestamp)
	return frame, ok, nil
}

func (g *Generic) GC(now time.Time, maxDelay time.Duration) {
	g.re.GC(now, maxDelay, false)
}

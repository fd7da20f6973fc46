package formats

import (
	"fmt"
	"time"
)

// H.266/VVC NAL unit header layout per RFC 9328: byte0 = F(1)|Z(1)|LayerID(6),
// byte1 = Type(5)|TID(3). Aggregation Packets use type 28, Fragmentation
// Units use type 29 (spec §9 open question: "H.266 type numbers... fix to
// RFC 9328 explicitly" — these are the values this module fixes to).
const (
	h266NALTypeAP = 28
	h266NALTypeFU = 29
)

var h266IntraTypes = map[byte]bool{
	7: true, // IDR_W_RADL
	8: true, // IDR_N_LP
	9: true, // CRA_NUT
}

// H266 packetizes/depacketizes VVC NAL units analogously to H265 (spec
// §4.5.4: "Analogous to H.265 with its own FU header encoding").
type H266 struct {
	Opts Options
	re   *Reassembler
}

func NewH266(opts Options) *H266 {
	return &H266{Opts: opts, re: NewReassembler()}
}

func h266NALType(b1 byte) byte { return (b1 >> 3) & 0x1f }

func (h *H266) Packetize(nalu []byte, mtu int) ([]Fragment, error) {
	if len(nalu) < 2 {
		return nil, fmt.Errorf("formats: H.266 NAL unit too short")
	}
	if len(nalu) <= mtu {
		return []Fragment{{Payload: nalu, Marker: true}}, nil
	}

	naluType := h266NALType(nalu[1])
	tid := nalu[1] & 0x07
	fuPayloadHeader := [2]byte{nalu[0], (h266NALTypeFU << 3) | tid}

	payload := nalu[2:]
	maxChunk := mtu - 3
	if maxChunk <= 0 {
		return nil, fmt.Errorf("formats: mtu too small for H.266 FU")
	}

	var frags []Fragment
	for off := 0; off < len(payload); off += maxChunk {
		end := off + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		start := off == 0
		last := end == len(payload)
		fuHeader := naluType
		if start {
			fuHeader |= 0x80
		}
		if last {
			fuHeader |= 0x40
		}
		frags = append(frags, Fragment{
			Header:  []byte{fuPayloadHeader[0], fuPayloadHeader[1], fuHeader},
			Payload: payload[off:end],
			Marker:  last,
		})
	}
	return frags, nil
}

func (h *H266) Ingest(seq uint16, timestamp uint32, marker bool, payload []byte, arrival time.Time) ([]byte, bool, error) {
	if len(payload) < 2 {
		return nil, false, fmt.Errorf("formats: short H.266 RTP payload")
	}
	naluType := h266NALType(payload[1])

	switch naluType {
	case h266NALTypeAP:
		nalus, err := splitAggregate(payload[2:])
		if err != nil {
			return nil, false, err
		}
		if len(nalus) == 0 {
			return nil, false, nil
		}
		return h.finish(nalus[0]), true, nil

	case h266NALTypeFU:
		if len(payload) < 3 {
			return nil, false, fmt.Errorf("formats: short H.266 FU packet")
		}
		tid := payload[1] & 0x07
		fuHeader := payload[2]
		start := fuHeader&0x80 != 0
		end := fuHeader&0x40 != 0
		origType := fuHeader & 0x1f

		reconstructed := make([]byte, 0, 2+len(payload)-3)
		if start {
			b1 := (origType << 3) | tid
			reconstructed = append(reconstructed, payload[0], b1)
		}
		reconstructed = append(reconstructed, payload[3:]...)

		h.re.Insert(timestamp, seq, reconstructed, start, end, h266IntraTypes[origType], arrival)
		frame, ok := h.re.TryComplete(timestamp)
		if !ok {
			return nil, false, nil
		}
		return h.finish(frame), true, nil

	default:
		return h.finish(payload), true, nil
	}
}

func (h *H266) finish(nalu []byte) []byte {
	if !h.Opts.PrependStartCode {
		return nalu
	}
	out := make([]byte, 0, 4+len(nalu))
	out = append(out, 0, 0, 0, 1)
	out = append(out, nalu...)
	return out
}

func (h *H266) GC(now time.Time, maxDelay time.Duration) {
	h.re.GC(now, maxDelay, h.Opts.IntraDelayPolicy)
}

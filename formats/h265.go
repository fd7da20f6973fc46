package formats

import (
	"fmt"
	"time"
)

// H.265/HEVC NAL unit types relevant to packetization, RFC 7798.
const (
	h265NALTypeAP = 48
	h265NALTypeFU = 49
)

// Intra NAL types per spec §9 open-question resolution: treat all of
// {BLA_W_LP=16, BLA_W_RADL=17, BLA_N_LP=18, IDR_W_RADL=19, IDR_N_LP=20,
// CRA_NUT=21} as intra, the full RFC 7798 §3.1.1 range rather than a
// narrower IDR-only subset.
var h265IntraTypes = map[byte]bool{16: true, 17: true, 18: true, 19: true, 20: true, 21: true}

// H265 implements RFC 7798 packetization: the two-byte NAL header
// F(1)|type(6)|layer(6)|tid(3), single-NAL packets when they fit, FU
// fragmentation otherwise, and AP (aggregation, type 48) parsing on
// receive.
type H265 struct {
	Opts Options
	re   *Reassembler
}

func NewH265(opts Options) *H265 {
	return &H265{Opts: opts, re: NewReassembler()}
}

func h265NALType(b0 byte) byte { return (b0 >> 1) & 0x3f }

func (h *H265) Packetize(nalu []byte, mtu int) ([]Fragment, error) {
	if len(nalu) < 2 {
		return nil, fmt.Errorf("formats: H.265 NAL unit too short")
	}
	if len(nalu) <= mtu {
		return []Fragment{{Payload: nalu, Marker: true}}, nil
	}

	naluType := h265NALType(nalu[0])
	layerTid := nalu[1]
	// FU payload header: same 2-byte shape with type replaced by 49.
	fuPayloadHeader := [2]byte{(nalu[0] & 0x81) | (h265NALTypeFU << 1), layerTid}

	payload := nalu[2:]
	maxChunk := mtu - 3 // 2-byte FU payload header + 1-byte FU header
	if maxChunk <= 0 {
		return nil, fmt.Errorf("formats: mtu too small for H.265 FU")
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

func (h *H265) Ingest(seq uint16, timestamp uint32, marker bool, payload []byte, arrival time.Time) ([]byte, bool, error) {
	if len(payload) < 2 {
		return nil, false, fmt.Errorf("formats: short H.265 RTP payload")
	}
	naluType := h265NALType(payload[0])

	switch naluType {
	case h265NALTypeAP:
		nalus, err := splitAggregate(payload[2:])
		if err != nil {
			return nil, false, err
		}
		if len(nalus) == 0 {
			return nil, false, nil
		}
		return h.finish(nalus[0]), true, nil

	case h265NALTypeFU:
		if len(payload) < 3 {
			return nil, false, fmt.Errorf("formats: short H.265 FU packet")
		}
		layerTid := payload[1]
		fuHeader := payload[2]
		start := fuHeader&0x80 != 0
		end := fuHeader&0x40 != 0
		origType := fuHeader & 0x3f

		reconstructed := make([]byte, 0, 2+len(payload)-3)
		if start {
			b0 := (payload[0] & 0x81) | (origType << 1)
			reconstructed = append(reconstructed, b0, layerTid)
		}
		reconstructed = append(reconstructed, payload[3:]...)

		h.re.Insert(timestamp, seq, reconstructed, start, end, h265IntraTypes[origType], arrival)
		frame, ok := h.re.TryComplete(timestamp)
		if !ok {
			return nil, false, nil
		}
		return h.finish(frame), true, nil

	default:
		return h.finish(payload), true, nil
	}
}

func (h *H265) finish(nalu []byte) []byte {
	if !h.Opts.PrependStartCode {
		return nalu
	}
	out := make([]byte, 0, 4+len(nalu))
	out = append(out, 0, 0, 0, 1)
	out = append(out, nalu...)
	return out
}

func (h *H265) GC(now time.Time, maxDelay time.Duration) {
	h.re.GC(now, maxDelay, h.Opts.IntraDelayPolicy)
}

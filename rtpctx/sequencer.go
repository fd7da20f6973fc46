// Package rtpctx implements the per-stream RTP context: sequence counter,
// timestamp clock, SSRC, payload type and clock rate (spec §4.3). The
// extended-sequence-number tracking generalizes a simple rollover counter
// into one that also serves as the SRTP rollover-counter input (spec §4.7
// "packet_index = (ROC << 16) + seq").
package rtpctx

import (
	"errors"
	"math/rand"
)

var (
	maxMisorder uint16 = 100
	maxDropout  uint16 = 3000
	maxSeqNum   uint16 = 65535
)

var (
	ErrSequenceBad  = errors.New("rtpctx: bad sequence jump")
	ErrSequenceDupe = errors.New("rtpctx: duplicate/old sequence")
)

// ExtendedSequence tracks a 16-bit RTP sequence number together with the
// wraparound count needed to reconstruct the 48-bit SRTP packet index.
type ExtendedSequence struct {
	seqNum  uint16
	wrapCnt uint16
	badSeq  uint16
}

func NewExtendedSequence() ExtendedSequence {
	es := ExtendedSequence{}
	es.Init(uint16(rand.Uint32()))
	return es
}

func (s *ExtendedSequence) Init(seq uint16) {
	s.seqNum = seq
	s.badSeq = maxSeqNum
	s.wrapCnt = 0
}

// Update folds in a newly-received sequence number, per RFC 3550 Appendix A.2.
func (s *ExtendedSequence) Update(seq uint16) error {
	maxSeq := s.seqNum
	udelta := seq - maxSeq

	if udelta < maxDropout {
		if seq < maxSeq {
			s.wrapCnt++
		}
		s.seqNum = seq
		return nil
	}

	if udelta <= maxSeqNum-maxMisorder {
		if seq == s.badSeq {
			s.Init(seq)
			return nil
		}
		s.badSeq = seq + 1
		return ErrSequenceBad
	}

	return ErrSequenceDupe
}

// Extended returns the 48-bit extended sequence number (ROC<<16 + seq).
func (s *ExtendedSequence) Extended() uint64 {
	return uint64(s.seqNum) + (uint64(maxSeqNum)+1)*uint64(s.wrapCnt)
}

// ROC returns the current rollover counter (upper bits of Extended).
func (s *ExtendedSequence) ROC() uint32 {
	return uint32(s.wrapCnt)
}

// Next increments and returns the next sequence number to send, wrapping
// modulo 2^16 and bumping the rollover counter on wrap.
func (s *ExtendedSequence) Next() uint16 {
	s.seqNum++
	if s.seqNum == 0 {
		s.wrapCnt++
	}
	return s.seqNum
}

func (s *ExtendedSequence) Current() uint16 { return s.seqNum }

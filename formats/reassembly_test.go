package formats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassemblerCompletesInSequenceOrder(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	r.Insert(1, 10, []byte("A"), true, false, false, now)
	r.Insert(1, 11, []byte("B"), false, false, false, now)
	r.Insert(1, 12, []byte("C"), false, true, false, now)

	out, ok := r.TryComplete(1)
	require.True(t, ok)
	assert.Equal(t, []byte("ABC"), out)
	assert.Equal(t, 0, r.Pending())
}

func TestReassemblerIncompleteUntilAllFragmentsPresent(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	r.Insert(1, 10, []byte("A"), true, false, false, now)
	r.Insert(1, 12, []byte("C"), false, true, false, now)

	_, ok := r.TryComplete(1)
	assert.False(t, ok, "fragment 11 is missing")
}

func TestSeqRangeModuloWraparound(t *testing.T) {
	seqs := seqRangeModulo(65534, 1)
	assert.Equal(t, []uint16{65534, 65535, 0, 1}, seqs)
}

func TestSeqRangeModuloNoWrap(t *testing.T) {
	seqs := seqRangeModulo(5, 8)
	assert.Equal(t, []uint16{5, 6, 7, 8}, seqs)
}

func TestReassemblerGCDropsAgedRecords(t *testing.T) {
	r := NewReassembler()
	old := time.Now().Add(-5 * time.Second)
	r.Insert(1, 1, []byte("x"), true, false, false, old)

	dropped := r.GC(time.Now(), time.Second, false)
	assert.Equal(t, []uint32{1}, dropped)
	assert.Equal(t, 0, r.Pending())
}

func TestReassemblerIntraDelayPolicyHoldsAgingIntra(t *testing.T) {
	r := NewReassembler()
	old := time.Now().Add(-5 * time.Second)
	r.Insert(1, 1, []byte("intra"), true, false, true, old)
	r.Insert(2, 1, []byte("inter"), true, false, false, old)

	dropped := r.GC(time.Now(), time.Second, true)
	assert.Equal(t, []uint32{2}, dropped, "the newer inter frame is dropped, not the held intra")
	assert.Equal(t, 1, r.Pending(), "the intra record is still held")
}

func TestReassemblerMarkNewIntraArrivedReleasesHeldOne(t *testing.T) {
	r := NewReassembler()
	old := time.Now().Add(-5 * time.Second)
	r.Insert(1, 1, []byte("intra"), true, false, true, old)
	r.GC(time.Now(), time.Second, true)
	require.Equal(t, 1, r.Pending())

	r.MarkNewIntraArrived(2)
	assert.Equal(t, 0, r.Pending())
}

package srtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolloverTrackerFirstPacketHasZeroROC(t *testing.T) {
	var r RolloverTracker
	idx := r.Index(100)
	assert.Equal(t, uint64(100), idx)
}

func TestRolloverTrackerSenderIncrementsOnWrap(t *testing.T) {
	var r RolloverTracker
	r.NextIndex(65530)
	idx := r.NextIndex(5) // wrapped past 65535
	assert.Equal(t, uint32(1), r.ROC())
	assert.Equal(t, uint64(1)<<16|5, idx)
}

func TestRolloverTrackerReceiverToleratesReorderingNearWrap(t *testing.T) {
	var r RolloverTracker
	r.Index(65530)
	idx := r.Index(65528) // reordered, still pre-wrap
	assert.Equal(t, uint32(0), r.ROC())
	assert.Equal(t, uint64(65528), idx)
}

func TestRolloverTrackerReceiverDetectsWrapWithTolerance(t *testing.T) {
	var r RolloverTracker
	r.Index(65530)
	idx := r.Index(5) // genuine wrap, within 2^15 tolerance
	assert.Equal(t, uint32(1), r.ROC())
	assert.Equal(t, uint64(1)<<16|5, idx)
}

package srtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplayWindowAllowsFirstPacket(t *testing.T) {
	w := NewReplayWindow()
	assert.False(t, w.Check(10))
}

func TestReplayWindowRejectsDuplicate(t *testing.T) {
	w := NewReplayWindow()
	w.Record(10)
	assert.True(t, w.Check(10))
}

func TestReplayWindowRejectsTooOld(t *testing.T) {
	w := NewReplayWindow()
	w.Record(1000)
	assert.True(t, w.Check(1000-replayWindowSize))
}

func TestReplayWindowAllowsNewerOutOfOrder(t *testing.T) {
	w := NewReplayWindow()
	w.Record(1000)
	assert.False(t, w.Check(999))
	w.Record(999)
	assert.True(t, w.Check(999))
}

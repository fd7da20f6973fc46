package formats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenericPacketizeSingle(t *testing.T) {
	g := NewGeneric(Options{})
	frags, err := g.Packetize([]byte("hello"), 1500)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Marker)
	assert.Equal(t, []byte("hello"), frags[0].Payload)
}

func TestGenericPacketizeFragmented(t *testing.T) {
	g := NewGeneric(Options{FragmentGeneric: true})
	frame := make([]byte, 3200)
	for i := range frame {
		frame[i] = byte(i)
	}
	frags, err := g.Packetize(frame, 1500)
	require.NoError(t, err)
	require.Len(t, frags, 3)
	assert.False(t, frags[0].Marker)
	assert.False(t, frags[1].Marker)
	assert.True(t, frags[2].Marker)

	var reassembled []byte
	for _, f := range frags {
		reassembled = append(reassembled, f.Payload...)
	}
	assert.Equal(t, frame, reassembled)
}

func TestGenericIngestReassemblesInOrder(t *testing.T) {
	g := NewGeneric(Options{})
	now := time.Now()

	frame, ok, err := g.Ingest(100, 1000, false, []byte("ABC"), now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, frame)

	frame, ok, err = g.Ingest(101, 1000, false, []byte("DEF"), now)
	require.NoError(t, err)
	assert.False(t, ok)

	frame, ok, err = g.Ingest(102, 1000, true, []byte("GHI"), now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("ABCDEFGHI"), frame)
}

func TestGenericIngestSinglePacketMarksCompleteImmediately(t *testing.T) {
	g := NewGeneric(Options{})
	frame, ok, err := g.Ingest(5, 42, true, []byte("solo"), time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("solo"), frame)
}

func TestGenericGCDropsAgedIncompleteRecord(t *testing.T) {
	g := NewGeneric(Options{})
	old := time.Now().Add(-10 * time.Second)
	_, ok, err := g.Ingest(1, 7, false, []byte("partial"), old)
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, 1, g.re.Pending())

	g.GC(time.Now(), 2*time.Second)
	assert.Equal(t, 0, g.re.Pending())
}

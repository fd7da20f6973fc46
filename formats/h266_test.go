package formats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestH266NALType(t *testing.T) {
	b1 := byte(7 << 3) // IDR_W_RADL, tid=0
	assert.Equal(t, byte(7), h266NALType(b1))
}

func TestH266PacketizeSingleNAL(t *testing.T) {
	h := NewH266(Options{})
	nalu := []byte{0x00, byte(1 << 3), 0xaa, 0xbb}
	frags, err := h.Packetize(nalu, 1500)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Marker)
}

func TestH266PacketizeAndIngestFU(t *testing.T) {
	h := NewH266(Options{})
	nalu := make([]byte, 500)
	nalu[0] = 0x00
	nalu[1] = byte(7 << 3) // IDR_W_RADL, tid=0
	for i := 2; i < len(nalu); i++ {
		nalu[i] = byte(i)
	}

	frags, err := h.Packetize(nalu, 100)
	require.NoError(t, err)
	require.True(t, len(frags) > 1)

	now := time.Now()
	var out []byte
	var ok bool
	for i, f := range frags {
		payload := append(append([]byte{}, f.Header...), f.Payload...)
		out, ok, err = h.Ingest(uint16(i), 1234, f.Marker, payload, now)
		require.NoError(t, err)
	}
	require.True(t, ok)
	assert.Equal(t, nalu, out)
}

func TestH266IngestAP(t *testing.T) {
	h := NewH266(Options{})
	nalA := []byte{0x00, byte(1 << 3), 1, 2, 3}
	payload := []byte{0x00, byte(h266NALTypeAP << 3)}
	payload = append(payload, 0, byte(len(nalA)))
	payload = append(payload, nalA...)

	out, ok, err := h.Ingest(0, 1, true, payload, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nalA, out)
}

func TestH266IntraTypes(t *testing.T) {
	for _, typ := range []byte{7, 8, 9} {
		assert.True(t, h266IntraTypes[typ])
	}
	assert.False(t, h266IntraTypes[1])
}

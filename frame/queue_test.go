package frame

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultravideo/govgrtp/formats"
	"github.com/ultravideo/govgrtp/rtpctx"
)

type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) SendVector(iov [][]byte) error {
	var pkt []byte
	for _, b := range iov {
		pkt = append(pkt, b...)
	}
	f.sent = append(f.sent, pkt)
	return nil
}

func (f *fakeSender) SendBatch(iovs [][][]byte) error {
	for _, iov := range iovs {
		if err := f.SendVector(iov); err != nil {
			return err
		}
	}
	return nil
}

func TestQueuePushFrameSingleFragment(t *testing.T) {
	sender := &fakeSender{}
	ctx := rtpctx.NewContext(0, 90000)
	q := NewQueue(sender, ctx, Config{MTU: 1200, Packetizer: formats.NewGeneric(formats.Options{})})

	require.NoError(t, q.PushFrame([]byte("hello, world!")))
	require.Len(t, sender.sent, 1)

	var hdr rtp.Header
	n, err := hdr.Unmarshal(sender.sent[0])
	require.NoError(t, err)
	assert.True(t, hdr.Marker)
	assert.Equal(t, "hello, world!", string(sender.sent[0][n:]))
}

func TestQueuePushFrameAppliesEncoder(t *testing.T) {
	sender := &fakeSender{}
	ctx := rtpctx.NewContext(0, 90000)
	q := NewQueue(sender, ctx, Config{MTU: 1200, Packetizer: formats.NewGeneric(formats.Options{})})
	q.SetEncoder(func(pkt []byte) ([]byte, error) {
		return append(pkt, 0xFF), nil
	})

	require.NoError(t, q.PushFrame([]byte("x")))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, byte(0xFF), sender.sent[0][len(sender.sent[0])-1])
}

func TestQueueFragmentsOversizedGenericFrame(t *testing.T) {
	sender := &fakeSender{}
	ctx := rtpctx.NewContext(0, 90000)
	q := NewQueue(sender, ctx, Config{MTU: 10, Packetizer: formats.NewGeneric(formats.Options{FragmentGeneric: true})})

	require.NoError(t, q.PushFrame(make([]byte, 25)))
	assert.Len(t, sender.sent, 3)
}

// TestQueueFragmentsShareOneTimestamp pins the fix for every fragment of
// one PushFrame call carrying the same RTP timestamp: the reassembly
// table on the receiving side keys its record purely on RTP timestamp, so
// a timestamp that drifts between fragments (e.g. recomputed from
// time.Now() per packet) would split one frame into two spurious records.
func TestQueueFragmentsShareOneTimestamp(t *testing.T) {
	sender := &fakeSender{}
	ctx := rtpctx.NewContext(0, 90000)
	q := NewQueue(sender, ctx, Config{MTU: 10, Packetizer: formats.NewGeneric(formats.Options{FragmentGeneric: true})})

	require.NoError(t, q.PushFrame(make([]byte, 25)))
	require.Len(t, sender.sent, 3)

	var first uint32
	seqs := make(map[uint16]bool)
	for i, pkt := range sender.sent {
		var hdr rtp.Header
		_, err := hdr.Unmarshal(pkt)
		require.NoError(t, err)
		if i == 0 {
			first = hdr.Timestamp
		}
		assert.Equal(t, first, hdr.Timestamp, "fragment %d timestamp diverged", i)
		assert.False(t, seqs[hdr.SequenceNumber], "duplicate sequence number %d", hdr.SequenceNumber)
		seqs[hdr.SequenceNumber] = true
	}
}

package reception

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultravideo/govgrtp/socket"
)

func loopbackPair(t *testing.T) (*socket.Socket, *socket.Socket) {
	t.Helper()
	a, err := socket.Bind(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	b, err := socket.Bind(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestFlowDeliversViaCallback(t *testing.T) {
	a, b := loopbackPair(t)
	a.ConnectOut(b.LocalAddr())

	received := make(chan []byte, 1)
	flow := NewFlow(b, func(f []byte) { received <- f })
	flow.InstallHandler(func(buf []byte, from *net.UDPAddr, arrival time.Time) (Outcome, [][]byte, error) {
		return PacketReady, [][]byte{append([]byte(nil), buf...)}, nil
	})
	flow.Start()
	defer flow.Stop()

	require.NoError(t, a.SendOne([]byte("hello")))

	select {
	case f := <-received:
		assert.Equal(t, "hello", string(f))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestFlowModifiedContinueReplacesBuffer(t *testing.T) {
	a, b := loopbackPair(t)
	a.ConnectOut(b.LocalAddr())

	received := make(chan []byte, 1)
	flow := NewFlow(b, func(f []byte) { received <- f })
	flow.InstallHandler(func(buf []byte, from *net.UDPAddr, arrival time.Time) (Outcome, [][]byte, error) {
		upper := make([]byte, len(buf))
		for i, c := range buf {
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			upper[i] = c
		}
		return ModifiedContinue, [][]byte{upper}, nil
	})
	flow.InstallHandler(func(buf []byte, from *net.UDPAddr, arrival time.Time) (Outcome, [][]byte, error) {
		return PacketReady, [][]byte{append([]byte(nil), buf...)}, nil
	})
	flow.Start()
	defer flow.Stop()

	require.NoError(t, a.SendOne([]byte("hello")))

	select {
	case f := <-received:
		assert.Equal(t, "HELLO", string(f))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

// TestFlowDeliveredFramesSurviveSlotReuse pins the fix for handlers that
// return a sub-slice of buf verbatim (the Opus/H26x single-NAL fast path)
// instead of copying: frames queued without being drained promptly must
// still read back their original bytes once the recv loop has rotated
// through every slot several times over.
func TestFlowDeliveredFramesSurviveSlotReuse(t *testing.T) {
	a, b := loopbackPair(t)
	a.ConnectOut(b.LocalAddr())

	flow := NewFlow(b, nil)
	flow.SetQueueCapacity(64)
	flow.InstallHandler(func(buf []byte, from *net.UDPAddr, arrival time.Time) (Outcome, [][]byte, error) {
		// No copy here: mirrors a depacketizer handing back a sub-slice of
		// the received datagram rather than allocating a new one.
		return PacketReady, [][]byte{buf}, nil
	})
	flow.Start()
	defer flow.Stop()

	const n = recvSlots*4 + 3
	want := make([]string, n)
	for i := 0; i < n; i++ {
		msg := []byte{byte('A' + i%26), byte('0' + i%10), byte(i)}
		want[i] = string(msg)
		require.NoError(t, a.SendOne(msg))
	}

	time.Sleep(200 * time.Millisecond) // let every slot rotate before draining

	for i := 0; i < n; i++ {
		f, ok := flow.PullFrame()
		require.True(t, ok)
		assert.Equal(t, want[i], string(f), "frame %d corrupted by slot reuse", i)
	}
}

func TestFlowPullQueue(t *testing.T) {
	a, b := loopbackPair(t)
	a.ConnectOut(b.LocalAddr())

	flow := NewFlow(b, nil)
	flow.InstallHandler(func(buf []byte, from *net.UDPAddr, arrival time.Time) (Outcome, [][]byte, error) {
		return PacketReady, [][]byte{append([]byte(nil), buf...)}, nil
	})
	flow.Start()
	defer flow.Stop()

	require.NoError(t, a.SendOne([]byte("pulled")))

	f, ok := flow.PullFrame()
	require.True(t, ok)
	assert.Equal(t, "pulled", string(f))
}

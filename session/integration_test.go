package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultravideo/govgrtp/rtcp"
)

func localAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

// TestGenericLoopback10Frames implements spec §8 scenario 1.
func TestGenericLoopback10Frames(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback scenario; skipped in short mode")
	}

	ctx := NewContext(nil)
	sender, err := ctx.CreateSession(localAddr(9302), localAddr(9300))
	require.NoError(t, err)
	receiver, err := ctx.CreateSession(localAddr(9300), localAddr(9302))
	require.NoError(t, err)

	senderStream, err := sender.CreateStream(9300, 9302, FormatGeneric, FragmentGeneric, nil)
	require.NoError(t, err)
	receiverStream, err := receiver.CreateStream(9302, 9300, FormatGeneric, FragmentGeneric, nil)
	require.NoError(t, err)

	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = 'a'
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, senderStream.PushFrame(payload))
	}

	for i := 0; i < 10; i++ {
		f, ok := receiverStream.PullFrame(2 * time.Second)
		require.True(t, ok, "frame %d not delivered", i)
		require.Len(t, f, 1500)
		assert.Equal(t, payload, f)
	}
}

// TestRTCPSenderReportExchange implements spec §8 scenario 3.
func TestRTCPSenderReportExchange(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback scenario; skipped in short mode")
	}

	ctx := NewContext(nil)
	sender, err := ctx.CreateSession(localAddr(9202), localAddr(9200))
	require.NoError(t, err)
	receiver, err := ctx.CreateSession(localAddr(9200), localAddr(9202))
	require.NoError(t, err)

	cfg := Config{"session-bandwidth-kbps": 3000.0}
	senderStream, err := sender.CreateStream(9200, 9202, FormatGeneric, RTCP, cfg)
	require.NoError(t, err)
	receiverStream, err := receiver.CreateStream(9202, 9200, FormatGeneric, RTCP, cfg)
	require.NoError(t, err)

	srGot := make(chan rtcp.SenderReportInfo, 1)
	receiverStream.InstallSenderHook(func(ssrc uint32, sr rtcp.SenderReportInfo) {
		select {
		case srGot <- sr:
		default:
		}
	})
	rrGot := make(chan rtcp.ReceiverReportInfo, 1)
	senderStream.InstallReceiverHook(func(ssrc uint32, rr rtcp.ReceiverReportInfo) {
		select {
		case rrGot <- rr:
		default:
		}
	})

	payload := make([]byte, 256)
	deadline := time.Now().Add(4 * time.Second)
	sent := 0
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		<-ticker.C
		require.NoError(t, senderStream.PushFrame(payload))
		sent++
	}

	select {
	case sr := <-srGot:
		assert.Equal(t, uint32(sent), sr.PacketCount)
		assert.Equal(t, uint32(sent*len(payload)), sr.OctetCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no sender report delivered")
	}

	select {
	case <-rrGot:
	case <-time.After(2 * time.Second):
		t.Fatal("no receiver report delivered")
	}
}

// TestSRTPUserManagedKeyRoundTripAndFaultInjection implements spec §8
// scenario 4.
func TestSRTPUserManagedKeyRoundTripAndFaultInjection(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback scenario; skipped in short mode")
	}

	key := make([]byte, 16)
	salt := make([]byte, 14)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range salt {
		salt[i] = byte(2 * i)
	}

	ctx := NewContext(nil)
	sender, err := ctx.CreateSession(localAddr(9402), localAddr(9400))
	require.NoError(t, err)
	receiver, err := ctx.CreateSession(localAddr(9400), localAddr(9402))
	require.NoError(t, err)

	rce := SRTP | SRTPKeyManagementUser | FragmentGeneric
	senderStream, err := sender.CreateStream(9400, 9402, FormatGeneric, rce, nil)
	require.NoError(t, err)
	receiverStream, err := receiver.CreateStream(9402, 9400, FormatGeneric, rce, nil)
	require.NoError(t, err)

	require.NoError(t, senderStream.AddSRTPCtx(key, salt))
	require.NoError(t, receiverStream.AddSRTPCtx(key, salt))

	payload := []byte("Hello, world!")
	for i := 0; i < 10; i++ {
		require.NoError(t, senderStream.PushFrame(payload))
	}
	for i := 0; i < 10; i++ {
		f, ok := receiverStream.PullFrame(2 * time.Second)
		require.True(t, ok)
		assert.Equal(t, payload, f)
	}

	// Fault injection: flip one ciphertext byte in flight, expect the
	// tampered packet to be dropped rather than delivered.
	var tampered bool
	senderStream.sock.InstallPreSendHandler(func(iov [][]byte) error {
		if tampered {
			return nil
		}
		tampered = true
		if len(iov) > 0 && len(iov[0]) > 0 {
			iov[0][len(iov[0])-1] ^= 0xFF
		}
		return nil
	})
	require.NoError(t, senderStream.PushFrame(payload))

	_, ok := receiverStream.PullFrame(500 * time.Millisecond)
	assert.False(t, ok, "tampered packet should have been dropped")
}

// TestZRTPDiffieHellmanThenMediaAndMultistream implements spec §8 scenario
// 5 (Diffie-Hellman mode, then media) and scenario 6 (multistream after DH).
func TestZRTPDiffieHellmanThenMediaAndMultistream(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback scenario; skipped in short mode")
	}

	ctx := NewContext(nil)
	sideA, err := ctx.CreateSession(localAddr(9502), localAddr(9500))
	require.NoError(t, err)
	sideB, err := ctx.CreateSession(localAddr(9500), localAddr(9502))
	require.NoError(t, err)

	rce := SRTP | SRTPKeyManagementZRTP | ZRTPDiffieHellmanMode | FragmentGeneric
	streamA, err := sideA.CreateStream(9500, 9502, FormatGeneric, rce, nil)
	require.NoError(t, err)
	streamB, err := sideB.CreateStream(9502, 9500, FormatGeneric, rce, nil)
	require.NoError(t, err)

	zrtpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 2)
	go func() { done <- streamA.StartZRTP(zrtpCtx) }()
	go func() { done <- streamB.StartZRTP(zrtpCtx) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, streamA.PushFrame(payload))
	}
	for i := 0; i < 10; i++ {
		f, ok := streamB.PullFrame(2 * time.Second)
		require.True(t, ok)
		assert.Equal(t, payload, f)
	}

	// Scenario 6: multistream reuses the DH-mode session key.
	rceMulti := SRTP | SRTPKeyManagementZRTP | ZRTPMultistreamMode | FragmentGeneric
	streamA2, err := sideA.CreateStream(9510, 9512, FormatGeneric, rceMulti, nil)
	require.NoError(t, err)
	streamB2, err := sideB.CreateStream(9512, 9510, FormatGeneric, rceMulti, nil)
	require.NoError(t, err)

	msCtx, msCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer msCancel()
	done2 := make(chan error, 2)
	go func() { done2 <- streamA2.StartZRTP(msCtx) }()
	go func() { done2 <- streamB2.StartZRTP(msCtx) }()
	require.NoError(t, <-done2)
	require.NoError(t, <-done2)

	for i := 0; i < 10; i++ {
		require.NoError(t, streamA2.PushFrame(payload))
	}
	for i := 0; i < 10; i++ {
		_, ok := streamB2.PullFrame(2 * time.Second)
		require.True(t, ok)
	}
}

package zrtp

import (
	"context"
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

func TestMachineDiffieHellmanNegotiationCompletes(t *testing.T) {
	sockA, sockB := loopbackPair(t)

	mA, err := NewMachine(sockA, sockB.LocalAddr(), 0x1111, 128)
	require.NoError(t, err)
	mB, err := NewMachine(sockB, sockA.LocalAddr(), 0x2222, 128)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	resA := make(chan outcome, 1)
	resB := make(chan outcome, 1)

	go func() { r, err := mA.Negotiate(ctx); resA <- outcome{r, err} }()
	go func() { r, err := mB.Negotiate(ctx); resB <- outcome{r, err} }()

	oa := <-resA
	ob := <-resB

	require.NoError(t, oa.err)
	require.NoError(t, ob.err)
	assert.Equal(t, oa.res.SRTP.MasterKey, ob.res.SRTP.MasterKey)
	assert.Equal(t, oa.res.SRTP.MasterSalt, ob.res.SRTP.MasterSalt)
	assert.NotEqual(t, mA.Role(), mB.Role())
}

func TestMachineMultistreamNegotiationReusesSessionKey(t *testing.T) {
	sockA, sockB := loopbackPair(t)

	mA, err := NewMachine(sockA, sockB.LocalAddr(), 0x3333, 128)
	require.NoError(t, err)
	mB, err := NewMachine(sockB, sockA.LocalAddr(), 0x4444, 128)
	require.NoError(t, err)

	var sessionKey [32]byte
	copy(sessionKey[:], []byte("shared-dh-mode-session-key-mat."))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	resA := make(chan outcome, 1)
	resB := make(chan outcome, 1)

	go func() { r, err := mA.MultistreamNegotiate(ctx, sessionKey); resA <- outcome{r, err} }()
	go func() { r, err := mB.MultistreamNegotiate(ctx, sessionKey); resB <- outcome{r, err} }()

	oa := <-resA
	ob := <-resB

	require.NoError(t, oa.err)
	require.NoError(t, ob.err)
}

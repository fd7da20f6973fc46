package rtcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineBuildOutgoingReceiverReportWhenNotSending(t *testing.T) {
	e := NewEngine(0xAABBCCDD, "test-cname", 0)
	e.ObserveRTP(0x1111, nil, 0, 0, 160, time.Now(), 8000)

	out, err := e.BuildOutgoing(LocalStats{SSRC: 0xAABBCCDD})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestEngineBuildOutgoingSenderReportWhenSending(t *testing.T) {
	e := NewEngine(0xAABBCCDD, "test-cname", 3000)
	out, err := e.BuildOutgoing(LocalStats{
		SSRC:             0xAABBCCDD,
		PacketCount:      42,
		OctetCount:       42 * 160,
		LastRTPTimestamp: 8000,
		LastPacketTime:   time.Now(),
		ClockRate:        8000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestEngineHandleCompoundSenderReportFiresHook(t *testing.T) {
	e := NewEngine(1, "local", 3000)
	remote := NewEngine(2, "remote", 3000)

	var gotSSRC uint32
	var gotSR SenderReportInfo
	e.InstallSenderHook(func(ssrc uint32, sr SenderReportInfo) {
		gotSSRC = ssrc
		gotSR = sr
	})

	out, err := remote.BuildOutgoing(LocalStats{
		SSRC:             2,
		PacketCount:      10,
		OctetCount:       1600,
		LastRTPTimestamp: 8000,
		LastPacketTime:   time.Now(),
		ClockRate:        8000,
	})
	require.NoError(t, err)

	discarded := e.HandleCompound(out, nil)
	assert.Equal(t, 0, discarded)
	assert.Equal(t, uint32(2), gotSSRC)
	assert.Equal(t, uint32(10), gotSR.PacketCount)
}

func TestEngineHandleCompoundMalformedIsDiscarded(t *testing.T) {
	e := NewEngine(1, "local", 0)
	discarded := e.HandleCompound([]byte{0xff, 0xff, 0xff}, nil)
	assert.Equal(t, 1, discarded)
}

func TestEngineHandleGoodbyeRemovesParticipant(t *testing.T) {
	e := NewEngine(1, "local", 0)
	e.ObserveRTP(99, nil, 0, 0, 160, time.Now(), 8000)
	assert.Equal(t, 2, e.MemberCount())

	bye, err := BuildBye(99, "done")
	require.NoError(t, err)
	e.HandleCompound(bye, nil)
	assert.Equal(t, 1, e.MemberCount())
}

func TestAppPacketRoundTrip(t *testing.T) {
	app := &AppPacket{Subtype: 3, SSRC: 0x1234, Name: [4]byte{'Z', 'R', 'T', 'P'}, Data: []byte("hello")}
	buf, err := app.Marshal()
	require.NoError(t, err)

	// Feed it through a compound RTCP parse: pion/rtcp hands unrecognized
	// payload types back as RawPacket.
	discarded := 0
	e := NewEngine(1, "local", 0)
	var gotApp AppPacket
	e.InstallAppHook(func(ssrc uint32, a AppPacket) { gotApp = a })
	discarded = e.HandleCompound(buf, nil)

	assert.Equal(t, 0, discarded)
	assert.Equal(t, app.SSRC, gotApp.SSRC)
	assert.Equal(t, app.Name, gotApp.Name)
	assert.Equal(t, app.Data, gotApp.Data)
}

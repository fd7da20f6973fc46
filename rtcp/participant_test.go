package rtcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantObserveRTPTracksCounts(t *testing.T) {
	p := NewParticipant(111, nil, RoleReceiver)
	now := time.Now()
	p.ObserveRTP(1000, 8000, 160, now, 8000)
	p.ObserveRTP(1001, 8160, 160, now.Add(20*time.Millisecond), 8000)
	p.ObserveRTP(1002, 8320, 160, now.Add(40*time.Millisecond), 8000)

	assert.Equal(t, uint32(3), p.Stats.ReceivedPkts)
	assert.Equal(t, uint64(480), p.Stats.ReceivedBytes)
	assert.GreaterOrEqual(t, p.Stats.Jitter, 0.0, "jitter must stay non-negative")
}

func TestParticipantBuildReceptionReportNoLossIsZero(t *testing.T) {
	p := NewParticipant(222, nil, RoleReceiver)
	now := time.Now()
	for i := uint16(0); i < 10; i++ {
		p.ObserveRTP(i, uint32(i)*160, 160, now.Add(time.Duration(i)*20*time.Millisecond), 8000)
	}

	rr := p.BuildReceptionReport(now.Add(200 * time.Millisecond))
	assert.Equal(t, uint8(0), rr.FractionLost)
	assert.Equal(t, uint32(222), rr.SSRC)
}

func TestParticipantBuildReceptionReportDetectsLoss(t *testing.T) {
	p := NewParticipant(333, nil, RoleReceiver)
	now := time.Now()
	seqs := []uint16{0, 1, 3, 4} // seq 2 is missing
	for _, s := range seqs {
		p.ObserveRTP(s, uint32(s)*160, 160, now.Add(time.Duration(s)*20*time.Millisecond), 8000)
	}

	rr := p.BuildReceptionReport(now.Add(200 * time.Millisecond))
	assert.Greater(t, rr.FractionLost, uint8(0))
}

func TestParticipantObserveSenderReportSetsLSR(t *testing.T) {
	p := NewParticipant(444, nil, RoleReceiver)
	ntp := NTPTimestamp(time.Now())
	sr := &SenderReportInfo{SSRC: 444, NTPTime: ntp}
	p.ObserveSenderReport(sr, time.Now())

	require.NotNil(t, p.LastSR)
	assert.Equal(t, uint32(ntp>>16), p.Stats.LSR)
	assert.False(t, p.Stats.SRArrivalTime.IsZero())
}

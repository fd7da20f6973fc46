package holepunch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSender struct {
	count int32
}

func (c *countingSender) SendOne(b []byte) error {
	atomic.AddInt32(&c.count, 1)
	return nil
}

func TestKeeperSendsPeriodicKeepalive(t *testing.T) {
	sender := &countingSender{}
	k := NewKeeper(sender, 20*time.Millisecond)
	k.Start()
	time.Sleep(100 * time.Millisecond)
	k.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&sender.count), int32(3))
}

func TestKeeperStopsCleanly(t *testing.T) {
	sender := &countingSender{}
	k := NewKeeper(sender, 10*time.Millisecond)
	k.Start()
	k.Stop()

	count := atomic.LoadInt32(&sender.count)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, atomic.LoadInt32(&sender.count))
}

// Package holepunch sends a periodic 1-byte keepalive datagram on
// send-only unidirectional streams, so that intermediate NATs keep the
// outbound mapping alive without performing any NAT traversal beyond this
// single outbound datagram (spec §4.9). Built on the same periodic
// worker-goroutine pattern RTCP scheduling uses (rtcp/scheduler.go),
// generalized to a fixed-interval keepalive instead of the jittered RTCP
// interval.
package holepunch

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often the keepalive datagram is sent; it goes out
// on every tick whether or not media is also being sent (spec §4.9).
const DefaultInterval = 5 * time.Second

// payload is the single byte sent as a keepalive. Zero keeps it trivially
// distinguishable from any valid RTP/RTCP/ZRTP header on inspection.
var payload = []byte{0x00}

// Sender is the minimal socket surface needed to emit a keepalive.
type Sender interface {
	SendOne(b []byte) error
}

// Keeper periodically sends a 1-byte keepalive on sock until stopped.
type Keeper struct {
	sock     Sender
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	log      zerolog.Logger
}

// NewKeeper creates a holepunch keeper for a send-only stream. interval
// <= 0 selects DefaultInterval.
func NewKeeper(sock Sender, interval time.Duration) *Keeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Keeper{
		sock:     sock,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      log.With().Str("component", "holepunch").Logger(),
	}
}

func (k *Keeper) SetLogger(l zerolog.Logger) { k.log = l }

// Start launches the keepalive goroutine.
func (k *Keeper) Start() {
	go k.run()
}

// Stop cancels the keepalive goroutine, used when the owning stream is
// destroyed (spec §4.9 "cancelled on stream destruction").
func (k *Keeper) Stop() {
	close(k.stop)
	<-k.done
}

func (k *Keeper) run() {
	defer close(k.done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			if err := k.sock.SendOne(payload); err != nil {
				k.log.Warn().Err(err).Msg("holepunch: keepalive send failed")
			}
		}
	}
}

// Package reception implements the receive side of a stream: one UDP read
// loop feeding an ordered chain of packet handlers that demultiplex,
// decrypt, authenticate, reassemble and deliver media frames (spec §4.2).
// Built on a single blocking-read loop generalized into a background
// goroutine driving a handler chain, since reception demultiplexes RTP,
// RTCP and ZRTP on one socket instead of assuming a single fixed payload
// type.
package reception

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultravideo/govgrtp/socket"
)

// Outcome is a handler's verdict on one received datagram (spec §4.2
// "ordered handler chain with outcome {not-handled, handled-and-consumed,
// modified-continue, pkt-ready, multiple-ready, error}").
type Outcome int

const (
	NotHandled Outcome = iota
	HandledConsumed
	ModifiedContinue
	PacketReady
	MultipleReady
	HandlerError
)

// Handler inspects/transforms a received datagram. On ModifiedContinue the
// single returned slice replaces buf for every handler still downstream in
// the chain; on
// PacketReady/MultipleReady the returned slices are completed frames
// delivered to the pull queue or callback.
type Handler func(buf []byte, from *net.UDPAddr, arrival time.Time) (Outcome, [][]byte, error)

// defaultPollTimeout bounds how long one RecvWithDeadline call blocks, so
// the Flow goroutine notices a Stop() request promptly without
// busy-polling. Overridable per spec §6's poll-timeout-ms stream option.
const defaultPollTimeout = 200 * time.Millisecond

// defaultQueueCapacity is the pull queue's buffer size when the caller
// doesn't size it via SetQueueCapacity (spec §6's ring-buffer-size).
const defaultQueueCapacity = 64

// recvSlots is the number of fixed-size datagram slots the receive loop
// rotates through (spec §4.2 "ring buffer of fixed-size datagram slots").
// Each slot is reused only once every recvSlots datagrams, and dispatch
// always hands the handler chain its own copy of the received bytes, so a
// slot can be safely refilled by the next recv while a previously
// delivered frame is still outstanding on the pull queue or in a hook.
const recvSlots = 8

const recvSlotSize = 65536

// Flow owns the single reception goroutine for one socket (or one stream
// sharing a socket). It demultiplexes by the handler chain, not by SSRC
// directly. session.Stream installs an RTCP handler (which also decrypts
// SRTCP) followed by an RTP handler (which also decrypts SRTP and
// depacketizes); ZRTP datagrams never reach the chain, because a stream
// starts its Flow only after ZRTP negotiation has finished.
type Flow struct {
	sock *socket.Socket

	mu       sync.Mutex
	handlers []Handler

	pullQueue chan []byte
	onFrame   func(frame []byte)

	pollTimeout time.Duration

	stop chan struct{}
	done chan struct{}

	log zerolog.Logger
}

// NewFlow creates a reception flow over sock. If onFrame is nil, completed
// frames are buffered on a pull queue instead (spec §4.2 "pull-queue vs.
// user-callback delivery").
func NewFlow(sock *socket.Socket, onFrame func(frame []byte)) *Flow {
	f := &Flow{
		sock:        sock,
		pullQueue:   make(chan []byte, defaultQueueCapacity),
		onFrame:     onFrame,
		pollTimeout: defaultPollTimeout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		log:         log.With().Str("component", "reception").Logger(),
	}
	return f
}

func (f *Flow) SetLogger(l zerolog.Logger) { f.log = l }

// SetPollTimeout overrides how long one RecvWithDeadline call blocks.
// Must be called before Start.
func (f *Flow) SetPollTimeout(d time.Duration) {
	if d > 0 {
		f.pollTimeout = d
	}
}

// SetQueueCapacity resizes the pull queue buffer. Must be called before
// Start.
func (f *Flow) SetQueueCapacity(n int) {
	if n > 0 {
		f.pullQueue = make(chan []byte, n)
	}
}

// InstallHandler appends h to the end of the chain. Handlers run in
// installation order, so one that must claim a datagram before another
// sees it has to be installed first.
func (f *Flow) InstallHandler(h Handler) {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
}

// Start launches the reception goroutine. It returns immediately; call
// Stop to cancel.
func (f *Flow) Start() {
	go f.run()
}

// Stop requests the reception goroutine to exit and blocks until it has.
func (f *Flow) Stop() {
	close(f.stop)
	<-f.done
}

// PullFrame retrieves one completed frame delivered via the pull queue
// (used when Flow was constructed with onFrame == nil). It blocks until a
// frame is available or the flow stops.
func (f *Flow) PullFrame() ([]byte, bool) {
	frame, ok := <-f.pullQueue
	return frame, ok
}

func (f *Flow) run() {
	defer close(f.done)
	defer close(f.pullQueue)

	slots := make([][]byte, recvSlots)
	for i := range slots {
		slots[i] = make([]byte, recvSlotSize)
	}

	for i := 0; ; i++ {
		select {
		case <-f.stop:
			return
		default:
		}

		slot := slots[i%recvSlots]
		n, from, err := f.sock.RecvWithDeadline(slot, f.pollTimeout)
		if err != nil {
			if errors.Is(err, socket.ErrTimeout) {
				continue
			}
			if errors.Is(err, socket.ErrClosed) {
				return
			}
			f.log.Warn().Err(err).Msg("reception: recv error")
			continue
		}

		// Copy out of the slot before dispatch: a handler may return a
		// sub-slice of this buffer verbatim (e.g. Opus's Ingest, or an
		// H.26x single-NAL fast path with start-code prepending off), and
		// that slice must stay valid after this slot gets reused by a
		// later recv, however long the consumer takes to drain it.
		buf := append([]byte(nil), slot[:n]...)
		arrival := time.Now()
		f.dispatch(buf, from, arrival)
	}
}

func (f *Flow) dispatch(buf []byte, from *net.UDPAddr, arrival time.Time) {
	f.mu.Lock()
	handlers := f.handlers
	f.mu.Unlock()

	for _, h := range handlers {
		outcome, frames, err := h(buf, from, arrival)
		if err != nil {
			f.log.Warn().Err(err).Msg("reception: handler error")
			return
		}
		switch outcome {
		case NotHandled:
			continue
		case HandledConsumed:
			return
		case ModifiedContinue:
			if len(frames) == 1 {
				buf = frames[0]
			}
			continue
		case PacketReady, MultipleReady:
			for _, frame := range frames {
				f.deliver(frame)
			}
			return
		case HandlerError:
			return
		}
	}
}

func (f *Flow) deliver(frame []byte) {
	if f.onFrame != nil {
		f.onFrame(frame)
		return
	}
	select {
	case f.pullQueue <- frame:
	default:
		f.log.Warn().Msg("reception: pull queue full, dropping frame")
	}
}

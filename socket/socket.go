// Package socket implements the thin UDP endpoint used by every RTP/RTCP/
// ZRTP stream: bind, gather/scatter send, batched send, and a pollable
// deadline receive. Built on a listen/read-raw/write-raw pattern
// generalized so several streams can share one kernel socket
// (socket.Factory).
package socket

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBind      = errors.New("socket: bind error")
	ErrTimeout   = errors.New("socket: recv timeout")
	ErrClosed    = errors.New("socket: closed")
	ErrSendFault = errors.New("socket: send error")
)

// PreSendHandler is invoked on the outgoing gather vector before the kernel
// call, in registration order. SRTP encryption is installed as one of these.
type PreSendHandler func(iov [][]byte) error

// Socket is a UDP endpoint potentially shared by several streams through a
// Factory. It is safe for concurrent Send* calls; Recv* must only be called
// from the single reception-flow goroutine that owns it (see reception.Flow).
type Socket struct {
	mu   sync.RWMutex
	conn *net.UDPConn

	laddr *net.UDPAddr
	raddr *net.UDPAddr // set by ConnectOut; default destination for push path

	preSend []PreSendHandler

	sndBuf int
	rcvBuf int

	log zerolog.Logger

	refs int // reference count, managed by Factory
}

// Bind opens a UDP socket on laddr (IP may be unspecified, port 0 for
// ephemeral). Bind errors are fatal to stream creation per spec §4.1.
func Bind(laddr *net.UDPAddr) (*Socket, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	s := &Socket{
		conn:  conn,
		laddr: conn.LocalAddr().(*net.UDPAddr),
		log:   log.With().Str("component", "socket").Logger(),
	}
	return s, nil
}

func (s *Socket) SetLogger(l zerolog.Logger) { s.log = l }

func (s *Socket) LocalAddr() *net.UDPAddr { return s.laddr }

// ConnectOut stores the default destination used by the stream's push path.
func (s *Socket) ConnectOut(addr *net.UDPAddr) {
	s.mu.Lock()
	s.raddr = addr
	s.mu.Unlock()
}

func (s *Socket) RemoteAddr() *net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raddr
}

// InstallPreSendHandler registers a handler invoked on every outgoing
// gather-vector before the syscall; SRTP's encrypt-in-place hook uses this.
func (s *Socket) InstallPreSendHandler(h PreSendHandler) {
	s.mu.Lock()
	s.preSend = append(s.preSend, h)
	s.mu.Unlock()
}

// SetBuf sets the OS socket buffer size for send ("send") or receive ("recv").
func (s *Socket) SetBuf(sizeBytes int, dir string) error {
	switch dir {
	case "send":
		s.sndBuf = sizeBytes
		return s.conn.SetWriteBuffer(sizeBytes)
	case "recv":
		s.rcvBuf = sizeBytes
		return s.conn.SetReadBuffer(sizeBytes)
	default:
		return fmt.Errorf("socket: unknown buf direction %q", dir)
	}
}

// SendOne sends a single datagram to the connected default destination.
func (s *Socket) SendOne(b []byte) error {
	return s.SendOneTo(b, s.RemoteAddr())
}

func (s *Socket) SendOneTo(b []byte, dst *net.UDPAddr) error {
	if dst == nil {
		return fmt.Errorf("%w: no destination", ErrSendFault)
	}
	n, err := s.conn.WriteToUDP(b, dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFault, err)
	}
	if n != len(b) {
		return fmt.Errorf("%w: short write %d/%d", ErrSendFault, n, len(b))
	}
	return nil
}

// SendVector gathers iov into one datagram (e.g. RTP header + fragment
// header + payload) and applies pre-send handlers before transmission.
func (s *Socket) SendVector(iov [][]byte) error {
	s.mu.RLock()
	handlers := s.preSend
	dst := s.raddr
	s.mu.RUnlock()

	for _, h := range handlers {
		if err := h(iov); err != nil {
			return err
		}
	}

	total := 0
	for _, b := range iov {
		total += len(b)
	}
	buf := make([]byte, 0, total)
	for _, b := range iov {
		buf = append(buf, b...)
	}
	return s.SendOneTo(buf, dst)
}

// SendBatch sends a list of gather vectors. On platforms exposing a
// multi-datagram syscall this is one syscall total; see sendBatch in batch.go.
func (s *Socket) SendBatch(iovs [][][]byte) error {
	return s.sendBatch(iovs)
}

// RecvWithDeadline blocks until a datagram arrives, the deadline elapses, or
// the socket is closed. Returns ErrTimeout on deadline expiry so the caller
// (reception.Flow) can re-poll its stop flag.
func (s *Socket) RecvWithDeadline(buf []byte, timeout time.Duration) (int, *net.UDPAddr, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, err
	}
	n, peer, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return 0, nil, ErrClosed
		}
		return 0, nil, err
	}
	return n, peer, nil
}

func (s *Socket) Close() error {
	return s.conn.Close()
}

// Retain/Release implement the Factory's sharing refcount.
func (s *Socket) retain() { s.mu.Lock(); s.refs++; s.mu.Unlock() }
func (s *Socket) release() (last bool) {
	s.mu.Lock()
	s.refs--
	last = s.refs <= 0
	s.mu.Unlock()
	return last
}

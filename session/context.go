// Package session implements the public API surface of spec §6:
// Context.CreateSession, Session.CreateStream and the Stream methods that
// drive frame push/pull, RTCP hooks, SRTP keying and ZRTP negotiation. It
// wires together socket, rtpctx, formats, rtcp, srtp, zrtp, reception,
// frame and holepunch into the single entry point an application uses,
// the way the teaches's top-level Diago type wires its own subsystems
// together behind one constructor.
package session

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultravideo/govgrtp/internal/metrics"
	"github.com/ultravideo/govgrtp/socket"
)

// Context is the library's top-level handle: one UDP socket factory and
// (optionally) one metrics registry shared by every session it creates.
type Context struct {
	factory *socket.Factory
	metrics *metrics.Registry
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewContext creates a library-wide handle. reg may be nil to disable
// metrics instrumentation.
func NewContext(reg *metrics.Registry) *Context {
	return &Context{
		factory:  socket.NewFactory(),
		metrics:  reg,
		log:      log.With().Str("component", "session").Logger(),
		sessions: make(map[string]*Session),
	}
}

func (c *Context) SetLogger(l zerolog.Logger) { c.log = l }

// CreateSession implements spec §6's context.create_session(remote_addr[,
// local_addr]): it does not itself bind a socket (stream creation does,
// since ports differ per stream); it only groups the streams that will
// share a remote peer.
func (c *Context) CreateSession(remoteAddr *net.UDPAddr, localAddr *net.UDPAddr) (*Session, error) {
	if remoteAddr == nil {
		return nil, newErr(KindInvalidValue, "session: remote address required")
	}
	id := xid.New().String()
	s := &Session{
		id:         id,
		ctx:        c,
		remoteAddr: remoteAddr,
		localAddr:  localAddr,
		streams:    make(map[string]*Stream),
		log:        c.log.With().Str("session", id).Logger(),
	}
	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()
	return s, nil
}

// DestroySession tears down every stream in s and forgets it.
func (c *Context) DestroySession(s *Session) error {
	s.destroyAllStreams()
	c.mu.Lock()
	delete(c.sessions, s.id)
	c.mu.Unlock()
	return nil
}

// Session groups the streams exchanged with one remote peer (spec §3
// "Session owns zero or more Streams").
type Session struct {
	id         string
	ctx        *Context
	remoteAddr *net.UDPAddr
	localAddr  *net.UDPAddr

	zrtpSessionKey   [32]byte
	zrtpSessionKeySet bool

	mu      sync.Mutex
	streams map[string]*Stream
	log     zerolog.Logger
}

// CreateStream implements spec §6's session.create_stream(src_port,
// dst_port, format, rce_flags).
func (s *Session) CreateStream(srcPort, dstPort int, format Format, rce RCEFlags, cfg Config) (*Stream, error) {
	opts, err := decodeConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: decode config: %w", newErr(KindInvalidValue, err.Error()))
	}

	local := &net.UDPAddr{IP: net.IPv4zero, Port: srcPort}
	if s.localAddr != nil {
		local = &net.UDPAddr{IP: s.localAddr.IP, Port: srcPort}
	}
	remote := &net.UDPAddr{IP: s.remoteAddr.IP, Port: dstPort}

	st, err := newStream(s, local, remote, format, rce, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.streams[st.id] = st
	s.mu.Unlock()
	return st, nil
}

// DestroyStream tears st down and forgets it.
func (s *Session) DestroyStream(st *Stream) error {
	st.close()
	s.mu.Lock()
	delete(s.streams, st.id)
	s.mu.Unlock()
	return nil
}

func (s *Session) destroyAllStreams() {
	s.mu.Lock()
	streams := make([]*Stream, 0, len(s.streams))
	for _, st := range s.streams {
		streams = append(streams, st)
	}
	s.streams = make(map[string]*Stream)
	s.mu.Unlock()
	for _, st := range streams {
		st.close()
	}
}

package socket

import (
	"fmt"
	"net"
	"sync"
)

// Factory maps (local address, port) to a shared Socket so that several
// streams can multiplex on one kernel socket (spec §2 component 2). It is
// scoped to a session.Context rather than a process-wide singleton (spec §9
// design note: "avoid a global singleton for the socket factory").
type Factory struct {
	mu      sync.Mutex
	sockets map[string]*Socket
}

func NewFactory() *Factory {
	return &Factory{sockets: make(map[string]*Socket)}
}

func key(laddr *net.UDPAddr) string {
	ip := laddr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	return fmt.Sprintf("%s:%d", ip.String(), laddr.Port)
}

// Get returns the existing shared socket bound to laddr, or binds a new one.
// The returned socket's reference count is incremented; call Factory.Put
// when done with it.
func (f *Factory) Get(laddr *net.UDPAddr) (*Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(laddr)
	if s, ok := f.sockets[k]; ok {
		s.retain()
		return s, nil
	}

	s, err := Bind(laddr)
	if err != nil {
		return nil, err
	}
	s.retain()
	f.sockets[key(s.LocalAddr())] = s
	return s, nil
}

// Put releases a reference obtained from Get. When the last reference is
// released, the socket is closed and removed from the factory.
func (f *Factory) Put(s *Socket) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !s.release() {
		return nil
	}
	delete(f.sockets, key(s.LocalAddr()))
	return s.Close()
}

// Len reports the number of distinct sockets currently multiplexed.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sockets)
}

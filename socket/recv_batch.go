package socket

import (
	"net"

	"golang.org/x/net/ipv4"
)

// RecvBatch fills each bufs[i] with one datagram, returning the number
// filled and the peer for each, in one recvmmsg(2) call where the platform
// supports it. reception.Flow does not use it: it reads one datagram per
// RecvWithDeadline call.
func (s *Socket) RecvBatch(bufs [][]byte) (n int, peers []*net.UDPAddr, err error) {
	pc := ipv4.NewPacketConn(s.conn)
	msgs := make([]ipv4.Message, len(bufs))
	for i := range bufs {
		msgs[i].Buffers = [][]byte{bufs[i]}
	}
	n, err = pc.ReadBatch(msgs, 0)
	if err != nil {
		return 0, nil, err
	}
	peers = make([]*net.UDPAddr, n)
	for i := 0; i < n; i++ {
		if addr, ok := msgs[i].Addr.(*net.UDPAddr); ok {
			peers[i] = addr
		}
	}
	return n, peers, nil
}

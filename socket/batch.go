package socket

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// sendBatch gathers each fragment's iov into one datagram buffer and hands
// the whole list to ipv4.PacketConn.WriteBatch, which issues a single
// sendmmsg(2) on Linux and falls back to a per-datagram loop on platforms
// without OS support (spec §4.1: "one syscall per datagram on Windows
// fallback; one syscall total on Linux if the OS exposes multi-send").
func (s *Socket) sendBatch(iovs [][][]byte) error {
	s.mu.RLock()
	handlers := s.preSend
	dst := s.raddr
	s.mu.RUnlock()

	if dst == nil {
		return fmt.Errorf("%w: no destination", ErrSendFault)
	}

	msgs := make([]ipv4.Message, len(iovs))
	for i, iov := range iovs {
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
		msgs[i].Buffers = [][]byte{buf}
		msgs[i].Addr = dst
	}

	pc := ipv4.NewPacketConn(s.conn)
	sent := 0
	for sent < len(msgs) {
		n, err := pc.WriteBatch(msgs[sent:], 0)
		if err != nil {
			// Some kernels/containers (or non-Linux GOOS) don't support
			// batched sends at all; degrade to one-at-a-time.
			return s.sendBatchFallback(iovsFrom(msgs[sent:]), dst)
		}
		if n == 0 {
			return fmt.Errorf("%w: batch send made no progress", ErrSendFault)
		}
		sent += n
	}
	return nil
}

func iovsFrom(msgs []ipv4.Message) [][][]byte {
	out := make([][][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.Buffers
	}
	return out
}

func (s *Socket) sendBatchFallback(iovs [][][]byte, dst *net.UDPAddr) error {
	for _, iov := range iovs {
		total := 0
		for _, b := range iov {
			total += len(b)
		}
		buf := make([]byte, 0, total)
		for _, b := range iov {
			buf = append(buf, b...)
		}
		if err := s.SendOneTo(buf, dst); err != nil {
			return err
		}
	}
	return nil
}

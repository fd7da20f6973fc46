package rtcp

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtcp"
)

// appPacketType is the RTCP payload type for Application-Defined packets,
// RFC 3550 §6.7. pion/rtcp has no constructor for this packet type (it only
// models the reporting/control packets that the webrtc stack itself needs),
// so this package hand-rolls the APP wire format and relies on
// rtcp.RawPacket — pion/rtcp's documented passthrough for unrecognized
// payload types — to hand the raw bytes back on receive.
const appPacketType = 204

// AppPacket is a decoded Application-Defined RTCP packet (RFC 3550 §6.7):
// an opaque, application-defined extension carried alongside the standard
// reporting packets.
type AppPacket struct {
	Subtype uint8
	SSRC    uint32
	Name    [4]byte
	Data    []byte
}

// Marshal encodes the packet per RFC 3550 §6.7: a 4-byte RTCP header, the
// SSRC, a 4-byte ASCII name, then application data padded to a 4-byte
// boundary.
func (a *AppPacket) Marshal() ([]byte, error) {
	padded := (len(a.Data) + 3) &^ 3
	length := (8 + padded) / 4
	if length > 0xFFFF {
		return nil, fmt.Errorf("rtcp: APP packet too large")
	}

	out := make([]byte, 12+padded)
	out[0] = 0x80 | (a.Subtype & 0x1f) // V=2, P=0, subtype in low 5 bits
	out[1] = appPacketType
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	binary.BigEndian.PutUint32(out[4:8], a.SSRC)
	copy(out[8:12], a.Name[:])
	copy(out[12:], a.Data)
	return out, nil
}

// ParseApp decodes an APP packet from a RawPacket that pion/rtcp handed back
// for an unrecognized payload type.
func ParseApp(raw rtcp.RawPacket) (*AppPacket, error) {
	buf := []byte(raw)
	if len(buf) < 12 {
		return nil, fmt.Errorf("rtcp: APP packet too short")
	}
	if buf[1] != appPacketType {
		return nil, fmt.Errorf("rtcp: not an APP packet, payload type %d", buf[1])
	}

	a := &AppPacket{
		Subtype: buf[0] & 0x1f,
		SSRC:    binary.BigEndian.Uint32(buf[4:8]),
	}
	copy(a.Name[:], buf[8:12])
	a.Data = append([]byte(nil), buf[12:]...)
	return a, nil
}

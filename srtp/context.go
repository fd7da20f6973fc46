package srtp

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

var (
	ErrAuthTagMismatch = errors.New("srtp: authentication tag mismatch")
	ErrReplay          = errors.New("srtp: replayed packet")
	ErrPacketTooShort  = errors.New("srtp: packet too short")
)

// eFlagMask marks an SRTCP packet as encrypted, set in the high bit of the
// appended 31-bit SRTCP index (RFC 3711 §3.4, spec §4.7 "SRTCP uses
// explicit 31-bit index appended to the packet plus an encryption-present
// bit").
const eFlagMask = 1 << 31

// Context holds one stream's SRTP and SRTCP session keys and per-direction
// rollover/replay state (spec §3 "SRTP context (both directions)"). An
// Authenticate flag of false skips the HMAC step entirely, matching spec's
// "Authenticate (optional)".
type Context struct {
	rtpKeys  KeySet
	rtcpKeys KeySet

	Authenticate bool
	ReplayCheck  bool

	rtpSendROC RolloverTracker
	rtpRecvROC RolloverTracker
	rtpReplay  *ReplayWindow

	rtcpSendIndex uint32
	rtcpReplay    *ReplayWindow
}

// NewContext derives the six SRTP/SRTCP session keys from a master key and
// salt (spec §3 KDF labels) and returns a ready-to-use Context.
func NewContext(masterKey, masterSalt []byte) *Context {
	return &Context{
		rtpKeys:      DeriveRTPKeys(masterKey, masterSalt),
		rtcpKeys:     DeriveRTCPKeys(masterKey, masterSalt),
		Authenticate: true,
		ReplayCheck:  true,
		rtpReplay:    NewReplayWindow(),
		rtcpReplay:   NewReplayWindow(),
	}
}

// EncryptRTP encrypts buf[payloadOffset:] in place and, if Authenticate is
// set, appends a 10-byte HMAC-SHA1 tag computed over the packet plus the
// big-endian ROC (spec §4.7 "HMAC-SHA1 over (entire_packet_pre_tag ||
// ROC_be32)"). It returns the (possibly grown) buffer.
func (c *Context) EncryptRTP(buf []byte, payloadOffset int, ssrc uint32, seq uint16) ([]byte, error) {
	if payloadOffset > len(buf) {
		return nil, ErrPacketTooShort
	}
	index := c.rtpSendROC.NextIndex(seq)

	if err := cryptPayload(c.rtpKeys, buf[payloadOffset:], ssrc, index); err != nil {
		return nil, err
	}
	if !c.Authenticate {
		return buf, nil
	}

	roc := make([]byte, 4)
	binary.BigEndian.PutUint32(roc, uint32(index>>16))
	tag := authenticate(c.rtpKeys.AuthKey, append(append([]byte(nil), buf...), roc...))
	return append(buf, tag...), nil
}

// DecryptRTP verifies (if enabled) and decrypts an SRTP packet in place,
// returning the plaintext payload slice. Tag mismatch and replay are both
// hard drops (spec §4.7 Errors).
func (c *Context) DecryptRTP(buf []byte, payloadOffset int, ssrc uint32, seq uint16) ([]byte, error) {
	index := c.rtpRecvROC.Index(seq)

	body := buf
	if c.Authenticate {
		if len(buf) < AuthTagLength {
			return nil, ErrPacketTooShort
		}
		tagStart := len(buf) - AuthTagLength
		body = buf[:tagStart]
		gotTag := buf[tagStart:]

		roc := make([]byte, 4)
		binary.BigEndian.PutUint32(roc, uint32(index>>16))
		wantTag := authenticate(c.rtpKeys.AuthKey, append(append([]byte(nil), body...), roc...))
		if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
			return nil, ErrAuthTagMismatch
		}
	}

	if c.ReplayCheck {
		if c.rtpReplay.Check(index) {
			return nil, ErrReplay
		}
		c.rtpReplay.Record(index)
	}

	if payloadOffset > len(body) {
		return nil, ErrPacketTooShort
	}
	payload := body[payloadOffset:]
	if err := cryptPayload(c.rtpKeys, payload, ssrc, index); err != nil {
		return nil, err
	}
	return payload, nil
}

// EncryptRTCP encrypts an RTCP compound packet's body (everything after the
// fixed 8-byte SR/RR header, RFC 5506 §3.4.3), appends the E-flag | 31-bit
// index, then the auth tag. SRTCP authentication is always applied; RFC
// 3711 makes it mandatory, unlike the optional SRTP tag.
func (c *Context) EncryptRTCP(buf []byte, ssrc uint32) ([]byte, error) {
	if len(buf) < 8 {
		return nil, ErrPacketTooShort
	}
	index := c.rtcpSendIndex
	c.rtcpSendIndex++

	if err := cryptPayload(c.rtcpKeys, buf[8:], ssrc, uint64(index)); err != nil {
		return nil, err
	}

	idxField := make([]byte, 4)
	binary.BigEndian.PutUint32(idxField, eFlagMask|index)
	buf = append(buf, idxField...)

	tag := authenticate(c.rtcpKeys.AuthKey, buf)
	return append(buf, tag...), nil
}

// DecryptRTCP verifies the auth tag, extracts the SRTCP index and E-flag,
// and decrypts the body if the E-flag indicates encryption was applied.
func (c *Context) DecryptRTCP(buf []byte) ([]byte, error) {
	if len(buf) < 8+4+AuthTagLength {
		return nil, ErrPacketTooShort
	}
	tagStart := len(buf) - AuthTagLength
	indexStart := tagStart - 4

	gotTag := buf[tagStart:]
	wantTag := authenticate(c.rtcpKeys.AuthKey, buf[:tagStart])
	if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
		return nil, ErrAuthTagMismatch
	}

	rawIndex := binary.BigEndian.Uint32(buf[indexStart:tagStart])
	encrypted := rawIndex&eFlagMask != 0
	index := rawIndex &^ eFlagMask

	if c.ReplayCheck {
		if c.rtcpReplay.Check(uint64(index)) {
			return nil, ErrReplay
		}
		c.rtcpReplay.Record(uint64(index))
	}

	body := buf[8:indexStart]
	if !encrypted {
		return append(buf[:8:8], body...), nil
	}

	ssrc := binary.BigEndian.Uint32(buf[4:8])
	if err := cryptPayload(c.rtcpKeys, body, ssrc, uint64(index)); err != nil {
		return nil, err
	}
	return append(buf[:8:8], body...), nil
}

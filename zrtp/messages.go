package zrtp

import (
	"encoding/binary"
	"fmt"
)

// Capabilities lists the algorithm sets a Hello message advertises. uvgRTP
// (and this package) only ever advertises the RFC 6189 mandatory set, so
// the lists are fixed rather than configurable.
type Capabilities struct {
	Version uint32
	Hash    []uint32
	Cipher  []uint32
	Auth    []uint32
	KeyAgr  []uint32
	SAS     []uint32
}

func mandatoryCapabilities() Capabilities {
	return Capabilities{
		Version: 110,
		Hash:    []uint32{HashS256},
		Cipher:  []uint32{CipherAES1},
		Auth:    []uint32{AuthTagHS32, AuthTagHS80},
		KeyAgr:  []uint32{KeyAgreementDH3k},
		SAS:     []uint32{SASTypeB32},
	}
}

// helloBodyLen is the Hello message body length following the frame start:
// version + client id + H3 hash + ZID + flags word + truncated MAC.
const helloBodyLen = 4 + 16 + 32 + 12 + 4 + 8

// marshalHello builds a wire Hello packet, using H3 (the outermost session
// hash, spec §4.8.5 "Session hashes H0..H3: H0 random, H(i+1)=SHA256(H(i))")
// and a MAC keyed by H2 over the message body preceding the MAC field.
func marshalHello(seq uint16, ssrc uint32, zid [12]byte, h2, h3 [32]byte) []byte {
	total := frameStartLen + helloBodyLen + 4 // +crc
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgHello, total)

	off := frameStartLen
	copy(buf[off:off+4], []byte("1.10"))
	off += 4
	copy(buf[off:off+16], []byte("uvgRTP,TUNI,govg"))
	off += 16
	copy(buf[off:off+32], h3[:])
	off += 32
	copy(buf[off:off+12], zid[:])
	off += 12
	// flags/algorithm-count word: all zero, mandatory algorithms implied.
	binary.BigEndian.PutUint32(buf[off:off+4], 0)
	off += 4

	macFull := hmacSHA256(h2[:], buf[:off])
	copy(buf[off:off+8], macFull[:8])
	off += 8

	return appendCRC(buf[:off])
}

type parsedHello struct {
	zid     [12]byte
	h3      [32]byte
	mac     [8]byte
	version uint32
	raw     []byte
}

func parseHello(buf []byte) (*parsedHello, error) {
	if err := verifyCRC(buf); err != nil {
		return nil, err
	}
	if len(buf) < frameStartLen+helloBodyLen+4 {
		return nil, fmt.Errorf("zrtp: Hello too short")
	}
	off := frameStartLen
	var version uint32
	if string(buf[off:off+4]) == "1.10" {
		version = 110
	}
	off += 4 + 16
	var h parsedHello
	copy(h.h3[:], buf[off:off+32])
	off += 32
	copy(h.zid[:], buf[off:off+12])
	off += 12 + 4
	copy(h.mac[:], buf[off:off+8])
	h.version = version
	h.raw = append([]byte(nil), buf[:len(buf)-4]...)
	return &h, nil
}

// marshalHelloAck builds the empty HelloAck acknowledgement.
func marshalHelloAck(seq uint16, ssrc uint32) []byte {
	total := frameStartLen + 4
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgHelloAck, total)
	return appendCRC(buf)
}

// commitBody mirrors zrtp_msg::zrtp_commit: our ZID, H2, the negotiated
// algorithm identifiers, hvi and a truncated H1-keyed MAC.
const commitBodyLen = 32 + 12 + 4*5 + 32 + 8

func marshalCommit(seq uint16, ssrc uint32, zid [12]byte, h1, h2 [32]byte, hvi [32]byte) []byte {
	total := frameStartLen + commitBodyLen + 4
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgCommit, total)

	off := frameStartLen
	copy(buf[off:off+32], h2[:])
	off += 32
	copy(buf[off:off+12], zid[:])
	off += 12
	binary.BigEndian.PutUint32(buf[off:off+4], HashS256)
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], CipherAES1)
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], AuthTagHS32)
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], KeyAgreementDH3k)
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], SASTypeB32)
	off += 4
	copy(buf[off:off+32], hvi[:])
	off += 32

	macFull := hmacSHA256(h1[:], buf[:off])
	copy(buf[off:off+8], macFull[:8])
	off += 8

	return appendCRC(buf[:off])
}

type parsedCommit struct {
	zid [12]byte
	hvi [32]byte
	raw []byte
}

func parseCommit(buf []byte) (*parsedCommit, error) {
	if err := verifyCRC(buf); err != nil {
		return nil, err
	}
	if len(buf) < frameStartLen+commitBodyLen+4 {
		return nil, fmt.Errorf("zrtp: Commit too short")
	}
	off := frameStartLen + 32
	var c parsedCommit
	copy(c.zid[:], buf[off:off+12])
	off += 12 + 4*5
	copy(c.hvi[:], buf[off:off+32])
	c.raw = append([]byte(nil), buf[:len(buf)-4]...)
	return &c, nil
}

// dhPartBody mirrors the RFC 6189 §5.6 DHPart layout: H1, the four
// retained-secret ID MACs (left zero since this package never does
// preshared mode), the DH public value and a truncated H0-keyed MAC.
const dhPartBodyLen = 32 + 8*4 + dhPublicValueLen + 8

func marshalDHPart(seq uint16, ssrc uint32, msgType string, h0, h1 [32]byte, pub []byte) []byte {
	total := frameStartLen + dhPartBodyLen + 4
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgType, total)

	off := frameStartLen
	copy(buf[off:off+32], h1[:])
	off += 32 + 8*4 // retained-secret IDs left zero, no preshared secrets available
	copy(buf[off:off+dhPublicValueLen], pub)
	off += dhPublicValueLen

	macFull := hmacSHA256(h0[:], buf[:off])
	copy(buf[off:off+8], macFull[:8])
	off += 8

	return appendCRC(buf[:off])
}

type parsedDHPart struct {
	pub []byte
	raw []byte
}

func parseDHPart(buf []byte) (*parsedDHPart, error) {
	if err := verifyCRC(buf); err != nil {
		return nil, err
	}
	if len(buf) < frameStartLen+dhPartBodyLen+4 {
		return nil, fmt.Errorf("zrtp: DHPart too short")
	}
	off := frameStartLen + 32 + 8*4
	pub := append([]byte(nil), buf[off:off+dhPublicValueLen]...)
	return &parsedDHPart{pub: pub, raw: append([]byte(nil), buf[:len(buf)-4]...)}, nil
}

// confirmBody mirrors zrtp_msg::zrtp_confirm: a truncated MAC over the IV
// and encrypted block, a 128-bit CFB IV, and the encrypted {H0, flags} block.
const confirmEncryptedLen = 32 + 4 + 4 // H0 || flags || cache_expiration
const confirmBodyLen = 8 + 16 + confirmEncryptedLen

func marshalConfirm(seq uint16, ssrc uint32, msgType string, h0 [32]byte, zrtpKey, hmacKey []byte) ([]byte, error) {
	total := frameStartLen + confirmBodyLen + 4
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgType, total)

	iv := make([]byte, 16)
	if err := randomBytes(iv); err != nil {
		return nil, err
	}

	plain := make([]byte, confirmEncryptedLen)
	copy(plain[:32], h0[:])
	// flags/sig_len/cache_expiration all zero: no signature, no cache.

	cipherText, err := aesCFBEncrypt(zrtpKey, iv, plain)
	if err != nil {
		return nil, err
	}

	off := frameStartLen
	macOff := off
	off += 8
	copy(buf[off:off+16], iv)
	off += 16
	copy(buf[off:off+confirmEncryptedLen], cipherText)
	off += confirmEncryptedLen

	macFull := hmacSHA256(hmacKey, buf[macOff+8:off])
	copy(buf[macOff:macOff+8], macFull[:8])

	return appendCRC(buf[:off]), nil
}

type parsedConfirm struct {
	h0  [32]byte
	raw []byte
}

func parseConfirm(buf []byte, zrtpKey, hmacKey []byte) (*parsedConfirm, error) {
	if err := verifyCRC(buf); err != nil {
		return nil, err
	}
	if len(buf) < frameStartLen+confirmBodyLen+4 {
		return nil, fmt.Errorf("zrtp: Confirm too short")
	}
	off := frameStartLen
	gotMAC := buf[off : off+8]
	off += 8
	iv := buf[off : off+16]
	off += 16
	cipherText := buf[off : off+confirmEncryptedLen]
	off += confirmEncryptedLen

	wantMAC := hmacSHA256(hmacKey, buf[frameStartLen+8:off])
	if !constantTimeEqual(gotMAC, wantMAC[:8]) {
		return nil, ErrBadConfirmMAC
	}

	plain, err := aesCFBDecrypt(zrtpKey, iv, cipherText)
	if err != nil {
		return nil, err
	}

	var c parsedConfirm
	copy(c.h0[:], plain[:32])
	c.raw = append([]byte(nil), buf[:len(buf)-4]...)
	return &c, nil
}

func marshalConf2ACK(seq uint16, ssrc uint32) []byte {
	total := frameStartLen + 4
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgConf2ACK, total)
	return appendCRC(buf)
}

// marshalError builds an Error message (RFC 6189 §5.9) carrying a single
// 32-bit error code.
func marshalError(seq uint16, ssrc uint32, code ErrorCode) []byte {
	total := frameStartLen + 4 + 4
	buf := make([]byte, total)
	buildFrameStart(buf, seq, ssrc, msgErrorMsg, total)
	binary.BigEndian.PutUint32(buf[frameStartLen:frameStartLen+4], uint32(code))
	return appendCRC(buf)
}

func parseError(buf []byte) (ErrorCode, error) {
	if err := verifyCRC(buf); err != nil {
		return 0, err
	}
	if len(buf) < frameStartLen+4+4 {
		return 0, fmt.Errorf("zrtp: Error message too short")
	}
	return ErrorCode(binary.BigEndian.Uint32(buf[frameStartLen : frameStartLen+4])), nil
}

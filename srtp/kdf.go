// Package srtp implements the SRTP/SRTCP cryptographic transforms of
// RFC 3711 (spec §4.7): key derivation, per-packet AES-CTR keystreams,
// HMAC-SHA1 authentication, the rollover counter, and a replay window.
//
// Grounded on other_examples/ba66e6bf_lanikai-alohartc's internal/rtp/srtp.go
// (deriveKey, aesCounterMode, hmacSHA1), generalized from that file's
// single-context shape into a per-stream Context with independent RTP and
// RTCP key sets (spec §3 "SRTP context (both directions)").
package srtp

import (
	"crypto/aes"
	"crypto/cipher"
)

// Key derivation labels, RFC 3711 §4.3.2, as named in spec §3.
const (
	LabelRTPEncrypt  byte = 0x00
	LabelRTPAuth     byte = 0x01
	LabelRTPSalt     byte = 0x02
	LabelRTCPEncrypt byte = 0x03
	LabelRTCPAuth    byte = 0x04
	LabelRTCPSalt    byte = 0x05
)

const (
	AuthKeyLength = 20 // 160-bit HMAC-SHA1 key
	SaltKeyLength = 14 // 112-bit session salt
)

// deriveKey implements the SRTP KDF (RFC 3711 §4.3): x = master_salt XOR
// (label || r), then the AES-CTR keystream of master_key over x*2^16 is the
// PRF output; n bytes of that keystream are the derived key. r is the
// key-derivation-rate-divided index, 0 when key derivation rate is 0 (the
// only rate spec §4.7 names).
func deriveKey(masterKey, masterSalt []byte, r uint64, label byte, n int) []byte {
	x := append([]byte(nil), masterSalt...)
	if r > 0 {
		xorUint48(x[len(x)-6:], r)
	}
	x[len(x)-7] ^= label

	iv := padRight(x, aes.BlockSize)
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic(err) // invalid master key length, a setup-time programming error
	}
	stream := cipher.NewCTR(block, iv)

	key := make([]byte, n)
	stream.XORKeyStream(key, key)
	return key
}

func padRight(b []byte, size int) []byte {
	if len(b) >= size {
		return b[:size]
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

func xorUint48(dst []byte, v uint64) {
	for i := 0; i < 6; i++ {
		dst[5-i] ^= byte(v >> (8 * i))
	}
}

// KeySet is the three session keys derived for one direction (RTP or
// RTCP), spec §3: "Session encryption key (AES-CTR), session auth key
// (HMAC-SHA1), session salt".
type KeySet struct {
	EncryptKey []byte
	AuthKey    []byte
	SaltKey    []byte
}

// DeriveRTPKeys derives the three RTP session keys from a master key/salt.
// The session encryption key is the same length as masterKey (16/24/32
// bytes for AES-128/192/256, spec §6's srtp-keysize-192/256 RCE flags),
// not a fixed 128-bit width - ZRTP and user-supplied keys can export
// larger master keys and the derived session key must carry that size
// through to the AES cipher (RFC 3711 §4.3.1: "n is... the key length").
func DeriveRTPKeys(masterKey, masterSalt []byte) KeySet {
	return KeySet{
		EncryptKey: deriveKey(masterKey, masterSalt, 0, LabelRTPEncrypt, len(masterKey)),
		AuthKey:    deriveKey(masterKey, masterSalt, 0, LabelRTPAuth, AuthKeyLength),
		SaltKey:    deriveKey(masterKey, masterSalt, 0, LabelRTPSalt, SaltKeyLength),
	}
}

// DeriveRTCPKeys derives the three RTCP session keys from a master key/salt,
// same key-length rule as DeriveRTPKeys.
func DeriveRTCPKeys(masterKey, masterSalt []byte) KeySet {
	return KeySet{
		EncryptKey: deriveKey(masterKey, masterSalt, 0, LabelRTCPEncrypt, len(masterKey)),
		AuthKey:    deriveKey(masterKey, masterSalt, 0, LabelRTCPAuth, AuthKeyLength),
		SaltKey:    deriveKey(masterKey, masterSalt, 0, LabelRTCPSalt, SaltKeyLength),
	}
}

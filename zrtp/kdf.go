package zrtp

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sessionHashes holds the H0..H3 chain (spec §4.8 "H0 random; H(i+1) =
// SHA256(H(i))"). Index 0 is H0 (kept secret until Confirm1/2), index 3 is
// H3 (the outermost hash, revealed in Hello).
type sessionHashes [4][32]byte

func newSessionHashes() (sessionHashes, error) {
	var h sessionHashes
	if err := randomBytes(h[0][:]); err != nil {
		return h, err
	}
	for i := 1; i < 4; i++ {
		h[i] = sha256Sum(h[i-1][:])
	}
	return h, nil
}

// totalHash implements spec §4.8.5: SHA256(Hello_responder || Commit ||
// DHPart1 || DHPart2), each operand being the raw bytes of the message as
// received/sent, CRC excluded (the reference code hashes "frame_" minus the
// trailing checksum word in the same way for its own MAC chaining).
func totalHash(helloResponder, commit, dhPart1, dhPart2 []byte) [32]byte {
	buf := make([]byte, 0, len(helloResponder)+len(commit)+len(dhPart1)+len(dhPart2))
	buf = append(buf, helloResponder...)
	buf = append(buf, commit...)
	buf = append(buf, dhPart1...)
	buf = append(buf, dhPart2...)
	return sha256Sum(buf)
}

// deriveS0 implements the RFC 6189 §4.4.1.4 KDF used when no retained
// secrets are available (the only mode this package supports): s0 =
// SHA256(counter || DHResult || "ZRTP-HMAC-KDF" || ZIDi ||
// ZIDr || total_hash || len(total_hash)*8), with the counter fixed to 1 (a
// single hash block is always sufficient: SHA256's 256-bit output matches
// the negotiated hash length exactly).
func deriveS0(dhResult []byte, total [32]byte, zidInitiator, zidResponder [12]byte) [32]byte {
	buf := make([]byte, 0, 4+len(dhResult)+13+12+12+32+4)
	buf = appendUint32(buf, 1)
	buf = append(buf, dhResult...)
	buf = append(buf, "ZRTP-HMAC-KDF"...)
	buf = append(buf, zidInitiator[:]...)
	buf = append(buf, zidResponder[:]...)
	buf = append(buf, total[:]...)
	buf = appendUint32(buf, 256)
	return sha256Sum(buf)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DerivedKeys holds every HMAC-SHA256-derived key RFC 6189 §4.8.7 names,
// each produced by keying HMAC-SHA256 with s0 and hashing the ASCII label.
type DerivedKeys struct {
	SessionKey [32]byte
	SASHash    [32]byte
	ZRTPKeyI   [16]byte
	ZRTPKeyR   [16]byte
	HMACKeyI   [32]byte
	HMACKeyR   [32]byte
}

func deriveKeys(s0 [32]byte) DerivedKeys {
	var d DerivedKeys
	d.SessionKey = hmacSHA256(s0[:], []byte("zrtp_session_key"))
	d.SASHash = hmacSHA256(s0[:], []byte("sas_hash"))
	ki := hmacSHA256(s0[:], []byte("zrtp_keyi"))
	kr := hmacSHA256(s0[:], []byte("zrtp_keyr"))
	copy(d.ZRTPKeyI[:], ki[:16])
	copy(d.ZRTPKeyR[:], kr[:16])
	d.HMACKeyI = hmacSHA256(s0[:], []byte("hmac_keyi"))
	d.HMACKeyR = hmacSHA256(s0[:], []byte("hmac_keyr"))
	return d
}

// SRTPKeys holds the master key/salt pair exported to seed an srtp.Context
// (spec §4.8.10 "master keys are hmac-sha256(s0, \"Master Key\"/...)").
type SRTPKeys struct {
	MasterKey  []byte
	MasterSalt []byte
}

// exportSRTPKeys derives the SRTP master key (keyBits/8 bytes, truncated
// from the HMAC-SHA256 output) and a 112-bit (14-byte) master salt.
func exportSRTPKeys(s0 [32]byte, keyBits int) SRTPKeys {
	key := hmacSHA256(s0[:], []byte("Master Key"))
	salt := hmacSHA256(s0[:], []byte("Master Salt"))
	return SRTPKeys{
		MasterKey:  append([]byte(nil), key[:keyBits/8]...),
		MasterSalt: append([]byte(nil), salt[:14]...),
	}
}

// deriveMultistreamS0 implements spec §4.8.9's Multistream mode: a
// subsequent stream reuses the DH-mode session key and mixes in a fresh
// per-stream nonce instead of performing its own Diffie-Hellman exchange.
// Uses HKDF-Expand (RFC 5869) over the session key, the standard Go
// construction for deriving key material from an already-strong secret.
func deriveMultistreamS0(sessionKey [32]byte, nonce [16]byte) [32]byte {
	r := hkdf.Expand(sha256.New, sessionKey[:], nonce[:])
	var out [32]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("zrtp: hkdf expand failed: " + err.Error())
	}
	return out
}

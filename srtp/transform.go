package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
)

// AuthTagLength is the truncated HMAC-SHA1 tag length SRTP/SRTCP append,
// RFC 3711 §4.2 and spec §4.7 "truncated to 10 bytes".
const AuthTagLength = 10

// cipherStream builds the AES-CTR stream for one packet's keystream, IV
// derived per RFC 3711 §4.1.1: IV = (salt*2^16) XOR (SSRC*2^64) XOR
// (index*2^16), spec §4.7 "IV = salt_key ⊕ (0 || SSRC || packet_index) << 16".
func cipherStream(encryptKey, saltKey []byte, ssrc uint32, index uint64) (cipher.Stream, error) {
	block, err := aes.NewCipher(encryptKey)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	copy(iv, saltKey)
	binary.BigEndian.PutUint32(iv[4:8], binary.BigEndian.Uint32(iv[4:8])^ssrc)
	xorUint48At(iv[8:], index)

	return cipher.NewCTR(block, iv), nil
}

func xorUint48At(dst []byte, v uint64) {
	for i := 0; i < 6; i++ {
		dst[5-i] ^= byte(v >> (8 * i))
	}
}

// cryptPayload both encrypts and decrypts: AES-CTR is symmetric, XOR'ing
// the keystream over payload in place.
func cryptPayload(keys KeySet, payload []byte, ssrc uint32, index uint64) error {
	stream, err := cipherStream(keys.EncryptKey, keys.SaltKey, ssrc, index)
	if err != nil {
		return err
	}
	stream.XORKeyStream(payload, payload)
	return nil
}

// authenticate computes the truncated HMAC-SHA1 tag over message per
// RFC 3711 §4.2.
func authenticate(authKey, message []byte) []byte {
	mac := hmac.New(sha1.New, authKey)
	mac.Write(message)
	return mac.Sum(nil)[:AuthTagLength]
}

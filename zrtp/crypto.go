package zrtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// hmacSHA256 and sha256Sum are grounded directly on the reference code's
// own crypto::hmac::sha256/crypto::sha256 wrappers, which are themselves
// thin shells around a standard hash library; Go's crypto/hmac and
// crypto/sha256 serve the identical role with no ecosystem library in the
// example pack offering anything beyond the standard primitives here.
func hmacSHA256(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func randomBytes(b []byte) error {
	_, err := rand.Read(b)
	return err
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// aesCFBEncrypt/aesCFBDecrypt implement the Confirm1/2 message encryption
// (spec §4.8.8 "AES-CFB with a fresh 128-bit IV"), grounded on the same
// crypto/aes + crypto/cipher primitives the srtp package's transform.go
// uses for SRTP's own AES-CTR.
func aesCFBEncrypt(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("zrtp: aes key: %w", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(out, plain)
	return out, nil
}

func aesCFBDecrypt(key, iv, cipherText []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("zrtp: aes key: %w", err)
	}
	out := make([]byte, len(cipherText))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, cipherText)
	return out, nil
}

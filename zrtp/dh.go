package zrtp

import (
	"fmt"
	"math/big"
)

// modp3072Hex is the RFC 3526 §4 3072-bit MODP group (DH3k, group 15), the
// only key-agreement type this package negotiates (spec §4.8.4 "p is the
// 3072-bit MODP prime from RFC 3526"). big.Int.Exp over this well-known
// fixed group is the standard way Go code performs classic (non-ECDH)
// Diffie-Hellman; there is no ECDH group to substitute since RFC 6189
// DH3k is defined over this exact finite field.
const modp3072Hex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33" +
	"A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864" +
	"D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E208E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

// dhPublicValueLen is the fixed wire width of a DH public value (384 bytes
// = 3072 bits), per the DH3k mode this package implements.
const dhPublicValueLen = 384

var modp3072 *big.Int
var dhGenerator = big.NewInt(2)

func init() {
	p, ok := new(big.Int).SetString(modp3072Hex, 16)
	if !ok {
		panic("zrtp: failed to parse RFC 3526 3072-bit MODP prime")
	}
	modp3072 = p
	if modp3072.BitLen() != 3072 {
		panic(fmt.Sprintf("zrtp: MODP group has %d bits, want 3072", modp3072.BitLen()))
	}
}

// dhKeyPair holds one side's ephemeral Diffie-Hellman key material, with a
// 22-byte private exponent as RFC 6189 §5.1.5 recommends for DH3k.
type dhKeyPair struct {
	private *big.Int
	public  *big.Int
}

// generateDHKeyPair draws a random private exponent and computes g^x mod p.
func generateDHKeyPair() (*dhKeyPair, error) {
	// 22 bytes (176 bits) of private exponent, matching the reference
	// implementation's zrtp_dh_ctx_t::private_key sizing.
	privBytes := make([]byte, 22)
	if err := randomBytes(privBytes); err != nil {
		return nil, fmt.Errorf("zrtp: dh key generation: %w", err)
	}
	priv := new(big.Int).SetBytes(privBytes)
	pub := new(big.Int).Exp(dhGenerator, priv, modp3072)
	return &dhKeyPair{private: priv, public: pub}, nil
}

func (kp *dhKeyPair) publicBytes() []byte {
	return leftPad(kp.public.Bytes(), dhPublicValueLen)
}

// sharedSecret computes peerPublic^private mod p (spec §4.8.4 DHResult).
func (kp *dhKeyPair) sharedSecret(peerPublic []byte) []byte {
	peer := new(big.Int).SetBytes(peerPublic)
	result := new(big.Int).Exp(peer, kp.private, modp3072)
	return leftPad(result.Bytes(), dhPublicValueLen)
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[len(b)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

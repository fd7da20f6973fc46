package srtp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContextPair() (sender, receiver *Context) {
	key, salt := testMasterKeySalt()
	return NewContext(key, salt), NewContext(key, salt)
}

func TestSRTPEncryptDecryptRoundTrip(t *testing.T) {
	sender, receiver := newTestContextPair()
	header := []byte{0x80, 0x60, 0x00, 0x01, 0, 0, 0, 100, 0, 0, 0x12, 0x34}
	payload := []byte("hello rtp world!")
	buf := append(append([]byte(nil), header...), payload...)

	out, err := sender.EncryptRTP(buf, len(header), 0x1234, 1)
	require.NoError(t, err)
	assert.NotEqual(t, payload, out[len(header):len(out)-AuthTagLength])

	plain, err := receiver.DecryptRTP(out, len(header), 0x1234, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestSRTPDecryptRejectsTamperedTag(t *testing.T) {
	sender, receiver := newTestContextPair()
	header := []byte{0x80, 0x60, 0x00, 0x01, 0, 0, 0, 100, 0, 0, 0x12, 0x34}
	buf := append(append([]byte(nil), header...), []byte("payload")...)

	out, err := sender.EncryptRTP(buf, len(header), 0x1234, 1)
	require.NoError(t, err)
	out[len(out)-1] ^= 0xff // flip a bit in the auth tag

	_, err = receiver.DecryptRTP(out, len(header), 0x1234, 1)
	assert.ErrorIs(t, err, ErrAuthTagMismatch)
}

func TestSRTPDecryptRejectsReplay(t *testing.T) {
	sender, receiver := newTestContextPair()
	header := []byte{0x80, 0x60, 0x00, 0x01, 0, 0, 0, 100, 0, 0, 0x12, 0x34}
	buf := append(append([]byte(nil), header...), []byte("payload")...)

	out, err := sender.EncryptRTP(buf, len(header), 0x1234, 1)
	require.NoError(t, err)

	_, err = receiver.DecryptRTP(append([]byte(nil), out...), len(header), 0x1234, 1)
	require.NoError(t, err)

	_, err = receiver.DecryptRTP(append([]byte(nil), out...), len(header), 0x1234, 1)
	assert.ErrorIs(t, err, ErrReplay)
}

func TestSRTCPEncryptDecryptRoundTrip(t *testing.T) {
	sender, receiver := newTestContextPair()
	pkt := []byte{0x80, 200, 0x00, 0x06, 0, 0, 0x12, 0x34, 'r', 't', 'c', 'p', ' ', 'd', 'a', 't', 'a', '!', '!', '!'}
	orig := append([]byte(nil), pkt...)

	out, err := sender.EncryptRTCP(pkt, 0x1234)
	require.NoError(t, err)
	assert.NotEqual(t, orig[8:], out[8:8+len(orig)-8])

	plain, err := receiver.DecryptRTCP(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(orig, plain))
}

func TestSRTCPDecryptRejectsTamperedTag(t *testing.T) {
	sender, receiver := newTestContextPair()
	pkt := []byte{0x80, 200, 0x00, 0x06, 0, 0, 0x12, 0x34, 'r', 't', 'c', 'p', ' ', 'd', 'a', 't', 'a'}

	out, err := sender.EncryptRTCP(pkt, 0x1234)
	require.NoError(t, err)
	out[len(out)-1] ^= 0xff

	_, err = receiver.DecryptRTCP(out)
	assert.ErrorIs(t, err, ErrAuthTagMismatch)
}

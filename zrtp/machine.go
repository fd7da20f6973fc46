package zrtp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ultravideo/govgrtp/socket"
)

// Machine drives one stream's ZRTP negotiation end to end. It owns the
// session hashes, DH key pair and negotiated keys, and is discarded once
// Negotiate (or MultistreamNegotiate) returns; the resulting SRTPKeys seed
// an srtp.Context for the stream's remaining lifetime.
//
// The retry structure (timer doubling, bounded attempt counts, role
// resolution by hvi contention) is grounded directly on the reference
// implementation's zrtp::begin_session/init_session/dh_part1/dh_part2
// state methods, generalized from uvgRTP's single hardcoded algorithm set
// to the negotiation shape spec'd in RFC 6189.
type Machine struct {
	sock *socket.Socket
	peer *net.UDPAddr
	ssrc uint32
	seq  uint16

	zid       [12]byte
	remoteZID [12]byte

	role  Role
	state State

	hashes   sessionHashes
	remoteH3 [32]byte

	dh         *dhKeyPair
	remotePub  []byte
	dhResult   []byte

	ourHelloRaw    []byte
	remoteHelloRaw []byte
	commitRaw      []byte
	dhPart1Raw     []byte
	dhPart2Raw     []byte

	keyBits int
	log     zerolog.Logger
}

// NewMachine creates a ZRTP state machine bound to sock, sending to peer.
// keyBits selects the exported SRTP master key size (128, 192 or 256).
func NewMachine(sock *socket.Socket, peer *net.UDPAddr, ssrc uint32, keyBits int) (*Machine, error) {
	hashes, err := newSessionHashes()
	if err != nil {
		return nil, fmt.Errorf("zrtp: session hash init: %w", err)
	}
	u := uuid.New()
	var zid [12]byte
	copy(zid[:], u[:12])

	if keyBits == 0 {
		keyBits = 128
	}

	return &Machine{
		sock:    sock,
		peer:    peer,
		ssrc:    ssrc,
		zid:     zid,
		state:   StateIdle,
		hashes:  hashes,
		keyBits: keyBits,
		log:     log.With().Str("component", "zrtp").Logger(),
	}, nil
}

func (m *Machine) SetLogger(l zerolog.Logger) { m.log = l }

func (m *Machine) State() State { return m.state }
func (m *Machine) Role() Role   { return m.role }

func (m *Machine) nextSeq() uint16 {
	s := m.seq
	m.seq++
	return s
}

// Result is what Negotiate/MultistreamNegotiate hand back to the caller:
// the exported SRTP keys plus the derived key bundle (e.g. for SAS display).
type Result struct {
	SRTP SRTPKeys
	Keys DerivedKeys
}

// Negotiate runs the full Diffie-Hellman mode exchange: Hello/HelloAck,
// Commit (with role resolution), DHPart1/DHPart2, Confirm1/Confirm2,
// Conf2ACK. It blocks the calling goroutine until the state machine
// reaches SecureEstablished or fails (spec §4.8, §6 "blocks the calling
// thread on start_zrtp() until the state machine terminates or the retry
// budget elapses").
func (m *Machine) Negotiate(ctx context.Context) (*Result, error) {
	if err := m.exchangeHello(ctx); err != nil {
		return nil, m.fail(ctx, err)
	}

	var err error
	m.dh, err = generateDHKeyPair()
	if err != nil {
		return nil, m.fail(ctx, err)
	}

	if err := m.exchangeCommit(ctx); err != nil {
		return nil, m.fail(ctx, err)
	}

	if m.role == RoleResponder {
		if err := m.dhPart1Exchange(ctx); err != nil {
			return nil, m.fail(ctx, err)
		}
	} else {
		if err := m.dhPart2Exchange(ctx); err != nil {
			return nil, m.fail(ctx, err)
		}
	}

	helloResponder := m.remoteHelloRaw
	if m.role == RoleResponder {
		helloResponder = m.ourHelloRaw
	}
	total := totalHash(helloResponder, m.commitRaw, m.dhPart1Raw, m.dhPart2Raw)
	var zidI, zidR [12]byte
	if m.role == RoleInitiator {
		zidI, zidR = m.zid, m.remoteZID
	} else {
		zidI, zidR = m.remoteZID, m.zid
	}
	s0 := deriveS0(m.dhResult, total, zidI, zidR)
	keys := deriveKeys(s0)

	if err := m.exchangeConfirm(ctx, keys); err != nil {
		return nil, m.fail(ctx, err)
	}

	m.state = StateSecureEstablished
	srtpKeys := exportSRTPKeys(s0, m.keyBits)
	return &Result{SRTP: srtpKeys, Keys: keys}, nil
}

// MultistreamNegotiate implements spec §4.8.9: a stream that reuses an
// established DH-mode session's zrtp_session_key, skipping the DH exchange
// entirely. It is expected to complete within the caller's short deadline
// (spec scenario 6: "≤ 2 s without DH").
func (m *Machine) MultistreamNegotiate(ctx context.Context, sessionKey [32]byte) (*Result, error) {
	if err := m.exchangeHello(ctx); err != nil {
		return nil, m.fail(ctx, err)
	}

	// Multistream mode has no DH exchange to build an hvi from, so role
	// contention falls back to comparing ZIDs directly (the numerically
	// larger ZID is initiator) instead of RFC 6189's hvi comparison.
	if bytes.Compare(m.zid[:], m.remoteZID[:]) > 0 {
		m.role = RoleInitiator
	} else {
		m.role = RoleResponder
	}

	// The per-stream nonce must be something both endpoints derive
	// identically without exchanging extra messages, so it is built from
	// the two ZIDs exchanged in Hello (initiator's first) rather than drawn
	// at random: both are already known to each side and unique per stream.
	var nonceInput [24]byte
	copy(nonceInput[0:12], m.zid[:])
	copy(nonceInput[12:24], m.remoteZID[:])
	if m.role == RoleResponder {
		copy(nonceInput[0:12], m.remoteZID[:])
		copy(nonceInput[12:24], m.zid[:])
	}
	nonceFull := sha256Sum(nonceInput[:])
	var nonce [16]byte
	copy(nonce[:], nonceFull[:16])

	s0 := deriveMultistreamS0(sessionKey, nonce)
	keys := deriveKeys(s0)

	if err := m.exchangeConfirm(ctx, keys); err != nil {
		return nil, m.fail(ctx, err)
	}

	m.state = StateSecureEstablished
	srtpKeys := exportSRTPKeys(s0, m.keyBits)
	return &Result{SRTP: srtpKeys, Keys: keys}, nil
}

func (m *Machine) fail(ctx context.Context, cause error) error {
	m.state = StateFailed
	code := ErrSoftware
	if ec, ok := cause.(ErrorCode); ok {
		code = ec
	}
	pkt := marshalError(m.nextSeq(), m.ssrc, code)
	_ = m.sock.SendOneTo(pkt, m.peer)
	return fmt.Errorf("zrtp: negotiation failed: %w", cause)
}

// retryLoop implements the doubling-timer retransmission shape common to
// every exchange step in the reference driver: send, poll for a matching
// reply with a growing deadline, give up after maxAttempts.
func (m *Machine) retryLoop(ctx context.Context, initial time.Duration, maxAttempts int, send func() error, tryRecv func([]byte) (bool, error)) error {
	rto := initial
	buf := make([]byte, 2048)

	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(); err != nil {
			m.log.Warn().Err(err).Msg("zrtp: send failed, retrying")
		}

		deadline := rto
		if remaining, ok := ctx.Deadline(); ok {
			if d := time.Until(remaining); d < deadline {
				deadline = d
			}
		}
		n, _, err := m.sock.RecvWithDeadline(buf, deadline)
		if err == nil {
			done, perr := tryRecv(buf[:n])
			if perr != nil {
				return perr
			}
			if done {
				return nil
			}
		}

		if rto < retryCeiling {
			rto *= 2
			if rto > retryCeiling {
				rto = retryCeiling
			}
		}
	}
	return ErrProtocolTimeout
}

func (m *Machine) exchangeHello(ctx context.Context) error {
	helloRecv := false
	pkt := marshalHello(m.nextSeq(), m.ssrc, m.zid, m.hashes[2], m.hashes[3])
	m.ourHelloRaw = pkt[:len(pkt)-4]

	err := m.retryLoop(ctx, helloRetryInitial, helloMaxAttempts, func() error {
		return m.sock.SendOneTo(pkt, m.peer)
	}, func(buf []byte) (bool, error) {
		typ, err := msgTypeOf(buf)
		if err != nil {
			return false, nil
		}
		switch typ {
		case msgHello:
			ack := marshalHelloAck(m.nextSeq(), m.ssrc)
			_ = m.sock.SendOneTo(ack, m.peer)

			if !helloRecv {
				parsed, err := parseHello(buf)
				if err != nil {
					return false, nil
				}
				if parsed.version != 110 {
					return false, nil
				}
				m.remoteH3 = parsed.h3
				m.remoteZID = parsed.zid
				m.remoteHelloRaw = parsed.raw
				helloRecv = true
			}
			return false, nil
		case msgHelloAck:
			return helloRecv, nil
		default:
			return false, nil
		}
	})
	if err != nil {
		return err
	}
	m.state = StateHelloAcked
	return nil
}

// computeHVI implements spec §4.8.3: hvi = SHA256(DHPart2_message ||
// peer_hello_message).
func (m *Machine) computeHVI(dhPart2 []byte) [32]byte {
	buf := append(append([]byte(nil), dhPart2...), m.remoteHelloRaw...)
	return sha256Sum(buf)
}

func (m *Machine) exchangeCommit(ctx context.Context) error {
	dhPart2 := marshalDHPart(0, m.ssrc, msgDHPart2, m.hashes[0], m.hashes[1], m.dh.publicBytes())
	hvi := m.computeHVI(dhPart2)

	// Drain any Commit remote already sent before we transmit our own
	// (reference zrtp::init_session: "First check if remote has already
	// sent the message. If so, they are the initiator").
	probe := make([]byte, 2048)
	n, _, err := m.sock.RecvWithDeadline(probe, 10*time.Millisecond)
	if err == nil {
		if typ, terr := msgTypeOf(probe[:n]); terr == nil && typ == msgCommit {
			if parsed, perr := parseCommit(probe[:n]); perr == nil {
				m.remoteZID = parsed.zid
				m.commitRaw = parsed.raw
				m.role = RoleResponder
				m.state = StateCommitted
				return nil
			}
		}
	}

	m.role = RoleInitiator
	resolved := false
	commit := marshalCommit(m.nextSeq(), m.ssrc, m.zid, m.hashes[1], m.hashes[2], hvi)
	m.commitRaw = commit[:len(commit)-4]

	rerr := m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
		return m.sock.SendOneTo(commit, m.peer)
	}, func(buf []byte) (bool, error) {
		typ, err := msgTypeOf(buf)
		if err != nil {
			return false, nil
		}
		switch typ {
		case msgCommit:
			parsed, perr := parseCommit(buf)
			if perr != nil {
				return false, nil
			}
			if bytes.Compare(hvi[:], parsed.hvi[:]) < 0 {
				// Remote's hvi is larger: they are initiator, we respond.
				m.remoteZID = parsed.zid
				m.commitRaw = parsed.raw
				m.role = RoleResponder
				resolved = true
				return true, nil
			}
			// Our hvi wins; keep retransmitting our Commit.
			return false, nil
		case msgDHPart1:
			// Remote already accepted us as initiator and moved on.
			resolved = true
			return true, nil
		default:
			return false, nil
		}
	})
	if rerr != nil {
		return rerr
	}
	if !resolved {
		return fmt.Errorf("zrtp: commit contention unresolved")
	}
	m.state = StateCommitted
	return nil
}

func (m *Machine) dhPart1Exchange(ctx context.Context) error {
	dh1 := marshalDHPart(m.nextSeq(), m.ssrc, msgDHPart1, m.hashes[0], m.hashes[1], m.dh.publicBytes())
	m.dhPart1Raw = dh1[:len(dh1)-4]

	err := m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
		return m.sock.SendOneTo(dh1, m.peer)
	}, func(buf []byte) (bool, error) {
		typ, err := msgTypeOf(buf)
		if err != nil || typ != msgDHPart2 {
			return false, nil
		}
		parsed, perr := parseDHPart(buf)
		if perr != nil {
			return false, nil
		}
		m.remotePub = parsed.pub
		m.dhPart2Raw = parsed.raw
		m.dhResult = m.dh.sharedSecret(parsed.pub)
		return true, nil
	})
	if err != nil {
		return err
	}
	m.state = StateDHExchange
	return nil
}

func (m *Machine) dhPart2Exchange(ctx context.Context) error {
	// The peer (responder) must send DHPart1 before we can send DHPart2.
	var part1 *parsedDHPart
	err := m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
		return nil // nothing to (re)send until DHPart1 is observed
	}, func(buf []byte) (bool, error) {
		typ, err := msgTypeOf(buf)
		if err != nil || typ != msgDHPart1 {
			return false, nil
		}
		parsed, perr := parseDHPart(buf)
		if perr != nil {
			return false, nil
		}
		part1 = parsed
		return true, nil
	})
	if err != nil {
		return err
	}
	m.dhPart1Raw = part1.raw
	m.remotePub = part1.pub
	m.dhResult = m.dh.sharedSecret(part1.pub)

	dh2 := marshalDHPart(m.nextSeq(), m.ssrc, msgDHPart2, m.hashes[0], m.hashes[1], m.dh.publicBytes())
	m.dhPart2Raw = dh2[:len(dh2)-4]

	err = m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
		return m.sock.SendOneTo(dh2, m.peer)
	}, func(buf []byte) (bool, error) {
		typ, err := msgTypeOf(buf)
		return err == nil && typ == msgConfirm1, nil
	})
	if err != nil {
		return err
	}
	m.state = StateDHExchange
	return nil
}

func (m *Machine) exchangeConfirm(ctx context.Context, keys DerivedKeys) error {
	if m.role == RoleResponder {
		pkt, err := marshalConfirm(m.nextSeq(), m.ssrc, msgConfirm1, m.hashes[0], keys.ZRTPKeyR[:], keys.HMACKeyR[:])
		if err != nil {
			return err
		}
		var confirmed bool
		err = m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
			return m.sock.SendOneTo(pkt, m.peer)
		}, func(buf []byte) (bool, error) {
			typ, terr := msgTypeOf(buf)
			if terr != nil || typ != msgConfirm2 {
				return false, nil
			}
			if _, perr := parseConfirm(buf, keys.ZRTPKeyI[:], keys.HMACKeyI[:]); perr != nil {
				return false, perr
			}
			confirmed = true
			return true, nil
		})
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("zrtp: Confirm2 never received")
		}
		ack := marshalConf2ACK(m.nextSeq(), m.ssrc)
		return m.sock.SendOneTo(ack, m.peer)
	}

	// Initiator: wait for Confirm1, then send Confirm2, then wait for Conf2ACK.
	gotConfirm1 := false
	err := m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
		return nil
	}, func(buf []byte) (bool, error) {
		typ, terr := msgTypeOf(buf)
		if terr != nil || typ != msgConfirm1 {
			return false, nil
		}
		if _, perr := parseConfirm(buf, keys.ZRTPKeyR[:], keys.HMACKeyR[:]); perr != nil {
			return false, perr
		}
		gotConfirm1 = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if !gotConfirm1 {
		return fmt.Errorf("zrtp: Confirm1 never received")
	}

	pkt, err := marshalConfirm(m.nextSeq(), m.ssrc, msgConfirm2, m.hashes[0], keys.ZRTPKeyI[:], keys.HMACKeyI[:])
	if err != nil {
		return err
	}
	acked := false
	err = m.retryLoop(ctx, otherRetryInitial, otherMaxAttempts, func() error {
		return m.sock.SendOneTo(pkt, m.peer)
	}, func(buf []byte) (bool, error) {
		typ, terr := msgTypeOf(buf)
		if terr == nil && typ == msgConf2ACK {
			acked = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !acked {
		return fmt.Errorf("zrtp: Conf2ACK never received")
	}
	m.state = StateConfirmed
	return nil
}

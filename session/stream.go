package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/ultravideo/govgrtp/formats"
	"github.com/ultravideo/govgrtp/frame"
	"github.com/ultravideo/govgrtp/holepunch"
	"github.com/ultravideo/govgrtp/reception"
	"github.com/ultravideo/govgrtp/rtcp"
	"github.com/ultravideo/govgrtp/rtpctx"
	"github.com/ultravideo/govgrtp/socket"
	"github.com/ultravideo/govgrtp/srtp"
	"github.com/ultravideo/govgrtp/zrtp"
)

// ReceiveHook is installed via Stream.InstallReceiveHook, spec §6
// "stream.install_receive_hook(f)".
type ReceiveHook func(frame []byte)

// Stream is one unidirectional-or-bidirectional RTP flow: an RTP
// identity (rtpctx.Context), a packetizer/depacketizer pair, an optional
// RTCP engine, an optional SRTP context and an optional ZRTP machine,
// all driven by one UDP socket (spec §3 "Stream").
type Stream struct {
	id      string
	session *Session
	sock    *socket.Socket
	remote  *net.UDPAddr

	rtpCtx *rtpctx.Context
	format Format
	rce    RCEFlags
	opts   Options

	packetizer   formats.Packetizer
	depacketizer formats.Depacketizer

	queue     *frame.Queue
	reception *reception.Flow
	keeper    *holepunch.Keeper

	mu         sync.Mutex
	rtcpEngine *rtcp.Engine
	srtpCtx    *srtp.Context
	zrtpM      *zrtp.Machine

	localStats rtcp.LocalStats

	receiveHook ReceiveHook

	// lastGC is when handleRTP last swept the depacketizer's reassembly
	// state; only the reception goroutine touches it.
	lastGC time.Time

	rtcpStop chan struct{}
	rtcpDone chan struct{}

	log zerolog.Logger
}

func newStream(s *Session, local, remote *net.UDPAddr, format Format, rce RCEFlags, opts Options) (*Stream, error) {
	sock, err := s.ctx.factory.Get(local)
	if err != nil {
		return nil, bindErrorFrom(err)
	}
	sock.ConnectOut(remote)
	if err := sock.SetBuf(opts.UDPRcvBufSize, "recv"); err != nil {
		return nil, bindErrorFrom(err)
	}
	if err := sock.SetBuf(opts.UDPSndBufSize, "send"); err != nil {
		return nil, bindErrorFrom(err)
	}

	payloadType := format.defaultPayloadType()
	if opts.DynPayloadType != nil {
		payloadType = *opts.DynPayloadType
	}
	clockRate := opts.ClockRate
	if clockRate == 0 {
		clockRate = 90000
	}
	rtpCtx := rtpctx.NewContext(payloadType, clockRate)
	if opts.SSRC != 0 {
		rtpCtx.SSRC = opts.SSRC
	}
	if opts.RemoteSSRC != 0 {
		rtpCtx.RemoteSSRC = opts.RemoteSSRC
	}

	formatOpts := formats.Options{
		PrependStartCode:      !rce.has(H26xDoNotPrependStartCode),
		DependencyEnforcement: rce.has(H26xDependencyEnforcement),
		IntraDelayPolicy:      true,
		FragmentGeneric:       rce.has(FragmentGeneric),
	}
	packetizer, depacketizer := format.codec(formatOpts)

	st := &Stream{
		id:           xid.New().String(),
		session:      s,
		sock:         sock,
		remote:       remote,
		rtpCtx:       rtpCtx,
		format:       format,
		rce:          rce,
		opts:         opts,
		packetizer:   packetizer,
		depacketizer: depacketizer,
		log:          s.log,
	}

	st.queue = frame.NewQueue(sock, rtpCtx, frame.Config{
		MTU:        opts.payloadSize(),
		FPS:        opts.fps(),
		Batch:      rce.has(SystemCallClustering),
		Packetizer: packetizer,
	})

	if rce.has(RTCP) {
		st.rtcpEngine = rtcp.NewEngine(rtpCtx.SSRC, xid.New().String(), opts.SessionBandwidthKbps)
		st.rtcpStop = make(chan struct{})
		st.rtcpDone = make(chan struct{})
	}

	st.reception = reception.NewFlow(sock, st.onDatagramFrame)
	st.reception.SetPollTimeout(opts.pollTimeout())
	st.reception.SetQueueCapacity(opts.RingBufferSize)
	st.installHandlers()

	if rce.has(RTCP) {
		go st.runRTCP()
	}

	if rce.has(HolepunchKeepalive) && (rce.has(SendOnly) || !rce.has(ReceiveOnly)) {
		st.keeper = holepunch.NewKeeper(sock, 0)
		st.keeper.Start()
	}

	// ZRTP's Machine drives its own retry/receive loop directly against
	// sock (zrtp/machine.go), so the steady-state reception flow only
	// starts once negotiation has released the socket back to it -
	// running both against the same socket at once would have them race
	// for the same datagrams.
	if rce.has(SRTP) && rce.has(SRTPKeyManagementZRTP) {
		go st.autoStartZRTP()
	} else {
		st.reception.Start()
	}

	return st, nil
}

func bindErrorFrom(err error) error {
	return newErr(KindBindError, "session: "+err.Error())
}

func (st *Stream) close() {
	if st.keeper != nil {
		st.keeper.Stop()
	}
	if st.rtcpStop != nil {
		close(st.rtcpStop)
		<-st.rtcpDone
	}
	st.reception.Stop()
	st.session.ctx.factory.Put(st.sock)
}

// PushFrame implements spec §6's stream.push_frame. An empty frame is
// rejected per spec §8's boundary behavior.
func (st *Stream) PushFrame(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidValue
	}

	st.mu.Lock()
	srtpCtx := st.srtpCtx
	st.mu.Unlock()
	if srtpCtx != nil {
		st.queue.SetEncoder(func(pkt []byte) ([]byte, error) {
			n, seq := parseHeaderLen(pkt)
			return srtpCtx.EncryptRTP(pkt, n, st.rtpCtx.SSRC, seq)
		})
	} else {
		st.queue.SetEncoder(nil)
	}

	if err := st.queue.PushFrame(data); err != nil {
		return newErr(KindSendError, "session: "+err.Error())
	}

	st.mu.Lock()
	st.localStats.SSRC = st.rtpCtx.SSRC
	st.localStats.PacketCount++
	st.localStats.OctetCount += uint32(len(data))
	st.localStats.LastPacketTime = time.Now()
	st.localStats.ClockRate = st.rtpCtx.ClockRate
	st.mu.Unlock()

	if st.session.ctx.metrics != nil {
		st.session.ctx.metrics.PacketSent(st.id)
	}
	return nil
}

// PullFrame implements spec §6's stream.pull_frame([timeout_ms]).
func (st *Stream) PullFrame(timeout time.Duration) ([]byte, bool) {
	if timeout <= 0 {
		return st.reception.PullFrame()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	type result struct {
		frame []byte
		ok    bool
	}
	out := make(chan result, 1)
	go func() {
		f, ok := st.reception.PullFrame()
		out <- result{f, ok}
	}()
	select {
	case r := <-out:
		return r.frame, r.ok
	case <-timer.C:
		return nil, false
	}
}

// InstallReceiveHook implements spec §6's stream.install_receive_hook(f).
func (st *Stream) InstallReceiveHook(h ReceiveHook) {
	st.mu.Lock()
	st.receiveHook = h
	st.mu.Unlock()
}

func (st *Stream) InstallSenderHook(h rtcp.SenderHook) {
	if st.rtcpEngine != nil {
		st.rtcpEngine.InstallSenderHook(h)
	}
}

func (st *Stream) InstallReceiverHook(h rtcp.ReceiverHook) {
	if st.rtcpEngine != nil {
		st.rtcpEngine.InstallReceiverHook(h)
	}
}

func (st *Stream) InstallSDESHook(h rtcp.SDESHook) {
	if st.rtcpEngine != nil {
		st.rtcpEngine.InstallSDESHook(h)
	}
}

func (st *Stream) InstallAppHook(h rtcp.AppHook) {
	if st.rtcpEngine != nil {
		st.rtcpEngine.InstallAppHook(h)
	}
}

// AddSRTPCtx implements spec §6's stream.add_srtp_ctx(key, salt) for
// user-managed keying (rce_flags srtp|srtp-kmngmnt-user).
func (st *Stream) AddSRTPCtx(key, salt []byte) error {
	ctx := srtp.NewContext(key, salt)
	st.mu.Lock()
	st.srtpCtx = ctx
	st.mu.Unlock()
	return nil
}

// StartZRTP implements spec §6's stream.start_zrtp() for manual
// initiation when not auto-started by srtp-kmngmnt-zrtp.
func (st *Stream) StartZRTP(ctx context.Context) error {
	if err := st.negotiateZRTP(ctx); err != nil {
		return err
	}
	st.reception.Start()
	return nil
}

func (st *Stream) autoStartZRTP() {
	if err := st.negotiateZRTP(context.Background()); err != nil {
		st.log.Warn().Err(err).Msg("session: automatic zrtp negotiation failed")
	}
	st.reception.Start()
}

func (st *Stream) negotiateZRTP(ctx context.Context) error {
	keyBits := 128
	if st.rce.has(SRTPKeysize256) {
		keyBits = 256
	} else if st.rce.has(SRTPKeysize192) {
		keyBits = 192
	}

	m, err := zrtp.NewMachine(st.sock, st.remote, st.rtpCtx.SSRC, keyBits)
	if err != nil {
		return newErr(KindGenericError, "session: zrtp: "+err.Error())
	}
	st.mu.Lock()
	st.zrtpM = m
	st.mu.Unlock()

	var result *zrtp.Result
	if st.rce.has(ZRTPMultistreamMode) {
		st.session.mu.Lock()
		sessionKey := st.session.zrtpSessionKey
		has := st.session.zrtpSessionKeySet
		st.session.mu.Unlock()
		if !has {
			return newErr(KindNotInitialized, "session: multistream mode requires a prior dh-mode session")
		}
		result, err = m.MultistreamNegotiate(ctx, sessionKey)
	} else {
		result, err = m.Negotiate(ctx)
		if err == nil {
			st.session.mu.Lock()
			st.session.zrtpSessionKey = result.Keys.SessionKey
			st.session.zrtpSessionKeySet = true
			st.session.mu.Unlock()
		}
	}
	if err != nil {
		return newErr(KindGenericError, "session: zrtp negotiate: "+err.Error())
	}

	srtpCtx := srtp.NewContext(result.SRTP.MasterKey, result.SRTP.MasterSalt)
	st.mu.Lock()
	st.srtpCtx = srtpCtx
	st.mu.Unlock()
	return nil
}

func (st *Stream) installHandlers() {
	st.reception.InstallHandler(st.handleRTCP)
	st.reception.InstallHandler(st.handleRTP)
}

func (st *Stream) handleRTCP(buf []byte, from *net.UDPAddr, arrival time.Time) (reception.Outcome, [][]byte, error) {
	if st.rtcpEngine == nil || !looksLikeRTCP(buf) {
		return reception.NotHandled, nil, nil
	}

	st.mu.Lock()
	srtpCtx := st.srtpCtx
	st.mu.Unlock()
	if srtpCtx != nil {
		plain, err := srtpCtx.DecryptRTCP(buf)
		if err != nil {
			if st.session.ctx.metrics != nil {
				st.session.ctx.metrics.RecordAuthTagMismatch(st.id)
			}
			return reception.HandledConsumed, nil, nil
		}
		buf = plain
	}

	st.rtcpEngine.HandleCompound(buf, from)
	return reception.HandledConsumed, nil, nil
}

func (st *Stream) handleRTP(buf []byte, from *net.UDPAddr, arrival time.Time) (reception.Outcome, [][]byte, error) {
	var hdr rtp.Header
	n, err := hdr.Unmarshal(buf)
	if err != nil {
		return reception.HandlerError, nil, nil
	}

	payload := buf[n:]
	st.mu.Lock()
	srtpCtx := st.srtpCtx
	st.mu.Unlock()
	if srtpCtx != nil {
		payload, err = srtpCtx.DecryptRTP(buf, n, hdr.SSRC, hdr.SequenceNumber)
		if err != nil {
			if st.session.ctx.metrics != nil {
				if err == srtp.ErrAuthTagMismatch {
					st.session.ctx.metrics.RecordAuthTagMismatch(st.id)
				} else if err == srtp.ErrReplay {
					st.session.ctx.metrics.ReplayDrop(st.id)
				}
			}
			return reception.HandledConsumed, nil, nil
		}
	}

	if st.rtpCtx.LearnRemote(hdr.SSRC) {
		old := st.rtpCtx.Reinitialize()
		if bye, err := rtcp.BuildBye(old, "ssrc collision"); err == nil {
			st.sock.SendOneTo(bye, st.remote)
		}
	}

	if st.rtcpEngine != nil {
		st.rtcpEngine.ObserveRTP(hdr.SSRC, from, hdr.SequenceNumber, hdr.Timestamp, len(payload), arrival, st.rtpCtx.ClockRate)
	}

	if maxDelay := st.opts.pktMaxDelay(); maxDelay > 0 && arrival.Sub(st.lastGC) >= maxDelay {
		st.depacketizer.GC(arrival, maxDelay)
		st.lastGC = arrival
	}

	out, ok, err := st.depacketizer.Ingest(hdr.SequenceNumber, hdr.Timestamp, hdr.Marker, payload, arrival)
	if err != nil || !ok {
		return reception.HandledConsumed, nil, nil
	}
	return reception.PacketReady, [][]byte{out}, nil
}

func (st *Stream) onDatagramFrame(f []byte) {
	st.mu.Lock()
	hook := st.receiveHook
	st.mu.Unlock()
	if st.session.ctx.metrics != nil {
		st.session.ctx.metrics.PacketReceived(st.id)
	}
	if hook != nil {
		hook(f)
	}
}

func (st *Stream) runRTCP() {
	defer close(st.rtcpDone)
	for {
		interval := st.rtcpEngine.NextInterval()
		if st.session.ctx.metrics != nil {
			st.session.ctx.metrics.SetRTCPInterval(st.id, interval.Seconds())
		}
		timer := time.NewTimer(interval)
		select {
		case <-st.rtcpStop:
			timer.Stop()
			return
		case <-timer.C:
		}

		st.mu.Lock()
		local := st.localStats
		st.mu.Unlock()

		out, err := st.rtcpEngine.BuildOutgoing(local)
		if err != nil {
			st.log.Warn().Err(err).Msg("session: build rtcp compound failed")
			continue
		}

		st.mu.Lock()
		srtpCtx := st.srtpCtx
		st.mu.Unlock()
		if srtpCtx != nil {
			out, err = srtpCtx.EncryptRTCP(out, st.rtpCtx.SSRC)
			if err != nil {
				st.log.Warn().Err(err).Msg("session: encrypt rtcp compound failed")
				continue
			}
		}

		if err := st.sock.SendOne(out); err != nil {
			st.log.Warn().Err(err).Msg("session: send rtcp compound failed")
		}
	}
}

func looksLikeRTCP(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	pt := buf[1]
	return pt >= 200 && pt <= 204
}

// parseHeaderLen returns the RTP fixed-header length and sequence number
// of an outgoing packet, used by the SRTP pre-send encoder to locate the
// payload without the frame.Queue needing any RTP awareness.
func parseHeaderLen(pkt []byte) (n int, seq uint16) {
	var hdr rtp.Header
	n, err := hdr.Unmarshal(pkt)
	if err != nil {
		return 12, 0
	}
	return n, hdr.SequenceNumber
}

package session

import "errors"

// ErrKind identifies one of the stable error kinds from spec §7. Its
// String form matches the kebab-case identifiers named there, the way
// rtp_sequencer.go exports named sentinel errors instead of raw strings.
type ErrKind int

const (
	KindOK ErrKind = iota
	KindNotReady
	KindPktReady
	KindPktModified
	KindPktNotHandled
	KindMultiplePktsReady
	KindInterrupted
	KindGenericError
	KindSocketError
	KindBindError
	KindInvalidValue
	KindSendError
	KindMemoryError
	KindSSRCCollision
	KindAlreadyInitialized
	KindNotInitialized
	KindNotSupported
	KindRecvError
	KindTimeout
	KindNotFound
	KindAuthTagMismatch
)

var kindNames = map[ErrKind]string{
	KindOK:                 "ok",
	KindNotReady:           "not-ready",
	KindPktReady:           "pkt-ready",
	KindPktModified:        "pkt-modified",
	KindPktNotHandled:      "pkt-not-handled",
	KindMultiplePktsReady:  "multiple-pkts-ready",
	KindInterrupted:        "interrupted",
	KindGenericError:       "generic-error",
	KindSocketError:        "socket-error",
	KindBindError:          "bind-error",
	KindInvalidValue:       "invalid-value",
	KindSendError:          "send-error",
	KindMemoryError:        "memory-error",
	KindSSRCCollision:      "ssrc-collision",
	KindAlreadyInitialized: "already-initialized",
	KindNotInitialized:     "not-initialized",
	KindNotSupported:       "not-supported",
	KindRecvError:          "recv-error",
	KindTimeout:            "timeout",
	KindNotFound:           "not-found",
	KindAuthTagMismatch:    "auth-tag-mismatch",
}

func (k ErrKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "generic-error"
}

// kindError wraps an ErrKind as an error so callers can match it with
// errors.Is against the package-level sentinels below.
type kindError struct {
	kind ErrKind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newErr(kind ErrKind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// KindOf extracts the ErrKind from err, defaulting to KindGenericError for
// any error this package did not originate (e.g. socket/srtp/zrtp errors
// wrapped with fmt.Errorf further up the call chain).
func KindOf(err error) ErrKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindGenericError
}

var (
	ErrBindError          = newErr(KindBindError, "session: bind error")
	ErrInvalidValue       = newErr(KindInvalidValue, "session: invalid value")
	ErrAuthTagMismatch    = newErr(KindAuthTagMismatch, "session: auth tag mismatch")
	ErrTimeout            = newErr(KindTimeout, "session: timeout")
	ErrNotSupported       = newErr(KindNotSupported, "session: not supported")
	ErrAlreadyInitialized = newErr(KindAlreadyInitialized, "session: already initialized")
	ErrNotInitialized     = newErr(KindNotInitialized, "session: not initialized")
)

package session

// RCEFlags is the bitmask of stream-creation flags from spec §6 ("RCE flag
// enumeration").
type RCEFlags uint32

const (
	SendOnly RCEFlags = 1 << iota
	ReceiveOnly
	SRTP
	SRTPKeyManagementZRTP
	SRTPKeyManagementUser
	SRTPNullCipher
	SRTPAuthenticateRTP
	SRTPReplayProtection
	SRTPKeysize192
	SRTPKeysize256
	RTCP
	RTCPMux
	FragmentGeneric
	H26xDoNotPrependStartCode
	H26xDependencyEnforcement
	HolepunchKeepalive
	ZRTPDiffieHellmanMode
	ZRTPMultistreamMode
	FrameRate
	PaceFragmentSending
	SystemCallClustering
)

func (f RCEFlags) has(bit RCEFlags) bool { return f&bit != 0 }

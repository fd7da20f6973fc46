package session

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is the semantic key/value configuration surface of spec §6
// (stream.configure(key, value)); keys use spec §6's own kebab-case names
// via mapstructure tags so the external surface stays exactly what's
// named there while the implementation works off a typed Options
// struct, the same split SilvaMendes-go-rtpengine uses to decode its
// NG-protocol dictionaries with mapstructure.
type Config map[string]any

// Options is the decoded, validated form of a Config.
type Options struct {
	UDPRcvBufSize        int     `mapstructure:"udp-rcv-buf-size"`
	UDPSndBufSize        int     `mapstructure:"udp-snd-buf-size"`
	RingBufferSize       int     `mapstructure:"ring-buffer-size"`
	PktMaxDelayMs        int     `mapstructure:"pkt-max-delay"`
	DynPayloadType       *uint8  `mapstructure:"dyn-payload-type"`
	ClockRate            uint32  `mapstructure:"clock-rate"`
	MTUSize              int     `mapstructure:"mtu-size"`
	FPSNumerator         int     `mapstructure:"fps-numerator"`
	FPSDenominator       int     `mapstructure:"fps-denominator"`
	SSRC                 uint32  `mapstructure:"ssrc"`
	RemoteSSRC           uint32  `mapstructure:"remote-ssrc"`
	SessionBandwidthKbps float64 `mapstructure:"session-bandwidth-kbps"`
	PollTimeoutMs        int     `mapstructure:"poll-timeout-ms"`
}

// defaultOptions matches the defaults named in spec §6.
func defaultOptions() Options {
	return Options{
		UDPRcvBufSize:        4 << 20,
		UDPSndBufSize:        4 << 20,
		RingBufferSize:       4 << 20,
		PktMaxDelayMs:        500,
		MTUSize:              1492,
		SessionBandwidthKbps: 384,
		PollTimeoutMs:        200,
	}
}

// decodeConfig merges cfg on top of the defaults named in spec §6.
func decodeConfig(cfg Config) (Options, error) {
	opts := defaultOptions()
	if cfg == nil {
		return opts, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(map[string]any(cfg)); err != nil {
		return opts, err
	}
	return opts, nil
}

func (o Options) pktMaxDelay() time.Duration {
	return time.Duration(o.PktMaxDelayMs) * time.Millisecond
}

func (o Options) pollTimeout() time.Duration {
	return time.Duration(o.PollTimeoutMs) * time.Millisecond
}

func (o Options) fps() float64 {
	if o.FPSDenominator == 0 || o.FPSNumerator == 0 {
		return 0
	}
	return float64(o.FPSNumerator) / float64(o.FPSDenominator)
}

func (o Options) payloadSize() int {
	return o.MTUSize - 40 - 12
}

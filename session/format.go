package session

import "github.com/ultravideo/govgrtp/formats"

// Format selects the payload-specific packetization of spec §4.5.
type Format int

const (
	FormatGeneric Format = iota
	FormatH264
	FormatH265
	FormatH266
	FormatOpus
)

// defaultPayloadType implements spec §6's "Payload type defaults:
// H.264=106, H.265=107, H.266=108, Opus=105, Generic=0".
func (f Format) defaultPayloadType() uint8 {
	switch f {
	case FormatH264:
		return 106
	case FormatH265:
		return 107
	case FormatH266:
		return 108
	case FormatOpus:
		return 105
	default:
		return 0
	}
}

// codec builds the packetizer/depacketizer pair for f, sharing one
// formats.Options value so the RCE-derived policy knobs apply uniformly.
func (f Format) codec(opts formats.Options) (formats.Packetizer, formats.Depacketizer) {
	switch f {
	case FormatH264:
		h := formats.NewH264(opts)
		return h, h
	case FormatH265:
		h := formats.NewH265(opts)
		return h, h
	case FormatH266:
		h := formats.NewH266(opts)
		return h, h
	case FormatOpus:
		o := formats.NewOpus(opts)
		return o, o
	default:
		g := formats.NewGeneric(opts)
		return g, g
	}
}

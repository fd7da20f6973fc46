package rtcp

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch (1900-01-01)
// and the Unix epoch (1970-01-01).
const ntpEpochOffset int64 = 2208988800

// NTPTimestamp converts a wall-clock time to the 64-bit NTP format used in
// RTCP Sender Report NTP fields (RFC 3550 §4): 32 bits of seconds since the
// NTP epoch, 32 bits of fraction.
func NTPTimestamp(t time.Time) uint64 {
	seconds := t.Unix() + ntpEpochOffset
	frac := (float64(t.Nanosecond()) / 1e9) * (1 << 32)
	return (uint64(seconds) << 32) | uint64(frac)
}

// NTPToTime is the inverse of NTPTimestamp.
func NTPToTime(ntp uint64) time.Time {
	seconds := int64(ntp >> 32)
	frac := float64(ntp&0xFFFFFFFF) / (1 << 32)
	unixSeconds := seconds - ntpEpochOffset
	return time.Unix(unixSeconds, int64(frac*1e9))
}

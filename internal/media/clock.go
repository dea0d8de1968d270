package media

import "time"

// ClockRate is the 90 kHz RTP-style media clock used for video timestamps.
const ClockRate = 90000

// To90kHz converts a presentation time into 90 kHz clock ticks, rounded to
// the nearest tick and truncated to 32 bits as carried on the wire.
func To90kHz(pts time.Duration) uint32 {
	ticks := (pts.Nanoseconds()*ClockRate + int64(time.Second)/2) / int64(time.Second)
	return uint32(ticks)
}

// FromTicks converts 90 kHz ticks back into a presentation time. The 32-bit
// wire value wraps roughly every 13 hours; a beam session is well inside one
// wrap, so no unwrapping is attempted.
func FromTicks(ticks uint32) time.Duration {
	return time.Duration(int64(ticks) * int64(time.Second) / ClockRate)
}

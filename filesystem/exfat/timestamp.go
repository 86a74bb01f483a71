package exfat

import (
	"time"
)

// exFAT timestamps pack date and time into 32 bits the DOS way: 7 bits of
// year since 1980, 4 of month, 5 of day, 5 of hour, 6 of minute, and 5 bits
// of two-second intervals. A companion byte adds 10ms resolution and another
// the UTC offset in 15 minute steps.

func decodeTimestamp(ts uint32, tenMsIncrement, utcOffset uint8) time.Time {
	var (
		year   = 1980 + int(ts>>25&0x7f)
		month  = time.Month(ts >> 21 & 0xf)
		day    = int(ts >> 16 & 0x1f)
		hour   = int(ts >> 11 & 0x1f)
		minute = int(ts >> 5 & 0x3f)
		second = int(ts&0x1f)*2 + int(tenMsIncrement)/100
		nsec   = int(tenMsIncrement) % 100 * 10 * int(time.Millisecond)
	)

	loc := time.UTC
	if utcOffset&0x80 != 0 {
		// low 7 bits are a signed offset in 15 minute intervals
		offset := int(int8(utcOffset << 1)) / 2
		loc = time.FixedZone("", offset*15*60)
	}

	return time.Date(year, month, day, hour, minute, second, nsec, loc)
}

// encodeTimestamp is the inverse, used by the test volume builder and kept
// next to the decoder so the two stay in sync.
func encodeTimestamp(t time.Time) (ts uint32, tenMsIncrement, utcOffset uint8) {
	_, secondsOffset := t.Zone()
	ts |= (uint32(t.Year()-1980) & 0x7f) << 25
	ts |= (uint32(t.Month()) & 0xf) << 21
	ts |= (uint32(t.Day()) & 0x1f) << 16
	ts |= (uint32(t.Hour()) & 0x1f) << 11
	ts |= (uint32(t.Minute()) & 0x3f) << 5
	ts |= uint32(t.Second()) / 2 & 0x1f
	tenMsIncrement = uint8(t.Second()%2*100 + t.Nanosecond()/int(10*time.Millisecond))
	utcOffset = 0x80 | uint8(secondsOffset/(15*60))&0x7f
	return ts, tenMsIncrement, utcOffset
}

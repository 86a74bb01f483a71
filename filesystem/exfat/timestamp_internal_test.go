package exfat

import (
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	tests := []time.Time{
		time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC),
		time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC),                         // odd second
		time.Date(2019, 12, 31, 23, 59, 59, 0, time.UTC),                    // end of year
		time.Date(2022, 3, 4, 5, 6, 7, 430e6, time.UTC),                     // 10ms resolution
		time.Date(2022, 3, 4, 5, 6, 7, 0, time.FixedZone("", 5*3600+30*60)), // +05:30
		time.Date(2022, 3, 4, 5, 6, 7, 0, time.FixedZone("", -8*3600)),      // -08:00
	}
	for _, in := range tests {
		ts, tenMs, utcOffset := encodeTimestamp(in)
		out := decodeTimestamp(ts, tenMs, utcOffset)
		if !out.Equal(in) {
			t.Errorf("round trip of %v returned %v", in, out)
		}
	}
}

func TestTimestampFields(t *testing.T) {
	// 2022-03-04 05:06:08 packed by hand:
	// year 42<<25 | month 3<<21 | day 4<<16 | hour 5<<11 | minute 6<<5 | 8/2
	const packed = uint32(42<<25 | 3<<21 | 4<<16 | 5<<11 | 6<<5 | 4)
	got := decodeTimestamp(packed, 0, 0x80)
	want := time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("decoded %v, expected %v", got, want)
	}
}

func TestTimestampNoOffset(t *testing.T) {
	// without the valid bit, the offset byte is ignored and the time is
	// taken as-is
	const packed = uint32(42<<25 | 3<<21 | 4<<16 | 5<<11 | 6<<5 | 4)
	got := decodeTimestamp(packed, 0, 0x7f)
	if _, offset := got.Zone(); offset != 0 {
		t.Errorf("unexpected zone offset %d", offset)
	}
}

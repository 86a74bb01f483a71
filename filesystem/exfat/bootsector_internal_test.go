package exfat

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBootSectorFromBytes(t *testing.T) {
	t.Run("valid boot sector", func(t *testing.T) {
		b := testBootSectorBytes()
		bs, err := bootSectorFromBytes(b)
		if err != nil {
			t.Fatalf("returned unexpected error: %v", err)
		}
		expected := &bootSector{
			volumeLength:           testVolumeSize >> testSectorShift,
			fatOffset:              testFatOffset,
			fatLength:              testFatLength,
			clusterHeapOffset:      testHeapOffset,
			clusterCount:           testClusterCount,
			rootDirectoryCluster:   4,
			volumeSerialNumber:     testSerialNumber,
			fsRevisionMajor:        1,
			bytesPerSectorShift:    testSectorShift,
			sectorsPerClusterShift: testClusterShift,
			numberOfFats:           1,
		}
		if !bs.equal(expected) {
			t.Errorf("mismatched boot sector, actual then expected\n%#v\n%#v", *bs, *expected)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := bootSectorFromBytes(make([]byte, 100)); err == nil {
			t.Errorf("expected error for short input")
		}
	})

	tests := []struct {
		name    string
		mangle  func(b []byte)
		wantErr error
	}{
		{"wrong filesystem name", func(b []byte) { copy(b[3:11], "NTFS    ") }, ErrNotExfat},
		{"missing boot signature", func(b []byte) { b[510] = 0 }, ErrNotExfat},
		{"bad jump boot", func(b []byte) { b[0] = 0x00 }, ErrCorruptVolume},
		{"nonzero MustBeZero region", func(b []byte) { b[40] = 0x01 }, ErrCorruptVolume},
		{"unsupported revision", func(b []byte) { b[105] = 2 }, ErrUnsupportedRevision},
		{"sector shift too small", func(b []byte) { b[108] = 8 }, ErrCorruptVolume},
		{"sector shift too large", func(b []byte) { b[108] = 13 }, ErrCorruptVolume},
		{"cluster shift too large", func(b []byte) { b[109] = 25 - testSectorShift + 1 }, ErrCorruptVolume},
		{"bad number of FATs", func(b []byte) { b[110] = 3 }, ErrCorruptVolume},
		{"zero cluster count", func(b []byte) { copy(b[92:96], []byte{0, 0, 0, 0}) }, ErrCorruptVolume},
		{"root cluster out of range", func(b []byte) { copy(b[96:100], []byte{0xff, 0xff, 0, 0}) }, ErrCorruptVolume},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBootSectorBytes()
			tt.mangle(b)
			_, err := bootSectorFromBytes(b)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("mismatched error, actual %v expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestBootSectorToBytes(t *testing.T) {
	// parsing and re-encoding must reproduce the original relevant bytes
	b := testBootSectorBytes()
	bs, err := bootSectorFromBytes(b)
	if err != nil {
		t.Fatalf("returned unexpected error: %v", err)
	}
	out := bs.toBytes()
	if diff := cmp.Diff(b, out); diff != "" {
		t.Errorf("re-encoded boot sector mismatch (-parsed +reencoded):\n%s", diff)
	}
}

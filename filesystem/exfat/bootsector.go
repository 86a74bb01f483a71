package exfat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	bootSectorSize = 512

	minBytesPerSectorShift = 9
	maxBytesPerSectorShift = 12
	// BytesPerSectorShift + SectorsPerClusterShift must not exceed this,
	// i.e. the maximum cluster size is 32MB
	maxClusterShiftTotal = 25
)

var (
	jumpBootSignature        = []byte{0xeb, 0x76, 0x90}
	fileSystemName           = []byte("EXFAT   ")
	bootSignature            = uint16(0xaa55)
	mustBeZeroStart          = 11
	mustBeZeroEnd            = 64
	supportedPrimaryRevision = uint8(1)
)

// bootSector is the parsed main boot sector of an exFAT volume. It is
// immutable once loaded and owned by the FileSystem for its lifetime.
type bootSector struct {
	partitionOffset        uint64
	volumeLength           uint64 // sectors
	fatOffset              uint32 // sectors, relative to volume start
	fatLength              uint32 // sectors, per FAT
	clusterHeapOffset      uint32 // sectors, relative to volume start
	clusterCount           uint32
	rootDirectoryCluster   uint32
	volumeSerialNumber     uint32
	fsRevisionMinor        uint8
	fsRevisionMajor        uint8
	volumeFlags            uint16
	bytesPerSectorShift    uint8
	sectorsPerClusterShift uint8
	numberOfFats           uint8
	driveSelect            uint8
	percentInUse           uint8
}

func (b *bootSector) bytesPerSector() int64 {
	return 1 << b.bytesPerSectorShift
}

func (b *bootSector) bytesPerCluster() int64 {
	return 1 << (b.bytesPerSectorShift + b.sectorsPerClusterShift)
}

// activeFat reports which FAT holds the current cluster links, from the
// ActiveFat bit of VolumeFlags
func (b *bootSector) activeFat() uint8 {
	return uint8(b.volumeFlags & 0x1)
}

func (b *bootSector) equal(a *bootSector) bool {
	if (b == nil && a != nil) || (b != nil && a == nil) {
		return false
	}
	if b == nil && a == nil {
		return true
	}
	return *b == *a
}

// bootSectorFromBytes parses the main boot sector from the first sector of
// the volume
func bootSectorFromBytes(b []byte) (*bootSector, error) {
	if len(b) != bootSectorSize {
		return nil, fmt.Errorf("cannot parse boot sector from %d bytes, must be exactly %d", len(b), bootSectorSize)
	}
	if !bytes.Equal(b[3:11], fileSystemName) {
		return nil, fmt.Errorf("filesystem name is not %q: %w", fileSystemName, ErrNotExfat)
	}
	if binary.LittleEndian.Uint16(b[510:512]) != bootSignature {
		return nil, fmt.Errorf("missing boot signature 0x%04x: %w", bootSignature, ErrNotExfat)
	}
	if !bytes.Equal(b[0:3], jumpBootSignature) {
		return nil, fmt.Errorf("invalid JumpBoot bytes % 02x: %w", b[0:3], ErrCorruptVolume)
	}
	for i := mustBeZeroStart; i < mustBeZeroEnd; i++ {
		if b[i] != 0 {
			return nil, fmt.Errorf("MustBeZero region is not zero at byte %d: %w", i, ErrCorruptVolume)
		}
	}

	bs := bootSector{
		partitionOffset:        binary.LittleEndian.Uint64(b[64:72]),
		volumeLength:           binary.LittleEndian.Uint64(b[72:80]),
		fatOffset:              binary.LittleEndian.Uint32(b[80:84]),
		fatLength:              binary.LittleEndian.Uint32(b[84:88]),
		clusterHeapOffset:      binary.LittleEndian.Uint32(b[88:92]),
		clusterCount:           binary.LittleEndian.Uint32(b[92:96]),
		rootDirectoryCluster:   binary.LittleEndian.Uint32(b[96:100]),
		volumeSerialNumber:     binary.LittleEndian.Uint32(b[100:104]),
		fsRevisionMinor:        b[104],
		fsRevisionMajor:        b[105],
		volumeFlags:            binary.LittleEndian.Uint16(b[106:108]),
		bytesPerSectorShift:    b[108],
		sectorsPerClusterShift: b[109],
		numberOfFats:           b[110],
		driveSelect:            b[111],
		percentInUse:           b[112],
	}

	if bs.fsRevisionMajor != supportedPrimaryRevision {
		return nil, fmt.Errorf("filesystem revision %d.%02d: %w", bs.fsRevisionMajor, bs.fsRevisionMinor, ErrUnsupportedRevision)
	}
	if bs.bytesPerSectorShift < minBytesPerSectorShift || bs.bytesPerSectorShift > maxBytesPerSectorShift {
		return nil, fmt.Errorf("BytesPerSectorShift %d out of range %d-%d: %w", bs.bytesPerSectorShift, minBytesPerSectorShift, maxBytesPerSectorShift, ErrCorruptVolume)
	}
	if bs.bytesPerSectorShift+bs.sectorsPerClusterShift > maxClusterShiftTotal {
		return nil, fmt.Errorf("SectorsPerClusterShift %d too large for sector shift %d: %w", bs.sectorsPerClusterShift, bs.bytesPerSectorShift, ErrCorruptVolume)
	}
	if bs.numberOfFats != 1 && bs.numberOfFats != 2 {
		return nil, fmt.Errorf("NumberOfFats must be 1 or 2, not %d: %w", bs.numberOfFats, ErrCorruptVolume)
	}
	if bs.clusterCount == 0 {
		return nil, fmt.Errorf("ClusterCount is zero: %w", ErrCorruptVolume)
	}
	if bs.rootDirectoryCluster < firstDataCluster || bs.rootDirectoryCluster > bs.clusterCount+1 {
		return nil, fmt.Errorf("FirstClusterOfRootDirectory %d out of range: %w", bs.rootDirectoryCluster, ErrCorruptVolume)
	}

	return &bs, nil
}

// toBytes encodes the parsed fields back at their on-disk offsets. The unused
// regions (boot code, reserved bytes) are left zeroed.
func (b *bootSector) toBytes() []byte {
	out := make([]byte, bootSectorSize)
	copy(out[0:3], jumpBootSignature)
	copy(out[3:11], fileSystemName)
	binary.LittleEndian.PutUint64(out[64:72], b.partitionOffset)
	binary.LittleEndian.PutUint64(out[72:80], b.volumeLength)
	binary.LittleEndian.PutUint32(out[80:84], b.fatOffset)
	binary.LittleEndian.PutUint32(out[84:88], b.fatLength)
	binary.LittleEndian.PutUint32(out[88:92], b.clusterHeapOffset)
	binary.LittleEndian.PutUint32(out[92:96], b.clusterCount)
	binary.LittleEndian.PutUint32(out[96:100], b.rootDirectoryCluster)
	binary.LittleEndian.PutUint32(out[100:104], b.volumeSerialNumber)
	out[104] = b.fsRevisionMinor
	out[105] = b.fsRevisionMajor
	binary.LittleEndian.PutUint16(out[106:108], b.volumeFlags)
	out[108] = b.bytesPerSectorShift
	out[109] = b.sectorsPerClusterShift
	out[110] = b.numberOfFats
	out[111] = b.driveSelect
	out[112] = b.percentInUse
	binary.LittleEndian.PutUint16(out[510:512], bootSignature)
	return out
}

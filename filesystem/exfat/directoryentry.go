package exfat

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

const (
	directoryEntrySize = 32

	// type byte layout: bit 7 in-use, bit 6 category, bit 5 importance,
	// bits 0-4 type code
	entryInUse             = 0x80
	entryCategorySecondary = 0x40
	entryImportanceBenign  = 0x20

	entryTypeEndOfDirectory   = 0x00
	entryTypeAllocationBitmap = 0x81
	entryTypeUpcaseTable      = 0x82
	entryTypeVolumeLabel      = 0x83
	entryTypeFile             = 0x85
	entryTypeVolumeGUID       = 0xa0
	entryTypeStreamExtension  = 0xc0
	entryTypeFileName         = 0xc1

	// each File Name entry carries 15 UTF-16LE code units
	fileNameEntryChars = 15
	// a File entry declares 1-18 secondaries: the Stream Extension plus up
	// to 17 File Name entries
	minSecondaryCount = 1
	maxSecondaryCount = 18

	maxVolumeLabelChars = 11

	// FileAttributes bits
	attrReadOnly  = 0x0001
	attrHidden    = 0x0002
	attrSystem    = 0x0004
	attrDirectory = 0x0010
	attrArchive   = 0x0020

	// GeneralSecondaryFlags bits on the Stream Extension
	streamAllocationPossible = 0x01
	streamNoFatChain         = 0x02
)

// directoryEntry is a single decoded entry set: one file or subdirectory.
// also fulfills os.FileInfo
//   Name() string       // base name of the file
//   Size() int64        // length in bytes for regular files; system-dependent for others
//   Mode() FileMode     // file mode bits
//   ModTime() time.Time // modification time
//   IsDir() bool        // abbreviation for Mode().IsDir()
//   Sys() interface{}   // underlying data source (can return nil)
type directoryEntry struct {
	filename        string
	dataLength      uint64
	validDataLength uint64
	firstCluster    uint32
	noFatChain      bool
	nameHash        uint16
	isSubdirectory  bool
	isReadOnly      bool
	isHidden        bool
	isSystem        bool
	isArchive       bool
	createTime      time.Time
	modifyTime      time.Time
	accessTime      time.Time
	filesystem      *FileSystem
}

func (de *directoryEntry) Name() string {
	return de.filename
}

func (de *directoryEntry) Size() int64 {
	return int64(de.validDataLength)
}

func (de *directoryEntry) Mode() os.FileMode {
	mode := os.FileMode(0o555)
	if de.isSubdirectory {
		mode |= os.ModeDir
	}
	return mode
}

func (de *directoryEntry) ModTime() time.Time {
	return de.modifyTime
}

func (de *directoryEntry) IsDir() bool {
	return de.isSubdirectory
}

func (de *directoryEntry) Sys() interface{} {
	return nil
}

// allocationBitmap records an Allocation Bitmap entry from the root
// directory. The read path never interprets the bitmap itself, but the entry
// must exist for the volume to be considered well-formed.
type allocationBitmap struct {
	secondBitmap bool // which FAT this bitmap belongs to, from BitmapFlags bit 0
	firstCluster uint32
	dataLength   uint64
}

// upcaseRef locates the up-case table file and carries its stored checksum.
type upcaseRef struct {
	checksum     uint32
	firstCluster uint32
	dataLength   uint64
}

// parsedDirectory is the decoded content of one directory's entry stream.
// The label, bitmap, up-case and GUID fields are only ever populated for the
// root directory.
type parsedDirectory struct {
	entries    []*directoryEntry
	label      string
	hasLabel   bool
	bitmaps    []allocationBitmap
	upcase     *upcaseRef
	volumeGUID *uuid.UUID
}

// scanState is the directory scanner's position in entry-set framing
type scanState int

const (
	// stateScanning expects a primary entry, a deleted entry, or end-of-directory
	stateScanning scanState = iota
	// stateInSet expects the declared number of secondary entries
	stateInSet
)

// openSet accumulates one entry set: the File entry already read plus the
// secondaries still owed
type openSet struct {
	remaining      int
	storedChecksum uint16
	checksum       uint16
	attributes     uint16
	createTime     time.Time
	modifyTime     time.Time
	accessTime     time.Time
	haveStream     bool
	streamFlags    uint8
	nameLength     uint8
	nameHash       uint16
	validDataLen   uint64
	firstCluster   uint32
	dataLength     uint64
	nameUnits      []uint16
}

// parseDirEntries decodes a directory's byte stream in 32-byte units,
// grouping primary and secondary entries into sets. A framing violation or a
// checksum mismatch aborts the whole scan: entry-set framing cannot be safely
// resynchronized without risking misattributed names.
func parseDirEntries(b []byte, root bool) (*parsedDirectory, error) {
	dir := &parsedDirectory{}
	state := stateScanning
	var set openSet

	for start := 0; start+directoryEntrySize <= len(b); start += directoryEntrySize {
		entry := b[start : start+directoryEntrySize]
		entryType := entry[0]

		if state == stateInSet {
			if entryType&entryInUse == 0 || entryType&entryCategorySecondary == 0 {
				return nil, fmt.Errorf("entry at byte %d interrupts an entry set still owed %d secondaries: %w", start, set.remaining, ErrCorruptVolume)
			}
			set.checksum = checksum16(set.checksum, entry, false)
			set.remaining--
			switch {
			case entryType == entryTypeStreamExtension:
				if set.haveStream {
					return nil, fmt.Errorf("duplicate stream extension at byte %d: %w", start, ErrCorruptVolume)
				}
				set.haveStream = true
				set.streamFlags = entry[1]
				set.nameLength = entry[3]
				set.nameHash = binary.LittleEndian.Uint16(entry[4:6])
				set.validDataLen = binary.LittleEndian.Uint64(entry[8:16])
				set.firstCluster = binary.LittleEndian.Uint32(entry[20:24])
				set.dataLength = binary.LittleEndian.Uint64(entry[24:32])
			case entryType == entryTypeFileName:
				if !set.haveStream {
					return nil, fmt.Errorf("file name entry at byte %d before the stream extension: %w", start, ErrCorruptVolume)
				}
				for i := 0; i < fileNameEntryChars; i++ {
					set.nameUnits = append(set.nameUnits, binary.LittleEndian.Uint16(entry[2+i*2:4+i*2]))
				}
			case entryType&entryImportanceBenign != 0:
				// unrecognized benign secondary: counted and checksummed, otherwise ignored
			default:
				return nil, fmt.Errorf("unknown critical secondary entry type 0x%02x at byte %d: %w", entryType, start, ErrCorruptVolume)
			}
			if set.remaining == 0 {
				de, err := set.close(start)
				if err != nil {
					return nil, err
				}
				dir.entries = append(dir.entries, de)
				state = stateScanning
			}
			continue
		}

		// stateScanning
		switch {
		case entryType == entryTypeEndOfDirectory:
			return dir, nil
		case entryType&entryInUse == 0:
			// deleted entry, does not open a set
		case entryType&entryCategorySecondary != 0:
			return nil, fmt.Errorf("secondary entry type 0x%02x at byte %d with no preceding file entry: %w", entryType, start, ErrCorruptVolume)
		case entryType == entryTypeFile:
			secondaryCount := int(entry[1])
			if secondaryCount < minSecondaryCount || secondaryCount > maxSecondaryCount {
				return nil, fmt.Errorf("file entry at byte %d declares %d secondary entries: %w", start, secondaryCount, ErrCorruptVolume)
			}
			set = openSet{
				remaining:      secondaryCount,
				storedChecksum: binary.LittleEndian.Uint16(entry[2:4]),
				checksum:       checksum16(0, entry, true),
				attributes:     binary.LittleEndian.Uint16(entry[4:6]),
				createTime:     decodeTimestamp(binary.LittleEndian.Uint32(entry[8:12]), entry[20], entry[22]),
				modifyTime:     decodeTimestamp(binary.LittleEndian.Uint32(entry[12:16]), entry[21], entry[23]),
				accessTime:     decodeTimestamp(binary.LittleEndian.Uint32(entry[16:20]), 0, entry[24]),
			}
			state = stateInSet
		case entryType == entryTypeAllocationBitmap:
			if !root {
				return nil, fmt.Errorf("allocation bitmap entry at byte %d outside the root directory: %w", start, ErrCorruptVolume)
			}
			if len(dir.bitmaps) >= 2 {
				return nil, fmt.Errorf("more than two allocation bitmap entries: %w", ErrCorruptVolume)
			}
			dir.bitmaps = append(dir.bitmaps, allocationBitmap{
				secondBitmap: entry[1]&0x1 != 0,
				firstCluster: binary.LittleEndian.Uint32(entry[20:24]),
				dataLength:   binary.LittleEndian.Uint64(entry[24:32]),
			})
		case entryType == entryTypeUpcaseTable:
			if !root {
				return nil, fmt.Errorf("up-case table entry at byte %d outside the root directory: %w", start, ErrCorruptVolume)
			}
			if dir.upcase != nil {
				return nil, fmt.Errorf("more than one up-case table entry: %w", ErrCorruptVolume)
			}
			dir.upcase = &upcaseRef{
				checksum:     binary.LittleEndian.Uint32(entry[4:8]),
				firstCluster: binary.LittleEndian.Uint32(entry[20:24]),
				dataLength:   binary.LittleEndian.Uint64(entry[24:32]),
			}
		case entryType == entryTypeVolumeLabel:
			if !root {
				return nil, fmt.Errorf("volume label entry at byte %d outside the root directory: %w", start, ErrCorruptVolume)
			}
			if dir.hasLabel {
				return nil, fmt.Errorf("more than one volume label entry: %w", ErrCorruptVolume)
			}
			characterCount := int(entry[1])
			if characterCount > maxVolumeLabelChars {
				return nil, fmt.Errorf("volume label of %d characters exceeds maximum %d: %w", characterCount, maxVolumeLabelChars, ErrCorruptVolume)
			}
			units := make([]uint16, characterCount)
			for i := range units {
				units[i] = binary.LittleEndian.Uint16(entry[2+i*2 : 4+i*2])
			}
			dir.label = string(utf16.Decode(units))
			dir.hasLabel = true
		case entryType == entryTypeVolumeGUID:
			if !root {
				return nil, fmt.Errorf("volume GUID entry at byte %d outside the root directory: %w", start, ErrCorruptVolume)
			}
			if dir.volumeGUID != nil {
				return nil, fmt.Errorf("more than one volume GUID entry: %w", ErrCorruptVolume)
			}
			// the first three GUID fields are stored little-endian on
			// disk, the remaining bytes as-is
			g := make([]byte, 16)
			copy(g, entry[6:22])
			g[0], g[1], g[2], g[3] = g[3], g[2], g[1], g[0]
			g[4], g[5] = g[5], g[4]
			g[6], g[7] = g[7], g[6]
			guid, err := uuid.FromBytes(g)
			if err != nil {
				return nil, fmt.Errorf("cannot decode volume GUID: %w", ErrCorruptVolume)
			}
			dir.volumeGUID = &guid
		default:
			return nil, fmt.Errorf("unknown primary entry type 0x%02x at byte %d: %w", entryType, start, ErrCorruptVolume)
		}
	}

	if state == stateInSet {
		return nil, fmt.Errorf("directory ends with an entry set still owed %d secondaries: %w", set.remaining, ErrCorruptVolume)
	}
	// exFAT directories normally terminate with an end-of-directory entry,
	// but a directory that exactly fills its allocation may simply run out
	return dir, nil
}

// close validates the accumulated set and produces its directoryEntry
func (s *openSet) close(at int) (*directoryEntry, error) {
	if !s.haveStream {
		return nil, fmt.Errorf("entry set ending at byte %d has no stream extension: %w", at, ErrCorruptVolume)
	}
	if s.checksum != s.storedChecksum {
		return nil, fmt.Errorf("entry set ending at byte %d has checksum 0x%04x, stored 0x%04x: %w", at, s.checksum, s.storedChecksum, ErrCorruptVolume)
	}
	if s.validDataLen > s.dataLength {
		return nil, fmt.Errorf("entry set ending at byte %d has valid data length %d larger than data length %d: %w", at, s.validDataLen, s.dataLength, ErrCorruptVolume)
	}
	if int(s.nameLength) > len(s.nameUnits) {
		return nil, fmt.Errorf("entry set ending at byte %d declares a %d character name but carries only %d: %w", at, s.nameLength, len(s.nameUnits), ErrCorruptVolume)
	}
	if s.nameLength == 0 {
		return nil, fmt.Errorf("entry set ending at byte %d has an empty name: %w", at, ErrCorruptVolume)
	}
	return &directoryEntry{
		filename:        string(utf16.Decode(s.nameUnits[:s.nameLength])),
		dataLength:      s.dataLength,
		validDataLength: s.validDataLen,
		firstCluster:    s.firstCluster,
		noFatChain:      s.streamFlags&streamNoFatChain != 0,
		nameHash:        s.nameHash,
		isSubdirectory:  s.attributes&attrDirectory != 0,
		isReadOnly:      s.attributes&attrReadOnly != 0,
		isHidden:        s.attributes&attrHidden != 0,
		isSystem:        s.attributes&attrSystem != 0,
		isArchive:       s.attributes&attrArchive != 0,
		createTime:      s.createTime,
		modifyTime:      s.modifyTime,
		accessTime:      s.accessTime,
	}, nil
}

// checksum16 is the rotate-right checksum over entry set bytes. The two
// SetChecksum bytes of the File entry itself are excluded from the sum.
func checksum16(sum uint16, b []byte, skipChecksumField bool) uint16 {
	for i, v := range b {
		if skipChecksumField && (i == 2 || i == 3) {
			continue
		}
		sum = (sum>>1 | sum<<15) + uint16(v)
	}
	return sum
}

// checksum32 is the rotate-right checksum over the up-case table bytes
func checksum32(b []byte) uint32 {
	var sum uint32
	for _, v := range b {
		sum = (sum>>1 | sum<<31) + uint32(v)
	}
	return sum
}

// nameHash is the rotate-right hash over the up-cased name's UTF-16LE bytes,
// as stored in the stream extension entry
func nameHash(upcased []uint16) uint16 {
	var sum uint16
	for _, u := range upcased {
		sum = (sum>>1 | sum<<15) + u&0xff
		sum = (sum>>1 | sum<<15) + u>>8
	}
	return sum
}

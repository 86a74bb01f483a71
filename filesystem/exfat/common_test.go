package exfat

/*
 helpers to build a complete, small exFAT volume in memory, so tests do not
 need a binary image in testdata. The layout is fixed:

   sector 0        boot sector
   sectors 24-25   FAT (single copy)
   sector 32       start of the cluster heap
     cluster 2     allocation bitmap
     cluster 3     up-case table
     cluster 4     root directory
     cluster 5     "Report.TXT", 10 bytes, FAT-chained
     cluster 6     "dir1" directory
     cluster 7     "file2" inside dir1, contiguous (NoFatChain)
     clusters 8,10,12  "big.bin", 9000 bytes, FAT chain with gaps
*/

import (
	"encoding/binary"
	"io"
	"time"
	"unicode/utf16"

	"github.com/diskfs/go-exfat/testhelper"
	"github.com/google/uuid"
)

const (
	testSectorShift  = 9
	testClusterShift = 3
	testClusterSize  = 1 << (testSectorShift + testClusterShift)
	testClusterCount = 64
	testFatOffset    = 24 // sectors
	testFatLength    = 2  // sectors
	testHeapOffset   = 32 // sectors
	testHeapStart    = testHeapOffset << testSectorShift
	testVolumeSize   = testHeapStart + testClusterCount*testClusterSize
	testSerialNumber = 0x12345678
)

var (
	testGUID      = uuid.MustParse("f1e2d3c4-b5a6-4788-99aa-bbccddeeff00")
	testTime      = time.Date(2022, 3, 4, 5, 6, 8, 0, time.UTC)
	testFile1Data = []byte("0123456789")
	testFile2Data = []byte("Test file 2.\n")
	testLongName  = "abcdefghijklmnopqrstuvwxyzABCDEF"
	testBigData   = func() []byte {
		b := make([]byte, 9000)
		for i := range b {
			b[i] = byte(i % 251)
		}
		return b
	}()
)

// testStorage wraps raw image bytes in a backend stub
func testStorage(img []byte) *testhelper.FileImpl {
	return &testhelper.FileImpl{
		Reader: func(b []byte, offset int64) (int, error) {
			if offset >= int64(len(img)) {
				return 0, io.EOF
			}
			n := copy(b, img[offset:])
			if n < len(b) {
				return n, io.EOF
			}
			return n, nil
		},
	}
}

// testUpcaseBytes builds an uncompressed table for code units 0-127 that
// folds a-z onto A-Z and everything else onto itself
func testUpcaseBytes() []byte {
	b := make([]byte, 256)
	for i := 0; i < 128; i++ {
		u := uint16(i)
		if i >= 'a' && i <= 'z' {
			u -= 'a' - 'A'
		}
		binary.LittleEndian.PutUint16(b[i*2:i*2+2], u)
	}
	return b
}

func testFoldUnit(u uint16) uint16 {
	if u >= 'a' && u <= 'z' {
		return u - ('a' - 'A')
	}
	return u
}

// testEntrySet encodes a full File entry set: File entry, Stream Extension,
// and as many File Name entries as the name needs, with a valid checksum
func testEntrySet(name string, attrs uint16, firstCluster uint32, validLen, dataLen uint64, noFatChain bool) []byte {
	units := utf16.Encode([]rune(name))
	nameEntries := (len(units) + fileNameEntryChars - 1) / fileNameEntryChars
	secondaries := 1 + nameEntries

	ts, tenMs, utcOffset := encodeTimestamp(testTime)

	fe := make([]byte, directoryEntrySize)
	fe[0] = entryTypeFile
	fe[1] = byte(secondaries)
	binary.LittleEndian.PutUint16(fe[4:6], attrs)
	binary.LittleEndian.PutUint32(fe[8:12], ts)
	binary.LittleEndian.PutUint32(fe[12:16], ts)
	binary.LittleEndian.PutUint32(fe[16:20], ts)
	fe[20] = tenMs
	fe[21] = tenMs
	fe[22] = utcOffset
	fe[23] = utcOffset
	fe[24] = utcOffset

	folded := make([]uint16, len(units))
	for i, u := range units {
		folded[i] = testFoldUnit(u)
	}

	se := make([]byte, directoryEntrySize)
	se[0] = entryTypeStreamExtension
	se[1] = streamAllocationPossible
	if noFatChain {
		se[1] |= streamNoFatChain
	}
	if firstCluster == 0 {
		se[1] = 0
	}
	se[3] = byte(len(units))
	binary.LittleEndian.PutUint16(se[4:6], nameHash(folded))
	binary.LittleEndian.PutUint64(se[8:16], validLen)
	binary.LittleEndian.PutUint32(se[20:24], firstCluster)
	binary.LittleEndian.PutUint64(se[24:32], dataLen)

	set := make([]byte, 0, (2+nameEntries)*directoryEntrySize)
	set = append(set, fe...)
	set = append(set, se...)
	for i := 0; i < nameEntries; i++ {
		ne := make([]byte, directoryEntrySize)
		ne[0] = entryTypeFileName
		for j := 0; j < fileNameEntryChars; j++ {
			if idx := i*fileNameEntryChars + j; idx < len(units) {
				binary.LittleEndian.PutUint16(ne[2+j*2:4+j*2], units[idx])
			}
		}
		set = append(set, ne...)
	}

	sum := checksum16(0, set[:directoryEntrySize], true)
	for off := directoryEntrySize; off < len(set); off += directoryEntrySize {
		sum = checksum16(sum, set[off:off+directoryEntrySize], false)
	}
	binary.LittleEndian.PutUint16(set[2:4], sum)
	return set
}

func testBitmapEntry(firstCluster uint32, dataLen uint64) []byte {
	e := make([]byte, directoryEntrySize)
	e[0] = entryTypeAllocationBitmap
	binary.LittleEndian.PutUint32(e[20:24], firstCluster)
	binary.LittleEndian.PutUint64(e[24:32], dataLen)
	return e
}

func testUpcaseEntry(checksum uint32, firstCluster uint32, dataLen uint64) []byte {
	e := make([]byte, directoryEntrySize)
	e[0] = entryTypeUpcaseTable
	binary.LittleEndian.PutUint32(e[4:8], checksum)
	binary.LittleEndian.PutUint32(e[20:24], firstCluster)
	binary.LittleEndian.PutUint64(e[24:32], dataLen)
	return e
}

func testLabelEntry(label string) []byte {
	units := utf16.Encode([]rune(label))
	e := make([]byte, directoryEntrySize)
	e[0] = entryTypeVolumeLabel
	e[1] = byte(len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(e[2+i*2:4+i*2], u)
	}
	return e
}

func testGUIDEntry(g uuid.UUID) []byte {
	e := make([]byte, directoryEntrySize)
	e[0] = entryTypeVolumeGUID
	// first three fields little-endian, as Windows writes them
	b := e[6:22]
	copy(b, g[:])
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return e
}

func testBootSectorBytes() []byte {
	bs := &bootSector{
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
	return bs.toBytes()
}

// testVolumeBytes assembles the whole image
func testVolumeBytes() []byte {
	img := make([]byte, testVolumeSize)
	copy(img, testBootSectorBytes())

	// FAT
	fat := img[testFatOffset<<testSectorShift:]
	putFat := func(cluster, value uint32) {
		binary.LittleEndian.PutUint32(fat[cluster*4:cluster*4+4], value)
	}
	putFat(0, 0xfffffff8)
	putFat(1, 0xffffffff)
	for _, c := range []uint32{2, 3, 4, 5, 6} {
		putFat(c, endOfChainMarker)
	}
	putFat(8, 10)
	putFat(10, 12)
	putFat(12, endOfChainMarker)

	clusterAt := func(cluster uint32) []byte {
		start := testHeapStart + int(cluster-2)*testClusterSize
		return img[start : start+testClusterSize]
	}

	// cluster 2: allocation bitmap (all clusters free as far as the tests care)
	// cluster 3: up-case table
	upcase := testUpcaseBytes()
	copy(clusterAt(3), upcase)

	// cluster 4: root directory
	root := clusterAt(4)
	n := 0
	for _, e := range [][]byte{
		testLabelEntry("Test image"),
		testBitmapEntry(2, (testClusterCount+7)/8),
		testUpcaseEntry(checksum32(upcase), 3, uint64(len(upcase))),
		testGUIDEntry(testGUID),
		testEntrySet("Report.TXT", attrArchive, 5, uint64(len(testFile1Data)), uint64(len(testFile1Data)), false),
		testEntrySet("dir1", attrDirectory, 6, testClusterSize, testClusterSize, false),
		testEntrySet(testLongName, attrArchive, 0, 0, 0, false),
		testEntrySet("big.bin", attrArchive, 8, uint64(len(testBigData)), uint64(len(testBigData)), false),
	} {
		n += copy(root[n:], e)
	}

	// cluster 5: Report.TXT content
	copy(clusterAt(5), testFile1Data)

	// cluster 6: dir1 directory
	dir1 := clusterAt(6)
	copy(dir1, testEntrySet("file2", attrArchive, 7, uint64(len(testFile2Data)), uint64(len(testFile2Data)), true))

	// cluster 7: file2 content
	copy(clusterAt(7), testFile2Data)

	// clusters 8, 10, 12: big.bin content
	copy(clusterAt(8), testBigData[:testClusterSize])
	copy(clusterAt(10), testBigData[testClusterSize:2*testClusterSize])
	copy(clusterAt(12), testBigData[2*testClusterSize:])

	return img
}

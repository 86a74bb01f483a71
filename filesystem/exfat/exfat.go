// Package exfat provides a read-only driver for the exFAT filesystem,
// reading directly from a disk image or partition without any operating
// system filesystem support. It follows the published exFAT specification at
// https://learn.microsoft.com/en-us/windows/win32/fileio/exfat-specification
package exfat

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/diskfs/go-exfat/backend"
	"github.com/diskfs/go-exfat/filesystem"
	"github.com/google/uuid"
)

// The closed set of failure kinds a caller needs to tell apart: a volume that
// is not exFAT at all, one written by a future revision, and one whose
// structures are damaged. Provider I/O errors pass through wrapped, lookups
// that find nothing wrap fs.ErrNotExist.
var (
	ErrNotExfat            = errors.New("no exFAT filesystem signature found")
	ErrUnsupportedRevision = errors.New("unsupported exFAT revision")
	ErrCorruptVolume       = errors.New("corrupt exFAT volume")
)

// FileSystem implements filesystem.FileSystem for exFAT. All mutating
// methods return filesystem.ErrReadonlyFilesystem: this driver interprets the
// on-disk structures and never changes them.
type FileSystem struct {
	bootSector      bootSector
	table           table
	upcase          *upcaseTable
	root            []*directoryEntry
	label           string
	volumeGUID      *uuid.UUID
	bitmaps         []allocationBitmap
	bytesPerCluster int64
	dataStart       int64 // byte offset of the cluster heap, relative to start
	start           int64 // byte offset of the filesystem within the backend
	size            int64 // size in bytes of the filesystem, or 0 if unknown
	backend         backend.Storage
}

// Read opens an exFAT filesystem on the given backend storage.
//
// size is the size in bytes of the area the filesystem may read, or 0 for no
// limit; start is the byte offset of the filesystem within the storage, e.g.
// the start of a partition; blocksize is the logical sector size of the
// backing device, or 0 to accept whatever the boot sector declares.
func Read(b backend.Storage, size, start, blocksize int64) (*FileSystem, error) {
	if start < 0 {
		return nil, fmt.Errorf("cannot read exFAT filesystem at negative offset %d", start)
	}

	boot := make([]byte, bootSectorSize)
	if _, err := b.ReadAt(boot, start); err != nil {
		return nil, fmt.Errorf("could not read boot sector: %w", err)
	}
	bs, err := bootSectorFromBytes(boot)
	if err != nil {
		return nil, err
	}
	if blocksize != 0 && blocksize != bs.bytesPerSector() {
		return nil, fmt.Errorf("boot sector declares %d bytes per sector, backing device uses %d: %w", bs.bytesPerSector(), blocksize, ErrCorruptVolume)
	}

	fsm := &FileSystem{
		bootSector:      *bs,
		bytesPerCluster: bs.bytesPerCluster(),
		dataStart:       int64(bs.clusterHeapOffset) << bs.bytesPerSectorShift,
		start:           start,
		size:            size,
		backend:         b,
	}
	if size > 0 {
		heapEnd := fsm.dataStart + int64(bs.clusterCount)*fsm.bytesPerCluster
		if heapEnd > size {
			return nil, fmt.Errorf("cluster heap ends at byte %d beyond the %d byte extent: %w", heapEnd, size, ErrCorruptVolume)
		}
	}

	// read the active FAT in full; it is the only piece cached besides the
	// up-case table
	activeFat := bs.activeFat()
	if activeFat != 0 && bs.numberOfFats < 2 {
		return nil, fmt.Errorf("active FAT is %d but the volume has a single FAT: %w", activeFat, ErrCorruptVolume)
	}
	fatStart := (int64(bs.fatOffset) + int64(activeFat)*int64(bs.fatLength)) << bs.bytesPerSectorShift
	fatSize := (int64(bs.clusterCount) + 2) * 4
	if fatSize > int64(bs.fatLength)<<bs.bytesPerSectorShift {
		return nil, fmt.Errorf("FatLength of %d sectors cannot hold %d cluster entries: %w", bs.fatLength, bs.clusterCount+2, ErrCorruptVolume)
	}
	fatBytes := make([]byte, fatSize)
	if _, err := b.ReadAt(fatBytes, start+fatStart); err != nil {
		return nil, fmt.Errorf("could not read FAT region: %w", err)
	}
	fsm.table = *tableFromBytes(fatBytes, bs.clusterCount)

	// the root directory never sets NoFatChain and carries no length; its
	// extent is whatever the FAT chain says
	rootClusters, err := fsm.table.chain(bs.rootDirectoryCluster)
	if err != nil {
		return nil, fmt.Errorf("could not resolve root directory: %w", err)
	}
	rootBytes := make([]byte, int64(len(rootClusters))*fsm.bytesPerCluster)
	if _, err := fsm.readClusters(rootClusters, rootBytes, 0); err != nil {
		return nil, fmt.Errorf("could not read root directory: %w", err)
	}
	root, err := parseDirEntries(rootBytes, true)
	if err != nil {
		return nil, fmt.Errorf("could not parse root directory: %w", err)
	}

	if len(root.bitmaps) != int(bs.numberOfFats) {
		return nil, fmt.Errorf("volume has %d FATs but %d allocation bitmap entries: %w", bs.numberOfFats, len(root.bitmaps), ErrCorruptVolume)
	}
	if root.upcase == nil {
		return nil, fmt.Errorf("no up-case table entry in the root directory: %w", ErrCorruptVolume)
	}

	upcase, err := fsm.readUpcaseTable(root.upcase)
	if err != nil {
		return nil, err
	}

	fsm.upcase = upcase
	fsm.root = root.entries
	fsm.label = root.label
	fsm.volumeGUID = root.volumeGUID
	fsm.bitmaps = root.bitmaps
	return fsm, nil
}

// Type returns the type code for the filesystem. Always returns filesystem.TypeExfat
func (fsm *FileSystem) Type() filesystem.Type {
	return filesystem.TypeExfat
}

// Label get the volume label, or "" if none was set
func (fsm *FileSystem) Label() string {
	return fsm.label
}

// VolumeGUID returns the volume GUID, or uuid.Nil if the optional volume GUID
// entry is absent
func (fsm *FileSystem) VolumeGUID() uuid.UUID {
	if fsm.volumeGUID == nil {
		return uuid.Nil
	}
	return *fsm.volumeGUID
}

// VolumeSerialNumber returns the 32-bit serial number from the boot sector
func (fsm *FileSystem) VolumeSerialNumber() uint32 {
	return fsm.bootSector.volumeSerialNumber
}

// Mkdir make a directory - unsupported, read-only filesystem
func (fsm *FileSystem) Mkdir(string) error {
	return filesystem.ErrReadonlyFilesystem
}

// Rename rename a file or directory - unsupported, read-only filesystem
func (fsm *FileSystem) Rename(string, string) error {
	return filesystem.ErrReadonlyFilesystem
}

// Remove remove a file or directory - unsupported, read-only filesystem
func (fsm *FileSystem) Remove(string) error {
	return filesystem.ErrReadonlyFilesystem
}

// SetLabel change the volume label - unsupported, read-only filesystem
func (fsm *FileSystem) SetLabel(string) error {
	return filesystem.ErrReadonlyFilesystem
}

// ReadDir return the contents of a given directory in a given filesystem.
//
// Returns a slice of os.FileInfo with all of the entries in the directory.
// Lookups along the path are case-insensitive via the volume's up-case table;
// the returned entries keep their stored case.
func (fsm *FileSystem) ReadDir(p string) ([]os.FileInfo, error) {
	dir, err := fsm.readDir(p)
	if err != nil {
		return nil, fmt.Errorf("error reading directory %s: %w", p, err)
	}
	ret := make([]os.FileInfo, len(dir.entries))
	for i, e := range dir.entries {
		ret[i] = e
	}
	return ret, nil
}

// OpenFile returns an io.ReadSeekCloser for the given path. The file must
// exist and flag must describe a read-only open: this is a read-only driver,
// so os.O_WRONLY, os.O_RDWR, os.O_CREATE, os.O_APPEND and os.O_TRUNC all fail
// with filesystem.ErrReadonlyFilesystem.
func (fsm *FileSystem) OpenFile(p string, flag int) (filesystem.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_TRUNC) != 0 {
		return nil, filesystem.ErrReadonlyFilesystem
	}

	dirPath, filename := path.Split(p)
	dir, err := fsm.readDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("could not read directory entries for %s: %w", dirPath, err)
	}

	entry := dir.find(filename, fsm.upcase)
	if entry == nil {
		return nil, fmt.Errorf("target file %s does not exist: %w", p, fs.ErrNotExist)
	}
	if entry.isSubdirectory {
		return nil, fmt.Errorf("cannot open directory %s as file", p)
	}

	clusters, err := fsm.clusterList(entry)
	if err != nil {
		return nil, fmt.Errorf("could not resolve clusters for %s: %w", p, err)
	}
	return &File{
		directoryEntry: entry,
		clusters:       clusters,
		filesystem:     fsm,
	}, nil
}

// readDir walks the path from the root, folding each component through the
// up-case table
func (fsm *FileSystem) readDir(p string) (*Directory, error) {
	dir := &Directory{
		directoryEntry: directoryEntry{
			filename:       "/",
			isSubdirectory: true,
		},
		entries: fsm.root,
	}
	for _, component := range strings.Split(path.Clean(p), "/") {
		if component == "" || component == "." {
			continue
		}
		entry := dir.find(component, fsm.upcase)
		if entry == nil || !entry.isSubdirectory {
			return nil, fmt.Errorf("path %s not found: %w", p, fs.ErrNotExist)
		}
		sub, err := fsm.readDirEntry(entry)
		if err != nil {
			return nil, err
		}
		dir = sub
	}
	return dir, nil
}

// readDirEntry loads and parses one subdirectory's entry stream
func (fsm *FileSystem) readDirEntry(entry *directoryEntry) (*Directory, error) {
	clusters, err := fsm.clusterList(entry)
	if err != nil {
		return nil, fmt.Errorf("could not resolve clusters for directory %s: %w", entry.filename, err)
	}
	b := make([]byte, int64(len(clusters))*fsm.bytesPerCluster)
	if _, err := fsm.readClusters(clusters, b, 0); err != nil {
		return nil, fmt.Errorf("could not read directory %s: %w", entry.filename, err)
	}
	parsed, err := parseDirEntries(b, false)
	if err != nil {
		return nil, fmt.Errorf("could not parse directory %s: %w", entry.filename, err)
	}
	return &Directory{
		directoryEntry: *entry,
		entries:        parsed.entries,
	}, nil
}

// clusterList resolves the ordered clusters of one item, honoring its
// allocation mode: a contiguous run when NoFatChain is set, a FAT walk
// otherwise. An empty item (first cluster 0) has no clusters.
func (fsm *FileSystem) clusterList(entry *directoryEntry) ([]uint32, error) {
	if entry.firstCluster == 0 {
		return nil, nil
	}
	if entry.noFatChain {
		return contiguousRun(entry.firstCluster, entry.dataLength, fsm.bytesPerCluster, fsm.table.maxCluster)
	}
	clusters, err := fsm.table.chain(entry.firstCluster)
	if err != nil {
		return nil, err
	}
	if entry.dataLength > uint64(len(clusters))*uint64(fsm.bytesPerCluster) {
		return nil, fmt.Errorf("data length %d exceeds the %d allocated clusters: %w", entry.dataLength, len(clusters), ErrCorruptVolume)
	}
	return clusters, nil
}

// readClusters fills p starting at the given byte offset into the item's
// data, stitching together cluster-sized reads in chain order
func (fsm *FileSystem) readClusters(clusters []uint32, p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("negative read offset %d", offset)
	}
	total := 0
	for len(p) > total {
		index := offset / fsm.bytesPerCluster
		if index >= int64(len(clusters)) {
			break
		}
		cluster := clusters[index]
		if cluster < firstDataCluster || cluster > fsm.table.maxCluster {
			return total, fmt.Errorf("cluster %d out of range: %w", cluster, ErrCorruptVolume)
		}
		intra := offset % fsm.bytesPerCluster
		toRead := fsm.bytesPerCluster - intra
		if remaining := int64(len(p) - total); toRead > remaining {
			toRead = remaining
		}
		diskOffset := fsm.start + fsm.dataStart + int64(cluster-firstDataCluster)*fsm.bytesPerCluster + intra
		if _, err := fsm.backend.ReadAt(p[total:total+int(toRead)], diskOffset); err != nil {
			return total, fmt.Errorf("could not read cluster %d: %w", cluster, err)
		}
		total += int(toRead)
		offset += toRead
	}
	return total, nil
}

// readUpcaseTable loads the up-case table over its own cluster chain and
// verifies the stored table checksum
func (fsm *FileSystem) readUpcaseTable(ref *upcaseRef) (*upcaseTable, error) {
	clusters, err := fsm.clusterList(&directoryEntry{
		filename:     "up-case table",
		firstCluster: ref.firstCluster,
		dataLength:   ref.dataLength,
	})
	if err != nil {
		return nil, fmt.Errorf("could not resolve up-case table clusters: %w", err)
	}
	if ref.dataLength == 0 || ref.dataLength > uint64(len(clusters))*uint64(fsm.bytesPerCluster) {
		return nil, fmt.Errorf("up-case table data length %d does not fit its %d clusters: %w", ref.dataLength, len(clusters), ErrCorruptVolume)
	}
	b := make([]byte, ref.dataLength)
	if _, err := fsm.readClusters(clusters, b, 0); err != nil {
		return nil, fmt.Errorf("could not read up-case table: %w", err)
	}
	return upcaseTableFromBytes(b, ref.checksum)
}

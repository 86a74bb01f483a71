package exfat

import (
	"encoding/binary"
	"fmt"
)

const (
	// cluster 0 and 1 are reserved; cluster 2 maps to the start of the cluster heap
	firstDataCluster uint32 = 2
	badClusterMarker uint32 = 0xfffffff7
	endOfChainMarker uint32 = 0xffffffff
)

// table is the in-memory copy of the active FAT. exFAT keeps a single flat
// array of 32-bit little-endian cluster links; entries 0 and 1 carry the
// media descriptor and a constant, data clusters start at index 2.
type table struct {
	clusters   []uint32
	maxCluster uint32 // highest addressable cluster, clusterCount+1
}

func tableFromBytes(b []byte, clusterCount uint32) *table {
	t := table{
		clusters:   make([]uint32, clusterCount+2),
		maxCluster: clusterCount + 1,
	}
	for i := range t.clusters {
		t.clusters[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return &t
}

func (t *table) equal(a *table) bool {
	if (t == nil && a != nil) || (t != nil && a == nil) {
		return false
	}
	if t == nil && a == nil {
		return true
	}
	if t.maxCluster != a.maxCluster || len(t.clusters) != len(a.clusters) {
		return false
	}
	for i, c := range t.clusters {
		if a.clusters[i] != c {
			return false
		}
	}
	return true
}

// chain follows FAT links from the given cluster until the end-of-chain
// marker. The chain is bounded by the total cluster count, so a link loop in
// a corrupted FAT surfaces as an error instead of spinning forever.
func (t *table) chain(first uint32) ([]uint32, error) {
	if first < firstDataCluster || first > t.maxCluster {
		return nil, fmt.Errorf("invalid start cluster %d: %w", first, ErrCorruptVolume)
	}
	var clusters []uint32
	cluster := first
	for {
		if uint32(len(clusters)) > t.maxCluster {
			return nil, fmt.Errorf("cluster chain from %d exceeds volume cluster count %d, assuming a loop: %w", first, t.maxCluster-1, ErrCorruptVolume)
		}
		clusters = append(clusters, cluster)
		next := t.clusters[cluster]
		switch {
		case next == endOfChainMarker:
			return clusters, nil
		case next == badClusterMarker:
			return nil, fmt.Errorf("cluster chain from %d links to a bad cluster after %d clusters: %w", first, len(clusters), ErrCorruptVolume)
		case next < firstDataCluster || next > t.maxCluster:
			return nil, fmt.Errorf("cluster chain from %d links to invalid cluster %d: %w", first, next, ErrCorruptVolume)
		}
		cluster = next
	}
}

// contiguousRun builds the cluster list for an item whose NoFatChain flag is
// set: dataLength bytes allocated as consecutive clusters from first, with no
// FAT lookups at all.
func contiguousRun(first uint32, dataLength uint64, bytesPerCluster int64, maxCluster uint32) ([]uint32, error) {
	if first < firstDataCluster || first > maxCluster {
		return nil, fmt.Errorf("invalid start cluster %d: %w", first, ErrCorruptVolume)
	}
	if dataLength == 0 {
		return nil, fmt.Errorf("contiguous allocation at cluster %d has zero data length: %w", first, ErrCorruptVolume)
	}
	// bounded before the ceiling divide, which would overflow for a data
	// length near 2^64 and yield an empty run
	if dataLength > uint64(maxCluster)*uint64(bytesPerCluster) {
		return nil, fmt.Errorf("contiguous allocation of %d bytes at cluster %d exceeds the volume size: %w", dataLength, first, ErrCorruptVolume)
	}
	count := (dataLength + uint64(bytesPerCluster) - 1) / uint64(bytesPerCluster)
	last := uint64(first) + count - 1
	if last > uint64(maxCluster) {
		return nil, fmt.Errorf("contiguous allocation %d-%d runs past last cluster %d: %w", first, last, maxCluster, ErrCorruptVolume)
	}
	clusters := make([]uint32, 0, count)
	for c := first; uint64(c) <= last; c++ {
		clusters = append(clusters, c)
	}
	return clusters, nil
}

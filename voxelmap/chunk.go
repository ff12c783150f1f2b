package voxelmap

import (
	"encoding/binary"
	"math"
	"time"
)

// MapChunk is the storage for a single region: one byte buffer per layout layer,
// each dimensioned by the layer's sub-sampled extent and initialized by
// replicating the layer's default fill pattern.
//
// Chunks are created lazily on first write and destroyed by explicit removal or
// expiry. A chunk never outlives its map; handles into a chunk must not outlive
// the chunk.
type MapChunk struct {
	region RegionCoord

	// voxelBytes holds one backing array per layer, indexed by layer index.
	voxelBytes [][]byte

	allocatedAt time.Time
	touchedAt   time.Time

	// dirtyStamp is the map stamp at the most recent write; touchedStamps track
	// the same per layer.
	dirtyStamp    uint64
	touchedStamps []uint64

	// firstValidIndex and lastValidIndex bound the linear voxel indices ever
	// written at full resolution. They are advisory iteration hints only.
	firstValidIndex int
	lastValidIndex  int
}

func newMapChunk(region RegionCoord, layout *MapLayout, regionDims [3]int, now time.Time) *MapChunk {
	chunk := &MapChunk{
		region:          region,
		voxelBytes:      make([][]byte, layout.LayerCount()),
		allocatedAt:     now,
		touchedAt:       now,
		touchedStamps:   make([]uint64, layout.LayerCount()),
		firstValidIndex: regionDims[0] * regionDims[1] * regionDims[2],
		lastValidIndex:  -1,
	}
	for i := 0; i < layout.LayerCount(); i++ {
		layer := layout.Layer(i)
		buf := make([]byte, layer.LayerByteSize(regionDims))
		fillLayerBytes(buf, layer.VoxelLayout().fillPattern())
		chunk.voxelBytes[i] = buf
	}
	return chunk
}

// fillLayerBytes replicates the per record fill pattern across the buffer. An
// all zero pattern leaves the freshly allocated buffer untouched.
func fillLayerBytes(buf, pattern []byte) {
	zero := true
	for _, b := range pattern {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return
	}
	for off := 0; off < len(buf); off += len(pattern) {
		copy(buf[off:], pattern)
	}
}

// Region returns the chunk's region coordinate.
func (c *MapChunk) Region() RegionCoord { return c.region }

// AllocatedAt returns the chunk creation time.
func (c *MapChunk) AllocatedAt() time.Time { return c.allocatedAt }

// TouchedAt returns the time of the most recent write to the chunk.
func (c *MapChunk) TouchedAt() time.Time { return c.touchedAt }

// DirtyStamp returns the map stamp of the most recent write.
func (c *MapChunk) DirtyStamp() uint64 { return c.dirtyStamp }

// TouchedStamp returns the map stamp of the most recent write to a layer.
func (c *MapChunk) TouchedStamp(layerIndex int) uint64 {
	if layerIndex < 0 || layerIndex >= len(c.touchedStamps) {
		return 0
	}
	return c.touchedStamps[layerIndex]
}

// FirstValidIndex returns the smallest linear voxel index ever written, or the
// region volume when the chunk has never been written.
func (c *MapChunk) FirstValidIndex() int { return c.firstValidIndex }

// LastValidIndex returns the largest linear voxel index ever written, or -1.
func (c *MapChunk) LastValidIndex() int { return c.lastValidIndex }

// HasValidVoxels reports whether any voxel in the chunk has ever been written.
func (c *MapChunk) HasValidVoxels() bool { return c.lastValidIndex >= 0 }

// LayerBytes exposes the raw backing array of a layer, or nil when the layer
// index is out of range.
func (c *MapChunk) LayerBytes(layerIndex int) []byte {
	if layerIndex < 0 || layerIndex >= len(c.voxelBytes) {
		return nil
	}
	return c.voxelBytes[layerIndex]
}

// updateValidBounds widens the advisory valid index hints to include index.
func (c *MapChunk) updateValidBounds(index int) {
	if index < c.firstValidIndex {
		c.firstValidIndex = index
	}
	if index > c.lastValidIndex {
		c.lastValidIndex = index
	}
}

// touchLayer records a write to a layer at the map stamp and wall time.
func (c *MapChunk) touchLayer(layerIndex int, stamp uint64, now time.Time) {
	c.dirtyStamp = stamp
	if layerIndex >= 0 && layerIndex < len(c.touchedStamps) {
		c.touchedStamps[layerIndex] = stamp
	}
	c.touchedAt = now
}

// layerRecordOffset returns the byte offset of the record for the voxel at local
// coordinate local within a layer, applying the layer's sub-sampling.
func layerRecordOffset(layer *MapLayer, local LocalCoord, regionDims [3]int) int {
	dims := layer.Dimensions(regionDims)
	x := int(local[0]) >> layer.subsampling
	y := int(local[1]) >> layer.subsampling
	z := int(local[2]) >> layer.subsampling
	return (x + y*dims[0] + z*dims[0]*dims[1]) * layer.VoxelByteSize()
}

// Raw little endian accessors over layer buffers.

func readFloat32(buf []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[offset:]))
}

func writeFloat32(buf []byte, offset int, value float32) {
	binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(value))
}

func readUint32(buf []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(buf[offset:])
}

func writeUint32(buf []byte, offset int, value uint32) {
	binary.LittleEndian.PutUint32(buf[offset:], value)
}

func readUint16(buf []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(buf[offset:])
}

func writeUint16(buf []byte, offset int, value uint16) {
	binary.LittleEndian.PutUint16(buf[offset:], value)
}

package voxelmap

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// RegionCoord identifies a region (chunk) of the map by its integer grid coordinate.
type RegionCoord [3]int16

// LocalCoord addresses a voxel within a region. Each component must be below the
// map's region voxel dimension on that axis.
type LocalCoord [3]uint8

// Key is the address of a single voxel: the owning region plus the local coordinate
// within that region. Keys are comparable and can be used directly as map keys.
type Key struct {
	Region RegionCoord
	Local  LocalCoord
}

const nullRegionComponent = math.MinInt16

// nullKey is the distinguished "no voxel" marker.
var nullKey = Key{
	Region: RegionCoord{nullRegionComponent, nullRegionComponent, nullRegionComponent},
	Local:  LocalCoord{math.MaxUint8, math.MaxUint8, math.MaxUint8},
}

// NullKey returns the sentinel key denoting "no voxel".
func NullKey() Key {
	return nullKey
}

// IsNull reports whether k is the null key sentinel.
func (k Key) IsNull() bool {
	return k == nullKey
}

// Less orders keys region-major, then by local coordinate, comparing axes z, y, x
// with z most significant so that iteration order matches linear voxel indexing.
func (k Key) Less(other Key) bool {
	for i := 2; i >= 0; i-- {
		if k.Region[i] != other.Region[i] {
			return k.Region[i] < other.Region[i]
		}
	}
	for i := 2; i >= 0; i-- {
		if k.Local[i] != other.Local[i] {
			return k.Local[i] < other.Local[i]
		}
	}
	return false
}

// Hash folds the key into a 64 bit value suitable for external hash tables.
func (k Key) Hash() uint64 {
	h := uint64(uint16(k.Region[0]))
	h |= uint64(uint16(k.Region[1])) << 16
	h |= uint64(uint16(k.Region[2])) << 32
	h = h*0x9e3779b97f4a7c15 + 1
	h ^= uint64(k.Local[0]) | uint64(k.Local[1])<<8 | uint64(k.Local[2])<<16
	return h
}

func (k Key) String() string {
	if k.IsNull() {
		return "Key(null)"
	}
	return fmt.Sprintf("Key(%d,%d,%d : %d,%d,%d)",
		k.Region[0], k.Region[1], k.Region[2], k.Local[0], k.Local[1], k.Local[2])
}

// stepKey advances k by delta voxels along axis, carrying into the region
// coordinate whenever the local coordinate leaves [0, dim).
func stepKey(k Key, axis int, delta int, dims [3]int) Key {
	dim := dims[axis]
	local := int(k.Local[axis]) + delta
	regionShift := local / dim
	local -= regionShift * dim
	if local < 0 {
		local += dim
		regionShift--
	}
	k.Region[axis] += int16(regionShift)
	k.Local[axis] = uint8(local)
	return k
}

// floorDiv returns the floor of a/b for positive b.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// VoxelKey maps a world point to the key of the enclosing voxel. Cells are half
// open on the positive side: a point exactly on an upper boundary belongs to the
// next voxel.
func (m *OccupancyMap) VoxelKey(p r3.Vector) Key {
	var k Key
	coords := [3]float64{p.X, p.Y, p.Z}
	for i := 0; i < 3; i++ {
		global := int64(math.Floor((coords[i] - m.originArr[i]) / m.resolution))
		region := floorDiv(global, int64(m.regionDims[i]))
		k.Region[i] = int16(region)
		k.Local[i] = uint8(global - region*int64(m.regionDims[i]))
	}
	return k
}

// VoxelCentre returns the world space centre of the voxel addressed by k.
func (m *OccupancyMap) VoxelCentre(k Key) r3.Vector {
	var centre [3]float64
	for i := 0; i < 3; i++ {
		global := int64(k.Region[i])*int64(m.regionDims[i]) + int64(k.Local[i])
		centre[i] = m.originArr[i] + (float64(global)+0.5)*m.resolution
	}
	return r3.Vector{X: centre[0], Y: centre[1], Z: centre[2]}
}

// RegionOrigin returns the world position of the minimum corner of the region.
func (m *OccupancyMap) RegionOrigin(region RegionCoord) r3.Vector {
	var origin [3]float64
	for i := 0; i < 3; i++ {
		origin[i] = m.originArr[i] + float64(int64(region[i])*int64(m.regionDims[i]))*m.resolution
	}
	return r3.Vector{X: origin[0], Y: origin[1], Z: origin[2]}
}

// RegionCentre returns the world space centre of the region.
func (m *OccupancyMap) RegionCentre(region RegionCoord) r3.Vector {
	var centre [3]float64
	for i := 0; i < 3; i++ {
		centre[i] = m.originArr[i] +
			(float64(int64(region[i])*int64(m.regionDims[i]))+0.5*float64(m.regionDims[i]))*m.resolution
	}
	return r3.Vector{X: centre[0], Y: centre[1], Z: centre[2]}
}

// StepKey advances k by delta voxels along axis (0 = x, 1 = y, 2 = z) with carry
// into the region coordinate.
func (m *OccupancyMap) StepKey(k Key, axis, delta int) Key {
	return stepKey(k, axis, delta, m.regionDims)
}

// ValidKey reports whether the local component of k is in range for this map's
// region dimensions.
func (m *OccupancyMap) ValidKey(k Key) bool {
	if k.IsNull() {
		return false
	}
	for i := 0; i < 3; i++ {
		if int(k.Local[i]) >= m.regionDims[i] {
			return false
		}
	}
	return true
}

// voxelIndex returns the linear index of k's local coordinate for a layer at full
// resolution (subsampling 0).
func voxelIndex(k Key, dims [3]int) int {
	return int(k.Local[0]) + int(k.Local[1])*dims[0] + int(k.Local[2])*dims[0]*dims[1]
}

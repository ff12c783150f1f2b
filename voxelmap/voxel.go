package voxelmap

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Voxel is a transient handle to one voxel of the map. A handle borrows the
// map's storage and must not be retained across ExpireRegions,
// RemoveDistanceRegions or map destruction.
type Voxel struct {
	m     *OccupancyMap
	chunk *MapChunk
	key   Key
}

// Key returns the voxel's address.
func (v Voxel) Key() Key { return v.key }

// Chunk returns the owning chunk, or nil when the region is unallocated.
func (v Voxel) Chunk() *MapChunk { return v.chunk }

// Exists reports whether the voxel's region is allocated.
func (v Voxel) Exists() bool { return v.chunk != nil }

// Centre returns the voxel's world space centre.
func (v Voxel) Centre() r3.Vector { return v.m.VoxelCentre(v.key) }

// Occupancy returns the voxel's log-odds occupancy value. Voxels in
// unallocated regions are unobserved.
func (v Voxel) Occupancy() float32 {
	if v.chunk == nil {
		return UnobservedValue()
	}
	layerIndex := v.m.layout.OccupancyLayer()
	if layerIndex < 0 {
		return UnobservedValue()
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	member := layer.VoxelLayout().Member(0)
	return readFloat32(v.chunk.voxelBytes[layerIndex], offset+member.Offset())
}

// SetOccupancy writes the voxel's log-odds occupancy value, stamping the chunk.
// Fails when the region is unallocated or the occupancy layer is absent.
func (v Voxel) SetOccupancy(value float32) error {
	if v.chunk == nil {
		return errors.Wrap(ErrInvalidKey, "voxel region not allocated")
	}
	layerIndex := v.m.layout.OccupancyLayer()
	if layerIndex < 0 {
		return errors.Wrap(ErrLayerNotFound, OccupancyLayerName)
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	member := layer.VoxelLayout().Member(0)
	writeFloat32(v.chunk.voxelBytes[layerIndex], offset+member.Offset(), value)
	v.chunk.updateValidBounds(voxelIndex(v.key, v.m.regionDims))
	v.chunk.touchLayer(layerIndex, v.m.touch(), v.m.clock.Now())
	return nil
}

// OccupancyType classifies the voxel against the map's occupancy threshold.
func (v Voxel) OccupancyType() OccupancyType {
	return ClassifyOccupancy(v.Occupancy(), v.m.cfg.OccupancyThreshold)
}

// IsOccupied reports whether the voxel value meets the occupancy threshold.
func (v Voxel) IsOccupied() bool { return v.OccupancyType() == Occupied }

// IsFree reports whether the voxel has been observed below the threshold.
func (v Voxel) IsFree() bool { return v.OccupancyType() == Free }

// IsUnobserved reports whether the voxel holds no evidence.
func (v Voxel) IsUnobserved() bool { return v.OccupancyType() == Unobserved }

// Mean returns the voxel's refined sub-voxel mean position and sample count.
// Falls back to the voxel centre when the mean layer is absent or unsampled.
func (v Voxel) Mean() (r3.Vector, uint32) {
	centre := v.Centre()
	layerIndex := v.m.layout.MeanLayer()
	if v.chunk == nil || layerIndex < 0 {
		return centre, 0
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	packed := readUint32(buf, offset)
	count := readUint32(buf, offset+4)
	if count == 0 {
		return centre, 0
	}
	return centre.Add(unpackSubVoxelOffset(packed, v.m.resolution)), count
}

// Traversal returns the accumulated ray length through the voxel, or zero when
// the traversal layer is absent.
func (v Voxel) Traversal() float32 {
	layerIndex := v.m.layout.TraversalLayer()
	if v.chunk == nil || layerIndex < 0 {
		return 0
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	return readFloat32(v.chunk.voxelBytes[layerIndex], offset)
}

// HitMissCount returns the voxel's raw hit and miss tallies, or zeros when the
// layer is absent.
func (v Voxel) HitMissCount() (hits, misses uint32) {
	layerIndex := v.m.layout.HitMissCountLayer()
	if v.chunk == nil || layerIndex < 0 {
		return 0, 0
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	return readUint32(buf, offset), readUint32(buf, offset+4)
}

// Clearance returns the distance from the voxel to the nearest occupied voxel
// as computed by an external clearance pass, or -1 when unknown or the layer is
// absent.
func (v Voxel) Clearance() float32 {
	layerIndex := v.m.layout.ClearanceLayer()
	if layerIndex < 0 {
		return -1
	}
	if v.chunk == nil {
		return -1
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	return readFloat32(v.chunk.voxelBytes[layerIndex], offset)
}

// SetClearance writes the voxel's clearance distance.
func (v Voxel) SetClearance(distance float32) error {
	if v.chunk == nil {
		return errors.Wrap(ErrInvalidKey, "voxel region not allocated")
	}
	layerIndex := v.m.layout.ClearanceLayer()
	if layerIndex < 0 {
		return errors.Wrap(ErrLayerNotFound, ClearanceLayerName)
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	writeFloat32(v.chunk.voxelBytes[layerIndex], offset, distance)
	v.chunk.updateValidBounds(voxelIndex(v.key, v.m.regionDims))
	v.chunk.touchLayer(layerIndex, v.m.touch(), v.m.clock.Now())
	return nil
}

// Intensity returns the voxel's sensor intensity mean and variance, or zeros
// when the layer is absent.
func (v Voxel) Intensity() (mean, variance float32) {
	layerIndex := v.m.layout.IntensityLayer()
	if v.chunk == nil || layerIndex < 0 {
		return 0, 0
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	return readFloat32(buf, offset), readFloat32(buf, offset+4)
}

// SetIntensity writes the voxel's sensor intensity statistics.
func (v Voxel) SetIntensity(mean, variance float32) error {
	if v.chunk == nil {
		return errors.Wrap(ErrInvalidKey, "voxel region not allocated")
	}
	layerIndex := v.m.layout.IntensityLayer()
	if layerIndex < 0 {
		return errors.Wrap(ErrLayerNotFound, IntensityLayerName)
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	writeFloat32(buf, offset, mean)
	writeFloat32(buf, offset+4, variance)
	v.chunk.updateValidBounds(voxelIndex(v.key, v.m.regionDims))
	v.chunk.touchLayer(layerIndex, v.m.touch(), v.m.clock.Now())
	return nil
}

// SemanticLabel is one voxel record of the semantic layer.
type SemanticLabel struct {
	Label       uint16
	StateLabel  uint16
	Probability float32
}

// Semantic returns the voxel's semantic label record, or the zero record when
// the layer is absent.
func (v Voxel) Semantic() SemanticLabel {
	layerIndex := v.m.layout.SemanticLayer()
	if v.chunk == nil || layerIndex < 0 {
		return SemanticLabel{}
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	return SemanticLabel{
		Label:       readUint16(buf, offset),
		StateLabel:  readUint16(buf, offset+2),
		Probability: readFloat32(buf, offset+4),
	}
}

// SetSemantic writes the voxel's semantic label record.
func (v Voxel) SetSemantic(label SemanticLabel) error {
	if v.chunk == nil {
		return errors.Wrap(ErrInvalidKey, "voxel region not allocated")
	}
	layerIndex := v.m.layout.SemanticLayer()
	if layerIndex < 0 {
		return errors.Wrap(ErrLayerNotFound, SemanticLayerName)
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	writeUint16(buf, offset, label.Label)
	writeUint16(buf, offset+2, label.StateLabel)
	writeFloat32(buf, offset+4, label.Probability)
	v.chunk.updateValidBounds(voxelIndex(v.key, v.m.regionDims))
	v.chunk.touchLayer(layerIndex, v.m.touch(), v.m.clock.Now())
	return nil
}

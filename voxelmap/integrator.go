package voxelmap

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// RayFlags adjust how IntegrateRays applies updates along each ray.
type RayFlags uint32

// Ray integration flags. Flags combine with bitwise or.
const (
	// RayFlagStopOnFirstOccupied aborts a ray at the first already occupied
	// voxel encountered before the endpoint, without updating it.
	RayFlagStopOnFirstOccupied RayFlags = 1 << iota
	// RayFlagClearOnly applies only miss updates; the endpoint never receives a
	// hit.
	RayFlagClearOnly
	// RayFlagEndPointAsFree treats the endpoint voxel as traversed free space
	// rather than a sample hit.
	RayFlagEndPointAsFree
	// RayFlagExcludeOrigin skips the origin voxel in miss updates.
	RayFlagExcludeOrigin
	// RayFlagExcludeSample leaves the endpoint voxel untouched.
	RayFlagExcludeSample
	// RayFlagExcludeUnobserved only modifies voxels already holding a value,
	// never allocating chunks or observing new voxels.
	RayFlagExcludeUnobserved

	// RayFlagsNone is the default integration behaviour.
	RayFlagsNone RayFlags = 0
)

func (f RayFlags) has(flag RayFlags) bool { return f&flag != 0 }

// occupancyAccess caches the occupancy layer's addressing for one integration
// call, alongside a one slot MRU chunk cache so sequential steps within the
// same region skip the region table.
type occupancyAccess struct {
	m *OccupancyMap

	occupancyLayer *MapLayer
	occupancyIndex int
	traversalLayer *MapLayer
	traversalIndex int
	meanLayer      *MapLayer
	meanIndex      int
	hitMissLayer   *MapLayer
	hitMissIndex   int

	cachedRegion RegionCoord
	cachedChunk  *MapChunk
	cacheValid   bool
}

func newOccupancyAccess(m *OccupancyMap) (*occupancyAccess, error) {
	layout := m.layout
	access := &occupancyAccess{
		m:              m,
		occupancyIndex: layout.OccupancyLayer(),
		traversalIndex: layout.TraversalLayer(),
		meanIndex:      layout.MeanLayer(),
		hitMissIndex:   layout.HitMissCountLayer(),
	}
	if access.occupancyIndex < 0 {
		return nil, errors.Wrap(ErrLayerNotFound, OccupancyLayerName)
	}
	access.occupancyLayer = layout.Layer(access.occupancyIndex)
	if access.traversalIndex >= 0 {
		access.traversalLayer = layout.Layer(access.traversalIndex)
	}
	if access.meanIndex >= 0 {
		access.meanLayer = layout.Layer(access.meanIndex)
	}
	if access.hitMissIndex >= 0 {
		access.hitMissLayer = layout.Layer(access.hitMissIndex)
	}
	return access, nil
}

func (a *occupancyAccess) chunk(region RegionCoord, create bool) *MapChunk {
	if a.cacheValid && a.cachedRegion == region && a.cachedChunk != nil {
		return a.cachedChunk
	}
	chunk := a.m.Region(region, create)
	if chunk != nil {
		a.cachedRegion = region
		a.cachedChunk = chunk
		a.cacheValid = true
	}
	return chunk
}

func (a *occupancyAccess) occupancy(chunk *MapChunk, local LocalCoord) float32 {
	offset := layerRecordOffset(a.occupancyLayer, local, a.m.regionDims)
	return readFloat32(chunk.voxelBytes[a.occupancyIndex], offset)
}

func (a *occupancyAccess) setOccupancy(chunk *MapChunk, key Key, value float32) {
	offset := layerRecordOffset(a.occupancyLayer, key.Local, a.m.regionDims)
	writeFloat32(chunk.voxelBytes[a.occupancyIndex], offset, value)
	chunk.updateValidBounds(voxelIndex(key, a.m.regionDims))
	chunk.touchLayer(a.occupancyIndex, a.m.touch(), a.m.clock.Now())
}

// adjustValue applies a clamped log-odds increment, treating unobserved as zero.
func (a *occupancyAccess) adjustValue(current, delta float32) float32 {
	cfg := &a.m.cfg
	if IsUnobserved(current) {
		current = 0
	} else if current < cfg.MinValue {
		current = cfg.MinValue
	}
	value := current + delta
	if value < cfg.MinValue {
		value = cfg.MinValue
	}
	if value > cfg.MaxValue {
		value = cfg.MaxValue
	}
	return value
}

func (a *occupancyAccess) addTraversal(chunk *MapChunk, key Key, length float64) {
	if a.traversalLayer == nil || length <= 0 {
		return
	}
	offset := layerRecordOffset(a.traversalLayer, key.Local, a.m.regionDims)
	buf := chunk.voxelBytes[a.traversalIndex]
	writeFloat32(buf, offset, readFloat32(buf, offset)+float32(length))
	chunk.touchLayer(a.traversalIndex, a.m.touch(), a.m.clock.Now())
}

func (a *occupancyAccess) countHitMiss(chunk *MapChunk, key Key, hit bool) {
	if a.hitMissLayer == nil {
		return
	}
	offset := layerRecordOffset(a.hitMissLayer, key.Local, a.m.regionDims)
	if !hit {
		offset += 4
	}
	buf := chunk.voxelBytes[a.hitMissIndex]
	writeUint32(buf, offset, readUint32(buf, offset)+1)
	chunk.touchLayer(a.hitMissIndex, a.m.touch(), a.m.clock.Now())
}

func (a *occupancyAccess) updateMean(chunk *MapChunk, key Key, sample r3.Vector) {
	if a.meanLayer == nil {
		return
	}
	offset := layerRecordOffset(a.meanLayer, key.Local, a.m.regionDims)
	buf := chunk.voxelBytes[a.meanIndex]
	packed := readUint32(buf, offset)
	count := readUint32(buf, offset+4)
	packed, count = updateVoxelMean(packed, count, sample, a.m.VoxelCentre(key),
		a.m.resolution, a.m.cfg.SubVoxelWeighting)
	writeUint32(buf, offset, packed)
	writeUint32(buf, offset+4, count)
	chunk.touchLayer(a.meanIndex, a.m.touch(), a.m.clock.Now())
}

// IntegrateRays folds a batch of sensor rays into the map. The rays slice holds
// origin/endpoint pairs and must have even length. Each traversed voxel before
// the endpoint receives a miss update; the endpoint voxel receives a hit unless
// flags direct otherwise. Rays are processed in input order and each ray's
// updates are applied in walk order.
//
// Rays with non-finite coordinates are skipped and reported in the combined
// error; updates already applied for earlier rays remain.
func (m *OccupancyMap) IntegrateRays(rays []r3.Vector, flags RayFlags) error {
	if len(rays)%2 != 0 {
		return errors.Wrapf(ErrInvalidArgument, "ray array length %d is odd", len(rays))
	}
	access, err := newOccupancyAccess(m)
	if err != nil {
		return err
	}

	var rayErrs error
	for i := 0; i < len(rays); i += 2 {
		origin, sample := rays[i], rays[i+1]
		if !vectorFinite(origin) || !vectorFinite(sample) {
			if m.logger != nil {
				m.logger.Debugf("skipping ray %d with non-finite coordinates: %v -> %v", i/2, origin, sample)
			}
			rayErrs = multierr.Append(rayErrs,
				errors.Wrapf(ErrInvalidArgument, "ray %d has non-finite coordinates", i/2))
			continue
		}
		m.integrateRay(access, origin, sample, flags)
	}
	return rayErrs
}

func (m *OccupancyMap) integrateRay(access *occupancyAccess, origin, sample r3.Vector, flags RayFlags) {
	originKey := m.VoxelKey(origin)
	endKey := m.VoxelKey(sample)
	rayLength := sample.Sub(origin).Norm()
	createChunks := !flags.has(RayFlagExcludeUnobserved)

	stopped := false
	sampleEnter := 0.0
	// Walk every voxel before the endpoint, applying miss updates. Coordinates
	// were validated by the caller, so the walk cannot fail.
	goutils.UncheckedError(m.walkSegmentKeys(origin, sample, false, func(key Key, enter, exit float64) bool {
		sampleEnter = exit
		if flags.has(RayFlagExcludeOrigin) && key == originKey {
			return true
		}
		chunk := access.chunk(key.Region, createChunks)
		if chunk == nil {
			return true
		}
		value := access.occupancy(chunk, key.Local)
		if flags.has(RayFlagStopOnFirstOccupied) &&
			ClassifyOccupancy(value, m.cfg.OccupancyThreshold) == Occupied {
			stopped = true
			return false
		}
		if IsUnobserved(value) && flags.has(RayFlagExcludeUnobserved) {
			return true
		}
		access.setOccupancy(chunk, key, access.adjustValue(value, m.cfg.MissValue))
		access.countHitMiss(chunk, key, false)
		access.addTraversal(chunk, key, (exit-enter)*rayLength)
		return true
	}))
	if stopped || flags.has(RayFlagExcludeSample) {
		return
	}

	chunk := access.chunk(endKey.Region, createChunks)
	if chunk == nil {
		return
	}
	value := access.occupancy(chunk, endKey.Local)
	if IsUnobserved(value) && flags.has(RayFlagExcludeUnobserved) {
		return
	}
	asFree := flags.has(RayFlagEndPointAsFree) || flags.has(RayFlagClearOnly)
	if asFree {
		access.setOccupancy(chunk, endKey, access.adjustValue(value, m.cfg.MissValue))
		access.countHitMiss(chunk, endKey, false)
	} else {
		access.setOccupancy(chunk, endKey, access.adjustValue(value, m.cfg.HitValue))
		access.countHitMiss(chunk, endKey, true)
		access.updateMean(chunk, endKey, sample)
	}
	access.addTraversal(chunk, endKey, (1-sampleEnter)*rayLength)
}

package voxelmap

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// walkSegmentKeys traverses the voxels intersected by a world space line segment
// using a 3D digital differential analyser. The traversal is deterministic: the
// step axis is the axis with the smallest accumulated boundary crossing
// parameter, ties broken in axis order x, y, z, so the same segment yields the
// same key sequence on every platform. A point on a voxel boundary belongs to
// the upper voxel; with a negative direction the first boundary crossing then
// happens at parameter zero, stepping immediately into the voxel in the
// direction of travel.

// segmentVisit receives each traversed key with the segment parameter interval
// [enter, exit] in [0, 1] the segment spends inside the voxel. Returning false
// stops the walk.
type segmentVisit func(key Key, enter, exit float64) bool

// walkSegmentKeys walks from start to end, visiting the enclosing voxel of
// start first and the enclosing voxel of end last. Degenerate segments visit a
// single key. With includeEnd false the end voxel is not visited.
func (m *OccupancyMap) walkSegmentKeys(start, end r3.Vector, includeEnd bool, visit segmentVisit) error {
	if !vectorFinite(start) || !vectorFinite(end) {
		return errors.Wrap(ErrInvalidArgument, "segment coordinates must be finite")
	}

	startKey := m.VoxelKey(start)
	endKey := m.VoxelKey(end)
	if startKey == endKey {
		if includeEnd {
			visit(startKey, 0, 1)
		}
		return nil
	}

	startArr := [3]float64{start.X, start.Y, start.Z}
	dir := [3]float64{end.X - start.X, end.Y - start.Y, end.Z - start.Z}

	var step [3]int
	var tMax, tDelta [3]float64
	maxSteps := 0
	for i := 0; i < 3; i++ {
		startGlobal := int64(startKey.Region[i])*int64(m.regionDims[i]) + int64(startKey.Local[i])
		endGlobal := int64(endKey.Region[i])*int64(m.regionDims[i]) + int64(endKey.Local[i])
		maxSteps += int(absInt64(endGlobal - startGlobal))
		switch {
		case dir[i] > 0:
			step[i] = 1
			boundary := m.originArr[i] + float64(startGlobal+1)*m.resolution
			tMax[i] = (boundary - startArr[i]) / dir[i]
			tDelta[i] = m.resolution / dir[i]
		case dir[i] < 0:
			step[i] = -1
			boundary := m.originArr[i] + float64(startGlobal)*m.resolution
			tMax[i] = (boundary - startArr[i]) / dir[i]
			tDelta[i] = -m.resolution / dir[i]
		default:
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	current := startKey
	enter := 0.0
	for steps := 0; current != endKey && steps < maxSteps; steps++ {
		axis := 0
		if !(tMax[0] <= tMax[1] && tMax[0] <= tMax[2]) {
			if tMax[1] <= tMax[2] {
				axis = 1
			} else {
				axis = 2
			}
		}
		exit := tMax[axis]
		if exit > 1 {
			exit = 1
		}
		if !visit(current, enter, exit) {
			return nil
		}
		current = stepKey(current, axis, step[axis], m.regionDims)
		enter = exit
		tMax[axis] += tDelta[axis]
	}
	if includeEnd {
		visit(current, enter, 1)
	}
	return nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// CalculateSegmentKeys appends the ordered keys of all voxels intersected by
// the segment from start to end, beginning at the voxel enclosing start. With
// includeEndPoint set the voxel enclosing end is included.
func (m *OccupancyMap) CalculateSegmentKeys(keys []Key, start, end r3.Vector, includeEndPoint bool) ([]Key, error) {
	err := m.walkSegmentKeys(start, end, includeEndPoint, func(key Key, _, _ float64) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return keys, err
	}
	return keys, nil
}

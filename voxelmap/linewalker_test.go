package voxelmap

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func coarseTestMap(t *testing.T) *OccupancyMap {
	t.Helper()
	cfg := testConfig()
	cfg.Resolution = 1
	return newTestMap(t, cfg, nil)
}

func globalIndex(m *OccupancyMap, key Key, axis int) int64 {
	return int64(key.Region[axis])*int64(m.regionDims[axis]) + int64(key.Local[axis])
}

func TestSegmentKeysAxisAligned(t *testing.T) {
	m := coarseTestMap(t)

	keys, err := m.CalculateSegmentKeys(nil, r3.Vector{}, r3.Vector{X: 3}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(keys), test.ShouldEqual, 4)
	for i, key := range keys {
		test.That(t, key.Region, test.ShouldResemble, RegionCoord{0, 0, 0})
		test.That(t, key.Local, test.ShouldResemble, LocalCoord{uint8(i), 0, 0})
	}

	// Without the end point the final voxel is dropped.
	keys, err = m.CalculateSegmentKeys(nil, r3.Vector{}, r3.Vector{X: 3}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(keys), test.ShouldEqual, 3)
}

func TestSegmentKeysAdjacency(t *testing.T) {
	m := coarseTestMap(t)

	start := r3.Vector{X: -2.3, Y: 0.7, Z: 1.1}
	end := r3.Vector{X: 5.6, Y: -3.2, Z: 4.9}
	keys, err := m.CalculateSegmentKeys(nil, start, end, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, keys[0], test.ShouldResemble, m.VoxelKey(start))
	test.That(t, keys[len(keys)-1], test.ShouldResemble, m.VoxelKey(end))

	// Consecutive keys are face neighbours: exactly one axis moves by one.
	for i := 1; i < len(keys); i++ {
		moved := 0
		for axis := 0; axis < 3; axis++ {
			diff := globalIndex(m, keys[i], axis) - globalIndex(m, keys[i-1], axis)
			test.That(t, absInt64(diff), test.ShouldBeLessThanOrEqualTo, 1)
			moved += int(absInt64(diff))
		}
		test.That(t, moved, test.ShouldEqual, 1)
	}
}

func TestSegmentKeysReverseDeterminism(t *testing.T) {
	m := coarseTestMap(t)

	start := r3.Vector{X: 0.25, Y: 0.75, Z: 0.25}
	end := r3.Vector{X: 2.25, Y: 1.75, Z: 0.25}

	forward, err := m.CalculateSegmentKeys(nil, start, end, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(forward), test.ShouldEqual, 4)

	reverse, err := m.CalculateSegmentKeys(nil, end, start, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(reverse), test.ShouldEqual, len(forward))
	for i, key := range forward {
		test.That(t, reverse[len(reverse)-1-i], test.ShouldResemble, key)
	}
}

func TestSegmentKeysBoundaryStart(t *testing.T) {
	m := coarseTestMap(t)

	// A start on a voxel boundary belongs to the upper voxel; walking in the
	// negative direction crosses back immediately.
	keys, err := m.CalculateSegmentKeys(nil, r3.Vector{X: 1, Y: 0.5, Z: 0.5}, r3.Vector{X: 0.2, Y: 0.5, Z: 0.5}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(keys), test.ShouldEqual, 2)
	test.That(t, keys[0].Local, test.ShouldResemble, LocalCoord{1, 0, 0})
	test.That(t, keys[1].Local, test.ShouldResemble, LocalCoord{0, 0, 0})
}

func TestSegmentKeysDegenerate(t *testing.T) {
	m := coarseTestMap(t)

	point := r3.Vector{X: 0.4, Y: 0.4, Z: 0.4}
	keys, err := m.CalculateSegmentKeys(nil, point, point, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, keys, test.ShouldResemble, []Key{m.VoxelKey(point)})

	keys, err = m.CalculateSegmentKeys(nil, point, point.Add(r3.Vector{X: 0.1}), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(keys), test.ShouldEqual, 0)
}

func TestSegmentKeysNonFinite(t *testing.T) {
	m := coarseTestMap(t)
	_, err := m.CalculateSegmentKeys(nil, r3.Vector{X: math.NaN()}, r3.Vector{}, true)
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
	_, err = m.CalculateSegmentKeys(nil, r3.Vector{}, r3.Vector{Y: math.Inf(1)}, true)
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
}

func TestSegmentIntervalsContiguous(t *testing.T) {
	m := coarseTestMap(t)

	var enters, exits []float64
	err := m.walkSegmentKeys(r3.Vector{X: 0.5, Y: 0.5, Z: 0.5}, r3.Vector{X: 3.5, Y: 2.5, Z: 0.5}, true,
		func(_ Key, enter, exit float64) bool {
			enters = append(enters, enter)
			exits = append(exits, exit)
			return true
		})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(enters), test.ShouldBeGreaterThan, 1)
	test.That(t, enters[0], test.ShouldEqual, 0.0)
	test.That(t, exits[len(exits)-1], test.ShouldEqual, 1.0)
	for i := 1; i < len(enters); i++ {
		test.That(t, enters[i], test.ShouldEqual, exits[i-1])
		test.That(t, exits[i], test.ShouldBeGreaterThanOrEqualTo, enters[i])
	}
}

func TestSegmentWalkEarlyStop(t *testing.T) {
	m := coarseTestMap(t)

	visited := 0
	err := m.walkSegmentKeys(r3.Vector{}, r3.Vector{X: 10}, true, func(Key, float64, float64) bool {
		visited++
		return visited < 3
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, visited, test.ShouldEqual, 3)
}

package voxelmap

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestSubVoxelPackRoundTrip(t *testing.T) {
	resolution := 0.25
	quantum := resolution / subVoxelQuantum
	for _, offset := range []r3.Vector{
		{},
		{X: 0.1, Y: -0.05, Z: 0.12},
		{X: -0.124, Y: 0.124, Z: 0},
	} {
		packed := packSubVoxelOffset(offset, resolution)
		test.That(t, packed&subVoxelMarkerBit, test.ShouldNotEqual, uint32(0))
		recovered := unpackSubVoxelOffset(packed, resolution)
		test.That(t, recovered.X, test.ShouldAlmostEqual, offset.X, quantum)
		test.That(t, recovered.Y, test.ShouldAlmostEqual, offset.Y, quantum)
		test.That(t, recovered.Z, test.ShouldAlmostEqual, offset.Z, quantum)
	}
}

func TestSubVoxelPackClamps(t *testing.T) {
	resolution := 0.25
	packed := packSubVoxelOffset(r3.Vector{X: 10, Y: -10}, resolution)
	recovered := unpackSubVoxelOffset(packed, resolution)
	test.That(t, recovered.X, test.ShouldBeLessThanOrEqualTo, resolution/2)
	test.That(t, recovered.Y, test.ShouldBeGreaterThanOrEqualTo, -resolution/2)
}

func TestUpdateVoxelMean(t *testing.T) {
	resolution := 0.25
	centre := r3.Vector{X: 0.125, Y: 0.125, Z: 0.125}

	// First sample lands exactly, ignoring any stale record.
	sample := r3.Vector{X: 0.2, Y: 0.1, Z: 0.125}
	packed, count := updateVoxelMean(0, 0, sample, centre, resolution, 0.3)
	test.That(t, count, test.ShouldEqual, uint32(1))
	mean := centre.Add(unpackSubVoxelOffset(packed, resolution))
	test.That(t, mean.X, test.ShouldAlmostEqual, sample.X, 1e-3)
	test.That(t, mean.Y, test.ShouldAlmostEqual, sample.Y, 1e-3)

	// A second sample at the centre pulls the mean at least the configured
	// weighting towards it.
	packed, count = updateVoxelMean(packed, count, centre, centre, resolution, 0.3)
	test.That(t, count, test.ShouldEqual, uint32(2))
	mean = centre.Add(unpackSubVoxelOffset(packed, resolution))
	test.That(t, mean.X, test.ShouldBeLessThan, sample.X)
	test.That(t, mean.X, test.ShouldBeGreaterThan, centre.X)
}

func TestVoxelMeanFallsBackToCentre(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)
	test.That(t, m.IntegrateRays([]r3.Vector{{X: 0.1, Y: 0.1, Z: 0.1}, {X: 0.1, Y: 0.1, Z: 0.1}}, RayFlagsNone), test.ShouldBeNil)

	voxel, err := m.Voxel(m.VoxelKey(r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}), false)
	test.That(t, err, test.ShouldBeNil)
	mean, count := voxel.Mean()
	test.That(t, count, test.ShouldEqual, uint32(0))
	test.That(t, mean, test.ShouldResemble, voxel.Centre())
}

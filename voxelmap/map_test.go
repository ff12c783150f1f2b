package voxelmap

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	test.That(t, valid.Validate(), test.ShouldBeNil)
	def := DefaultConfig()
	test.That(t, def.Validate(), test.ShouldBeNil)

	for name, mutate := range map[string]func(*MapConfig){
		"zero resolution":      func(cfg *MapConfig) { cfg.Resolution = 0 },
		"zero region dim":      func(cfg *MapConfig) { cfg.RegionVoxelDim[1] = 0 },
		"non-positive hit":     func(cfg *MapConfig) { cfg.HitValue = 0 },
		"non-negative miss":    func(cfg *MapConfig) { cfg.MissValue = 0.2 },
		"inverted clamps":      func(cfg *MapConfig) { cfg.MinValue, cfg.MaxValue = 1, -1 },
		"threshold outside":    func(cfg *MapConfig) { cfg.OccupancyThreshold = 10 },
		"bad mean weighting":   func(cfg *MapConfig) { cfg.SubVoxelWeighting = 0 },
		"non-finite origin":    func(cfg *MapConfig) { cfg.Origin = r3.Vector{X: math.Inf(1)} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			test.That(t, errors.Is(cfg.Validate(), ErrInvalidArgument), test.ShouldBeTrue)
		})
	}
}

func TestRegionAllocation(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)

	region := RegionCoord{1, -2, 0}
	test.That(t, m.Region(region, false), test.ShouldBeNil)
	test.That(t, m.RegionCount(), test.ShouldEqual, 0)

	chunk := m.Region(region, true)
	test.That(t, chunk, test.ShouldNotBeNil)
	test.That(t, chunk.Region(), test.ShouldResemble, region)
	test.That(t, m.RegionCount(), test.ShouldEqual, 1)
	test.That(t, m.Region(region, false), test.ShouldEqual, chunk)
	test.That(t, chunk.HasValidVoxels(), test.ShouldBeFalse)

	// A fresh chunk is entirely unobserved.
	voxel, err := m.Voxel(Key{Region: region, Local: LocalCoord{3, 4, 5}}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, voxel.IsUnobserved(), test.ShouldBeTrue)
}

func TestChunkDefaultFill(t *testing.T) {
	layout := NewMapLayout()
	_, err := AddClearanceLayer(layout)
	test.That(t, err, test.ShouldBeNil)
	m := newTestMap(t, testConfig(), layout)

	voxel, err := m.Voxel(Key{Local: LocalCoord{7, 7, 7}}, true)
	test.That(t, err, test.ShouldBeNil)
	// Clearance defaults to -1 (unknown); occupancy to the unobserved sentinel.
	test.That(t, voxel.Clearance(), test.ShouldEqual, float32(-1))
	test.That(t, voxel.IsUnobserved(), test.ShouldBeTrue)
}

func TestVoxelWriteTracking(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)

	voxel, err := m.Voxel(Key{Local: LocalCoord{2, 0, 0}}, true)
	test.That(t, err, test.ShouldBeNil)
	stampBefore := m.Stamp()
	test.That(t, voxel.SetOccupancy(1.5), test.ShouldBeNil)

	chunk := voxel.Chunk()
	test.That(t, m.Stamp(), test.ShouldBeGreaterThan, stampBefore)
	test.That(t, chunk.DirtyStamp(), test.ShouldEqual, m.Stamp())
	test.That(t, chunk.TouchedStamp(m.Layout().OccupancyLayer()), test.ShouldEqual, m.Stamp())
	test.That(t, chunk.HasValidVoxels(), test.ShouldBeTrue)
	test.That(t, chunk.FirstValidIndex(), test.ShouldEqual, 2)
	test.That(t, chunk.LastValidIndex(), test.ShouldEqual, 2)

	test.That(t, voxel.Occupancy(), test.ShouldEqual, float32(1.5))
	test.That(t, voxel.IsOccupied(), test.ShouldBeTrue)
}

func TestInvalidKeyRejected(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)
	_, err := m.Voxel(Key{Local: LocalCoord{32, 0, 0}}, true)
	test.That(t, errors.Is(err, ErrInvalidKey), test.ShouldBeTrue)
	_, err = m.Voxel(NullKey(), false)
	test.That(t, errors.Is(err, ErrInvalidKey), test.ShouldBeTrue)
}

func TestExpireRegions(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)
	mockClock := clock.NewMock()
	m.SetClock(mockClock)

	// S6: integrate a ray, expire everything, and observe a fully reset map.
	rays := []r3.Vector{{X: 0.3, Y: 0.3, Z: 0.3}, {X: 1.1, Y: 1.1, Z: 1.1}}
	test.That(t, m.IntegrateRays(rays, RayFlagsNone), test.ShouldBeNil)
	test.That(t, m.RegionCount(), test.ShouldBeGreaterThan, 0)

	removed := m.ExpireRegions(mockClock.Now().Add(time.Hour))
	test.That(t, removed, test.ShouldBeGreaterThan, 0)
	test.That(t, m.RegionCount(), test.ShouldEqual, 0)

	voxel, err := m.Voxel(m.VoxelKey(rays[1]), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, voxel.IsUnobserved(), test.ShouldBeTrue)
}

func TestExpireRegionsKeepsRecent(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)
	mockClock := clock.NewMock()
	m.SetClock(mockClock)

	test.That(t, m.IntegrateRays([]r3.Vector{{}, {X: 0.4}}, RayFlagsNone), test.ShouldBeNil)
	cutoff := mockClock.Now().Add(time.Minute)
	mockClock.Add(2 * time.Minute)
	test.That(t, m.IntegrateRays([]r3.Vector{{X: 20}, {X: 20.4}}, RayFlagsNone), test.ShouldBeNil)

	// Only the chunk last touched before the cutoff goes away.
	test.That(t, m.RegionCount(), test.ShouldEqual, 2)
	test.That(t, m.ExpireRegions(cutoff), test.ShouldEqual, 1)
	test.That(t, m.RegionCount(), test.ShouldEqual, 1)
}

func TestRemoveDistanceRegions(t *testing.T) {
	m := newTestMap(t, testConfig(), nil)

	near := []r3.Vector{{}, {X: 0.4}}
	far := []r3.Vector{{X: 100}, {X: 100.4}}
	test.That(t, m.IntegrateRays(near, RayFlagsNone), test.ShouldBeNil)
	test.That(t, m.IntegrateRays(far, RayFlagsNone), test.ShouldBeNil)
	total := m.RegionCount()
	test.That(t, total, test.ShouldBeGreaterThanOrEqualTo, 2)

	removed := m.RemoveDistanceRegions(r3.Vector{}, 50)
	test.That(t, removed, test.ShouldBeGreaterThan, 0)
	test.That(t, m.RegionCount(), test.ShouldBeLessThan, total)

	voxel, err := m.Voxel(m.VoxelKey(r3.Vector{X: 100.4}), false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, voxel.IsUnobserved(), test.ShouldBeTrue)
}

func TestLogOddsProbability(t *testing.T) {
	test.That(t, LogOddsToProbability(0), test.ShouldAlmostEqual, 0.5)
	test.That(t, LogOddsToProbability(probabilityToLogOdds(0.85)), test.ShouldAlmostEqual, 0.85, 1e-6)
	test.That(t, ClassifyOccupancy(UnobservedValue(), 0), test.ShouldEqual, Unobserved)
	test.That(t, ClassifyOccupancy(0.2, 0.15), test.ShouldEqual, Occupied)
	test.That(t, ClassifyOccupancy(0.1, 0.15), test.ShouldEqual, Free)
}

// Package voxelmap implements a sparse, region-chunked 3D occupancy map.
//
// The map maintains per-voxel log-odds occupancy probabilities over a lazily
// allocated grid of fixed-size regions. Sensor rays are integrated with
// IntegrateRays, which walks each ray through the grid and applies Bayesian
// miss updates to traversed voxels and a hit update at the sample point.
// Storage per region is described by a MapLayout of parallel voxel arrays, so
// a map can additionally carry sub-voxel means, NDT covariance, traversal
// distance and other layers alongside occupancy.
//
// The map is not internally synchronized. A single writer at a time is assumed
// across the whole map; concurrent readers are safe only while no writer is
// active.
package voxelmap

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// MapConfig holds the construction parameters of an OccupancyMap.
type MapConfig struct {
	// Resolution is the edge length of a voxel in metres.
	Resolution float64
	// RegionVoxelDim is the voxel extent of each region on each axis.
	RegionVoxelDim [3]uint8
	// Origin is the world position of the grid origin.
	Origin r3.Vector
	// HitValue is the log-odds increment applied on a hit. Must be positive.
	HitValue float32
	// MissValue is the log-odds increment applied on a miss. Must be negative.
	MissValue float32
	// MinValue and MaxValue clamp voxel values after every update.
	MinValue float32
	MaxValue float32
	// OccupancyThreshold is the log-odds value at or above which a voxel is
	// classified occupied.
	OccupancyThreshold float32
	// SubVoxelWeighting blends new samples into the mean layer's sub-voxel
	// position, in (0, 1].
	SubVoxelWeighting float64
}

// DefaultConfig returns the stock occupancy mapping parameters: 10cm voxels in
// 32^3 regions with a 0.85/0.4 hit/miss probability model.
func DefaultConfig() MapConfig {
	return MapConfig{
		Resolution:         0.1,
		RegionVoxelDim:     [3]uint8{32, 32, 32},
		HitValue:           probabilityToLogOdds(0.85),
		MissValue:          probabilityToLogOdds(0.4),
		MinValue:           -2.0,
		MaxValue:           3.0,
		OccupancyThreshold: probabilityToLogOdds(0.5),
		SubVoxelWeighting:  0.3,
	}
}

func probabilityToLogOdds(p float64) float32 {
	return float32(math.Log(p / (1.0 - p)))
}

// LogOddsToProbability converts a log-odds occupancy value to a probability.
func LogOddsToProbability(logOdds float32) float64 {
	odds := math.Exp(float64(logOdds))
	return odds / (1.0 + odds)
}

// Validate checks the configuration for construction.
func (cfg *MapConfig) Validate() error {
	if !(cfg.Resolution > 0) || math.IsInf(cfg.Resolution, 0) {
		return errors.Wrapf(ErrInvalidArgument, "resolution %v must be positive and finite", cfg.Resolution)
	}
	for i := 0; i < 3; i++ {
		if cfg.RegionVoxelDim[i] == 0 {
			return errors.Wrapf(ErrInvalidArgument, "region voxel dimension %d is zero", i)
		}
	}
	if !vectorFinite(cfg.Origin) {
		return errors.Wrap(ErrInvalidArgument, "origin must be finite")
	}
	if !(cfg.HitValue > 0) {
		return errors.Wrapf(ErrInvalidArgument, "hit value %v must be positive", cfg.HitValue)
	}
	if !(cfg.MissValue < 0) {
		return errors.Wrapf(ErrInvalidArgument, "miss value %v must be negative", cfg.MissValue)
	}
	if !(cfg.MinValue <= cfg.MaxValue) {
		return errors.Wrapf(ErrInvalidArgument, "clamp range [%v, %v] inverted", cfg.MinValue, cfg.MaxValue)
	}
	if cfg.OccupancyThreshold < cfg.MinValue || cfg.OccupancyThreshold > cfg.MaxValue {
		return errors.Wrapf(ErrInvalidArgument, "occupancy threshold %v outside clamp range", cfg.OccupancyThreshold)
	}
	if cfg.SubVoxelWeighting <= 0 || cfg.SubVoxelWeighting > 1 {
		return errors.Wrapf(ErrInvalidArgument, "sub voxel weighting %v outside (0, 1]", cfg.SubVoxelWeighting)
	}
	return nil
}

func vectorFinite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// OccupancyMap is a sparse voxel occupancy grid chunked into regions. Regions
// are allocated on first write and may be removed by expiry or distance culling.
type OccupancyMap struct {
	logger golog.Logger
	clock  clock.Clock

	cfg        MapConfig
	resolution float64
	originArr  [3]float64
	regionDims [3]int

	layout  *MapLayout
	regions map[RegionCoord]*MapChunk

	// stamp increases on every write and orders chunk dirty stamps.
	stamp uint64
}

// NewOccupancyMap builds a map from cfg with the occupancy layer installed. Pass
// a layout built with the Add*Layer helpers to carry additional layers; a nil
// layout gets a fresh occupancy-only one.
func NewOccupancyMap(cfg MapConfig, layout *MapLayout, logger golog.Logger) (*OccupancyMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if layout == nil {
		layout = NewMapLayout()
	}
	if _, err := AddOccupancyLayer(layout); err != nil {
		return nil, err
	}
	m := &OccupancyMap{
		logger:     logger,
		clock:      clock.New(),
		cfg:        cfg,
		resolution: cfg.Resolution,
		originArr:  [3]float64{cfg.Origin.X, cfg.Origin.Y, cfg.Origin.Z},
		layout:     layout,
		regions:    map[RegionCoord]*MapChunk{},
	}
	for i := 0; i < 3; i++ {
		m.regionDims[i] = int(cfg.RegionVoxelDim[i])
	}
	layout.locked = func() bool { return len(m.regions) > 0 }
	return m, nil
}

// SetClock replaces the map's time source. Only for tests.
func (m *OccupancyMap) SetClock(c clock.Clock) { m.clock = c }

// Config returns the map construction parameters.
func (m *OccupancyMap) Config() MapConfig { return m.cfg }

// Resolution returns the voxel edge length in metres.
func (m *OccupancyMap) Resolution() float64 { return m.resolution }

// Origin returns the world position of the grid origin.
func (m *OccupancyMap) Origin() r3.Vector { return m.cfg.Origin }

// RegionVoxelDims returns the voxel extent of each region.
func (m *OccupancyMap) RegionVoxelDims() [3]int { return m.regionDims }

// Layout returns the map's layer schema. Mutations fail once chunks exist.
func (m *OccupancyMap) Layout() *MapLayout { return m.layout }

// RegionCount returns the number of allocated regions.
func (m *OccupancyMap) RegionCount() int { return len(m.regions) }

// Stamp returns the current map stamp. The stamp increases on every write.
func (m *OccupancyMap) Stamp() uint64 { return m.stamp }

// touch advances and returns the map stamp.
func (m *OccupancyMap) touch() uint64 {
	m.stamp++
	return m.stamp
}

// Region returns the chunk for a region coordinate. With create set, an absent
// chunk is allocated and initialized from the layout's fill patterns; otherwise
// absent regions yield nil, meaning every voxel in them is unobserved.
func (m *OccupancyMap) Region(region RegionCoord, create bool) *MapChunk {
	if chunk, ok := m.regions[region]; ok {
		return chunk
	}
	if !create {
		return nil
	}
	chunk := newMapChunk(region, m.layout, m.regionDims, m.clock.Now())
	m.regions[region] = chunk
	return chunk
}

// Voxel resolves a key to a voxel handle. With create set, the owning chunk is
// allocated if absent; otherwise a handle into an absent region reports
// unobserved and rejects writes. Returns an error for keys whose local
// coordinate is out of range.
func (m *OccupancyMap) Voxel(key Key, create bool) (Voxel, error) {
	if !m.ValidKey(key) {
		return Voxel{}, errors.Wrapf(ErrInvalidKey, "%v", key)
	}
	return Voxel{m: m, chunk: m.Region(key.Region, create), key: key}, nil
}

// ClearChunks removes every allocated region, returning the map to an empty,
// fully unobserved state. The layout becomes mutable again.
func (m *OccupancyMap) ClearChunks() {
	m.regions = map[RegionCoord]*MapChunk{}
}

// ExpireRegions removes all chunks whose last write precedes before, returning
// the number removed. Outstanding voxel handles into removed chunks are
// invalidated and must not be used.
func (m *OccupancyMap) ExpireRegions(before time.Time) int {
	removed := 0
	for region, chunk := range m.regions {
		if chunk.touchedAt.Before(before) {
			delete(m.regions, region)
			removed++
		}
	}
	return removed
}

// RemoveDistanceRegions removes all chunks whose region centre lies further than
// maxDist from origin, returning the number removed.
func (m *OccupancyMap) RemoveDistanceRegions(origin r3.Vector, maxDist float64) int {
	removed := 0
	maxSq := maxDist * maxDist
	for region := range m.regions {
		centre := m.RegionCentre(region)
		if centre.Sub(origin).Norm2() > maxSq {
			delete(m.regions, region)
			removed++
		}
	}
	return removed
}

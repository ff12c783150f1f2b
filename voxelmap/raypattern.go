package voxelmap

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// PatternSource is the capability a ray pattern must provide: an ordered set of
// endpoint offsets anchored at a common origin.
type PatternSource interface {
	// Points returns the pattern's endpoint offsets. The returned slice must
	// not be mutated.
	Points() []r3.Vector
}

// RayPattern is a reusable set of ray endpoint offsets. A pattern is built once
// and then posed repeatedly with BuildRays to emit batches of rays.
type RayPattern struct {
	points []r3.Vector
}

// NewRayPattern returns an empty pattern.
func NewRayPattern() *RayPattern {
	return &RayPattern{}
}

// AddPoint appends a single endpoint offset to the pattern.
func (p *RayPattern) AddPoint(point r3.Vector) {
	p.points = append(p.points, point)
}

// AddPoints appends a set of endpoint offsets to the pattern.
func (p *RayPattern) AddPoints(points []r3.Vector) {
	p.points = append(p.points, points...)
}

// PointCount returns the number of endpoint offsets in the pattern.
func (p *RayPattern) PointCount() int {
	return len(p.points)
}

// Points returns the pattern's endpoint offsets.
func (p *RayPattern) Points() []r3.Vector {
	return p.points
}

// BuildRays poses the pattern and appends the resulting ray set to out: for
// each offset, one origin entry equal to position followed by the endpoint
// position + scaling * (rotation * offset). The rotation must be a unit
// quaternion. Returns the extended slice, twice the point count longer.
func (p *RayPattern) BuildRays(out []r3.Vector, position r3.Vector, rotation quat.Number, scaling float64) []r3.Vector {
	return buildRays(out, p.points, position, rotation, scaling)
}

func buildRays(out []r3.Vector, points []r3.Vector, position r3.Vector, rotation quat.Number, scaling float64) []r3.Vector {
	for _, offset := range points {
		out = append(out, position, position.Add(rotateVector(rotation, offset).Mul(scaling)))
	}
	return out
}

// rotateVector applies a unit quaternion rotation q v q* to a vector.
func rotateVector(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	rotated := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// ClearingPattern sweeps a ray pattern through a map to reset false positive
// occupancy. Each application poses the pattern and integrates the resulting
// rays with miss-only semantics, stopping each ray at the first occupied voxel
// blocking its path.
type ClearingPattern struct {
	pattern PatternSource
	rays    []r3.Vector
}

// ClearingRayFlags are the integration flags a clearing sweep applies.
const ClearingRayFlags = RayFlagEndPointAsFree | RayFlagStopOnFirstOccupied | RayFlagClearOnly

// NewClearingPattern wraps a pattern for clearing sweeps. The clearing pattern
// keeps a reference to the source; the source must outlive it.
func NewClearingPattern(pattern PatternSource) (*ClearingPattern, error) {
	if pattern == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "nil pattern")
	}
	return &ClearingPattern{pattern: pattern}, nil
}

// Pattern returns the wrapped pattern source.
func (cp *ClearingPattern) Pattern() PatternSource {
	return cp.pattern
}

// Apply poses the pattern at position/rotation/scaling and integrates the
// resulting rays into the map with ClearingRayFlags.
func (cp *ClearingPattern) Apply(m *OccupancyMap, position r3.Vector, rotation quat.Number, scaling float64) error {
	cp.rays = buildRays(cp.rays[:0], cp.pattern.Points(), position, rotation, scaling)
	return m.IntegrateRays(cp.rays, ClearingRayFlags)
}

// BuildRaySet poses the pattern and returns the ray set that Apply would
// integrate, for callers that wish to inspect or post-process it. The returned
// slice is reused by subsequent calls.
func (cp *ClearingPattern) BuildRaySet(position r3.Vector, rotation quat.Number, scaling float64) []r3.Vector {
	cp.rays = buildRays(cp.rays[:0], cp.pattern.Points(), position, rotation, scaling)
	return cp.rays
}

package voxelmap

import (
	"math"

	"github.com/golang/geo/r3"
)

// The mean layer refines each voxel's sample position below the grid
// resolution. The offset from the voxel centre is quantized to 10 bits per
// axis and packed into a single uint32 alongside a sample count.

const (
	subVoxelBits      = 10
	subVoxelMask      = (1 << subVoxelBits) - 1
	subVoxelQuantum   = 1 << subVoxelBits
	subVoxelUsedBits  = 3 * subVoxelBits
	subVoxelMarkerBit = 1 << subVoxelUsedBits
)

// packSubVoxelOffset quantizes a world space offset from the voxel centre,
// clamping to the voxel extent. The marker bit distinguishes a packed zero
// offset from an empty record.
func packSubVoxelOffset(offset r3.Vector, resolution float64) uint32 {
	packed := uint32(subVoxelMarkerBit)
	for axis, value := range [3]float64{offset.X, offset.Y, offset.Z} {
		normalized := value/resolution + 0.5
		quantized := int(math.Floor(normalized * subVoxelQuantum))
		if quantized < 0 {
			quantized = 0
		}
		if quantized > subVoxelMask {
			quantized = subVoxelMask
		}
		packed |= uint32(quantized) << (subVoxelBits * axis)
	}
	return packed
}

// unpackSubVoxelOffset recovers the world space offset from the voxel centre.
func unpackSubVoxelOffset(packed uint32, resolution float64) r3.Vector {
	var out [3]float64
	for axis := 0; axis < 3; axis++ {
		quantized := (packed >> (subVoxelBits * axis)) & subVoxelMask
		out[axis] = ((float64(quantized)+0.5)/subVoxelQuantum - 0.5) * resolution
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// updateVoxelMean folds a new sample into a packed mean record using a running
// weighted average. The sample weight is the larger of 1/(count+1) and the
// configured sub voxel weighting, so early samples dominate while later ones
// still shift a stale mean.
func updateVoxelMean(packed uint32, count uint32, sample, centre r3.Vector,
	resolution, weighting float64,
) (uint32, uint32) {
	target := sample.Sub(centre)
	if count == 0 || packed&subVoxelMarkerBit == 0 {
		return packSubVoxelOffset(target, resolution), 1
	}
	current := unpackSubVoxelOffset(packed, resolution)
	weight := 1.0 / float64(count+1)
	if weighting > weight {
		weight = weighting
	}
	blended := current.Mul(1 - weight).Add(target.Mul(weight))
	if count < math.MaxUint32 {
		count++
	}
	return packSubVoxelOffset(blended, resolution), count
}

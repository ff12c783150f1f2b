package voxelmap

import (
	"math"

	"github.com/pkg/errors"
)

// unobservedBits is the quiet NaN bit pattern marking a voxel with no evidence.
const unobservedBits uint32 = 0x7FC00000

// UnobservedValue returns the sentinel occupancy value meaning "no evidence".
// It is a value, not an error, and compares unequal to every log-odds value.
func UnobservedValue() float32 {
	return math.Float32frombits(unobservedBits)
}

// IsUnobserved reports whether the occupancy value is the unobserved sentinel.
func IsUnobserved(value float32) bool {
	return math.IsNaN(float64(value))
}

// OccupancyType classifies an occupancy value against a threshold.
type OccupancyType int

// Occupancy classifications.
const (
	// Unobserved means the voxel holds no evidence.
	Unobserved OccupancyType = iota
	// Free means the voxel has been observed below the occupancy threshold.
	Free
	// Occupied means the voxel value meets or exceeds the occupancy threshold.
	Occupied
)

func (t OccupancyType) String() string {
	switch t {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "unobserved"
	}
}

// ClassifyOccupancy maps a voxel value to its occupancy type under threshold.
func ClassifyOccupancy(value, threshold float32) OccupancyType {
	if IsUnobserved(value) {
		return Unobserved
	}
	if value >= threshold {
		return Occupied
	}
	return Free
}

func floatBits(f float32) uint64 {
	return uint64(math.Float32bits(f))
}

func addWellKnownLayer(layout *MapLayout, name string, wellKnownIndex int,
	expectedSize int, populate func(*VoxelLayout) error,
) (*MapLayer, error) {
	if wellKnownIndex >= 0 {
		return layout.Layer(wellKnownIndex), nil
	}
	layer, err := layout.AddLayer(name, 0)
	if err != nil {
		return nil, err
	}
	if err := populate(layer.VoxelLayout()); err != nil {
		return nil, err
	}
	if layer.VoxelByteSize() != expectedSize {
		return nil, errors.Errorf("%s layer size mismatch: %d != %d",
			name, layer.VoxelByteSize(), expectedSize)
	}
	return layer, nil
}

// AddOccupancyLayer ensures the layout carries the occupancy layer: a single
// float32 log-odds value defaulting to the unobserved sentinel. Idempotent.
func AddOccupancyLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, OccupancyLayerName, layout.OccupancyLayer(), 8,
		func(vl *VoxelLayout) error {
			_, err := vl.AddMember(OccupancyLayerName, DataTypeFloat32, uint64(unobservedBits))
			return err
		})
}

// AddMeanLayer ensures the layout carries the voxel mean layer: a packed
// sub-voxel coordinate and a sample count. Idempotent.
func AddMeanLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, MeanLayerName, layout.MeanLayer(), 8,
		func(vl *VoxelLayout) error {
			if _, err := vl.AddMember("coord", DataTypeUInt32, 0); err != nil {
				return err
			}
			_, err := vl.AddMember("count", DataTypeUInt32, 0)
			return err
		})
}

// AddTraversalLayer ensures the layout carries the traversal layer accumulating
// ray segment length through each voxel. Idempotent.
func AddTraversalLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, TraversalLayerName, layout.TraversalLayer(), 8,
		func(vl *VoxelLayout) error {
			_, err := vl.AddMember(TraversalLayerName, DataTypeFloat32, 0)
			return err
		})
}

// AddCovarianceLayer ensures the layout carries the NDT covariance layer: the
// upper triangle of a 3x3 covariance matrix in column major order
// (P00, P01, P11, P02, P12, P22). Idempotent.
func AddCovarianceLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, CovarianceLayerName, layout.CovarianceLayer(), 24,
		func(vl *VoxelLayout) error {
			for _, name := range []string{"P00", "P01", "P11", "P02", "P12", "P22"} {
				if _, err := vl.AddMember(name, DataTypeFloat32, 0); err != nil {
					return err
				}
			}
			return nil
		})
}

// AddClearanceLayer ensures the layout carries the clearance layer: distance to
// the nearest occupied voxel, -1 meaning unknown. Idempotent.
func AddClearanceLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, ClearanceLayerName, layout.ClearanceLayer(), 8,
		func(vl *VoxelLayout) error {
			_, err := vl.AddMember(ClearanceLayerName, DataTypeFloat32, floatBits(-1))
			return err
		})
}

// AddIntensityLayer ensures the layout carries the intensity layer: mean and
// variance of sensor intensity samples. Idempotent.
func AddIntensityLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, IntensityLayerName, layout.IntensityLayer(), 8,
		func(vl *VoxelLayout) error {
			if _, err := vl.AddMember("mean", DataTypeFloat32, 0); err != nil {
				return err
			}
			_, err := vl.AddMember("cov", DataTypeFloat32, 0)
			return err
		})
}

// AddHitMissCountLayer ensures the layout carries the raw hit and miss tallies
// used by NDT-TM style models. Idempotent.
func AddHitMissCountLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, HitMissCountLayerName, layout.HitMissCountLayer(), 8,
		func(vl *VoxelLayout) error {
			if _, err := vl.AddMember("hit_count", DataTypeUInt32, 0); err != nil {
				return err
			}
			_, err := vl.AddMember("miss_count", DataTypeUInt32, 0)
			return err
		})
}

// AddSemanticLayer ensures the layout carries the semantic label layer: a class
// label, a state label and the label probability. Idempotent.
func AddSemanticLayer(layout *MapLayout) (*MapLayer, error) {
	return addWellKnownLayer(layout, SemanticLayerName, layout.SemanticLayer(), 8,
		func(vl *VoxelLayout) error {
			if _, err := vl.AddMember("label", DataTypeUInt16, 0); err != nil {
				return err
			}
			if _, err := vl.AddMember("state_label", DataTypeUInt16, 0); err != nil {
				return err
			}
			_, err := vl.AddMember("prob_label", DataTypeFloat32, 0)
			return err
		})
}

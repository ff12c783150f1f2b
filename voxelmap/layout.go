package voxelmap

import (
	"github.com/pkg/errors"
)

// LayoutMatch is the result of comparing two layouts or layers.
type LayoutMatch int

// Layout comparison results, ordered from weakest to strongest match.
const (
	// LayoutMatchDifferent indicates the layouts are incompatible.
	LayoutMatchDifferent LayoutMatch = iota
	// LayoutMatchEquivalent indicates matching voxel layouts and well known roles,
	// tolerating different user facing names.
	LayoutMatchEquivalent
	// LayoutMatchExact indicates identical names and voxel layouts in the same order.
	LayoutMatchExact
)

func (m LayoutMatch) String() string {
	switch m {
	case LayoutMatchExact:
		return "exact"
	case LayoutMatchEquivalent:
		return "equivalent"
	default:
		return "different"
	}
}

// MapLayer describes one parallel voxel array hosted by every chunk: its name,
// position in the layout, sub-sampling factor and intra voxel schema.
type MapLayer struct {
	name        string
	index       int
	subsampling uint8
	voxelLayout VoxelLayout
}

// Name returns the layer name. Names need not be unique; lookups return the
// first match.
func (l *MapLayer) Name() string { return l.name }

// LayerIndex returns the layer's position in the layout.
func (l *MapLayer) LayerIndex() int { return l.index }

// Subsampling returns the sub-sampling exponent: the layer stores one record per
// (1 << Subsampling())^3 voxels.
func (l *MapLayer) Subsampling() uint8 { return l.subsampling }

// VoxelLayout returns the layer's intra voxel schema for mutation before the map
// holds chunks.
func (l *MapLayer) VoxelLayout() *VoxelLayout { return &l.voxelLayout }

// VoxelByteSize returns the per record byte size of the layer.
func (l *MapLayer) VoxelByteSize() int { return l.voxelLayout.VoxelByteSize() }

// Dimensions returns the layer's record grid dimensions for the given region
// voxel dimensions, applying the sub-sampling factor with a floor of one.
func (l *MapLayer) Dimensions(regionDims [3]int) [3]int {
	var dims [3]int
	for i := 0; i < 3; i++ {
		d := regionDims[i] >> l.subsampling
		if d < 1 {
			d = 1
		}
		dims[i] = d
	}
	return dims
}

// Volume returns the number of records the layer holds per region.
func (l *MapLayer) Volume(regionDims [3]int) int {
	dims := l.Dimensions(regionDims)
	return dims[0] * dims[1] * dims[2]
}

// LayerByteSize returns the byte size of the layer's backing array per region.
func (l *MapLayer) LayerByteSize(regionDims [3]int) int {
	return l.Volume(regionDims) * l.VoxelByteSize()
}

// checkEquivalent compares two layers. Exact requires the same name and an exact
// voxel layout match; Equivalent requires equivalent voxel layouts and the same
// sub-sampling.
func (l *MapLayer) checkEquivalent(other *MapLayer) LayoutMatch {
	if l.subsampling != other.subsampling {
		return LayoutMatchDifferent
	}
	match := l.voxelLayout.checkEquivalent(&other.voxelLayout)
	if match == LayoutMatchExact && l.name != other.name {
		match = LayoutMatchEquivalent
	}
	return match
}

// Well known layer names. The layout caches the index of each so the integration
// hot path never does string lookups.
const (
	OccupancyLayerName    = "occupancy"
	MeanLayerName         = "mean"
	TraversalLayerName    = "traversal"
	CovarianceLayerName   = "covariance"
	ClearanceLayerName    = "clearance"
	IntensityLayerName    = "intensity"
	HitMissCountLayerName = "hit_miss_count"
	SemanticLayerName     = "semantic"
)

// MapLayout is the ordered set of layers every chunk of a map hosts. Layer
// indices are contiguous from zero. The layout of a populated map is immutable;
// mutating operations fail with ErrLayoutLocked once chunks exist.
type MapLayout struct {
	layers []*MapLayer

	occupancyLayer    int
	meanLayer         int
	traversalLayer    int
	covarianceLayer   int
	clearanceLayer    int
	intensityLayer    int
	hitMissCountLayer int
	semanticLayer     int

	locked func() bool
}

// NewMapLayout returns an empty layout.
func NewMapLayout() *MapLayout {
	layout := &MapLayout{}
	layout.invalidateWellKnown()
	return layout
}

func (ml *MapLayout) invalidateWellKnown() {
	ml.occupancyLayer = -1
	ml.meanLayer = -1
	ml.traversalLayer = -1
	ml.covarianceLayer = -1
	ml.clearanceLayer = -1
	ml.intensityLayer = -1
	ml.hitMissCountLayer = -1
	ml.semanticLayer = -1
}

func (ml *MapLayout) cacheWellKnown(layer *MapLayer) {
	cache := map[string]*int{
		OccupancyLayerName:    &ml.occupancyLayer,
		MeanLayerName:         &ml.meanLayer,
		TraversalLayerName:    &ml.traversalLayer,
		CovarianceLayerName:   &ml.covarianceLayer,
		ClearanceLayerName:    &ml.clearanceLayer,
		IntensityLayerName:    &ml.intensityLayer,
		HitMissCountLayerName: &ml.hitMissCountLayer,
		SemanticLayerName:     &ml.semanticLayer,
	}
	if slot, ok := cache[layer.name]; ok && *slot == -1 {
		*slot = layer.index
	}
}

func (ml *MapLayout) rebuildWellKnown() {
	ml.invalidateWellKnown()
	for _, layer := range ml.layers {
		ml.cacheWellKnown(layer)
	}
}

func (ml *MapLayout) isLocked() bool {
	return ml.locked != nil && ml.locked()
}

// AddLayer appends a layer with the given name and sub-sampling exponent (0..3)
// and returns it for voxel layout population.
func (ml *MapLayout) AddLayer(name string, subsampling uint8) (*MapLayer, error) {
	if ml.isLocked() {
		return nil, errors.Wrapf(ErrLayoutLocked, "adding layer %q", name)
	}
	if subsampling > 3 {
		return nil, errors.Wrapf(ErrInvalidArgument, "layer %q subsampling %d out of range", name, subsampling)
	}
	layer := &MapLayer{name: name, index: len(ml.layers), subsampling: subsampling}
	ml.layers = append(ml.layers, layer)
	ml.cacheWellKnown(layer)
	return layer, nil
}

// LayerCount returns the number of layers.
func (ml *MapLayout) LayerCount() int { return len(ml.layers) }

// Layer returns the layer at index, or nil when out of range.
func (ml *MapLayout) Layer(index int) *MapLayer {
	if index < 0 || index >= len(ml.layers) {
		return nil
	}
	return ml.layers[index]
}

// LayerByName returns the first layer with the given name, or nil.
func (ml *MapLayout) LayerByName(name string) *MapLayer {
	for _, layer := range ml.layers {
		if layer.name == name {
			return layer
		}
	}
	return nil
}

// LayerIndex returns the index of the first layer with the given name, or -1.
func (ml *MapLayout) LayerIndex(name string) int {
	if layer := ml.LayerByName(name); layer != nil {
		return layer.index
	}
	return -1
}

// Cached well known layer indices; -1 when the layer is absent.

// OccupancyLayer returns the occupancy layer index or -1.
func (ml *MapLayout) OccupancyLayer() int { return ml.occupancyLayer }

// MeanLayer returns the voxel mean layer index or -1.
func (ml *MapLayout) MeanLayer() int { return ml.meanLayer }

// TraversalLayer returns the traversal layer index or -1.
func (ml *MapLayout) TraversalLayer() int { return ml.traversalLayer }

// CovarianceLayer returns the NDT covariance layer index or -1.
func (ml *MapLayout) CovarianceLayer() int { return ml.covarianceLayer }

// ClearanceLayer returns the clearance layer index or -1.
func (ml *MapLayout) ClearanceLayer() int { return ml.clearanceLayer }

// IntensityLayer returns the intensity layer index or -1.
func (ml *MapLayout) IntensityLayer() int { return ml.intensityLayer }

// HitMissCountLayer returns the hit/miss count layer index or -1.
func (ml *MapLayout) HitMissCountLayer() int { return ml.hitMissCountLayer }

// SemanticLayer returns the semantic label layer index or -1.
func (ml *MapLayout) SemanticLayer() int { return ml.semanticLayer }

// Clear removes all layers. Only legal while the map holds no chunks.
func (ml *MapLayout) Clear() error {
	if ml.isLocked() {
		return errors.Wrap(ErrLayoutLocked, "clearing layout")
	}
	ml.layers = nil
	ml.invalidateWellKnown()
	return nil
}

// FilterLayers preserves only the layers whose current indices appear in keep,
// repacking the remaining indices contiguously from zero.
func (ml *MapLayout) FilterLayers(keep []int) error {
	if ml.isLocked() {
		return errors.Wrap(ErrLayoutLocked, "filtering layers")
	}
	keepSet := make(map[int]bool, len(keep))
	for _, idx := range keep {
		keepSet[idx] = true
	}
	filtered := ml.layers[:0]
	for _, layer := range ml.layers {
		if keepSet[layer.index] {
			layer.index = len(filtered)
			filtered = append(filtered, layer)
		}
	}
	for i := len(filtered); i < len(ml.layers); i++ {
		ml.layers[i] = nil
	}
	ml.layers = filtered
	ml.rebuildWellKnown()
	return nil
}

// FilterLayersByName preserves only the named layers, repacking indices.
func (ml *MapLayout) FilterLayersByName(names []string) error {
	var keep []int
	for _, layer := range ml.layers {
		for _, name := range names {
			if layer.name == name {
				keep = append(keep, layer.index)
				break
			}
		}
	}
	return ml.FilterLayers(keep)
}

// CheckEquivalent compares two layouts layer by layer. The result is the weakest
// match over all layers: Exact only when every layer matches exactly.
func (ml *MapLayout) CheckEquivalent(other *MapLayout) LayoutMatch {
	if ml == other {
		return LayoutMatchExact
	}
	if len(ml.layers) != len(other.layers) {
		return LayoutMatchDifferent
	}
	match := LayoutMatchExact
	for i := range ml.layers {
		layerMatch := ml.layers[i].checkEquivalent(other.layers[i])
		if layerMatch < match {
			match = layerMatch
		}
		if match == LayoutMatchDifferent {
			return LayoutMatchDifferent
		}
	}
	return match
}

// LayerOverlap pairs a layer index in one layout with its counterpart in another.
type LayerOverlap struct {
	ThisIndex  int
	OtherIndex int
}

// Overlap pairs this layout's layers with other's, matching by name first and
// requiring an exact voxel layout match. Unmatched layers are omitted.
func (ml *MapLayout) Overlap(other *MapLayout) []LayerOverlap {
	var overlap []LayerOverlap
	if ml == other {
		for _, layer := range ml.layers {
			overlap = append(overlap, LayerOverlap{layer.index, layer.index})
		}
		return overlap
	}
	for _, layer := range ml.layers {
		otherIndex := other.LayerIndex(layer.name)
		if otherIndex < 0 {
			continue
		}
		if layer.checkEquivalent(other.layers[otherIndex]) == LayoutMatchExact {
			overlap = append(overlap, LayerOverlap{layer.index, otherIndex})
		}
	}
	return overlap
}

package voxelmap

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// The covariance layer stores, per voxel, the upper triangle of a 3x3 sample
// covariance for NDT style models. The NDT update math itself runs in an
// extension fed by the same integration pipeline; the core provides the layer
// contract and the packing between the stored triangle and gonum matrices.

// CovarianceVoxel is one record of the covariance layer: the upper triangular
// entries P00, P01, P11, P02, P12, P22 in that order.
type CovarianceVoxel [6]float32

// Sym expands the packed triangle into a symmetric 3x3 matrix.
func (cv CovarianceVoxel) Sym() *mat.SymDense {
	sym := mat.NewSymDense(3, nil)
	sym.SetSym(0, 0, float64(cv[0]))
	sym.SetSym(0, 1, float64(cv[1]))
	sym.SetSym(1, 1, float64(cv[2]))
	sym.SetSym(0, 2, float64(cv[3]))
	sym.SetSym(1, 2, float64(cv[4]))
	sym.SetSym(2, 2, float64(cv[5]))
	return sym
}

// CovarianceFromSym packs a symmetric 3x3 matrix into the stored triangle.
func CovarianceFromSym(sym *mat.SymDense) CovarianceVoxel {
	return CovarianceVoxel{
		float32(sym.At(0, 0)),
		float32(sym.At(0, 1)),
		float32(sym.At(1, 1)),
		float32(sym.At(0, 2)),
		float32(sym.At(1, 2)),
		float32(sym.At(2, 2)),
	}
}

// UpdateCovariance folds a new sample into a running covariance over samples
// about the voxel mean, where count is the number of samples already folded in.
// Returns the updated covariance for count+1 samples.
func UpdateCovariance(cov CovarianceVoxel, mean, sample r3.Vector, count uint32) CovarianceVoxel {
	if count == 0 {
		return CovarianceVoxel{}
	}
	d := sample.Sub(mean)
	n := float64(count)
	sym := cov.Sym()
	outer := mat.NewSymDense(3, nil)
	dv := [3]float64{d.X, d.Y, d.Z}
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			outer.SetSym(i, j, dv[i]*dv[j]*n/(n+1))
		}
	}
	updated := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			updated.SetSym(i, j, (sym.At(i, j)*(n-1)+outer.At(i, j))/n)
		}
	}
	return CovarianceFromSym(updated)
}

// Covariance returns the voxel's packed NDT covariance record.
func (v Voxel) Covariance() (CovarianceVoxel, error) {
	layerIndex := v.m.layout.CovarianceLayer()
	if layerIndex < 0 {
		return CovarianceVoxel{}, errors.Wrap(ErrLayerNotFound, CovarianceLayerName)
	}
	var cv CovarianceVoxel
	if v.chunk == nil {
		return cv, nil
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	for i := range cv {
		cv[i] = readFloat32(buf, offset+4*i)
	}
	return cv, nil
}

// SetCovariance writes the voxel's packed NDT covariance record.
func (v Voxel) SetCovariance(cv CovarianceVoxel) error {
	if v.chunk == nil {
		return errors.Wrap(ErrInvalidKey, "voxel region not allocated")
	}
	layerIndex := v.m.layout.CovarianceLayer()
	if layerIndex < 0 {
		return errors.Wrap(ErrLayerNotFound, CovarianceLayerName)
	}
	layer := v.m.layout.Layer(layerIndex)
	offset := layerRecordOffset(layer, v.key.Local, v.m.regionDims)
	buf := v.chunk.voxelBytes[layerIndex]
	for i := range cv {
		writeFloat32(buf, offset+4*i, cv[i])
	}
	v.chunk.updateValidBounds(voxelIndex(v.key, v.m.regionDims))
	v.chunk.touchLayer(layerIndex, v.m.touch(), v.m.clock.Now())
	return nil
}

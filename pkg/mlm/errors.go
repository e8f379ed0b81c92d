package mlm

import "errors"

var (
	// ErrNotLoaded is returned when the mean geometry or the model tensor
	// is needed but has not been loaded.
	ErrNotLoaded = errors.New("mlm: model not loaded")

	// ErrDimensionMismatch is returned whenever tensor, basis matrices,
	// eigenvalues, mean geometry, meshes or parameter vectors disagree in size.
	ErrDimensionMismatch = errors.New("mlm: dimension mismatch")

	// ErrEmptyMesh is returned when a mean mesh has no vertices.
	ErrEmptyMesh = errors.New("mlm: empty mesh")

	// ErrInsufficientData is returned when a parameter file holds fewer
	// values than the parameter vector it should fill.
	ErrInsufficientData = errors.New("mlm: insufficient parameter data")
)

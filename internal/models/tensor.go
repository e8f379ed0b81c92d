package models

// Tensor is a dense three-mode array stored in a single flat buffer.
//
// Mode 0 indexes geometry channels (x/y/z of every vertex of the skin
// surface followed by every vertex of the skull surface), mode 1 indexes
// the skull shape components and mode 2 the FSTT distribution components.
type Tensor struct {
	// Dim0, Dim1, Dim2 are the sizes of the three modes
	Dim0, Dim1, Dim2 int

	// Data holds Dim0*Dim1*Dim2 values in row-major order
	Data []float64
}

// NewTensor allocates a zeroed tensor with the given dimensions.
func NewTensor(dim0, dim1, dim2 int) *Tensor {
	return &Tensor{
		Dim0: dim0,
		Dim1: dim1,
		Dim2: dim2,
		Data: make([]float64, dim0*dim1*dim2),
	}
}

// Index returns the position of element (i0, i1, i2) in Data.
func (t *Tensor) Index(i0, i1, i2 int) int {
	return i2 + i1*t.Dim2 + i0*t.Dim1*t.Dim2
}

// At returns element (i0, i1, i2).
func (t *Tensor) At(i0, i1, i2 int) float64 {
	return t.Data[t.Index(i0, i1, i2)]
}

// Set stores v at (i0, i1, i2).
func (t *Tensor) Set(i0, i1, i2 int, v float64) {
	t.Data[t.Index(i0, i1, i2)] = v
}

// Len is the number of elements the dimensions describe.
func (t *Tensor) Len() int {
	return t.Dim0 * t.Dim1 * t.Dim2
}

// Slab returns the Dim1 x Dim2 block of geometry channel i0 as a
// row-major sub-slice of Data. The slice aliases the tensor storage.
func (t *Tensor) Slab(i0 int) []float64 {
	n := t.Dim1 * t.Dim2
	return t.Data[i0*n : (i0+1)*n]
}

// Point is a position in 3D space.
type Point [3]float64

// Factor identifies one of the two latent factors of the model.
type Factor int

const (
	// Skull is the skull shape factor (mode 1).
	Skull Factor = iota
	// FSTT is the facial soft tissue thickness distribution factor (mode 2).
	FSTT
)

// String returns the short lowercase name of the factor.
func (f Factor) String() string {
	switch f {
	case Skull:
		return "skull"
	case FSTT:
		return "fstt"
	default:
		return "unknown"
	}
}

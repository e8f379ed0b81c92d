// Package mlm implements a multilinear head model with three modes: the
// vertices of the skin and skull surfaces, the skull shape and the facial
// soft tissue thickness (FSTT) distribution.
//
// A Model is loaded in two phases, mean geometry from two reference meshes
// and the tensor bundle from a model directory, and is read-only afterwards.
// Evaluate maps a skull parameter vector and an FSTT parameter vector to new
// vertex positions for both surfaces. Concurrent Evaluate calls are safe as
// long as each call writes to its own meshes.
package mlm

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
	"mlmhead/pkg/modelio"
)

// File names inside a model directory.
const (
	TensorFile           = "mlm_tensor.tensor"
	USkullFile           = "matrix_U_skull.matrix"
	UFsttFile            = "matrix_U_fstt.matrix"
	EigenvaluesSkullFile = "eigenvalues_skull.vector"
	EigenvaluesFsttFile  = "eigenvalues_fstt.vector"
)

// Shape is a read-only view of a mesh in its vertex traversal order.
type Shape interface {
	NumVertices() int
	Vertex(i int) models.Point
}

// Surface is a mesh whose vertex positions can be overwritten.
type Surface interface {
	NumVertices() int
	SetVertex(i int, p models.Point)
}

// Params configures a Model.
type Params struct {
	// NumCores bounds the goroutines used by Evaluate. Zero means all CPUs.
	NumCores int

	// Logger receives load diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Model is a loaded multilinear model.
type Model struct {
	tensor *models.Tensor

	uSkull *mat.Dense
	uFstt  *mat.Dense

	eigenvaluesSkull *mat.VecDense
	eigenvaluesFstt  *mat.VecDense

	// mean holds x/y/z of all skin vertices followed by all skull vertices
	mean []float64

	// vertex counts of the mean meshes, recording where skull starts in mean
	skinVertices  int
	skullVertices int

	numCores int
	logger   *slog.Logger
}

// NewModel creates an empty model. params may be nil.
func NewModel(params *Params) *Model {
	m := &Model{
		numCores: runtime.NumCPU(),
		logger:   slog.Default(),
	}
	if params != nil {
		if params.NumCores > 0 {
			m.numCores = params.NumCores
		}
		if params.Logger != nil {
			m.logger = params.Logger
		}
	}
	return m
}

// LoadMeans reads the mean skin and skull meshes and builds the mean
// geometry vector from them.
func (m *Model) LoadMeans(meanSkinPath, meanSkullPath string) error {
	skin, err := mesh.Read(meanSkinPath)
	if err != nil {
		return fmt.Errorf("can't load mean skin: %w", err)
	}
	skull, err := mesh.Read(meanSkullPath)
	if err != nil {
		return fmt.Errorf("can't load mean skull: %w", err)
	}
	if err := m.LoadMeansFromShapes(skin, skull); err != nil {
		return err
	}
	m.logger.Info("loaded mean geometry",
		"skin", meanSkinPath, "skin_vertices", skin.NumVertices(),
		"skull", meanSkullPath, "skull_vertices", skull.NumVertices())
	return nil
}

// LoadMeansFromShapes builds the mean geometry vector from two meshes:
// every skin vertex in traversal order, then every skull vertex.
func (m *Model) LoadMeansFromShapes(skin, skull Shape) error {
	nSkin, nSkull := skin.NumVertices(), skull.NumVertices()
	if nSkin == 0 {
		return fmt.Errorf("%w: can't load means, since the skin mesh is empty", ErrEmptyMesh)
	}
	if nSkull == 0 {
		return fmt.Errorf("%w: can't load means, since the skull mesh is empty", ErrEmptyMesh)
	}

	dim0 := 3 * (nSkin + nSkull)
	if m.tensor != nil && m.tensor.Dim0 != dim0 {
		return fmt.Errorf("%w: mean meshes give %d geometry channels, tensor has %d",
			ErrDimensionMismatch, dim0, m.tensor.Dim0)
	}

	mean := make([]float64, dim0)
	c := 0
	for _, s := range []Shape{skin, skull} {
		for v := 0; v < s.NumVertices(); v++ {
			p := s.Vertex(v)
			mean[3*c+0] = p[0]
			mean[3*c+1] = p[1]
			mean[3*c+2] = p[2]
			c++
		}
	}

	m.mean = mean
	m.skinVertices = nSkin
	m.skullVertices = nSkull
	return nil
}

// Load reads the model tensor, the basis matrices and the eigenvalues from
// dir. Nothing is replaced unless every file loads and all dimensions agree.
func (m *Model) Load(dir string) error {
	m.logger.Info("loading multilinear model", "dir", dir)

	tensor, err := modelio.LoadTensor(filepath.Join(dir, TensorFile))
	if err != nil {
		return fmt.Errorf("cannot load tensor: %w", err)
	}
	m.logger.Debug("loaded tensor", "dim0", tensor.Dim0, "dim1", tensor.Dim1, "dim2", tensor.Dim2)

	uSkull, err := modelio.LoadMatrix(filepath.Join(dir, USkullFile))
	if err != nil {
		return fmt.Errorf("cannot load matrix U_skull: %w", err)
	}
	if _, c := uSkull.Dims(); c != tensor.Dim1 {
		return fmt.Errorf("%w: U_skull has %d columns, tensor dim1 is %d", ErrDimensionMismatch, c, tensor.Dim1)
	}

	uFstt, err := modelio.LoadMatrix(filepath.Join(dir, UFsttFile))
	if err != nil {
		return fmt.Errorf("cannot load matrix U_fstt: %w", err)
	}
	if _, c := uFstt.Dims(); c != tensor.Dim2 {
		return fmt.Errorf("%w: U_fstt has %d columns, tensor dim2 is %d", ErrDimensionMismatch, c, tensor.Dim2)
	}

	eigSkull, err := modelio.LoadVector(filepath.Join(dir, EigenvaluesSkullFile))
	if err != nil {
		return fmt.Errorf("cannot load skull eigenvalues: %w", err)
	}
	if eigSkull.Len() != tensor.Dim1 {
		return fmt.Errorf("%w: %d skull eigenvalues, tensor dim1 is %d", ErrDimensionMismatch, eigSkull.Len(), tensor.Dim1)
	}

	eigFstt, err := modelio.LoadVector(filepath.Join(dir, EigenvaluesFsttFile))
	if err != nil {
		return fmt.Errorf("cannot load FSTT eigenvalues: %w", err)
	}
	if eigFstt.Len() != tensor.Dim2 {
		return fmt.Errorf("%w: %d FSTT eigenvalues, tensor dim2 is %d", ErrDimensionMismatch, eigFstt.Len(), tensor.Dim2)
	}

	if m.mean != nil && len(m.mean) != tensor.Dim0 {
		return fmt.Errorf("%w: tensor dim0 is %d, mean geometry has %d channels",
			ErrDimensionMismatch, tensor.Dim0, len(m.mean))
	}

	m.tensor = tensor
	m.uSkull = uSkull
	m.uFstt = uFstt
	m.eigenvaluesSkull = eigSkull
	m.eigenvaluesFstt = eigFstt

	m.logger.Info("loaded multilinear model",
		"dim0", tensor.Dim0, "skull_components", tensor.Dim1, "fstt_components", tensor.Dim2)
	return nil
}

// Ready reports whether both load phases have completed.
func (m *Model) Ready() bool {
	return m.tensor != nil && m.mean != nil
}

// Dim0 returns the number of geometry channels.
func (m *Model) Dim0() int {
	if m.tensor == nil {
		return 0
	}
	return m.tensor.Dim0
}

// Dim1 returns the number of skull shape components.
func (m *Model) Dim1() int {
	if m.tensor == nil {
		return 0
	}
	return m.tensor.Dim1
}

// Dim2 returns the number of FSTT distribution components.
func (m *Model) Dim2() int {
	if m.tensor == nil {
		return 0
	}
	return m.tensor.Dim2
}

// USkull returns the skull basis matrix. Callers must not modify it.
func (m *Model) USkull() *mat.Dense { return m.uSkull }

// UFstt returns the FSTT basis matrix. Callers must not modify it.
func (m *Model) UFstt() *mat.Dense { return m.uFstt }

// EigenvaluesSkull returns the skull eigenvalues. Callers must not modify them.
func (m *Model) EigenvaluesSkull() *mat.VecDense { return m.eigenvaluesSkull }

// EigenvaluesFstt returns the FSTT eigenvalues. Callers must not modify them.
func (m *Model) EigenvaluesFstt() *mat.VecDense { return m.eigenvaluesFstt }

// Basis returns the basis matrix of factor f.
func (m *Model) Basis(f models.Factor) *mat.Dense {
	if f == models.FSTT {
		return m.uFstt
	}
	return m.uSkull
}

// Mean returns a copy of the mean geometry vector.
func (m *Model) Mean() []float64 {
	return append([]float64(nil), m.mean...)
}

// NumSkinVertices returns the vertex count of the mean skin mesh.
func (m *Model) NumSkinVertices() int { return m.skinVertices }

// NumSkullVertices returns the vertex count of the mean skull mesh.
func (m *Model) NumSkullVertices() int { return m.skullVertices }

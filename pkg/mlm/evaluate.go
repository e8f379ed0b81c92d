package mlm

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mlmhead/internal/models"
)

// Evaluate computes the skin and skull geometry for the skull parameters
// wSkull and the FSTT parameters wFstt and writes it into skin and skull.
// Vertices are written in the order used to build the mean geometry.
// The parameters are not normalized or clamped.
func (m *Model) Evaluate(skin, skull Surface, wSkull, wFstt []float64) error {
	nSkin, nSkull := skin.NumVertices(), skull.NumVertices()
	if err := m.checkSurfaces(nSkin, nSkull); err != nil {
		return err
	}
	positions, err := m.Reconstruct(wSkull, wFstt)
	if err != nil {
		return err
	}

	c := 0
	for v := 0; v < nSkin; v++ {
		skin.SetVertex(v, models.Point{positions[3*c], positions[3*c+1], positions[3*c+2]})
		c++
	}
	for v := 0; v < nSkull; v++ {
		skull.SetVertex(v, models.Point{positions[3*c], positions[3*c+1], positions[3*c+2]})
		c++
	}
	return nil
}

// Reconstruct returns the flat geometry vector mean + T x1 wSkull x2 wFstt.
func (m *Model) Reconstruct(wSkull, wFstt []float64) ([]float64, error) {
	delta, err := m.Displacement(wSkull, wFstt)
	if err != nil {
		return nil, err
	}
	floats.Add(delta, m.mean)
	return delta, nil
}

// Displacement returns the offset from the mean geometry, T x1 wSkull x2 wFstt.
func (m *Model) Displacement(wSkull, wFstt []float64) ([]float64, error) {
	if err := m.checkParameters(wSkull, wFstt); err != nil {
		return nil, err
	}
	temp := m.contractSkull(wSkull)
	return m.contractFstt(temp, wFstt), nil
}

// contractSkull eliminates mode 1: temp[i][k] = sum_j T[i][j][k] * wSkull[j].
func (m *Model) contractSkull(wSkull []float64) *mat.Dense {
	t := m.tensor
	temp := mat.NewDense(t.Dim0, t.Dim2, nil)
	m.parallelRange(t.Dim0, func(start, end int) {
		for i := start; i < end; i++ {
			row := temp.RawRowView(i)
			slab := t.Slab(i)
			for j := 0; j < t.Dim1; j++ {
				floats.AddScaled(row, wSkull[j], slab[j*t.Dim2:(j+1)*t.Dim2])
			}
		}
	})
	return temp
}

// contractFstt eliminates mode 2: result[i] = sum_k temp[i][k] * wFstt[k].
func (m *Model) contractFstt(temp *mat.Dense, wFstt []float64) []float64 {
	rows, _ := temp.Dims()
	result := make([]float64, rows)
	m.parallelRange(rows, func(start, end int) {
		for i := start; i < end; i++ {
			result[i] = floats.Dot(temp.RawRowView(i), wFstt)
		}
	})
	return result
}

// parallelRange splits [0, n) into one contiguous chunk per core. Chunks
// write disjoint output ranges, so no locking is needed.
func (m *Model) parallelRange(n int, fn func(start, end int)) {
	workers := m.numCores
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

func (m *Model) checkParameters(wSkull, wFstt []float64) error {
	if m.mean == nil {
		return fmt.Errorf("%w: mean geometry is missing", ErrNotLoaded)
	}
	if m.tensor == nil {
		return fmt.Errorf("%w: tensor is missing", ErrNotLoaded)
	}
	t := m.tensor
	if t.Dim0 == 0 || t.Dim1 == 0 || t.Dim2 == 0 {
		return fmt.Errorf("%w: tensor is %dx%dx%d", ErrDimensionMismatch, t.Dim0, t.Dim1, t.Dim2)
	}
	if len(m.mean) != t.Dim0 {
		return fmt.Errorf("%w: mean geometry has %d channels, tensor dim0 is %d", ErrDimensionMismatch, len(m.mean), t.Dim0)
	}
	if len(wSkull) != t.Dim1 {
		return fmt.Errorf("%w: %d skull parameters, model has %d", ErrDimensionMismatch, len(wSkull), t.Dim1)
	}
	if len(wFstt) != t.Dim2 {
		return fmt.Errorf("%w: %d FSTT parameters, model has %d", ErrDimensionMismatch, len(wFstt), t.Dim2)
	}
	return nil
}

func (m *Model) checkSurfaces(nSkin, nSkull int) error {
	if !m.Ready() {
		return ErrNotLoaded
	}
	if 3*(nSkin+nSkull) != m.tensor.Dim0 {
		return fmt.Errorf("%w: meshes have %d+%d vertices, model expects %d channels",
			ErrDimensionMismatch, nSkin, nSkull, m.tensor.Dim0)
	}
	if nSkin != m.skinVertices {
		return fmt.Errorf("%w: skin mesh has %d vertices, mean skin has %d",
			ErrDimensionMismatch, nSkin, m.skinVertices)
	}
	return nil
}

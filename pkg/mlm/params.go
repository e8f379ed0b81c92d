package mlm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mlmhead/internal/models"
	"mlmhead/pkg/modelio"
)

// StepDelta is the parameter increment of a single interactive step.
const StepDelta = 0.075

// MeanParameters returns the column means of the basis matrix u, the
// centroid of the training samples in latent space.
func MeanParameters(u mat.Matrix) []float64 {
	rows, cols := u.Dims()
	w := make([]float64, cols)
	col := make([]float64, rows)
	for j := range w {
		mat.Col(col, j, u)
		w[j] = stat.Mean(col, nil)
	}
	return w
}

// DefaultParameters returns the mean-of-basis parameters of both factors.
func DefaultParameters(m *Model) (wSkull, wFstt []float64, err error) {
	if m.USkull() == nil || m.UFstt() == nil {
		return nil, nil, fmt.Errorf("%w: no basis matrices", ErrNotLoaded)
	}
	return MeanParameters(m.USkull()), MeanParameters(m.UFstt()), nil
}

// LoadParameters fills wSkull and wFstt from two scalar text files. Values
// beyond the vector lengths are ignored. On any failure neither vector is
// modified.
func LoadParameters(wSkull, wFstt []float64, skullPath, fsttPath string) error {
	valsSkull, err := modelio.LoadScalars(skullPath)
	if err != nil {
		return fmt.Errorf("can't load w_skull: %w", err)
	}
	valsFstt, err := modelio.LoadScalars(fsttPath)
	if err != nil {
		return fmt.Errorf("can't load w_fstt: %w", err)
	}

	if len(wSkull) > len(valsSkull) || len(wFstt) > len(valsFstt) {
		return fmt.Errorf("%w: loaded %d skull and %d FSTT values, need %d and %d",
			ErrInsufficientData, len(valsSkull), len(valsFstt), len(wSkull), len(wFstt))
	}
	if len(wSkull) == 0 || len(wFstt) == 0 {
		return fmt.Errorf("%w: no previously initialized parameters w_skull and w_fstt", ErrNotLoaded)
	}

	copy(wSkull, valsSkull)
	copy(wFstt, valsFstt)
	return nil
}

// Step adds steps*StepDelta to component i of w.
func Step(w []float64, i, steps int) error {
	if i < 0 || i >= len(w) {
		return fmt.Errorf("%w: component %d of %d", ErrDimensionMismatch, i, len(w))
	}
	w[i] += float64(steps) * StepDelta
	return nil
}

// factorLen returns the parameter count of factor f.
func (m *Model) factorLen(f models.Factor) int {
	if f == models.FSTT {
		return m.Dim2()
	}
	return m.Dim1()
}

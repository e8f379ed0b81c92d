package modelio

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ReadMatrix decodes a row-major matrix from r.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	dims, err := readHeader(r, 2)
	if err != nil {
		return nil, err
	}
	return readMatrixPayload(r, dims[0], dims[1], streamReserve)
}

func readMatrixPayload(r io.Reader, rows, cols, reserve int) (*mat.Dense, error) {
	count, err := elementCount(rows, cols)
	if err != nil {
		return nil, err
	}
	data, err := readFloat64s(r, count, reserve)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(rows, cols, data), nil
}

// LoadMatrix reads a matrix file. The caller checks the returned
// dimensions against what it expects.
func LoadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load matrix: %w", err)
	}
	defer f.Close()

	dims, err := readHeader(f, 2)
	if err != nil {
		return nil, fmt.Errorf("matrix %s: %w", path, err)
	}
	count, err := elementCount(dims...)
	if err != nil {
		return nil, fmt.Errorf("matrix %s: %w", path, err)
	}
	reserve, err := checkSize(f, 2, count)
	if err != nil {
		return nil, err
	}
	m, err := readMatrixPayload(f, dims[0], dims[1], reserve)
	if err != nil {
		return nil, fmt.Errorf("matrix %s: %w", path, err)
	}
	return m, nil
}

// WriteMatrix encodes m to w in row-major order.
func WriteMatrix(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	if err := writeHeader(w, rows, cols); err != nil {
		return err
	}
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, m)
		if err := writeFloat64s(w, row); err != nil {
			return err
		}
	}
	return nil
}

// SaveMatrix writes m to path.
func SaveMatrix(path string, m mat.Matrix) error {
	return createFile(path, func(w io.Writer) error { return WriteMatrix(w, m) })
}

package modelio

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ReadVector decodes a vector from r.
func ReadVector(r io.Reader) (*mat.VecDense, error) {
	dims, err := readHeader(r, 1)
	if err != nil {
		return nil, err
	}
	return readVectorPayload(r, dims[0], streamReserve)
}

func readVectorPayload(r io.Reader, n, reserve int) (*mat.VecDense, error) {
	if _, err := elementCount(n); err != nil {
		return nil, err
	}
	data, err := readFloat64s(r, n, reserve)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(n, data), nil
}

// LoadVector reads a vector file.
func LoadVector(path string) (*mat.VecDense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load vector: %w", err)
	}
	defer f.Close()

	dims, err := readHeader(f, 1)
	if err != nil {
		return nil, fmt.Errorf("vector %s: %w", path, err)
	}
	if _, err := elementCount(dims[0]); err != nil {
		return nil, fmt.Errorf("vector %s: %w", path, err)
	}
	reserve, err := checkSize(f, 1, dims[0])
	if err != nil {
		return nil, err
	}
	v, err := readVectorPayload(f, dims[0], reserve)
	if err != nil {
		return nil, fmt.Errorf("vector %s: %w", path, err)
	}
	return v, nil
}

// WriteVector encodes v to w.
func WriteVector(w io.Writer, v mat.Vector) error {
	n := v.Len()
	if err := writeHeader(w, n); err != nil {
		return err
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return writeFloat64s(w, data)
}

// SaveVector writes v to path.
func SaveVector(path string, v mat.Vector) error {
	return createFile(path, func(w io.Writer) error { return WriteVector(w, v) })
}

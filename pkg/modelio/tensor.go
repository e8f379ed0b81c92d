package modelio

import (
	"fmt"
	"io"
	"os"

	"mlmhead/internal/models"
)

// ReadTensor decodes a tensor from r.
func ReadTensor(r io.Reader) (*models.Tensor, error) {
	dims, err := readHeader(r, 3)
	if err != nil {
		return nil, err
	}
	return readTensorPayload(r, dims, streamReserve)
}

func readTensorPayload(r io.Reader, dims []int, reserve int) (*models.Tensor, error) {
	count, err := elementCount(dims...)
	if err != nil {
		return nil, err
	}
	data, err := readFloat64s(r, count, reserve)
	if err != nil {
		return nil, err
	}
	return &models.Tensor{Dim0: dims[0], Dim1: dims[1], Dim2: dims[2], Data: data}, nil
}

// LoadTensor reads a tensor file. The declared dimensions are checked
// against the file size before the payload is allocated.
func LoadTensor(path string) (*models.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load tensor: %w", err)
	}
	defer f.Close()

	dims, err := readHeader(f, 3)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", path, err)
	}
	count, err := elementCount(dims...)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", path, err)
	}
	reserve, err := checkSize(f, 3, count)
	if err != nil {
		return nil, err
	}
	t, err := readTensorPayload(f, dims, reserve)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", path, err)
	}
	return t, nil
}

// WriteTensor encodes t to w.
func WriteTensor(w io.Writer, t *models.Tensor) error {
	if len(t.Data) != t.Len() {
		return fmt.Errorf("%w: tensor %dx%dx%d holds %d values", ErrInvalidHeader, t.Dim0, t.Dim1, t.Dim2, len(t.Data))
	}
	if err := writeHeader(w, t.Dim0, t.Dim1, t.Dim2); err != nil {
		return err
	}
	return writeFloat64s(w, t.Data)
}

// SaveTensor writes t to path.
func SaveTensor(path string, t *models.Tensor) error {
	return createFile(path, func(w io.Writer) error { return WriteTensor(w, t) })
}

// Package modelio reads and writes the flat binary and text files that make
// up a multilinear model bundle.
//
// All binary files share the same layout: one or more unsigned 32-bit
// dimension counts followed by a flat payload of float64 values. There is no
// magic number and no version field. Values are little-endian.
//
//	tensor  uint32 dim0, uint32 dim1, uint32 dim2, dim0*dim1*dim2 x float64
//	matrix  uint32 rows, uint32 cols, rows*cols x float64 (row-major)
//	vector  uint32 count, count x float64
//
// Scalar files are plain text holding whitespace-separated numbers.
package modelio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	// ErrTruncated is returned when a payload is shorter than its header declares.
	ErrTruncated = errors.New("modelio: truncated payload")

	// ErrInvalidHeader is returned for zero or overflowing dimension counts.
	ErrInvalidHeader = errors.New("modelio: invalid header")

	// ErrEmpty is returned when a scalar file holds no values.
	ErrEmpty = errors.New("modelio: no values")
)

// byteOrder is the on-disk byte order of every binary model file.
var byteOrder = binary.LittleEndian

const (
	float64Size = 8
	uint32Size  = 4

	// chunkValues bounds the scratch buffer used while decoding payloads.
	chunkValues = 8192
)

// readHeader reads n uint32 dimension counts.
func readHeader(r io.Reader, n int) ([]int, error) {
	raw := make([]uint32, n)
	if err := binary.Read(r, byteOrder, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: header needs %d bytes", ErrTruncated, n*uint32Size)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	dims := make([]int, n)
	for i, d := range raw {
		dims[i] = int(d)
	}
	return dims, nil
}

// elementCount multiplies dims, rejecting zeros and overflow.
func elementCount(dims ...int) (int, error) {
	count := 1
	for _, d := range dims {
		if d <= 0 {
			return 0, fmt.Errorf("%w: dimensions %v contain zero", ErrInvalidHeader, dims)
		}
		if count > math.MaxInt/float64Size/d {
			return 0, fmt.Errorf("%w: dimensions %v overflow", ErrInvalidHeader, dims)
		}
		count *= d
	}
	return count, nil
}

// readFloat64s decodes count values from r in bounded chunks. Only reserve
// values are allocated up front and the rest grows as data arrives, so a
// header declaring more values than the stream holds fails with
// ErrTruncated instead of allocating the declared size.
func readFloat64s(r io.Reader, count, reserve int) ([]float64, error) {
	dst := make([]float64, 0, min(count, max(reserve, chunkValues)))
	buf := make([]byte, min(count, chunkValues)*float64Size)
	for len(dst) < count {
		n := min(count-len(dst), chunkValues)
		chunk := buf[:n*float64Size]
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: expected %d values, file ended after about %d", ErrTruncated, count, len(dst))
			}
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		for i := 0; i < n; i++ {
			dst = append(dst, math.Float64frombits(byteOrder.Uint64(chunk[i*float64Size:])))
		}
	}
	return dst, nil
}

// writeFloat64s encodes src to w in bounded chunks.
func writeFloat64s(w io.Writer, src []float64) error {
	buf := make([]byte, min(len(src), chunkValues)*float64Size)
	for off := 0; off < len(src); {
		n := min(len(src)-off, chunkValues)
		chunk := buf[:n*float64Size]
		for i := 0; i < n; i++ {
			byteOrder.PutUint64(chunk[i*float64Size:], math.Float64bits(src[off+i]))
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write payload: %w", err)
		}
		off += n
	}
	return nil
}

// writeHeader writes dims as uint32 counts.
func writeHeader(w io.Writer, dims ...int) error {
	raw := make([]uint32, len(dims))
	for i, d := range dims {
		if d < 0 || d > math.MaxUint32 {
			return fmt.Errorf("%w: dimension %d does not fit in uint32", ErrInvalidHeader, d)
		}
		raw[i] = uint32(d)
	}
	if err := binary.Write(w, byteOrder, raw); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// streamReserve is the reserve for readers whose length is unknown.
const streamReserve = chunkValues

// checkSize rejects files smaller than the header plus count values and
// returns how many values may be allocated before reading. Only regular
// files can be checked; other readers get streamReserve and rely on
// io.ReadFull.
func checkSize(f *os.File, headerFields, count int) (int, error) {
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return streamReserve, nil
	}
	want := int64(headerFields*uint32Size) + int64(count)*float64Size
	if info.Size() < want {
		return 0, fmt.Errorf("%w: %s has %d bytes, header declares %d", ErrTruncated, f.Name(), info.Size(), want)
	}
	return count, nil
}

// createFile opens path for writing and runs write against it, reporting
// close errors that would otherwise lose buffered data.
func createFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return write(f)
}

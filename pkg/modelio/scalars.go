package modelio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadScalars parses whitespace-separated numbers from r until end of input.
// Reading stops quietly at the first token that is not a finite decimal
// number, so "inf", "nan" and hex floats end the list.
func ReadScalars(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var values []float64
	for sc.Scan() {
		v, ok := parseScalar(sc.Text())
		if !ok {
			break
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scalars: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrEmpty
	}
	return values, nil
}

func parseScalar(tok string) (float64, bool) {
	digits := strings.TrimLeft(tok, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, false
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// LoadScalars reads a scalar text file. It fails if the file is missing or
// yields no values.
func LoadScalars(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read scalars: %w", err)
	}
	defer f.Close()

	values, err := ReadScalars(f)
	if err != nil {
		return nil, fmt.Errorf("scalars %s: %w", path, err)
	}
	return values, nil
}

// WriteScalars writes one value per line with full precision.
func WriteScalars(w io.Writer, values []float64) error {
	bw := bufio.NewWriter(w)
	for _, v := range values {
		bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// SaveScalars writes values to path.
func SaveScalars(path string, values []float64) error {
	return createFile(path, func(w io.Writer) error { return WriteScalars(w, values) })
}

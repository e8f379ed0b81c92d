package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mlmhead/internal/models"
)

// lineReader yields non-empty lines with comments stripped.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &lineReader{sc: sc}
}

// next returns the fields of the next meaningful line, or io.EOF.
func (lr *lineReader) next() ([]string, error) {
	for lr.sc.Scan() {
		lr.line++
		text := lr.sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) > 0 {
			return fields, nil
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (lr *lineReader) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrFormat, lr.line, fmt.Sprintf(format, args...))
}

// maxPrealloc caps the capacity reserved from the element counts in a header.
const maxPrealloc = 1 << 20

// ReadOFF parses an ASCII OFF mesh. Per-vertex colors or other trailing
// values after x y z are ignored.
func ReadOFF(r io.Reader) (*SurfaceMesh, error) {
	lr := newLineReader(r)

	fields, err := lr.next()
	if err != nil {
		return nil, fmt.Errorf("%w: missing OFF header", ErrFormat)
	}
	if !strings.HasSuffix(fields[0], "OFF") {
		return nil, lr.errorf("expected OFF header, got %q", fields[0])
	}
	// counts may follow the keyword on the same line
	counts := fields[1:]
	if len(counts) == 0 {
		if counts, err = lr.next(); err != nil {
			return nil, fmt.Errorf("%w: missing element counts", ErrFormat)
		}
	}
	if len(counts) < 2 {
		return nil, lr.errorf("expected vertex and face counts")
	}
	nv, err1 := strconv.Atoi(counts[0])
	nf, err2 := strconv.Atoi(counts[1])
	if err1 != nil || err2 != nil || nv < 0 || nf < 0 {
		return nil, lr.errorf("invalid element counts %v", counts)
	}

	// the header is not trusted for allocation; slices grow as lines arrive
	m := &SurfaceMesh{
		Vertices: make([]models.Point, 0, min(nv, maxPrealloc)),
		Faces:    make([][]int, 0, min(nf, maxPrealloc)),
	}
	for i := 0; i < nv; i++ {
		fields, err := lr.next()
		if err != nil {
			return nil, fmt.Errorf("%w: expected %d vertices, got %d", ErrFormat, nv, i)
		}
		p, err := parsePoint(fields)
		if err != nil {
			return nil, lr.errorf("%v", err)
		}
		m.Vertices = append(m.Vertices, p)
	}
	for i := 0; i < nf; i++ {
		fields, err := lr.next()
		if err != nil {
			return nil, fmt.Errorf("%w: expected %d faces, got %d", ErrFormat, nf, i)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 3 || len(fields) < n+1 {
			return nil, lr.errorf("invalid face %v", fields)
		}
		face := make([]int, n)
		for k := 0; k < n; k++ {
			idx, err := strconv.Atoi(fields[k+1])
			if err != nil || idx < 0 || idx >= nv {
				return nil, lr.errorf("face index %q out of range", fields[k+1])
			}
			face[k] = idx
		}
		m.Faces = append(m.Faces, face)
	}
	return m, nil
}

// WriteOFF writes m as an ASCII OFF mesh.
func WriteOFF(w io.Writer, m *SurfaceMesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "OFF")
	fmt.Fprintf(bw, "%d %d 0\n", len(m.Vertices), len(m.Faces))
	for _, v := range m.Vertices {
		writePoint(bw, v)
	}
	for _, f := range m.Faces {
		bw.WriteString(strconv.Itoa(len(f)))
		for _, idx := range f {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(idx))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadXYZ parses a point set with one "x y z" triple per line.
func ReadXYZ(r io.Reader) (*SurfaceMesh, error) {
	lr := newLineReader(r)
	m := &SurfaceMesh{}
	for {
		fields, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := parsePoint(fields)
		if err != nil {
			return nil, lr.errorf("%v", err)
		}
		m.Vertices = append(m.Vertices, p)
	}
	return m, nil
}

func parsePoint(fields []string) (models.Point, error) {
	var p models.Point
	if len(fields) < 3 {
		return p, fmt.Errorf("expected 3 coordinates, got %d", len(fields))
	}
	for k := 0; k < 3; k++ {
		v, err := strconv.ParseFloat(fields[k], 64)
		if err != nil {
			return p, fmt.Errorf("invalid coordinate %q", fields[k])
		}
		p[k] = v
	}
	return p, nil
}

func writePoint(bw *bufio.Writer, p models.Point) {
	for k := 0; k < 3; k++ {
		if k > 0 {
			bw.WriteByte(' ')
		}
		bw.WriteString(strconv.FormatFloat(p[k], 'g', -1, 64))
	}
	bw.WriteByte('\n')
}

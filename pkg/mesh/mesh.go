// Package mesh provides the surface mesh used as input and output of the
// multilinear model: an indexed vertex list with polygonal faces, read from
// and written to OFF files. Vertex order is the order of the file and never
// changes, so the same traversal is used when building mean geometry and when
// writing evaluated positions back.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"mlmhead/internal/models"
)

// ErrFormat is returned for malformed mesh or point set files.
var ErrFormat = errors.New("mesh: malformed file")

// SurfaceMesh is a polygon mesh with a fixed vertex order.
type SurfaceMesh struct {
	// Vertices are the vertex positions in file order
	Vertices []models.Point

	// Faces index into Vertices; point sets have none
	Faces [][]int
}

// NumVertices returns the number of vertices.
func (m *SurfaceMesh) NumVertices() int { return len(m.Vertices) }

// NumFaces returns the number of faces.
func (m *SurfaceMesh) NumFaces() int { return len(m.Faces) }

// Vertex returns the position of vertex i.
func (m *SurfaceMesh) Vertex(i int) models.Point { return m.Vertices[i] }

// SetVertex moves vertex i to p.
func (m *SurfaceMesh) SetVertex(i int, p models.Point) { m.Vertices[i] = p }

// Clone returns a deep copy of vertices and faces.
func (m *SurfaceMesh) Clone() *SurfaceMesh {
	c := &SurfaceMesh{
		Vertices: make([]models.Point, len(m.Vertices)),
		Faces:    make([][]int, len(m.Faces)),
	}
	copy(c.Vertices, m.Vertices)
	for i, f := range m.Faces {
		c.Faces[i] = append([]int(nil), f...)
	}
	return c
}

// Bounds returns the axis-aligned bounding box of the vertices.
func (m *SurfaceMesh) Bounds() (lo, hi models.Point) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	for k := 0; k < 3; k++ {
		lo[k] = math.Inf(1)
		hi[k] = math.Inf(-1)
	}
	for _, v := range m.Vertices {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	return lo, hi
}

// Triangles fan-triangulates every face.
func (m *SurfaceMesh) Triangles() [][3]int {
	var tris [][3]int
	for _, f := range m.Faces {
		for k := 1; k+1 < len(f); k++ {
			tris = append(tris, [3]int{f[0], f[k], f[k+1]})
		}
	}
	return tris
}

// Read loads a mesh, choosing the format from the file extension.
// Supported are .off meshes and .xyz point sets.
func Read(path string) (*SurfaceMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read mesh: %w", err)
	}
	defer f.Close()

	var m *SurfaceMesh
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".off":
		m, err = ReadOFF(f)
	case ".xyz":
		m, err = ReadXYZ(f)
	default:
		return nil, fmt.Errorf("unsupported mesh format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	return m, nil
}

// Write saves a mesh as OFF.
func Write(path string, m *SurfaceMesh) (err error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".off" {
		return fmt.Errorf("unsupported mesh format %q", ext)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write mesh: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return WriteOFF(f, m)
}

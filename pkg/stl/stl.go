// Package stl writes triangulated surfaces as binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"mlmhead/pkg/mesh"
)

// Triangle is one facet of an STL file
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// FromMesh triangulates every face of m and computes facet normals.
func FromMesh(m *mesh.SurfaceMesh) []Triangle {
	tris := m.Triangles()
	out := make([]Triangle, 0, len(tris))
	for _, t := range tris {
		a, b, c := m.Vertex(t[0]), m.Vertex(t[1]), m.Vertex(t[2])
		tri := Triangle{
			Vertex1: [3]float32{float32(a[0]), float32(a[1]), float32(a[2])},
			Vertex2: [3]float32{float32(b[0]), float32(b[1]), float32(b[2])},
			Vertex3: [3]float32{float32(c[0]), float32(c[1]), float32(c[2])},
		}

		// cross product of the two edges leaving a
		ux, uy, uz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
		vx, vy, vz := c[0]-a[0], c[1]-a[1], c[2]-a[2]
		nx := uy*vz - uz*vy
		ny := uz*vx - ux*vz
		nz := ux*vy - uy*vx
		if l := math.Sqrt(nx*nx + ny*ny + nz*nz); l > 0 {
			tri.Normal = [3]float32{float32(nx / l), float32(ny / l), float32(nz / l)}
		}
		out = append(out, tri)
	}
	return out
}

// Write encodes triangles in binary STL: an 80 byte header, a uint32
// triangle count and 50 bytes per triangle.
func Write(w io.Writer, triangles []Triangle) error {
	bw := bufio.NewWriter(w)

	var header [80]byte
	copy(header[:], "mlmhead binary STL")
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	var attr uint16
	for _, t := range triangles {
		for _, v := range [][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		if err := binary.Write(bw, binary.LittleEndian, attr); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveToSTL writes triangles to filename
func SaveToSTL(filename string, triangles []Triangle) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Write(file, triangles)
}

// SaveMesh triangulates m and writes it to filename
func SaveMesh(filename string, m *mesh.SurfaceMesh) error {
	return SaveToSTL(filename, FromMesh(m))
}

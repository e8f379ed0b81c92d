// Package fit measures how closely a reconstructed surface matches a set of
// target points, such as landmarks picked on a scan.
package fit

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"mlmhead/internal/models"
)

// ErrNoPoints is returned when the surface or the target set is empty.
var ErrNoPoints = errors.New("fit: no points")

// Shape is a read-only vertex list.
type Shape interface {
	NumVertices() int
	Vertex(i int) models.Point
}

// vertex is a surface vertex stored in the k-d tree.
type vertex struct {
	models.Point
	index int
}

// Compare implements the kdtree.Comparable interface
func (p vertex) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(vertex)
	return p.Point[d] - q.Point[d]
}

// Dims returns the number of dimensions
func (p vertex) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p vertex) Distance(c kdtree.Comparable) float64 {
	q := c.(vertex)
	dx := p.Point[0] - q.Point[0]
	dy := p.Point[1] - q.Point[1]
	dz := p.Point[2] - q.Point[2]
	return dx*dx + dy*dy + dz*dz
}

// vertices satisfies kdtree.Interface
type vertices []vertex

func (p vertices) Index(i int) kdtree.Comparable         { return p[i] }
func (p vertices) Len() int                              { return len(p) }
func (p vertices) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p vertices) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{vertices: p, Dim: d}, kdtree.MedianOfRandoms(plane{vertices: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for vertices
type plane struct {
	vertices
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.vertices[i].Point[p.Dim] < p.vertices[j].Point[p.Dim]
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{vertices: p.vertices[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.vertices[i], p.vertices[j] = p.vertices[j], p.vertices[i]
}

// Index answers nearest-vertex queries against a fixed surface. Rebuild it
// after the surface is re-evaluated.
type Index struct {
	tree *kdtree.Tree
	n    int
}

// NewIndex builds a k-d tree over the vertices of s.
func NewIndex(s Shape) (*Index, error) {
	n := s.NumVertices()
	if n == 0 {
		return nil, ErrNoPoints
	}
	pts := make(vertices, n)
	for i := range pts {
		pts[i] = vertex{Point: s.Vertex(i), index: i}
	}
	return &Index{tree: kdtree.New(pts, false), n: n}, nil
}

// Nearest returns the index of the surface vertex closest to p and its
// Euclidean distance.
func (idx *Index) Nearest(p models.Point) (int, float64) {
	got, d2 := idx.tree.Nearest(vertex{Point: p})
	return got.(vertex).index, math.Sqrt(d2)
}

// Report summarizes the distances from each target point to its nearest
// surface vertex.
type Report struct {
	Points int     `json:"points"`
	Mean   float64 `json:"mean"`
	RMS    float64 `json:"rms"`
	Max    float64 `json:"max"`

	// MaxIndex is the target point with the largest distance
	MaxIndex int `json:"max_index"`

	// Distances holds one value per target point
	Distances []float64 `json:"distances,omitempty"`
}

// Measure matches every target point to its nearest vertex of s.
func Measure(s Shape, targets []models.Point) (*Report, error) {
	if len(targets) == 0 {
		return nil, ErrNoPoints
	}
	idx, err := NewIndex(s)
	if err != nil {
		return nil, err
	}
	return idx.Measure(targets), nil
}

// Measure matches every target point to its nearest indexed vertex.
// targets must not be empty.
func (idx *Index) Measure(targets []models.Point) *Report {
	dist := make([]float64, len(targets))
	for i, p := range targets {
		_, dist[i] = idx.Nearest(p)
	}

	sq := make([]float64, len(dist))
	floats.MulTo(sq, dist, dist)

	return &Report{
		Points:    len(dist),
		Mean:      stat.Mean(dist, nil),
		RMS:       math.Sqrt(stat.Mean(sq, nil)),
		Max:       floats.Max(dist),
		MaxIndex:  floats.MaxIdx(dist),
		Distances: dist,
	}
}

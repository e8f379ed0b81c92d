package fit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
)

func TestMeasure(t *testing.T) {
	surface := &mesh.SurfaceMesh{Vertices: []models.Point{
		{0, 0, 0},
		{10, 0, 0},
		{0, 10, 0},
	}}
	targets := []models.Point{
		{0, 0, 0},  // on a vertex
		{10, 0, 3}, // 3 above vertex 1
		{0, 14, 0}, // 4 beyond vertex 2
	}

	r, err := Measure(surface, targets)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Points)
	assert.InDeltaSlice(t, []float64{0, 3, 4}, r.Distances, 1e-12)
	assert.InDelta(t, 7.0/3, r.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(25.0/3), r.RMS, 1e-12)
	assert.InDelta(t, 4, r.Max, 1e-12)
	assert.Equal(t, 2, r.MaxIndex)
}

func TestMeasureEmpty(t *testing.T) {
	surface := &mesh.SurfaceMesh{Vertices: []models.Point{{1, 2, 3}}}

	_, err := Measure(surface, nil)
	assert.ErrorIs(t, err, ErrNoPoints)

	_, err = Measure(&mesh.SurfaceMesh{}, []models.Point{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrNoPoints)
}

func TestNearestMatchesLinearScan(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	surface := &mesh.SurfaceMesh{Vertices: make([]models.Point, 500)}
	for i := range surface.Vertices {
		surface.Vertices[i] = models.Point{rnd.Float64() * 100, rnd.Float64() * 100, rnd.Float64() * 100}
	}

	idx, err := NewIndex(surface)
	require.NoError(t, err)

	for q := 0; q < 50; q++ {
		p := models.Point{rnd.Float64() * 120, rnd.Float64() * 120, rnd.Float64() * 120}

		best, bestDist := -1, math.Inf(1)
		for i, v := range surface.Vertices {
			d := math.Sqrt((v[0]-p[0])*(v[0]-p[0]) + (v[1]-p[1])*(v[1]-p[1]) + (v[2]-p[2])*(v[2]-p[2]))
			if d < bestDist {
				best, bestDist = i, d
			}
		}

		got, dist := idx.Nearest(p)
		assert.InDelta(t, bestDist, dist, 1e-9)
		assert.Equal(t, best, got)
	}
}

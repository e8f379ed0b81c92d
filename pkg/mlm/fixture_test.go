package mlm

import (
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
	"mlmhead/pkg/modelio"
)

// bundle is a synthetic model directory plus the data written to it.
type bundle struct {
	dir string

	skin  *mesh.SurfaceMesh
	skull *mesh.SurfaceMesh

	tensor   *models.Tensor
	uSkull   *mat.Dense
	uFstt    *mat.Dense
	eigSkull *mat.VecDense
	eigFstt  *mat.VecDense
}

var quietParams = &Params{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

// newBundle builds random model data of the requested size, writes it to a
// temporary directory and returns it.
func newBundle(t testing.TB, nSkin, nSkull, dim1, dim2 int, seed int64) *bundle {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))

	b := &bundle{
		dir:    t.TempDir(),
		skin:   randomMesh(rnd, nSkin),
		skull:  randomMesh(rnd, nSkull),
		tensor: models.NewTensor(3*(nSkin+nSkull), dim1, dim2),
	}
	for i := range b.tensor.Data {
		b.tensor.Data[i] = rnd.NormFloat64()
	}
	b.uSkull = randomDense(rnd, 5, dim1)
	b.uFstt = randomDense(rnd, 3, dim2)
	b.eigSkull = descendingVec(dim1)
	b.eigFstt = descendingVec(dim2)

	b.write(t)
	return b
}

func (b *bundle) write(t testing.TB) {
	t.Helper()
	require.NoError(t, modelio.SaveTensor(filepath.Join(b.dir, TensorFile), b.tensor))
	require.NoError(t, modelio.SaveMatrix(filepath.Join(b.dir, USkullFile), b.uSkull))
	require.NoError(t, modelio.SaveMatrix(filepath.Join(b.dir, UFsttFile), b.uFstt))
	require.NoError(t, modelio.SaveVector(filepath.Join(b.dir, EigenvaluesSkullFile), b.eigSkull))
	require.NoError(t, modelio.SaveVector(filepath.Join(b.dir, EigenvaluesFsttFile), b.eigFstt))
	require.NoError(t, mesh.Write(filepath.Join(b.dir, "skin.off"), b.skin))
	require.NoError(t, mesh.Write(filepath.Join(b.dir, "skull.off"), b.skull))
}

// load returns a fully loaded model for the bundle.
func (b *bundle) load(t testing.TB, numCores int) *Model {
	t.Helper()
	m := NewModel(&Params{NumCores: numCores, Logger: quietParams.Logger})
	require.NoError(t, m.LoadMeansFromShapes(b.skin, b.skull))
	require.NoError(t, m.Load(b.dir))
	return m
}

func randomMesh(rnd *rand.Rand, n int) *mesh.SurfaceMesh {
	m := &mesh.SurfaceMesh{Vertices: make([]models.Point, n)}
	for i := range m.Vertices {
		m.Vertices[i] = models.Point{rnd.Float64() * 100, rnd.Float64() * 100, rnd.Float64() * 100}
	}
	for i := 0; i+2 < n; i++ {
		m.Faces = append(m.Faces, []int{i, i + 1, i + 2})
	}
	return m
}

func randomDense(rnd *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rnd.Float64()
	}
	return mat.NewDense(r, c, data)
}

// descendingVec mimics eigenvalues sorted from largest to smallest.
func descendingVec(n int) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(n - i)
	}
	return mat.NewVecDense(n, data)
}

// naiveDisplacement evaluates sum_j sum_k T[i][j][k] w1[j] w2[k] directly.
func naiveDisplacement(t *models.Tensor, w1, w2 []float64) []float64 {
	out := make([]float64, t.Dim0)
	for i := 0; i < t.Dim0; i++ {
		for j := 0; j < t.Dim1; j++ {
			for k := 0; k < t.Dim2; k++ {
				out[i] += t.At(i, j, k) * w1[j] * w2[k]
			}
		}
	}
	return out
}

func flatten(meshes ...*mesh.SurfaceMesh) []float64 {
	var out []float64
	for _, m := range meshes {
		for _, v := range m.Vertices {
			out = append(out, v[0], v[1], v[2])
		}
	}
	return out
}

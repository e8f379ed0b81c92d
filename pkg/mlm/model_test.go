package mlm

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
	"mlmhead/pkg/modelio"
)

func TestEvaluateConcatenationOrder(t *testing.T) {
	// 2 skin vertices and 3 skull vertices give 15 geometry channels
	skin := &mesh.SurfaceMesh{Vertices: []models.Point{{0, 1, 2}, {10, 11, 12}}}
	skull := &mesh.SurfaceMesh{Vertices: []models.Point{{100, 101, 102}, {110, 111, 112}, {120, 121, 122}}}

	// only T[i][0][0] = i+1 is non-zero, so delta[i] = (i+1) * w1[0] * w2[0]
	tensor := models.NewTensor(15, 2, 2)
	for i := 0; i < 15; i++ {
		tensor.Set(i, 0, 0, float64(i+1))
		tensor.Set(i, 1, 1, 1000)
	}

	m := NewModel(quietParams)
	require.NoError(t, m.LoadMeansFromShapes(skin, skull))
	m.tensor = tensor

	outSkin, outSkull := skin.Clone(), skull.Clone()
	require.NoError(t, m.Evaluate(outSkin, outSkull, []float64{2, 0}, []float64{3, 0}))

	for v := 0; v < 2; v++ {
		for c := 0; c < 3; c++ {
			want := skin.Vertices[v][c] + 6*float64(3*v+c+1)
			assert.Equal(t, want, outSkin.Vertices[v][c], "skin vertex %d coord %d", v, c)
		}
	}
	for v := 0; v < 3; v++ {
		for c := 0; c < 3; c++ {
			want := skull.Vertices[v][c] + 6*float64(3*(2+v)+c+1)
			assert.Equal(t, want, outSkull.Vertices[v][c], "skull vertex %d coord %d", v, c)
		}
	}
}

func TestEvaluateMatchesDirectSum(t *testing.T) {
	b := newBundle(t, 7, 11, 4, 3, 1)
	m := b.load(t, 3)

	wSkull := []float64{0.5, -1.25, 2, 0.1}
	wFstt := []float64{-0.3, 0.7, 1.5}

	delta, err := m.Displacement(wSkull, wFstt)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(naiveDisplacement(b.tensor, wSkull, wFstt), delta, 1e-9))

	skin, skull := b.skin.Clone(), b.skull.Clone()
	require.NoError(t, m.Evaluate(skin, skull, wSkull, wFstt))

	want := flatten(b.skin, b.skull)
	floats.Add(want, naiveDisplacement(b.tensor, wSkull, wFstt))
	assert.True(t, floats.EqualApprox(want, flatten(skin, skull), 1e-9))
}

func TestEvaluateZeroWeightsGivesMean(t *testing.T) {
	b := newBundle(t, 5, 4, 3, 2, 2)
	m := b.load(t, 2)

	skin, skull := b.skin.Clone(), b.skull.Clone()
	for i := range skin.Vertices {
		skin.Vertices[i] = models.Point{-1, -1, -1}
	}
	require.NoError(t, m.Evaluate(skin, skull, make([]float64, 3), make([]float64, 2)))

	assert.Equal(t, b.skin.Vertices, skin.Vertices)
	assert.Equal(t, b.skull.Vertices, skull.Vertices)
	assert.Equal(t, m.Mean(), flatten(skin, skull))
}

func TestEvaluateLinearInEachFactor(t *testing.T) {
	b := newBundle(t, 6, 6, 5, 4, 3)
	m := b.load(t, 4)
	mean := m.Mean()

	wSkull := []float64{0.2, -0.4, 1.1, 0.05, -2}
	wFstt := []float64{1, 0.5, -0.25, 0.75}
	const alpha = 2.5

	base, err := m.Reconstruct(wSkull, wFstt)
	require.NoError(t, err)
	floats.Sub(base, mean)

	t.Run("skull", func(t *testing.T) {
		scaled := append([]float64(nil), wSkull...)
		floats.Scale(alpha, scaled)
		got, err := m.Reconstruct(scaled, wFstt)
		require.NoError(t, err)
		floats.Sub(got, mean)

		want := append([]float64(nil), base...)
		floats.Scale(alpha, want)
		assert.True(t, floats.EqualApprox(want, got, 1e-8))
	})

	t.Run("fstt", func(t *testing.T) {
		scaled := append([]float64(nil), wFstt...)
		floats.Scale(alpha, scaled)
		got, err := m.Reconstruct(wSkull, scaled)
		require.NoError(t, err)
		floats.Sub(got, mean)

		want := append([]float64(nil), base...)
		floats.Scale(alpha, want)
		assert.True(t, floats.EqualApprox(want, got, 1e-8))
	})
}

func TestEvaluateDeterministic(t *testing.T) {
	b := newBundle(t, 40, 60, 6, 5, 4)
	wSkull := []float64{1, 2, 3, -1, -2, -3}
	wFstt := []float64{0.1, 0.2, 0.3, 0.4, 0.5}

	m := b.load(t, 4)
	first, err := m.Reconstruct(wSkull, wFstt)
	require.NoError(t, err)
	second, err := m.Reconstruct(wSkull, wFstt)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// the chunking over cores does not change any output value
	serial, err := b.load(t, 1).Reconstruct(wSkull, wFstt)
	require.NoError(t, err)
	assert.Equal(t, first, serial)

	// evaluation does not mutate the model
	assert.Equal(t, flatten(b.skin, b.skull), m.Mean())
}

func TestEvaluateConcurrentDisjointMeshes(t *testing.T) {
	b := newBundle(t, 20, 30, 3, 3, 5)
	m := b.load(t, 2)

	want, err := m.Reconstruct([]float64{1, 0, -1}, []float64{0.5, 0.5, 0.5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]float64, 8)
	errs := make([]error, 8)
	for g := range results {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			skin, skull := b.skin.Clone(), b.skull.Clone()
			errs[g] = m.Evaluate(skin, skull, []float64{1, 0, -1}, []float64{0.5, 0.5, 0.5})
			results[g] = flatten(skin, skull)
		}(g)
	}
	wg.Wait()

	for g := range results {
		require.NoError(t, errs[g])
		assert.Equal(t, want, results[g])
	}
}

func TestEvaluatePreconditions(t *testing.T) {
	b := newBundle(t, 3, 4, 2, 2, 6)
	m := b.load(t, 2)
	ok2 := []float64{1, 1}

	tests := []struct {
		name    string
		skin    *mesh.SurfaceMesh
		skull   *mesh.SurfaceMesh
		wSkull  []float64
		wFstt   []float64
		wantErr error
	}{
		{"short skull parameters", b.skin, b.skull, []float64{1}, ok2, ErrDimensionMismatch},
		{"long FSTT parameters", b.skin, b.skull, ok2, []float64{1, 2, 3}, ErrDimensionMismatch},
		{"nil parameters", b.skin, b.skull, nil, nil, ErrDimensionMismatch},
		{"vertex count mismatch", b.skin, b.skin, ok2, ok2, ErrDimensionMismatch},
		{"swapped meshes", b.skull, b.skin, ok2, ok2, ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skin, skull := tt.skin.Clone(), tt.skull.Clone()
			err := m.Evaluate(skin, skull, tt.wSkull, tt.wFstt)
			assert.ErrorIs(t, err, tt.wantErr)
			// nothing is written on failure
			assert.Equal(t, tt.skin.Vertices, skin.Vertices)
		})
	}

	t.Run("not loaded", func(t *testing.T) {
		empty := NewModel(quietParams)
		err := empty.Evaluate(b.skin.Clone(), b.skull.Clone(), ok2, ok2)
		assert.ErrorIs(t, err, ErrNotLoaded)

		_, err = empty.Reconstruct(ok2, ok2)
		assert.ErrorIs(t, err, ErrNotLoaded)

		meansOnly := NewModel(quietParams)
		require.NoError(t, meansOnly.LoadMeansFromShapes(b.skin, b.skull))
		assert.False(t, meansOnly.Ready())
		err = meansOnly.Evaluate(b.skin.Clone(), b.skull.Clone(), ok2, ok2)
		assert.ErrorIs(t, err, ErrNotLoaded)
	})
}

func TestLoadRejectsInconsistentBundles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *bundle)
	}{
		{"U_skull columns", func(b *bundle) { b.uSkull = mat.NewDense(5, 4, nil) }},
		{"U_fstt columns", func(b *bundle) { b.uFstt = mat.NewDense(3, 1, nil) }},
		{"skull eigenvalues", func(b *bundle) { b.eigSkull = descendingVec(2) }},
		{"FSTT eigenvalues", func(b *bundle) { b.eigFstt = descendingVec(5) }},
		{"tensor dim0", func(b *bundle) { b.tensor = models.NewTensor(b.tensor.Dim0+3, 3, 2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBundle(t, 4, 4, 3, 2, 7)
			tt.mutate(b)
			b.write(t)

			m := NewModel(quietParams)
			require.NoError(t, m.LoadMeansFromShapes(b.skin, b.skull))
			err := m.Load(b.dir)
			assert.ErrorIs(t, err, ErrDimensionMismatch)

			// a failed load leaves the model without a tensor
			assert.False(t, m.Ready())
			assert.Zero(t, m.Dim0())
			assert.Nil(t, m.USkull())
		})
	}
}

func TestLoadFailuresKeepPreviousModel(t *testing.T) {
	b := newBundle(t, 4, 4, 3, 2, 8)
	m := b.load(t, 1)

	broken := t.TempDir()
	err := m.Load(broken)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.True(t, m.Ready())
	assert.Equal(t, 3, m.Dim1())
	assert.Equal(t, 2, m.Dim2())
}

func TestLoadMissingAndTruncatedFiles(t *testing.T) {
	for _, name := range []string{TensorFile, USkullFile, UFsttFile, EigenvaluesSkullFile, EigenvaluesFsttFile} {
		t.Run("missing "+name, func(t *testing.T) {
			b := newBundle(t, 2, 2, 2, 2, 9)
			require.NoError(t, os.Remove(filepath.Join(b.dir, name)))

			err := NewModel(quietParams).Load(b.dir)
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}

	t.Run("truncated tensor", func(t *testing.T) {
		b := newBundle(t, 2, 2, 2, 2, 10)
		path := filepath.Join(b.dir, TensorFile)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw[:len(raw)-5], 0644))

		err = NewModel(quietParams).Load(b.dir)
		assert.ErrorIs(t, err, modelio.ErrTruncated)
	})
}

func TestLoadMeans(t *testing.T) {
	b := newBundle(t, 3, 5, 2, 2, 11)

	m := NewModel(quietParams)
	require.NoError(t, m.LoadMeans(filepath.Join(b.dir, "skin.off"), filepath.Join(b.dir, "skull.off")))
	assert.Equal(t, 3, m.NumSkinVertices())
	assert.Equal(t, 5, m.NumSkullVertices())
	assert.Equal(t, flatten(b.skin, b.skull), m.Mean())

	t.Run("empty mesh", func(t *testing.T) {
		empty := filepath.Join(b.dir, "empty.off")
		require.NoError(t, os.WriteFile(empty, []byte("OFF\n0 0 0\n"), 0644))

		err := NewModel(quietParams).LoadMeans(empty, filepath.Join(b.dir, "skull.off"))
		assert.ErrorIs(t, err, ErrEmptyMesh)
		err = NewModel(quietParams).LoadMeans(filepath.Join(b.dir, "skin.off"), empty)
		assert.ErrorIs(t, err, ErrEmptyMesh)
	})

	t.Run("missing mesh", func(t *testing.T) {
		err := NewModel(quietParams).LoadMeans(filepath.Join(b.dir, "nope.off"), filepath.Join(b.dir, "skull.off"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("after tensor with wrong size", func(t *testing.T) {
		loaded := b.load(t, 1)
		err := loaded.LoadMeansFromShapes(b.skin, b.skin)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, 3, loaded.NumSkinVertices())
	})
}

func BenchmarkEvaluate(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping evaluation benchmark in short mode")
	}
	bd := newBundle(b, 2000, 4000, 7, 4, 12)
	m := bd.load(b, 0)
	skin, skull := bd.skin.Clone(), bd.skull.Clone()
	wSkull := MeanParameters(bd.uSkull)
	wFstt := MeanParameters(bd.uFstt)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := m.Evaluate(skin, skull, wSkull, wFstt); err != nil {
			b.Fatal(err)
		}
	}
}

package mlm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"mlmhead/internal/models"
	"mlmhead/pkg/modelio"
)

func TestOpen(t *testing.T) {
	b := newBundle(t, 6, 9, 4, 3, 30)

	s, err := Open(b.dir, "skin.off", "skull.off", quietParams)
	require.NoError(t, err)

	assert.True(t, s.Model.Ready())
	assert.Equal(t, MeanParameters(b.uSkull), s.WSkull)
	assert.Equal(t, MeanParameters(b.uFstt), s.WFstt)
	assert.Equal(t, b.skull.Faces, s.Skull.Faces)

	want, err := s.Model.Reconstruct(s.WSkull, s.WFstt)
	require.NoError(t, err)
	assert.Equal(t, want, flatten(s.Skin, s.Skull))

	// absolute mesh paths are used as given
	abs, err := Open(b.dir, filepath.Join(b.dir, "skin.off"), filepath.Join(b.dir, "skull.off"), quietParams)
	require.NoError(t, err)
	assert.Equal(t, s.Skin.Vertices, abs.Skin.Vertices)
}

func TestOpenErrors(t *testing.T) {
	b := newBundle(t, 3, 3, 2, 2, 31)

	_, err := Open(b.dir, "nope.off", "skull.off", quietParams)
	assert.Error(t, err)

	// the tensor was built for 6 vertices, these meshes have 5
	other := newBundle(t, 2, 4, 2, 2, 32)
	_, err = Open(b.dir, filepath.Join(other.dir, "skin.off"), "skull.off", quietParams)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSessionStepAndReset(t *testing.T) {
	b := newBundle(t, 4, 5, 3, 2, 33)
	s, err := Open(b.dir, "skin.off", "skull.off", quietParams)
	require.NoError(t, err)
	mean := MeanParameters(b.uSkull)
	before := flatten(s.Skin, s.Skull)

	require.NoError(t, s.Step(models.Skull, 2, 3))
	assert.InDelta(t, mean[2]+3*StepDelta, s.WSkull[2], 1e-12)
	require.NoError(t, s.Step(models.FSTT, 0, -1))
	assert.ErrorIs(t, s.Step(models.FSTT, 2, 1), ErrDimensionMismatch)

	require.NoError(t, s.Evaluate())
	assert.False(t, floats.Equal(before, flatten(s.Skin, s.Skull)))

	require.NoError(t, s.ResetParameters(models.Skull))
	assert.Equal(t, mean, s.WSkull)
	assert.NotEqual(t, MeanParameters(b.uFstt), s.WFstt)

	require.NoError(t, s.ResetParameters(models.FSTT))
	require.NoError(t, s.Evaluate())
	assert.Equal(t, before, flatten(s.Skin, s.Skull))
}

func TestSessionLoadPreset(t *testing.T) {
	b := newBundle(t, 3, 4, 3, 2, 34)
	s, err := Open(b.dir, "skin.off", "skull.off", quietParams)
	require.NoError(t, err)

	skullPath := filepath.Join(b.dir, "w_skull.scalars")
	fsttPath := filepath.Join(b.dir, "w_fstt.scalars")
	require.NoError(t, modelio.SaveScalars(skullPath, []float64{0.25, 0.5, 0.75}))
	require.NoError(t, modelio.SaveScalars(fsttPath, []float64{-1, 1}))

	require.NoError(t, s.LoadPreset(skullPath, fsttPath))
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, s.WSkull)
	assert.Equal(t, []float64{-1, 1}, s.WFstt)

	// a preset for a smaller model is rejected without changing anything
	require.NoError(t, modelio.SaveScalars(skullPath, []float64{1, 2}))
	err = s.LoadPreset(skullPath, fsttPath)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, s.WSkull)
}

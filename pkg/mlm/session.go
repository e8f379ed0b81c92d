package mlm

import (
	"fmt"
	"path/filepath"

	"mlmhead/internal/models"
	"mlmhead/pkg/mesh"
)

// Session pairs a loaded model with the two meshes it drives and the
// current parameter vectors. A Session is not safe for concurrent use.
type Session struct {
	Model *Model

	Skin  *mesh.SurfaceMesh
	Skull *mesh.SurfaceMesh

	WSkull []float64
	WFstt  []float64
}

// Open loads the skin and skull meshes, uses them as the mean geometry,
// loads the model bundle from dir and evaluates it at the default
// parameters. Relative mesh paths are resolved against dir.
func Open(dir, skinPath, skullPath string, params *Params) (*Session, error) {
	skinPath = resolve(dir, skinPath)
	skullPath = resolve(dir, skullPath)

	skin, err := mesh.Read(skinPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load skin mesh: %w", err)
	}
	skull, err := mesh.Read(skullPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load skull mesh: %w", err)
	}

	m := NewModel(params)
	m.logger.Info("loaded meshes",
		"skin", skinPath, "skin_vertices", skin.NumVertices(), "skin_faces", skin.NumFaces(),
		"skull", skullPath, "skull_vertices", skull.NumVertices(), "skull_faces", skull.NumFaces())

	if err := m.LoadMeansFromShapes(skin, skull); err != nil {
		return nil, fmt.Errorf("cannot load means: %w", err)
	}
	if err := m.Load(dir); err != nil {
		return nil, fmt.Errorf("cannot load multilinear model: %w", err)
	}

	s := &Session{Model: m, Skin: skin, Skull: skull}
	if err := s.ResetParameters(models.Skull, models.FSTT); err != nil {
		return nil, err
	}
	if err := s.Evaluate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Evaluate writes the geometry for the current parameters into the meshes.
func (s *Session) Evaluate() error {
	return s.Model.Evaluate(s.Skin, s.Skull, s.WSkull, s.WFstt)
}

// ResetParameters sets the given factors back to their mean-of-basis values.
func (s *Session) ResetParameters(factors ...models.Factor) error {
	for _, f := range factors {
		u := s.Model.Basis(f)
		if u == nil {
			return fmt.Errorf("%w: no %s basis", ErrNotLoaded, f)
		}
		w := MeanParameters(u)
		if f == models.FSTT {
			s.WFstt = w
		} else {
			s.WSkull = w
		}
	}
	return nil
}

// LoadPreset replaces both parameter vectors with the values stored in
// two scalar files.
func (s *Session) LoadPreset(skullPath, fsttPath string) error {
	if s.WSkull == nil || s.WFstt == nil {
		if err := s.ResetParameters(models.Skull, models.FSTT); err != nil {
			return err
		}
	}
	return LoadParameters(s.WSkull, s.WFstt, skullPath, fsttPath)
}

// Step moves component i of factor f by steps*StepDelta.
func (s *Session) Step(f models.Factor, i, steps int) error {
	w := s.WSkull
	if f == models.FSTT {
		w = s.WFstt
	}
	if len(w) != s.Model.factorLen(f) {
		return fmt.Errorf("%w: %s parameters not initialized", ErrNotLoaded, f)
	}
	return Step(w, i, steps)
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

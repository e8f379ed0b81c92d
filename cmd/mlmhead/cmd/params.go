package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mlmhead/internal/models"
	"mlmhead/pkg/mlm"
)

// parameterFlags collects the ways a command can set the model parameters.
// They are applied in this order: preset, explicit vectors, reset, steps.
type parameterFlags struct {
	demo        string
	presetSkull string
	presetFstt  string
	wSkull      []float64
	wFstt       []float64
	reset       []string
	steps       []string
}

func (p *parameterFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&p.demo, "demo", "", "load a bundled fit: skull or skin")
	f.StringVar(&p.presetSkull, "preset-skull", "", "scalar file with skull parameters")
	f.StringVar(&p.presetFstt, "preset-fstt", "", "scalar file with FSTT parameters")
	f.Float64SliceVar(&p.wSkull, "w-skull", nil, "skull parameters, comma separated")
	f.Float64SliceVar(&p.wFstt, "w-fstt", nil, "FSTT parameters, comma separated")
	f.StringSliceVar(&p.reset, "reset", nil, "reset factors to their defaults: skull, fstt")
	f.StringArrayVar(&p.steps, "step", nil, "step a component, e.g. skull:3=+1 or fstt:0=-2 (repeatable)")
}

// apply edits the session parameters. It does not evaluate.
func (p *parameterFlags) apply(s *mlm.Session, modelDir string) error {
	skullPath, fsttPath := p.presetSkull, p.presetFstt
	if p.demo != "" {
		d, err := demoFit(modelDir, p.demo)
		if err != nil {
			return err
		}
		skullPath, fsttPath = d.skullParams, d.fsttParams
	}
	if skullPath != "" || fsttPath != "" {
		if skullPath == "" || fsttPath == "" {
			return fmt.Errorf("both skull and FSTT presets are required")
		}
		if err := s.LoadPreset(skullPath, fsttPath); err != nil {
			return fmt.Errorf("could not load preset: %w", err)
		}
	}

	if err := setVector(s.WSkull, p.wSkull, models.Skull); err != nil {
		return err
	}
	if err := setVector(s.WFstt, p.wFstt, models.FSTT); err != nil {
		return err
	}

	for _, name := range p.reset {
		f, err := parseFactor(name)
		if err != nil {
			return err
		}
		if err := s.ResetParameters(f); err != nil {
			return err
		}
	}

	for _, step := range p.steps {
		f, i, n, err := parseStep(step)
		if err != nil {
			return err
		}
		if err := s.Step(f, i, n); err != nil {
			return fmt.Errorf("step %q: %w", step, err)
		}
	}
	return nil
}

func setVector(dst, src []float64, f models.Factor) error {
	if len(src) == 0 {
		return nil
	}
	if len(src) != len(dst) {
		return fmt.Errorf("%w: got %d %s parameters, model has %d", mlm.ErrDimensionMismatch, len(src), f, len(dst))
	}
	copy(dst, src)
	return nil
}

func parseFactor(s string) (models.Factor, error) {
	switch strings.ToLower(s) {
	case "skull":
		return models.Skull, nil
	case "fstt":
		return models.FSTT, nil
	}
	return 0, fmt.Errorf("unknown factor %q (must be skull or fstt)", s)
}

// parseStep parses <factor>:<index>=<steps>, for example skull:3=+1.
func parseStep(s string) (models.Factor, int, int, error) {
	name, rest, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid step %q (want factor:index=steps)", s)
	}
	f, err := parseFactor(name)
	if err != nil {
		return 0, 0, 0, err
	}
	idx, count, ok := strings.Cut(rest, "=")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid step %q (want factor:index=steps)", s)
	}
	i, err := strconv.Atoi(idx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid step index in %q: %w", s, err)
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid step count in %q: %w", s, err)
	}
	return f, i, n, nil
}

// demo describes one of the bundled example fits.
type demo struct {
	skullParams string
	fsttParams  string
	targets     string
	surface     string
}

func demoFit(modelDir, name string) (demo, error) {
	switch name {
	case "skull":
		dir := filepath.Join(modelDir, "mlm_fits2skull")
		return demo{
			skullParams: filepath.Join(dir, "w_skull.scalars"),
			fsttParams:  filepath.Join(dir, "w_fstt.scalars"),
			targets:     filepath.Join(dir, "demo_skull_ps.xyz"),
			surface:     "skull",
		}, nil
	case "skin":
		dir := filepath.Join(modelDir, "mlm_fits2skin")
		return demo{
			skullParams: filepath.Join(dir, "w_skull.scalars"),
			fsttParams:  filepath.Join(dir, "w_fstt.scalars"),
			targets:     filepath.Join(dir, "demo_head_ps.xyz"),
			surface:     "skin",
		}, nil
	}
	return demo{}, fmt.Errorf("unknown demo %q (must be skull or skin)", name)
}

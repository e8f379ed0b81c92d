package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mlmhead/pkg/mesh"
	"mlmhead/pkg/mlm"
	"mlmhead/pkg/modelio"
	"mlmhead/pkg/stl"
)

var (
	evalParams     parameterFlags
	evalSaveParams bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the model and save the skin and skull meshes",
	Long: `Evaluate the model for a pair of parameter vectors and write the resulting
skin and skull surfaces to mesh_skin_<n> and mesh_skull_<n> in the output
directory, where n is the next unused number.

Parameters start at the mean of each basis matrix and can be replaced by a
bundled fit (--demo), preset files, explicit vectors, resets and steps.
Each step moves one component by 0.075.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evalParams.register(evaluateCmd)
	evaluateCmd.Flags().String("format", "off", "mesh output format: off or stl")
	evaluateCmd.Flags().String("out-dir", ".", "directory for the written meshes")
	evaluateCmd.Flags().BoolVar(&evalSaveParams, "save-params", false, "also write the parameters as w_skull_<n>.scalars and w_fstt_<n>.scalars")

	_ = viper.BindPFlag("output.format", evaluateCmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("output.dir", evaluateCmd.Flags().Lookup("out-dir"))
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	if err := evalParams.apply(s, cfg.Model.Dir); err != nil {
		return err
	}
	if err := s.Evaluate(); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	n, err := nextMeshIndex(cfg.Output.Dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, surf := range []struct {
		name string
		m    *mesh.SurfaceMesh
	}{{"skin", s.Skin}, {"skull", s.Skull}} {
		path := filepath.Join(cfg.Output.Dir, fmt.Sprintf("mesh_%s_%d.%s", surf.name, n, cfg.Output.Format))
		if err := saveMesh(path, surf.m, cfg.Output.Format); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %s mesh to %s\n", surf.name, path)
	}

	if evalSaveParams {
		if err := saveParameters(cfg.Output.Dir, n, s); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved parameters to %s\n", cfg.Output.Dir)
	}
	return nil
}

func saveMesh(path string, m *mesh.SurfaceMesh, format string) error {
	var err error
	switch format {
	case "stl":
		err = stl.SaveMesh(path, m)
	default:
		err = mesh.Write(path, m)
	}
	if err != nil {
		return fmt.Errorf("failed to save mesh: %w", err)
	}
	return nil
}

func saveParameters(dir string, n int, s *mlm.Session) error {
	if err := modelio.SaveScalars(filepath.Join(dir, fmt.Sprintf("w_skull_%d.scalars", n)), s.WSkull); err != nil {
		return err
	}
	return modelio.SaveScalars(filepath.Join(dir, fmt.Sprintf("w_fstt_%d.scalars", n)), s.WFstt)
}

// nextMeshIndex returns one past the highest n of any mesh_skin_<n> file in
// dir, or 1 when there is none.
func nextMeshIndex(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "mesh_skin_*"))
	if err != nil {
		return 0, err
	}
	next := 1
	for _, m := range matches {
		base := strings.TrimPrefix(filepath.Base(m), "mesh_skin_")
		base = strings.TrimSuffix(base, filepath.Ext(base))
		if n, err := strconv.Atoi(base); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mlmhead/pkg/fit"
	"mlmhead/pkg/mesh"
)

var (
	fitParams   parameterFlags
	fitTarget   string
	fitSurface  string
	fitJSON     bool
	fitPerPoint bool
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Measure the distance from target points to a reconstructed surface",
	Long: `Evaluate the model and report, for every target point, the distance to the
nearest vertex of the skin or skull surface.

With --demo the bundled fit supplies both the parameters and the target
points (demo_skull_ps.xyz against the skull, demo_head_ps.xyz against the
skin).`,
	Args: cobra.NoArgs,
	RunE: runFit,
}

func init() {
	rootCmd.AddCommand(fitCmd)
	fitParams.register(fitCmd)
	fitCmd.Flags().StringVar(&fitTarget, "target", "", "target points (.xyz or .off)")
	fitCmd.Flags().StringVar(&fitSurface, "surface", "", "surface to measure against: skin or skull")
	fitCmd.Flags().BoolVar(&fitJSON, "json", false, "print the report as JSON")
	fitCmd.Flags().BoolVar(&fitPerPoint, "per-point", false, "include per-point distances")
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	target, surface := fitTarget, fitSurface
	if fitParams.demo != "" {
		d, err := demoFit(cfg.Model.Dir, fitParams.demo)
		if err != nil {
			return err
		}
		if target == "" {
			target = d.targets
		}
		if surface == "" {
			surface = d.surface
		}
	}
	if target == "" {
		return fmt.Errorf("no target points: use --target or --demo")
	}
	if surface == "" {
		surface = "skin"
	}
	if surface != "skin" && surface != "skull" {
		return fmt.Errorf("unknown surface %q (must be skin or skull)", surface)
	}

	points, err := mesh.Read(target)
	if err != nil {
		return fmt.Errorf("could not load target points: %w", err)
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	if err := fitParams.apply(s, cfg.Model.Dir); err != nil {
		return err
	}
	if err := s.Evaluate(); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	m := s.Skin
	if surface == "skull" {
		m = s.Skull
	}
	report, err := fit.Measure(m, points.Vertices)
	if err != nil {
		return err
	}
	if !fitPerPoint {
		report.Distances = nil
	}

	out := cmd.OutOrStdout()
	if fitJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Fit of %d points against the %s surface (%d vertices)\n", report.Points, surface, m.NumVertices())
	fmt.Fprintf(out, "Mean distance: %.6f\n", report.Mean)
	fmt.Fprintf(out, "RMS distance:  %.6f\n", report.RMS)
	fmt.Fprintf(out, "Max distance:  %.6f (point %d)\n", report.Max, report.MaxIndex)
	for i, d := range report.Distances {
		fmt.Fprintf(out, "%d %.6f\n", i, d)
	}
	return nil
}

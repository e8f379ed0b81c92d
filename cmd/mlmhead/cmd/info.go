package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mlmhead/pkg/mlm"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the dimensions and default parameters of the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(globalConfig)
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), globalConfig.Model.Dir, s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printInfo(w io.Writer, dir string, s *mlm.Session) {
	m := s.Model
	fmt.Fprintf(w, "Model directory:   %s\n", dir)
	fmt.Fprintf(w, "Skin mesh:         %d vertices, %d faces\n", s.Skin.NumVertices(), s.Skin.NumFaces())
	fmt.Fprintf(w, "Skull mesh:        %d vertices, %d faces\n", s.Skull.NumVertices(), s.Skull.NumFaces())
	fmt.Fprintf(w, "Geometry channels: %d\n", m.Dim0())
	fmt.Fprintf(w, "Skull components:  %d\n", m.Dim1())
	fmt.Fprintf(w, "FSTT components:   %d\n", m.Dim2())

	fmt.Fprintf(w, "\nSkull eigenvalues: %s\n", formatValues(m.EigenvaluesSkull().RawVector().Data))
	fmt.Fprintf(w, "  explained by first component: %.1f%%\n", explained(m.EigenvaluesSkull()))
	fmt.Fprintf(w, "FSTT eigenvalues:  %s\n", formatValues(m.EigenvaluesFstt().RawVector().Data))
	fmt.Fprintf(w, "  explained by first component: %.1f%%\n", explained(m.EigenvaluesFstt()))

	fmt.Fprintf(w, "\nDefault w_skull:   %s\n", formatValues(s.WSkull))
	fmt.Fprintf(w, "Default w_fstt:    %s\n", formatValues(s.WFstt))
}

func formatValues(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return strings.Join(parts, " ")
}

// explained returns the share of the first eigenvalue in the total.
func explained(v *mat.VecDense) float64 {
	data := v.RawVector().Data
	total := floats.Sum(data)
	if total == 0 || len(data) == 0 {
		return 0
	}
	return 100 * data[0] / total
}

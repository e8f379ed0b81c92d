package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mlmhead/pkg/config"
	"mlmhead/pkg/mlm"
)

var (
	// Global configuration, resolved before any subcommand runs.
	globalConfig *config.Config
	// Configuration loader that produced globalConfig.
	configLoader *config.Loader
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mlmhead",
	Short: "Multilinear head model for skin and skull shape",
	Long: `mlmhead evaluates a multilinear model that couples skull shape and facial
soft tissue thickness (FSTT). Given a skull parameter vector and an FSTT
parameter vector it reconstructs the skin and skull surfaces.

The model directory holds the tensor, the two basis matrices, the
eigenvalues and the mean skin and skull meshes.

Examples:
  mlmhead info --model-dir data
  mlmhead evaluate --demo skull --format stl
  mlmhead evaluate --step skull:0=+2 --step fstt:1=-1
  mlmhead fit --demo skin
  mlmhead serve --port 8080`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is mlmhead.yaml in ., $XDG_CONFIG_HOME/mlmhead, /etc/mlmhead)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("model-dir", "data", "directory containing the model files and mean meshes")
	rootCmd.PersistentFlags().Int("cores", 0, "number of CPU cores used for evaluation (0 means all)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("model.dir", rootCmd.PersistentFlags().Lookup("model-dir"))
	_ = viper.BindPFlag("processing.num_cores", rootCmd.PersistentFlags().Lookup("cores"))
}

// loadConfig resolves the configuration and installs the default logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	configLoader = config.NewLoader()
	cfg, err := configLoader.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = cfg

	verbose, _ := cmd.Flags().GetBool("verbose")
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log, verbose))
	if used := configLoader.ConfigFileUsed(); used != "" {
		slog.Debug("using config file", "path", used)
	}
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig, verbose bool) *slog.Logger {
	level := parseLevel(lc.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openSession loads the configured model and evaluates it at the defaults.
func openSession(cfg *config.Config) (*mlm.Session, error) {
	params := &mlm.Params{NumCores: cfg.Processing.NumCores, Logger: slog.Default()}
	return mlm.Open(cfg.Model.Dir, cfg.Model.SkinMesh, cfg.Model.SkullMesh, params)
}

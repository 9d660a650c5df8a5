// Command schelling runs the one-dimensional Schelling segregation model.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/segregation/internal/config"
	"github.com/talgya/segregation/internal/logging"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schelling",
		Short: "One-dimensional Schelling segregation model",
		Long: `schelling simulates residential segregation on a line of agents.

Agents of two types move to the nearest position where at least a threshold
fraction of their neighbours share their type. Sweeps repeat until nobody
moves or the iteration cap is reached.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newMoveCmd(),
		newMetricsCmd(),
		newExperimentCmd(),
		newServeCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "schelling version %s\n", version)
		},
	}
}

// loadConfig reads the config named by --config, applies --log-level and
// installs the logger as the slog default. Logs go to stderr so that command
// output stays clean.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if !logging.ValidLevel(level) {
			return nil, fmt.Errorf("invalid log level: %s", level)
		}
		cfg.Logging.Level = level
	}
	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))
	return cfg, nil
}

// addModelFlags registers the flags overriding the model parameters.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().Int("neighborhood", 0, "Neighbourhood radius (default from config)")
	cmd.Flags().Float64("threshold", 0, "Satisfaction threshold in [0,1] (default from config)")
	cmd.Flags().Int("max-iterations", 0, "Sweep cap (default from config)")
}

// modelParams returns the configured parameters with explicitly set flags
// applied on top.
func modelParams(cmd *cobra.Command, cfg *config.Config) (schelling.Params, error) {
	p := cfg.Params()
	if cmd.Flags().Changed("neighborhood") {
		p.Neighborhood, _ = cmd.Flags().GetInt("neighborhood")
	}
	if cmd.Flags().Changed("threshold") {
		p.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("max-iterations") {
		p.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
	return p, p.Validate()
}

// addLineFlags registers the flags selecting the initial line.
func addLineFlags(cmd *cobra.Command) {
	cmd.Flags().String("line", "", `Explicit line such as "0110100" (overrides --initial)`)
	cmd.Flags().String("initial", "", "Generator: original, random, balanced, noise (default from config)")
	cmd.Flags().Int("size", 0, "Line size for generated lines (default from config)")
	cmd.Flags().Int64("seed", 0, "Generator seed, 0 = random (default from config)")
}

// initialLine builds the line named by the line flags, falling back to the
// configured generator.
func initialLine(cmd *cobra.Command, cfg *config.Config) (schelling.Line, error) {
	if text, _ := cmd.Flags().GetString("line"); text != "" {
		return seed.FromString(text)
	}

	gen := cfg.Model.Initial
	if cmd.Flags().Changed("initial") {
		kind, _ := cmd.Flags().GetString("initial")
		gen.Kind = seed.Kind(kind)
	}
	if cmd.Flags().Changed("size") {
		gen.Size, _ = cmd.Flags().GetInt("size")
	}
	if cmd.Flags().Changed("seed") {
		gen.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	return seed.Generate(gen)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/segregation/internal/config"
	"github.com/talgya/segregation/internal/experiment"
	"github.com/talgya/segregation/internal/persistence"
	"github.com/talgya/segregation/internal/seed"
)

func newExperimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Run many simulations per neighbourhood radius and summarize them",
		Long: `Run a batch of simulations for every neighbourhood radius and report
mean unhappiness, homogeneity and cluster size before and after the dynamics.

Every radius starts from the same set of generated lines. With --db the
summary is stored for later plotting and served by 'schelling serve'.`,
		Example: `  schelling experiment
  schelling experiment --neighborhoods 1,2,4,8 --samples 500 --seed 42 --db results.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pl, err := experimentPlan(cmd, cfg)
			if err != nil {
				return err
			}
			// Resolved here so the stored record carries the seed actually used.
			pl = pl.Resolve()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			points, err := experiment.NewRunner(slog.Default()).Run(ctx, pl)
			if err != nil {
				return fmt.Errorf("experiment: %w", err)
			}

			dbPath := cfg.Storage.Path
			if cmd.Flags().Changed("db") {
				dbPath, _ = cmd.Flags().GetString("db")
			}
			var id string
			if dbPath != "" {
				db, err := persistence.Open(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				if id, err = db.SaveExperiment(pl, points); err != nil {
					return fmt.Errorf("save experiment: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"id": id, "plan": pl, "points": points})
			}

			runs := int64(len(pl.Neighborhoods) * pl.SampleSize)
			fmt.Fprintf(out, "%s runs, %s lines of %s agents, threshold %.2f, base seed %d\n",
				humanize.Comma(runs), pl.Initial.Kind, humanize.Comma(int64(lineSize(pl.Initial))),
				pl.Threshold, pl.Initial.Seed)
			writePointTable(out, points)
			if id != "" {
				fmt.Fprintf(out, "saved as %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().IntSlice("neighborhoods", nil, "Neighbourhood radii (default from config)")
	cmd.Flags().Int("samples", 0, "Simulations per radius (default from config)")
	cmd.Flags().Int("workers", 0, "Concurrent simulations, 0 = GOMAXPROCS (default from config)")
	cmd.Flags().Float64("threshold", 0, "Satisfaction threshold in [0,1] (default from config)")
	cmd.Flags().Int("max-iterations", 0, "Sweep cap (default from config)")
	cmd.Flags().String("initial", "", "Generator: random, balanced, noise, original (default from config)")
	cmd.Flags().Int("size", 0, "Line size (default from config)")
	cmd.Flags().Int64("seed", 0, "Base seed, 0 = random (default from config)")
	cmd.Flags().String("db", "", "SQLite file to store the summary in (default from config)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

// experimentPlan returns the configured plan with explicitly set flags
// applied on top.
func experimentPlan(cmd *cobra.Command, cfg *config.Config) (experiment.Plan, error) {
	pl := cfg.Plan()
	flags := cmd.Flags()
	if flags.Changed("neighborhoods") {
		pl.Neighborhoods, _ = flags.GetIntSlice("neighborhoods")
	}
	if flags.Changed("samples") {
		pl.SampleSize, _ = flags.GetInt("samples")
	}
	if flags.Changed("workers") {
		pl.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("threshold") {
		pl.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("max-iterations") {
		pl.MaxIterations, _ = flags.GetInt("max-iterations")
	}
	if flags.Changed("initial") {
		kind, _ := flags.GetString("initial")
		pl.Initial.Kind = seed.Kind(kind)
	}
	if flags.Changed("size") {
		pl.Initial.Size, _ = flags.GetInt("size")
	}
	if flags.Changed("seed") {
		pl.Initial.Seed, _ = flags.GetInt64("seed")
	}
	return pl, pl.Validate()
}

func lineSize(cfg seed.GenConfig) int {
	if cfg.Kind == seed.KindOriginal {
		return len(seed.Original())
	}
	return cfg.Size
}

func writePointTable(w io.Writer, points []experiment.Point) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "radius\tconverged\tsweeps\tmoves\tunhappy\t\thomogeneity\t\tcluster size\t\t")
	fmt.Fprintln(tw, "\t\t\t\tbefore\tafter\tbefore\tafter\tbefore\tafter\t")
	for _, pt := range points {
		fmt.Fprintf(tw, "%d\t%d/%d\t%.2f\t%.1f\t%.2f\t%.2f\t%.3f\t%.3f\t%.2f\t%.2f\t\n",
			pt.Neighborhood, pt.Converged, pt.Samples, pt.MeanSweeps, pt.MeanMoves,
			pt.Before.Unhappy, pt.After.Unhappy,
			pt.Before.AverageHomogeneity, pt.After.AverageHomogeneity,
			pt.Before.AverageClusterSize, pt.After.AverageClusterSize,
		)
	}
	tw.Flush()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/segregation/internal/engine"
	"github.com/talgya/segregation/internal/logging"
	"github.com/talgya/segregation/internal/metrics"
	"github.com/talgya/segregation/internal/render"
	"github.com/talgya/segregation/internal/schelling"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dynamics on one line",
		Long: `Run sweeps over a line until nobody moves or the sweep cap is reached.

Without --line the configured initial line is used, which by default is
Schelling's original 70-agent line.`,
		Example: `  schelling run
  schelling run --line 0101100110 --neighborhood 2 --verbose
  schelling run --initial noise --size 120 --seed 7 --stepwise`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := modelParams(cmd, cfg)
			if err != nil {
				return err
			}
			line, err := initialLine(cmd, cfg)
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			stepwise, _ := cmd.Flags().GetBool("stepwise")
			jsonOut, _ := cmd.Flags().GetBool("json")

			out := cmd.OutOrStdout()
			d := engine.NewDriver(p)
			hooks := []func(engine.SweepReport){traceSweeps(cmd.Context(), slog.Default(), p)}
			if verbose && !jsonOut {
				hooks = append(hooks, render.SweepPrinter(out, p))
			}
			if stepwise && !jsonOut {
				hooks = append(hooks, render.Pause(cmd.InOrStdin(), out))
			}
			d.OnSweep = engine.ChainHooks(hooks...)

			if !jsonOut {
				fmt.Fprintln(out, "initial")
				render.Report(out, p, line)
			}

			res, err := d.Run(cmd.Context(), line)
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"params": p,
					"result": res,
					"before": metrics.Measure(p, line),
					"after":  metrics.Measure(p, res.Line),
				})
			}

			fmt.Fprintln(out, "final")
			render.Report(out, p, res.Line)
			fmt.Fprintf(out, "%s after %s, %s\n",
				res.Outcome, pluralize(res.Sweeps, "sweep"), pluralize(res.Moves, "move"))
			return nil
		},
	}

	addModelFlags(cmd)
	addLineFlags(cmd)
	cmd.Flags().BoolP("verbose", "v", false, "Print the line after every sweep")
	cmd.Flags().Bool("stepwise", false, "Wait for Enter after every sweep")
	cmd.Flags().Bool("json", false, "Output the result as JSON")
	return cmd
}

func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Relocate one agent to its nearest satisfying position",
		Example: `  schelling move --index 1
  schelling move --line 01 --index 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := modelParams(cmd, cfg)
			if err != nil {
				return err
			}
			line, err := initialLine(cmd, cfg)
			if err != nil {
				return err
			}
			if err := p.ValidateLine(line); err != nil {
				return err
			}
			index, _ := cmd.Flags().GetInt("index")
			if index < 0 || index >= len(line) {
				return fmt.Errorf("index %d out of range for line of size %d", index, len(line))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agent %d (type %d), homogeneity %.3f, happy %t\n",
				index, line[index], p.HomogeneityLevel(line, index), p.IsHappy(line, index))
			render.Report(out, p, line)

			moved, ok := p.MoveToNearestSatisfying(line, index)
			if ok {
				fmt.Fprintln(out, "moved to a satisfying position")
			} else {
				fmt.Fprintln(out, "no satisfying position; showing the last attempted move")
			}
			render.Report(out, p, moved)
			return nil
		},
	}

	addModelFlags(cmd)
	addLineFlags(cmd)
	cmd.Flags().Int("index", 0, "Index of the agent to relocate")
	return cmd
}

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Measure unhappiness, homogeneity and clustering of a line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := modelParams(cmd, cfg)
			if err != nil {
				return err
			}
			line, err := initialLine(cmd, cfg)
			if err != nil {
				return err
			}
			if err := p.ValidateLine(line); err != nil {
				return err
			}

			m := metrics.Measure(p, line)
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}

			fmt.Fprintln(out, render.State(line))
			fmt.Fprintf(out, "size:                 %s\n", humanize.Comma(int64(m.Size)))
			fmt.Fprintf(out, "unhappy:              %d (type 0: %d, type 1: %d)\n",
				m.Unhappy, m.UnhappyByType[0], m.UnhappyByType[1])
			fmt.Fprintf(out, "average homogeneity:  %.3f\n", m.AverageHomogeneity)
			fmt.Fprintf(out, "clusters:             %d\n", m.Clusters)
			fmt.Fprintf(out, "average cluster size: %.3f\n", m.AverageClusterSize)
			fmt.Fprintf(out, "largest cluster:      %d\n", m.LargestCluster)
			return nil
		},
	}

	addModelFlags(cmd)
	addLineFlags(cmd)
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

// traceSweeps returns a sweep hook that logs every sweep at trace level.
func traceSweeps(ctx context.Context, logger *slog.Logger, p schelling.Params) func(engine.SweepReport) {
	return func(r engine.SweepReport) {
		if !logger.Enabled(ctx, logging.LevelTrace) {
			return
		}
		logger.Log(ctx, logging.LevelTrace, "sweep",
			"sweep", r.Sweep,
			"moves", r.Moves,
			"unhappy", metrics.CountUnhappy(p, r.Line),
			"homogeneity", fmt.Sprintf("%.3f", metrics.AverageHomogeneity(p, r.Line)),
		)
	}
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}

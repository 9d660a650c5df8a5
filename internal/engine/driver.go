// Package engine provides the convergence driver: it sweeps a line of agents,
// relocating every unhappy one, until a sweep moves nobody or the iteration
// cap is reached.
package engine

import (
	"context"
	"log/slog"

	"github.com/talgya/segregation/internal/schelling"
)

// Outcome is the state of a run.
type Outcome uint8

const (
	Sweeping  Outcome = iota // still iterating
	Converged                // a full sweep produced no move
	Capped                   // MaxIterations reached while agents were still moving
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Sweeping:
		return "sweeping"
	case Converged:
		return "converged"
	case Capped:
		return "capped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// SweepReport describes one completed sweep. Line is a snapshot owned by the
// receiver of the report.
type SweepReport struct {
	Sweep int            // 1-based sweep number
	Moves int            // relocations accepted during the sweep
	Line  schelling.Line // line after the sweep
}

// Result is the outcome of a full run.
type Result struct {
	Line    schelling.Line `json:"line"`
	Outcome Outcome        `json:"outcome"`
	Sweeps  int            `json:"sweeps"`
	Moves   int            `json:"moves"`
}

// Driver runs the sweep loop for one set of parameters.
type Driver struct {
	Params schelling.Params

	// OnSweep, when set, is called after every sweep. It is a diagnostic hook
	// (printing, pausing) and cannot influence the run.
	OnSweep func(SweepReport)

	// Logger receives one debug record per run. Nil means slog.Default().
	Logger *slog.Logger
}

// NewDriver creates a driver for the given parameters.
func NewDriver(p schelling.Params) *Driver {
	return &Driver{Params: p}
}

// Run drives a copy of initial until convergence or until the sweep cap.
//
// Within a sweep agents are visited in index order and each one is evaluated
// against the line as it stands at that moment, including moves made earlier
// in the same sweep. An unhappy agent is relocated only when the search finds
// a satisfying position; otherwise it stays put and is retried next sweep.
//
// The context is checked between sweeps. On cancellation the partially
// driven line is returned together with the context error.
func (d *Driver) Run(ctx context.Context, initial schelling.Line) (Result, error) {
	if err := d.Params.ValidateLine(initial); err != nil {
		return Result{}, err
	}

	p := d.Params
	line := initial.Clone()
	res := Result{Outcome: Sweeping}

	for res.Outcome == Sweeping {
		if err := ctx.Err(); err != nil {
			res.Line = line
			return res, err
		}

		moves := 0
		for i := range line {
			if p.IsHappy(line, i) {
				continue
			}
			if next, ok := p.MoveToNearestSatisfying(line, i); ok {
				line = next
				moves++
			}
		}
		res.Sweeps++
		res.Moves += moves

		if d.OnSweep != nil {
			d.OnSweep(SweepReport{Sweep: res.Sweeps, Moves: moves, Line: line.Clone()})
		}

		switch {
		case moves == 0:
			res.Outcome = Converged
		case res.Sweeps >= p.MaxIterations:
			res.Outcome = Capped
		}
	}
	res.Line = line

	d.logger().Debug("dynamics finished",
		"size", len(line),
		"outcome", res.Outcome.String(),
		"sweeps", res.Sweeps,
		"moves", res.Moves,
		"counts", line.Counts(),
	)
	return res, nil
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Dynamics runs the convergence driver with no hooks and returns the final
// line. Converged and capped runs are not distinguished.
func Dynamics(p schelling.Params, initial schelling.Line) (schelling.Line, error) {
	res, err := NewDriver(p).Run(context.Background(), initial)
	if err != nil {
		return nil, err
	}
	return res.Line, nil
}

// ChainHooks combines several sweep hooks into one, called in order.
// Nil hooks are skipped.
func ChainHooks(hooks ...func(SweepReport)) func(SweepReport) {
	return func(r SweepReport) {
		for _, h := range hooks {
			if h != nil {
				h(r)
			}
		}
	}
}

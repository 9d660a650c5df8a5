// Package render formats lines as text for terminal diagnostics.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/talgya/segregation/internal/engine"
	"github.com/talgya/segregation/internal/metrics"
	"github.com/talgya/segregation/internal/schelling"
)

// State writes the line as a run of digits, e.g. "0110".
func State(l schelling.Line) string {
	var b strings.Builder
	b.Grow(len(l))
	for _, v := range l {
		b.WriteByte(byte('0' + v))
	}
	return b.String()
}

// Unhappy returns a string aligned with State that has an X under every
// unhappy agent and a space elsewhere.
func Unhappy(p schelling.Params, l schelling.Line) string {
	var b strings.Builder
	b.Grow(len(l))
	for i := range l {
		if p.IsHappy(l, i) {
			b.WriteByte(' ')
		} else {
			b.WriteByte('X')
		}
	}
	return b.String()
}

// Report writes the state, the unhappy markers and the unhappy counts.
func Report(w io.Writer, p schelling.Params, l schelling.Line) error {
	c := metrics.UnhappyByType(p, l)
	_, err := fmt.Fprintf(w, "%s\n%s\nunhappy: %d (type 0: %d, type 1: %d)\n",
		State(l), strings.TrimRight(Unhappy(p, l), " "), c[0]+c[1], c[0], c[1])
	return err
}

// SweepPrinter returns a sweep hook that writes a Report after every sweep.
func SweepPrinter(w io.Writer, p schelling.Params) func(engine.SweepReport) {
	return func(r engine.SweepReport) {
		fmt.Fprintf(w, "sweep %d, moves %d\n", r.Sweep, r.Moves)
		Report(w, p, r.Line)
	}
}

// Pause returns a sweep hook that waits for a line on in before the run
// continues.
func Pause(in io.Reader, out io.Writer) func(engine.SweepReport) {
	br := bufio.NewReader(in)
	return func(engine.SweepReport) {
		fmt.Fprint(out, "Press Enter to continue...")
		_, _ = br.ReadString('\n')
	}
}

package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/sarchlab/luabridge/busmodel"
	"github.com/sarchlab/luabridge/simulation"
)

func printSummary(out io.Writer, s *simulation.Simulation) error {
	fmt.Fprintf(out, "Simulated time: %.9f s\n", s.Engine().Now())

	for _, c := range s.Components() {
		switch c := c.(type) {
		case *busmodel.Master:
			st := c.Stats()
			fmt.Fprintf(out,
				"%s: %d exchanges, %d reads, %d writes, %d bus errors\n",
				c.Name(), st.Exchanges, st.Reads, st.Writes, st.BusErrors)
		case *busmodel.StreamPump:
			fmt.Fprintf(out, "%s: %d words\n", c.Name(), c.Moved())
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FUNCTION\tCALLS\tFAILURES\tSTATUS")

	for _, f := range s.Stats().Snapshot() {
		codes := make([]int, 0, len(f.ByStatus))
		for code := range f.ByStatus {
			codes = append(codes, int(code))
		}

		sort.Ints(codes)

		statuses := ""
		for i, code := range codes {
			if i > 0 {
				statuses += " "
			}

			statuses += fmt.Sprintf("%d:%d", code, f.ByStatus[int32(code)])
		}

		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			f.Func, f.Count, f.Failures, statuses)
	}

	err := w.Flush()
	if err != nil {
		return fmt.Errorf("cannot print summary: %w", err)
	}

	return nil
}

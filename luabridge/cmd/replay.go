package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/tracing"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script> <transcript>",
	Short: "Replay a transcript against a script and report divergences.",
	Long: "`replay` re-issues the recorded inputs of every exchange of the " +
		"script in the transcript against a fresh session and checks that " +
		"the results and status codes are reproduced.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replayTranscript(cmd.OutOrStdout(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

// transcriptRevision guesses the revision a transcript was recorded with
// from its master exchanges.
func transcriptRevision(entries []tracing.TranscriptEntry) bridge.Revision {
	for _, e := range entries {
		if e.Kind == bridge.ExchangeMaster && e.Func == bridge.FuncExchangeCAD {
			return bridge.RevisionCAD
		}
	}

	return bridge.RevisionTimed
}

func replayTranscript(out io.Writer, script, transcript string) error {
	entries, err := tracing.OpenTranscript(transcript)
	if err != nil {
		return err
	}

	entries = tracing.SelectScript(entries, script)
	if len(entries) == 0 {
		return fmt.Errorf("%s has no exchanges of %s", transcript, script)
	}

	b := bridge.MakeBuilder().
		WithRevision(transcriptRevision(entries)).
		Build()
	defer b.Close()

	h, err := b.Init(script)
	if err != nil {
		return err
	}

	n, err := tracing.Replay(b, h, entries)

	var d *tracing.Divergence
	if errors.As(err, &d) {
		fmt.Fprintf(out, "%d of %d exchanges matched\n", n, len(entries))
		return err
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(out, "all %d exchanges matched\n", n)

	return nil
}

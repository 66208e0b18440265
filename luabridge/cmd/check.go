package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <script>",
	Short: "Check that a script loads and list the functions it defines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revision, err := revisionFlag(cmd)
		if err != nil {
			return err
		}

		return checkScript(cmd.OutOrStdout(), revision, args[0])
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("revision", "timed",
		"Master protocol revision, timed or cad.")
}

func revisionFlag(cmd *cobra.Command) (bridge.Revision, error) {
	s, _ := cmd.Flags().GetString("revision")
	return bridge.ParseRevision(s)
}

func checkScript(out io.Writer, revision bridge.Revision, path string) error {
	b := bridge.MakeBuilder().WithRevision(revision).Build()
	defer b.Close()

	h, err := b.Init(path)
	if err != nil {
		fmt.Fprintf(out, "%s: status %d\n", path, bridge.StatusCode(err))
		return err
	}

	s, err := b.Session(h)
	if err != nil {
		return err
	}

	info := s.Info()
	fmt.Fprintf(out, "%s: ok, %s returned %d\n",
		path, bridge.FuncInitEnv, info.InitStatus)

	defined := s.Functions()
	for _, fn := range bridge.ModelFuncs[1:] {
		mark := "-"
		if slices.Contains(defined, fn) {
			mark = "+"
		}

		fmt.Fprintf(out, "  %s %s\n", mark, fn)
	}

	master := revision.MasterFunc()
	if !slices.Contains(defined, master) &&
		slices.ContainsFunc(defined, isMasterFunc) {
		fmt.Fprintf(out,
			"  the %s revision calls %s, which the script does not define\n",
			revision, master)
	}

	return b.Deinit(h)
}

func isMasterFunc(fn string) bool {
	return fn == bridge.FuncExchangeM || fn == bridge.FuncExchangeCAD
}

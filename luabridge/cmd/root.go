// Package cmd provides the command-line interface of luabridge.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var (
	verbosity int
	logPath   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "luabridge",
	Short: "luabridge runs bus models written in Lua.",
	Long: `luabridge runs behavioral bus models written in Lua against a ` +
		`cycle-driven simulation kernel. Scripts define exchange_M or ` +
		`exchange_CAD for bus masters, exchange_S for slaves and ` +
		`read_data/write_data for data streams.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		configureLog(verbosity, logPath)
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Log more, repeat for more detail.")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "",
		"Write the log to a file instead of stderr.")
}

func configureLog(verbosity int, path string) {
	if path == "" {
		commonlog.Configure(verbosity, nil)
		return
	}

	commonlog.Configure(verbosity, &path)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/pkg/browser"
	"github.com/sarchlab/luabridge/config"
	"github.com/sarchlab/luabridge/simulation"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: "`run` loads luabridge.toml (or --config), applies .env, " +
		"LUABRIDGE_* variables and flags, and runs the configured master " +
		"and stream until they stop.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return runSimulation(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("config", config.DefaultFile, "Configuration file.")
	f.String("master", "", "Script of the bus master.")
	f.String("slave", "", "Script of the bus slave. Memory if not set.")
	f.String("revision", "", "Master protocol revision, timed or cad.")
	f.Uint64("cycles", 0, "Number of master cycles to run.")
	f.String("trace-db", "", "Record exchanges to this database.")
	f.String("transcript", "", "Write a CBOR transcript of the exchanges.")
	f.Bool("monitor", false, "Start the monitoring server.")
	f.Int("monitor-port", 0, "Port of the monitoring server.")
	f.Bool("open", false, "Open the monitor in a browser.")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	err := config.LoadDotEnv()
	if err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}

	if err != nil {
		return nil, err
	}

	err = cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg)

	if !cmd.Flags().Changed("verbose") && cfg.Log.Verbosity != 0 {
		configureLog(cfg.Log.Verbosity, cfg.Log.Path)
	}

	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	strs := map[string]*string{
		"master":     &cfg.Master.Script,
		"slave":      &cfg.Slave.Script,
		"revision":   &cfg.Master.Revision,
		"trace-db":   &cfg.Trace.DB,
		"transcript": &cfg.Trace.Transcript,
	}

	for name, p := range strs {
		if f.Changed(name) {
			*p, _ = f.GetString(name)
		}
	}

	if f.Changed("cycles") {
		cfg.Master.MaxCycles, _ = f.GetUint64("cycles")
	}

	if f.Changed("monitor") {
		cfg.Monitor.Enabled, _ = f.GetBool("monitor")
	}

	if f.Changed("monitor-port") {
		cfg.Monitor.Enabled = true
		cfg.Monitor.Port, _ = f.GetInt("monitor-port")
	}

	if f.Changed("open") {
		cfg.Monitor.Open, _ = f.GetBool("open")
	}
}

func buildSimulation(cfg *config.Config) (*simulation.Simulation, error) {
	revision, err := cfg.Revision()
	if err != nil {
		return nil, err
	}

	b := simulation.MakeBuilder().
		WithRevision(revision).
		WithMaxSessions(cfg.Simulation.MaxSessions)

	if cfg.Trace.DB != "" {
		b = b.WithRecording(cfg.Trace.DB)
	}

	if cfg.Trace.Transcript != "" {
		b = b.WithTranscript(cfg.Trace.Transcript)
	}

	if cfg.Monitor.Enabled {
		b = b.WithMonitoring().WithMonitorPort(cfg.Monitor.Port)
	}

	return b.Build()
}

func runSimulation(out io.Writer, cfg *config.Config) error {
	s, err := buildSimulation(cfg)
	if err != nil {
		return err
	}

	s.TerminateAtExit()

	err = s.Setup(cfg)
	if err != nil {
		return err
	}

	if s.Monitor() != nil && cfg.Monitor.Open {
		url := fmt.Sprintf("http://localhost:%d/api/sessions", s.MonitorPort())

		err = browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(out, "Cannot open %s: %s\n", url, err)
		}
	}

	runErr := s.Run()
	summaryErr := printSummary(out, s)

	return errors.Join(runErr, summaryErr, s.Terminate())
}

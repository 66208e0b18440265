// Package config loads the settings of a luabridge run from a TOML file, a
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/timing"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "luabridge.toml"

// Environment variables that override the file.
const (
	EnvMasterScript   = "LUABRIDGE_MASTER_SCRIPT"
	EnvSlaveScript    = "LUABRIDGE_SLAVE_SCRIPT"
	EnvCycles         = "LUABRIDGE_CYCLES"
	EnvTraceDB        = "LUABRIDGE_TRACE_DB"
	EnvMonitorPort    = "LUABRIDGE_MONITOR_PORT"
	EnvLogVerbosity   = "LUABRIDGE_LOG_VERBOSITY"
	EnvTranscript     = "LUABRIDGE_TRANSCRIPT"
	EnvMasterRevision = "LUABRIDGE_REVISION"
)

// Config holds the settings of a run.
type Config struct {
	Master     Master     `toml:"master"`
	Slave      Slave      `toml:"slave"`
	Stream     Stream     `toml:"stream"`
	Simulation Simulation `toml:"simulation"`
	Trace      Trace      `toml:"trace"`
	Monitor    Monitor    `toml:"monitor"`
	Log        Log        `toml:"log"`

	// Dir is the directory of the loaded file. Relative script paths are
	// resolved against it.
	Dir string `toml:"-"`
}

// Master configures the script-driven bus master.
type Master struct {
	Script    string  `toml:"script"`
	Revision  string  `toml:"revision"`
	FreqMHz   float64 `toml:"freq_mhz"`
	MaxCycles uint64  `toml:"max_cycles"`
}

// Slave configures what answers the master. Without a script, the master
// talks to a memory of MemoryBytes bytes.
type Slave struct {
	Script      string `toml:"script"`
	MemoryBytes uint64 `toml:"memory_bytes"`
}

// Stream configures an optional data-stream pump.
type Stream struct {
	Source  string  `toml:"source"`
	Sink    string  `toml:"sink"`
	Count   uint64  `toml:"count"`
	FreqMHz float64 `toml:"freq_mhz"`
}

// Simulation configures the bridge.
type Simulation struct {
	MaxSessions int `toml:"max_sessions"`
}

// Trace configures what is recorded.
type Trace struct {
	DB         string `toml:"db"`
	Transcript string `toml:"transcript"`
}

// Monitor configures the HTTP monitor.
type Monitor struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
	Open    bool `toml:"open"`
}

// Log configures the log backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Default returns the configuration used for everything a file leaves out.
func Default() *Config {
	return &Config{
		Master: Master{
			Revision:  bridge.RevisionTimed.String(),
			FreqMHz:   1000,
			MaxCycles: 1000,
		},
		Slave: Slave{
			MemoryBytes: 1 << 20,
		},
		Stream: Stream{
			FreqMHz: 1000,
		},
	}
}

// Load parses a configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	c.resolvePaths()

	return c, nil
}

// LoadOrDefault loads the file if it exists and returns the defaults
// otherwise.
func LoadOrDefault(path string) (*Config, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return Load(path)
}

func (c *Config) resolvePaths() {
	for _, p := range []*string{
		&c.Master.Script,
		&c.Slave.Script,
		&c.Stream.Source,
		&c.Stream.Sink,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Dir, *p)
		}
	}
}

// LoadDotEnv loads the given .env files into the environment. Files that do
// not exist are skipped. Variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot load %s: %w", f, err)
		}
	}

	return nil
}

// ApplyEnv overrides the configuration with the LUABRIDGE_ environment
// variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		EnvMasterScript:   &c.Master.Script,
		EnvSlaveScript:    &c.Slave.Script,
		EnvTraceDB:        &c.Trace.DB,
		EnvTranscript:     &c.Trace.Transcript,
		EnvMasterRevision: &c.Master.Revision,
	}

	for name, p := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*p = v
		}
	}

	if v, ok := os.LookupEnv(EnvCycles); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCycles, err)
		}

		c.Master.MaxCycles = n
	}

	if v, ok := os.LookupEnv(EnvMonitorPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMonitorPort, err)
		}

		c.Monitor.Enabled = true
		c.Monitor.Port = n
	}

	if v, ok := os.LookupEnv(EnvLogVerbosity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogVerbosity, err)
		}

		c.Log.Verbosity = n
	}

	return nil
}

// Revision returns the master protocol revision.
func (c *Config) Revision() (bridge.Revision, error) {
	return bridge.ParseRevision(c.Master.Revision)
}

// MasterFreq returns the clock of the bus master.
func (c *Config) MasterFreq() timing.Freq {
	return timing.Freq(c.Master.FreqMHz) * timing.MHz
}

// StreamFreq returns the clock of the stream pump.
func (c *Config) StreamFreq() timing.Freq {
	return timing.Freq(c.Stream.FreqMHz) * timing.MHz
}

// HasStream tells if a stream pump is configured.
func (c *Config) HasStream() bool {
	return c.Stream.Source != "" || c.Stream.Sink != ""
}

// Validate reports every problem of the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Master.Script == "" && !c.HasStream() {
		errs = append(errs, errors.New("no master script and no stream"))
	}

	if _, err := c.Revision(); err != nil {
		errs = append(errs, err)
	}

	if c.Master.Script != "" && c.Master.FreqMHz <= 0 {
		errs = append(errs, errors.New("master frequency must be positive"))
	}

	if c.Master.Script != "" &&
		c.Slave.Script == "" && c.Slave.MemoryBytes == 0 {
		errs = append(errs, errors.New("slave needs a script or memory"))
	}

	if c.HasStream() {
		if c.Stream.Source == "" || c.Stream.Sink == "" {
			errs = append(errs, errors.New("stream needs a source and a sink"))
		}

		if c.Stream.FreqMHz <= 0 {
			errs = append(errs, errors.New("stream frequency must be positive"))
		}
	}

	for _, s := range []string{
		c.Master.Script, c.Slave.Script, c.Stream.Source, c.Stream.Sink,
	} {
		if s == "" {
			continue
		}

		if _, err := os.Stat(s); err != nil {
			errs = append(errs, fmt.Errorf("script %s: %w", s, err))
		}
	}

	return errors.Join(errs...)
}

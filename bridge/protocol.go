package bridge

import (
	"fmt"
	"strings"
)

// Names of the functions a model script defines.
const (
	FuncInitEnv     = "init_env"
	FuncExchangeM   = "exchange_M"
	FuncExchangeCAD = "exchange_CAD"
	FuncExchangeS   = "exchange_S"
	FuncReadData    = "read_data"
	FuncWriteData   = "write_data"
)

// ModelFuncs lists every function a model script may define.
var ModelFuncs = []string{
	FuncInitEnv,
	FuncExchangeM,
	FuncExchangeCAD,
	FuncExchangeS,
	FuncReadData,
	FuncWriteData,
}

// Revision selects the master exchange protocol a bridge speaks. A bridge
// speaks exactly one revision.
type Revision int

const (
	// RevisionTimed calls exchange_M, which returns time, cmd, addr, data.
	RevisionTimed Revision = iota

	// RevisionCAD calls exchange_CAD, which returns cmd, addr, data. The
	// simulated time of its results is always zero.
	RevisionCAD
)

func (r Revision) String() string {
	switch r {
	case RevisionTimed:
		return "timed"
	case RevisionCAD:
		return "cad"
	default:
		return fmt.Sprintf("revision(%d)", int(r))
	}
}

// MasterFunc returns the script function used for master exchanges.
func (r Revision) MasterFunc() string {
	if r == RevisionCAD {
		return FuncExchangeCAD
	}

	return FuncExchangeM
}

func (r Revision) masterReturns() int {
	if r == RevisionCAD {
		return 3
	}

	return 4
}

// ParseRevision parses the names accepted in configuration files.
func ParseRevision(s string) (Revision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timed", "m", FuncExchangeM:
		return RevisionTimed, nil
	case "cad", FuncExchangeCAD:
		return RevisionCAD, nil
	default:
		return 0, fmt.Errorf("unknown protocol revision %q", s)
	}
}

// Command is the bus command a master drives.
type Command uint32

// Bus commands.
const (
	CmdIdle  Command = 0
	CmdRead  Command = 1
	CmdWrite Command = 2
)

func (c Command) String() string {
	switch c {
	case CmdIdle:
		return "idle"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	default:
		return fmt.Sprintf("cmd(%d)", uint32(c))
	}
}

// Status line layout of the master's status input.
const (
	StatusReset uint32 = 1 << 31
	StatusIRQ   uint32 = StatusReset - 1
)

// BusConstants returns the constants published to scripts in the global bus
// table.
func BusConstants() map[string]int64 {
	return map[string]int64{
		"IDLE":     int64(CmdIdle),
		"READ":     int64(CmdRead),
		"WRITE":    int64(CmdWrite),
		"RESET":    int64(StatusReset),
		"IRQ_MASK": int64(StatusIRQ),
	}
}

// MasterResult is what a master exchange drives onto the bus.
type MasterResult struct {
	Time uint32
	Cmd  Command
	Addr uint32
	Data uint32
}

// SlaveResult is what a slave exchange answers.
type SlaveResult struct {
	Data   uint32
	Status uint32
}

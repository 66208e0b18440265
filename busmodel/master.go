package busmodel

import (
	"log"
	"sync/atomic"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/host"
	"github.com/sarchlab/luabridge/timing"
	"github.com/tliron/commonlog"
)

// A Master is a bus master driven by a script. Every tick it runs
// $lua_exchange_m through its port with the data read by the previous
// transaction and the current status lines, then performs the returned command
// on its target. A non-zero time in the result makes the master wait that many
// cycles before the next exchange.
type Master struct {
	*timing.TickingComponent

	port      *host.Port
	target    Target
	logger    commonlog.Logger
	maxCycles uint64

	status atomic.Uint32
	dataIn uint32
	err    error
	done   bool

	exchanges uint64
	reads     uint64
	writes    uint64
	busErrors uint64
}

// MasterBuilder builds masters.
type MasterBuilder struct {
	engine    timing.Engine
	freq      timing.Freq
	target    Target
	logger    commonlog.Logger
	maxCycles uint64
}

// MakeMasterBuilder returns a MasterBuilder with default parameters.
func MakeMasterBuilder() MasterBuilder {
	return MasterBuilder{
		freq:      1 * timing.GHz,
		maxCycles: 1000,
	}
}

// WithEngine sets the engine that drives the master.
func (b MasterBuilder) WithEngine(engine timing.Engine) MasterBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the clock frequency of the master.
func (b MasterBuilder) WithFreq(freq timing.Freq) MasterBuilder {
	b.freq = freq
	return b
}

// WithTarget sets the slave the master talks to.
func (b MasterBuilder) WithTarget(target Target) MasterBuilder {
	b.target = target
	return b
}

// WithLogger sets the logger of the master.
func (b MasterBuilder) WithLogger(logger commonlog.Logger) MasterBuilder {
	b.logger = logger
	return b
}

// WithMaxCycles sets the cycle after which the master stops.
func (b MasterBuilder) WithMaxCycles(n uint64) MasterBuilder {
	b.maxCycles = n
	return b
}

// Build creates a master that drives the session behind port.
func (b MasterBuilder) Build(name string, port *host.Port) *Master {
	if b.engine == nil {
		log.Panic("engine is not set")
	}

	if port == nil {
		log.Panic("port is not set")
	}

	if b.target == nil {
		log.Panic("target is not set")
	}

	m := &Master{
		port:      port,
		target:    b.target,
		logger:    b.logger,
		maxCycles: b.maxCycles,
	}

	if m.logger == nil {
		m.logger = commonlog.GetLogger("luabridge.busmodel")
	}

	m.TickingComponent = timing.NewTickingComponent(name, b.engine, b.freq, m)

	return m
}

// Handle returns the session of the master.
func (m *Master) Handle() handle.Handle {
	return m.port.Handle()
}

// SetStatus drives all the status lines at once.
func (m *Master) SetStatus(v uint32) {
	m.status.Store(v)
}

// Status returns the current status lines.
func (m *Master) Status() uint32 {
	return m.status.Load()
}

// AssertReset raises the reset line.
func (m *Master) AssertReset() {
	m.status.Or(bridge.StatusReset)
}

// ReleaseReset lowers the reset line.
func (m *Master) ReleaseReset() {
	m.status.And(^bridge.StatusReset)
}

// RaiseIRQ raises interrupt line n, 0 <= n < 31.
func (m *Master) RaiseIRQ(n int) {
	m.status.Or(irqBit(n))
}

// ClearIRQ lowers interrupt line n.
func (m *Master) ClearIRQ(n int) {
	m.status.And(^irqBit(n))
}

func irqBit(n int) uint32 {
	if n < 0 || n >= 31 {
		log.Panicf("interrupt line %d out of range", n)
	}

	return 1 << n
}

// MaxCycles returns the cycle at which the master stops.
func (m *Master) MaxCycles() uint64 {
	return m.maxCycles
}

// Err returns the error that stopped the master, if any.
func (m *Master) Err() error {
	return m.err
}

// Done tells if the master has stopped.
func (m *Master) Done() bool {
	return m.done
}

// MasterStats counts what a master did.
type MasterStats struct {
	Exchanges uint64 `json:"exchanges"`
	Reads     uint64 `json:"reads"`
	Writes    uint64 `json:"writes"`
	BusErrors uint64 `json:"bus_errors"`
}

// Stats returns the counters of the master.
func (m *Master) Stats() MasterStats {
	return MasterStats{
		Exchanges: m.exchanges,
		Reads:     m.reads,
		Writes:    m.writes,
		BusErrors: m.busErrors,
	}
}

// Tick runs one master exchange.
func (m *Master) Tick() bool {
	if m.done {
		return false
	}

	cycle := m.CurrentCycle()
	if cycle >= m.maxCycles {
		m.stop(nil)
		return false
	}

	r, err := m.port.ExchangeMaster(m.dataIn, m.Status())
	m.exchanges++

	if err != nil {
		m.logger.Errorf("%s stopped at cycle %d with status %d: %s",
			m.Name(), cycle, m.port.LastStatus(), err)
		m.stop(err)

		return false
	}

	err = m.perform(uint32(cycle), r)
	if err != nil {
		m.logger.Errorf("%s target failed at cycle %d: %s", m.Name(), cycle, err)
		m.stop(err)

		return false
	}

	if r.Time > 0 {
		m.TickAfter(int(r.Time))
		return false
	}

	return true
}

func (m *Master) perform(time uint32, r bridge.MasterResult) error {
	switch r.Cmd {
	case bridge.CmdRead:
		res, err := m.target.Access(time, bridge.CmdRead, r.Addr, 0)
		if err != nil {
			return err
		}

		m.reads++
		m.checkSlaveStatus(r, res)
		m.dataIn = res.Data
	case bridge.CmdWrite:
		res, err := m.target.Access(time, bridge.CmdWrite, r.Addr, r.Data)
		if err != nil {
			return err
		}

		m.writes++
		m.checkSlaveStatus(r, res)
	case bridge.CmdIdle:
	default:
		m.logger.Warningf("%s ignores unknown command %s", m.Name(), r.Cmd)
	}

	return nil
}

func (m *Master) checkSlaveStatus(r bridge.MasterResult, res bridge.SlaveResult) {
	if res.Status == StatusOK {
		return
	}

	m.busErrors++
	m.logger.Warningf("%s %s 0x%08x: slave status %d",
		m.Name(), r.Cmd, r.Addr, res.Status)
}

func (m *Master) stop(err error) {
	m.done = true
	m.err = err
}

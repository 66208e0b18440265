// Package simulation wires the kernel, the bridge and the observers of a run
// together.
package simulation

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/busmodel"
	"github.com/sarchlab/luabridge/datarecording"
	"github.com/sarchlab/luabridge/hooking"
	"github.com/sarchlab/luabridge/host"
	"github.com/sarchlab/luabridge/monitoring"
	"github.com/sarchlab/luabridge/timing"
	"github.com/sarchlab/luabridge/tracing"
	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"
)

// A Component is a named participant of a simulation.
type Component interface {
	Name() string
}

// A Simulation provides the services a run needs.
type Simulation struct {
	id       string
	engine   *timing.SerialEngine
	bridge   *bridge.Bridge
	registry *host.Registry
	logger   commonlog.Logger

	dataRecorder datarecording.DataRecorder
	runRecorder  *datarecording.RunRecorder
	dbTracer     *tracing.DBTracer
	stats        *tracing.StatsTracer
	transcript   *tracing.TranscriptWriter
	monitor      *monitoring.Monitor
	monitorPort  int

	components map[string]Component
	compOrder  []Component
	masters    []*busmodel.Master
	pumps      []*busmodel.StreamPump
	memory     *busmodel.Memory

	terminated bool
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Engine returns the engine used in the simulation.
func (s *Simulation) Engine() *timing.SerialEngine {
	return s.engine
}

// Bridge returns the bridge that runs the scripts.
func (s *Simulation) Bridge() *bridge.Bridge {
	return s.bridge
}

// Registry returns the system tasks the participants call the bridge through.
func (s *Simulation) Registry() *host.Registry {
	return s.registry
}

// DataRecorder returns the data recorder, or nil if nothing is recorded.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// DBTracer returns the tracer that records exchanges, or nil if nothing is
// recorded.
func (s *Simulation) DBTracer() *tracing.DBTracer {
	return s.dbTracer
}

// Stats returns the exchange counters.
func (s *Simulation) Stats() *tracing.StatsTracer {
	return s.stats
}

// Transcript returns the transcript writer, or nil.
func (s *Simulation) Transcript() *tracing.TranscriptWriter {
	return s.transcript
}

// Monitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorPort returns the port the monitor listens on.
func (s *Simulation) MonitorPort() int {
	return s.monitorPort
}

// RegisterComponent registers a component with the simulation. Masters and
// pumps are started by Run.
func (s *Simulation) RegisterComponent(c Component) {
	name := c.Name()
	if _, found := s.components[name]; found {
		log.Panicf("component %s already registered", name)
	}

	s.components[name] = c
	s.compOrder = append(s.compOrder, c)

	switch c := c.(type) {
	case *busmodel.Master:
		s.masters = append(s.masters, c)
	case *busmodel.StreamPump:
		s.pumps = append(s.pumps, c)
	}
}

// GetComponentByName returns the component with the given name, or nil.
func (s *Simulation) GetComponentByName(name string) Component {
	return s.components[name]
}

// Components returns all registered components in registration order.
func (s *Simulation) Components() []Component {
	return append([]Component(nil), s.compOrder...)
}

// Run starts every master and pump and runs the engine until no event is
// left. It returns the errors that stopped any of them.
func (s *Simulation) Run() error {
	if s.runRecorder != nil {
		s.runRecorder.Start()
		s.runRecorder.Set("Simulation ID", s.id)
		s.runRecorder.Set("Revision", s.bridge.Revision().String())
	}

	progress := s.trackProgress()
	defer progress()

	for _, m := range s.masters {
		m.TickNow()
	}

	for _, p := range s.pumps {
		p.TickNow()
	}

	errs := []error{s.engine.Run()}

	for _, m := range s.masters {
		if m.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), m.Err()))
		}
	}

	for _, p := range s.pumps {
		if p.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), p.Err()))
		}
	}

	s.recordResults()

	return errors.Join(errs...)
}

func (s *Simulation) trackProgress() func() {
	if s.monitor == nil || len(s.masters) == 0 {
		return func() {}
	}

	bars := make([]*monitoring.ProgressBar, len(s.masters))
	for i, m := range s.masters {
		bars[i] = s.monitor.CreateProgressBar(m.Name(), m.MaxCycles())
	}

	hook := hooking.NewHookFunc(func(ctx hooking.HookCtx) {
		if ctx.Pos != timing.HookPosAfterEvent {
			return
		}

		for i, m := range s.masters {
			bars[i].SetFinished(m.CurrentCycle())
		}
	})
	s.engine.AcceptHook(hook)

	return func() {
		s.engine.RemoveHook(hook)

		for _, b := range bars {
			s.monitor.CompleteProgressBar(b)
		}
	}
}

func (s *Simulation) recordResults() {
	if s.runRecorder == nil {
		return
	}

	for _, m := range s.masters {
		st := m.Stats()
		s.runRecorder.Set(m.Name()+" Exchanges",
			strconv.FormatUint(st.Exchanges, 10))
		s.runRecorder.Set(m.Name()+" Bus Errors",
			strconv.FormatUint(st.BusErrors, 10))
	}

	for _, p := range s.pumps {
		s.runRecorder.Set(p.Name()+" Words", strconv.Itoa(p.Moved()))
	}

	s.runRecorder.Set("Exchanges", strconv.FormatUint(s.stats.Total(), 10))
	s.runRecorder.Set("Simulated Time", fmt.Sprintf("%.12f", s.engine.Now()))
}

// Terminate closes every session and flushes and closes the recorders. It is
// registered with atexit by the CLI and can be called more than once.
func (s *Simulation) Terminate() error {
	if s.terminated {
		return nil
	}

	s.terminated = true

	errs := []error{s.bridge.Close()}

	if s.transcript != nil {
		errs = append(errs, s.transcript.Close())
	}

	if s.dataRecorder != nil {
		s.dbTracer.Terminate()
		s.runRecorder.End()
		errs = append(errs, s.dataRecorder.Close())
	}

	if s.monitor != nil {
		errs = append(errs, s.monitor.StopServer())
	}

	return errors.Join(errs...)
}

// TerminateAtExit registers Terminate with atexit.
func (s *Simulation) TerminateAtExit() {
	atexit.Register(func() {
		err := s.Terminate()
		if err != nil {
			s.logger.Errorf("terminate: %s", err)
		}
	})
}

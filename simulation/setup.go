package simulation

import (
	"fmt"

	"github.com/sarchlab/luabridge/busmodel"
	"github.com/sarchlab/luabridge/config"
	"github.com/sarchlab/luabridge/host"
)

// Names of the participants created by Setup.
const (
	MasterName = "Master"
	PumpName   = "Pump"
)

// Setup opens the sessions a configuration names and registers the master and
// the pump that drive them. Sessions are opened and driven through the system
// tasks of the registry. Without a slave script the master talks to a memory.
func (s *Simulation) Setup(c *config.Config) error {
	if c.Master.Script != "" {
		err := s.setupMaster(c)
		if err != nil {
			return err
		}
	}

	if c.HasStream() {
		err := s.setupStream(c)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Simulation) setupMaster(c *config.Config) error {
	var target busmodel.Target

	if c.Slave.Script != "" {
		port, err := s.open(c.Slave.Script)
		if err != nil {
			return err
		}

		target = busmodel.NewScriptSlave(port)
	} else {
		s.memory = busmodel.NewMemory(c.Slave.MemoryBytes)
		target = s.memory
	}

	port, err := s.open(c.Master.Script)
	if err != nil {
		return err
	}

	m := busmodel.MakeMasterBuilder().
		WithEngine(s.engine).
		WithFreq(c.MasterFreq()).
		WithTarget(target).
		WithLogger(s.logger).
		WithMaxCycles(c.Master.MaxCycles).
		Build(MasterName, port)
	s.RegisterComponent(m)

	return nil
}

func (s *Simulation) setupStream(c *config.Config) error {
	source, err := s.open(c.Stream.Source)
	if err != nil {
		return err
	}

	sink, err := s.open(c.Stream.Sink)
	if err != nil {
		return err
	}

	p := busmodel.NewStreamPump(PumpName, s.engine, c.StreamFreq(),
		source, sink, int(c.Stream.Count))
	s.RegisterComponent(p)

	return nil
}

func (s *Simulation) open(script string) (*host.Port, error) {
	port, err := host.Open(s.registry, script)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", script, err)
	}

	return port, nil
}

// Memory returns the memory the master talks to, or nil if the slave is a
// script.
func (s *Simulation) Memory() *busmodel.Memory {
	return s.memory
}

package simulation

import (
	"log"

	"github.com/rs/xid"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/datarecording"
	"github.com/sarchlab/luabridge/host"
	"github.com/sarchlab/luabridge/monitoring"
	"github.com/sarchlab/luabridge/script"
	"github.com/sarchlab/luabridge/timing"
	"github.com/sarchlab/luabridge/tracing"
	"github.com/tliron/commonlog"
)

// Builder can be used to build a simulation.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	recordOn       bool
	outputFileName string
	transcriptPath string
	revision       bridge.Revision
	maxSessions    int
	factory        script.Factory
	logger         commonlog.Logger
}

// MakeBuilder creates a new builder. By default nothing is recorded and no
// monitor is started.
func MakeBuilder() Builder {
	return Builder{
		revision: bridge.RevisionTimed,
	}
}

// WithMonitoring starts the monitoring server when the simulation is built.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithRecording records every exchange into a database. An empty file name
// gets a unique generated name.
func (b Builder) WithRecording(filename string) Builder {
	b.recordOn = true
	b.outputFileName = filename

	return b
}

// WithTranscript streams every exchange into a transcript file.
func (b Builder) WithTranscript(path string) Builder {
	b.transcriptPath = path
	return b
}

// WithRevision sets the master protocol revision of the bridge.
func (b Builder) WithRevision(r bridge.Revision) Builder {
	b.revision = r
	return b
}

// WithMaxSessions limits the number of live sessions.
func (b Builder) WithMaxSessions(n int) Builder {
	b.maxSessions = n
	return b
}

// WithFactory sets the factory of the scripting engines.
func (b Builder) WithFactory(f script.Factory) Builder {
	b.factory = f
	return b
}

// WithLogger sets the logger of the simulation and its bridge.
func (b Builder) WithLogger(logger commonlog.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		log.Panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	s := &Simulation{
		id:         xid.New().String(),
		engine:     timing.NewSerialEngine(),
		logger:     b.logger,
		components: make(map[string]Component),
	}

	if s.logger == nil {
		s.logger = commonlog.GetLogger("luabridge.simulation")
	}

	s.bridge = bridge.MakeBuilder().
		WithFactory(b.factory).
		WithLogger(s.logger).
		WithRevision(b.revision).
		WithMaxSessions(b.maxSessions).
		Build()

	s.registry = host.NewRegistry(s.logger)
	host.Install(s.registry, s.bridge)

	s.stats = tracing.NewStatsTracer()
	tracing.CollectExchanges(s.bridge, s.stats)

	err := b.buildRecording(s)
	if err != nil {
		return nil, err
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithPortNumber(b.monitorPort)
		s.monitor.RegisterEngine(s.engine)
		s.monitor.RegisterBridge(s.bridge)
		s.monitor.RegisterStats(s.stats)

		s.monitorPort, err = s.monitor.StartServer()
		if err != nil {
			_ = s.Terminate()
			return nil, err
		}
	}

	return s, nil
}

func (b Builder) buildRecording(s *Simulation) error {
	if b.recordOn {
		recorder, err := datarecording.New(b.outputFileName)
		if err != nil {
			return err
		}

		s.dataRecorder = recorder
		s.runRecorder = datarecording.NewRunRecorder(recorder)
		s.dbTracer = tracing.NewDBTracer(s.engine, recorder)
		tracing.CollectExchanges(s.bridge, s.dbTracer)
	}

	if b.transcriptPath != "" {
		t, err := tracing.CreateTranscript(b.transcriptPath, s.bridge)
		if err != nil {
			if s.dataRecorder != nil {
				_ = s.dataRecorder.Close()
			}

			return err
		}

		s.transcript = t
		tracing.CollectExchanges(s.bridge, t)
	}

	return nil
}

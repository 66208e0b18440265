package bridge

import (
	"log"

	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/script"
	"github.com/tliron/commonlog"
)

// Builder builds bridges.
type Builder struct {
	factory     script.Factory
	logger      commonlog.Logger
	revision    Revision
	maxSessions int
}

// MakeBuilder returns a Builder with default parameters. By default the
// bridge speaks RevisionTimed, runs gopher-lua engines and places no limit on
// the number of sessions.
func MakeBuilder() Builder {
	return Builder{
		revision: RevisionTimed,
	}
}

// WithFactory sets the factory that creates the engine of every session.
func (b Builder) WithFactory(factory script.Factory) Builder {
	b.factory = factory
	return b
}

// WithLogger sets the logger of the bridge.
func (b Builder) WithLogger(logger commonlog.Logger) Builder {
	b.logger = logger
	return b
}

// WithRevision sets the master exchange protocol revision.
func (b Builder) WithRevision(revision Revision) Builder {
	b.revision = revision
	return b
}

// WithMaxSessions limits the number of live sessions.
func (b Builder) WithMaxSessions(n int) Builder {
	b.maxSessions = n
	return b
}

// Build creates the bridge.
func (b Builder) Build() *Bridge {
	if b.revision != RevisionTimed && b.revision != RevisionCAD {
		log.Panic("unknown protocol revision")
	}

	logger := b.logger
	if logger == nil {
		logger = commonlog.GetLogger("luabridge.bridge")
	}

	factory := b.factory
	if factory == nil {
		factory = DefaultFactory(logger)
	}

	return &Bridge{
		sessions: handle.NewTable[*Session](b.maxSessions),
		factory:  factory,
		logger:   logger,
		revision: b.revision,
	}
}

// DefaultFactory returns the gopher-lua factory used when none is configured.
// Scripts see the bus constants and their print output goes to the logger.
func DefaultFactory(logger commonlog.Logger) *script.LuaFactory {
	return script.MakeLuaBuilder().
		WithConstants("bus", BusConstants()).
		WithPrintSink(func(source, line string) {
			logger.Infof("[%s] %s", source, line)
		}).
		Build()
}

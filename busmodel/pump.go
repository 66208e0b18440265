package busmodel

import (
	"log"

	"github.com/sarchlab/luabridge/host"
	"github.com/sarchlab/luabridge/timing"
	"github.com/tliron/commonlog"
)

// Commands of read_data.
const (
	ReadReset uint32 = 0
	ReadNext  uint32 = 1
)

// A StreamPump moves words from a source session into a sink session, one
// word per cycle. On its first tick it resets the source.
type StreamPump struct {
	*timing.TickingComponent

	source *host.Port
	sink   *host.Port
	logger commonlog.Logger
	count  int

	reset bool
	moved int
	err   error
}

// NewStreamPump creates a pump that moves count words from source to sink.
func NewStreamPump(
	name string,
	engine timing.Engine,
	freq timing.Freq,
	source, sink *host.Port,
	count int,
) *StreamPump {
	if count < 0 {
		log.Panic("count must not be negative")
	}

	p := &StreamPump{
		source: source,
		sink:   sink,
		count:  count,
		logger: commonlog.GetLogger("luabridge.busmodel"),
	}
	p.TickingComponent = timing.NewTickingComponent(name, engine, freq, p)

	return p
}

// Moved returns the number of words moved so far.
func (p *StreamPump) Moved() int {
	return p.moved
}

// Err returns the error that stopped the pump, if any.
func (p *StreamPump) Err() error {
	return p.err
}

// Tick moves one word.
func (p *StreamPump) Tick() bool {
	if p.err != nil || p.moved >= p.count {
		return false
	}

	if !p.reset {
		_, err := p.source.ReadData(ReadReset)
		if err != nil {
			return p.fail(err)
		}

		p.reset = true

		return true
	}

	v, err := p.source.ReadData(ReadNext)
	if err != nil {
		return p.fail(err)
	}

	err = p.sink.WriteData(uint32(p.CurrentCycle()), v)
	if err != nil {
		return p.fail(err)
	}

	p.moved++

	return p.moved < p.count
}

func (p *StreamPump) fail(err error) bool {
	p.logger.Errorf("%s stopped after %d words: %s", p.Name(), p.moved, err)
	p.err = err

	return false
}

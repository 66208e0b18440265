// Package busmodel provides the participants of a simulated bus: a master and
// a slave whose behavior comes from scripts, a sparse memory slave and a pump
// that streams words between data scripts.
package busmodel

import (
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/host"
)

// Slave status codes answered by the built-in targets. Script slaves answer
// whatever their script returns.
const (
	StatusOK       uint32 = 0
	StatusBusError uint32 = 1
)

// A Target is a bus slave.
type Target interface {
	Access(
		time uint32,
		cmd bridge.Command,
		addr, data uint32,
	) (bridge.SlaveResult, error)
}

// ScriptSlave is a bus slave whose answers come from the exchange_S function
// of a script session.
type ScriptSlave struct {
	port *host.Port
}

// NewScriptSlave creates a slave backed by the session behind port.
func NewScriptSlave(port *host.Port) *ScriptSlave {
	return &ScriptSlave{port: port}
}

// Handle returns the session of the slave.
func (s *ScriptSlave) Handle() handle.Handle {
	return s.port.Handle()
}

// Access runs $lua_exchange_s.
func (s *ScriptSlave) Access(
	time uint32,
	cmd bridge.Command,
	addr, data uint32,
) (bridge.SlaveResult, error) {
	return s.port.ExchangeSlave(time, cmd, addr, data)
}

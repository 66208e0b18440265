package host

import (
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
)

// A Port is the simulator side of one session. It keeps the session handle in
// two registers and runs every operation as a system task of a registry, so
// results and status codes are read back from output registers.
type Port struct {
	reg    *Registry
	lo, hi *Reg
	status *Reg
}

// Open runs $lua_init for the script at path and returns a port on the new
// session.
func Open(reg *Registry, path string) (*Port, error) {
	p := &Port{reg: reg, lo: NewReg(0), hi: NewReg(0), status: NewReg(0)}

	err := reg.Call(TaskInit, Str(path), p.lo, p.hi)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// NewPort creates a port on a session that is already open.
func NewPort(reg *Registry, h handle.Handle) *Port {
	hi, lo := handle.Encode(h)

	return &Port{reg: reg, lo: NewReg(lo), hi: NewReg(hi), status: NewReg(0)}
}

// Handle joins the two handle registers.
func (p *Port) Handle() handle.Handle {
	return handle.Decode(p.hi.Value(), p.lo.Value())
}

// LastStatus returns the status code written by the last exchange.
func (p *Port) LastStatus() int32 {
	return p.status.Signed()
}

// Close runs $lua_deinit.
func (p *Port) Close() error {
	return p.reg.Call(TaskDeinit, p.lo, p.hi)
}

// ExchangeMaster runs $lua_exchange_m.
func (p *Port) ExchangeMaster(
	dataIn, statusIn uint32,
) (bridge.MasterResult, error) {
	out := Regs(4)

	err := p.reg.Call(TaskExchangeM,
		p.lo, p.hi, NewReg(dataIn), NewReg(statusIn),
		out[0], out[1], out[2], out[3], p.status)

	return bridge.MasterResult{
		Time: out[0].Value(),
		Cmd:  bridge.Command(out[1].Value()),
		Addr: out[2].Value(),
		Data: out[3].Value(),
	}, err
}

// ExchangeSlave runs $lua_exchange_s.
func (p *Port) ExchangeSlave(
	time uint32,
	cmd bridge.Command,
	addr, data uint32,
) (bridge.SlaveResult, error) {
	out := Regs(2)

	err := p.reg.Call(TaskExchangeS,
		p.lo, p.hi, NewReg(time), NewReg(uint32(cmd)), NewReg(addr),
		NewReg(data), out[0], out[1], p.status)

	return bridge.SlaveResult{
		Data:   out[0].Value(),
		Status: out[1].Value(),
	}, err
}

// ReadData runs $lua_read_data.
func (p *Port) ReadData(cmd uint32) (uint32, error) {
	out := NewReg(0)

	err := p.reg.Call(TaskReadData, p.lo, p.hi, NewReg(cmd), out, p.status)

	return out.Value(), err
}

// WriteData runs $lua_write_data.
func (p *Port) WriteData(time, data uint32) error {
	return p.reg.Call(TaskWriteData,
		p.lo, p.hi, NewReg(time), NewReg(data), p.status)
}

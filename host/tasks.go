package host

import (
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
)

// Names of the bridge system tasks.
const (
	TaskInit      = "$lua_init"
	TaskDeinit    = "$lua_deinit"
	TaskExchangeM = "$lua_exchange_m"
	TaskExchangeS = "$lua_exchange_s"
	TaskReadData  = "$lua_read_data"
	TaskWriteData = "$lua_write_data"
)

// Install registers the bridge system tasks. Arguments are passed inputs
// first, then outputs. Handles travel as their low word followed by their
// high word.
//
//	$lua_init       path, handle_lo(out), handle_hi(out)
//	$lua_deinit     handle_lo, handle_hi
//	$lua_exchange_m handle_lo, handle_hi, data_in, status_in,
//	                time(out), cmd(out), addr(out), data(out), status(out)
//	$lua_exchange_s handle_lo, handle_hi, time, cmd_in, addr_in, data_in,
//	                data_out(out), status_out(out), status(out)
//	$lua_read_data  handle_lo, handle_hi, cmd_in, data_out(out), status(out)
//	$lua_write_data handle_lo, handle_hi, time, data_in, status(out)
//
// When an exchange fails, its outputs other than status are written as 0.
func Install(reg *Registry, b *bridge.Bridge) {
	t := tasks{bridge: b}

	reg.Register(TaskInit, t.initSession)
	reg.Register(TaskDeinit, t.deinit)
	reg.Register(TaskExchangeM, t.exchangeM)
	reg.Register(TaskExchangeS, t.exchangeS)
	reg.Register(TaskReadData, t.readData)
	reg.Register(TaskWriteData, t.writeData)
}

type tasks struct {
	bridge *bridge.Bridge
}

func (t tasks) initSession(bind *Binder) error {
	path := bind.Text()
	lo := bind.Out()
	hi := bind.Out()

	if err := bind.Err(); err != nil {
		return err
	}

	h, err := t.bridge.Init(path)
	putHandle(lo, hi, h)

	return err
}

func (t tasks) deinit(bind *Binder) error {
	h := bind.Handle()

	if err := bind.Err(); err != nil {
		return err
	}

	return t.bridge.Deinit(h)
}

func (t tasks) exchangeM(bind *Binder) error {
	h := bind.Handle()
	dataIn := bind.Word()
	statusIn := bind.Word()
	timeOut := bind.Out()
	cmdOut := bind.Out()
	addrOut := bind.Out()
	dataOut := bind.Out()
	status := bind.Status()

	if err := bind.Err(); err != nil {
		return err
	}

	r, err := t.bridge.ExchangeMaster(h, dataIn, statusIn)
	put(timeOut, r.Time)
	put(cmdOut, r.Cmd)
	put(addrOut, r.Addr)
	put(dataOut, r.Data)
	put(status, bridge.StatusCode(err))

	return err
}

func (t tasks) exchangeS(bind *Binder) error {
	h := bind.Handle()
	time := bind.Word()
	cmdIn := bind.Word()
	addrIn := bind.Word()
	dataIn := bind.Word()
	dataOut := bind.Out()
	statusOut := bind.Out()
	status := bind.Status()

	if err := bind.Err(); err != nil {
		return err
	}

	r, err := t.bridge.ExchangeSlave(h, time, bridge.Command(cmdIn), addrIn, dataIn)
	put(dataOut, r.Data)
	put(statusOut, r.Status)
	put(status, bridge.StatusCode(err))

	return err
}

func (t tasks) readData(bind *Binder) error {
	h := bind.Handle()
	cmdIn := bind.Word()
	dataOut := bind.Out()
	status := bind.Status()

	if err := bind.Err(); err != nil {
		return err
	}

	v, err := t.bridge.ReadData(h, cmdIn)
	put(dataOut, v)
	put(status, bridge.StatusCode(err))

	return err
}

func (t tasks) writeData(bind *Binder) error {
	h := bind.Handle()
	time := bind.Word()
	dataIn := bind.Word()
	status := bind.Status()

	if err := bind.Err(); err != nil {
		return err
	}

	err := t.bridge.WriteData(h, time, dataIn)
	put(status, bridge.StatusCode(err))

	return err
}

func putHandle(lo, hi Slot, h handle.Handle) {
	hiWord, loWord := handle.Encode(h)
	lo.Put(loWord)
	hi.Put(hiWord)
}

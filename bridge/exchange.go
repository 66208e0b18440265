package bridge

import (
	"strconv"

	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/hooking"
)

// ExchangeKind tells which protocol an exchange belongs to.
type ExchangeKind string

// Exchange kinds.
const (
	ExchangeMaster    ExchangeKind = "master"
	ExchangeSlave     ExchangeKind = "slave"
	ExchangeReadData  ExchangeKind = "read_data"
	ExchangeWriteData ExchangeKind = "write_data"
)

// An Exchange is the record of one round trip with a script. Hooks receive it
// at HookPosExchangeStart, without results, and at HookPosExchangeEnd.
type Exchange struct {
	ID      string
	Handle  handle.Handle
	Kind    ExchangeKind
	Func    string
	Args    []uint32
	Results []uint32
	Status  int32
	Err     error
}

// ExchangeMaster runs one master bus transaction. The script receives the
// data read from the bus and the status lines and decides the next command.
func (b *Bridge) ExchangeMaster(
	h handle.Handle,
	dataIn, statusIn uint32,
) (MasterResult, error) {
	fn := b.revision.MasterFunc()

	s, err := b.lookup(h, fn)
	if err != nil {
		return MasterResult{}, err
	}

	c := call{
		fn:      fn,
		args:    wordArgs(dataIn, statusIn),
		returns: integers(b.revision.masterReturns()),
	}

	out, err := b.exchange(s, ExchangeMaster, c)
	if err != nil {
		return MasterResult{}, err
	}

	if b.revision == RevisionCAD {
		return MasterResult{Cmd: Command(out[0]), Addr: out[1], Data: out[2]}, nil
	}

	return MasterResult{
		Time: out[0],
		Cmd:  Command(out[1]),
		Addr: out[2],
		Data: out[3],
	}, nil
}

// ExchangeSlave runs one slave bus transaction. The script receives the
// command, address and data driven by a master and answers with data and a
// status.
func (b *Bridge) ExchangeSlave(
	h handle.Handle,
	time uint32,
	cmdIn Command,
	addrIn, dataIn uint32,
) (SlaveResult, error) {
	s, err := b.lookup(h, FuncExchangeS)
	if err != nil {
		return SlaveResult{}, err
	}

	c := call{
		fn:      FuncExchangeS,
		args:    wordArgs(time, uint32(cmdIn), addrIn, dataIn),
		returns: integers(2),
	}

	out, err := b.exchange(s, ExchangeSlave, c)
	if err != nil {
		return SlaveResult{}, err
	}

	return SlaveResult{Data: out[0], Status: out[1]}, nil
}

// ReadData pulls one word from a data-source script. By convention cmdIn 0
// resets the source and 1 reads the next word.
func (b *Bridge) ReadData(h handle.Handle, cmdIn uint32) (uint32, error) {
	s, err := b.lookup(h, FuncReadData)
	if err != nil {
		return 0, err
	}

	c := call{
		fn:      FuncReadData,
		args:    wordArgs(cmdIn),
		returns: integers(1),
	}

	out, err := b.exchange(s, ExchangeReadData, c)
	if err != nil {
		return 0, err
	}

	return out[0], nil
}

// WriteData pushes one time-stamped word into a data-sink script.
func (b *Bridge) WriteData(h handle.Handle, time, dataIn uint32) error {
	s, err := b.lookup(h, FuncWriteData)
	if err != nil {
		return err
	}

	c := call{
		fn:   FuncWriteData,
		args: wordArgs(time, dataIn),
	}

	_, err = b.exchange(s, ExchangeWriteData, c)

	return err
}

func (b *Bridge) exchange(
	s *Session,
	kind ExchangeKind,
	c call,
) ([]uint32, error) {
	x := &Exchange{
		ID:     strconv.FormatUint(b.nextID.Add(1), 10),
		Handle: s.handle,
		Kind:   kind,
		Func:   c.fn,
		Args:   words(c.args),
	}

	b.invokeExchangeHook(HookPosExchangeStart, x)

	results, err := c.invoke(s.engine)

	x.Status = StatusCode(err)
	x.Err = err

	if err == nil {
		x.Results = words(results)
		b.logger.Debugf("session %s %s%v -> %v",
			s.handle, c.fn, x.Args, x.Results)
	} else {
		b.logger.Errorf("session %s %s%v failed (%d): %s",
			s.handle, c.fn, x.Args, x.Status, err)
	}

	s.record(x.Status)
	b.invokeExchangeHook(HookPosExchangeEnd, x)

	return x.Results, err
}

func (b *Bridge) invokeExchangeHook(pos *hooking.HookPos, x *Exchange) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    pos,
		Item:   *x,
	})
}

package script

import (
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// PrintSink receives the lines a script prints. The source is the base name
// of the script file.
type PrintSink func(source, line string)

// LuaBuilder builds LuaFactory objects.
type LuaBuilder struct {
	callStackSize int
	registrySize  int
	constants     map[string]map[string]int64
	printSink     PrintSink
}

// MakeLuaBuilder returns a LuaBuilder with default parameters.
func MakeLuaBuilder() LuaBuilder {
	return LuaBuilder{
		callStackSize: 256,
		registrySize:  1024 * 20,
		constants:     make(map[string]map[string]int64),
	}
}

// WithCallStackSize sets the maximum Lua call depth.
func (b LuaBuilder) WithCallStackSize(n int) LuaBuilder {
	b.callStackSize = n
	return b
}

// WithRegistrySize sets the initial size of the Lua value stack.
func (b LuaBuilder) WithRegistrySize(n int) LuaBuilder {
	b.registrySize = n
	return b
}

// WithConstants publishes a global table of integer constants in every engine.
func (b LuaBuilder) WithConstants(
	table string,
	consts map[string]int64,
) LuaBuilder {
	merged := make(map[string]map[string]int64, len(b.constants)+1)
	for k, v := range b.constants {
		merged[k] = v
	}

	merged[table] = consts
	b.constants = merged

	return b
}

// WithPrintSink replaces the Lua print function with one that forwards the
// printed line to the sink.
func (b LuaBuilder) WithPrintSink(sink PrintSink) LuaBuilder {
	b.printSink = sink
	return b
}

// Build creates the factory.
func (b LuaBuilder) Build() *LuaFactory {
	if b.callStackSize <= 0 {
		log.Panic("call stack size must be positive")
	}

	return &LuaFactory{
		callStackSize: b.callStackSize,
		registrySize:  b.registrySize,
		constants:     b.constants,
		printSink:     b.printSink,
	}
}

// LuaFactory creates gopher-lua engines. Every engine has its own LState.
type LuaFactory struct {
	callStackSize int
	registrySize  int
	constants     map[string]map[string]int64
	printSink     PrintSink
}

// NewEngine creates a fresh Lua state with the standard libraries opened.
func (f *LuaFactory) NewEngine() (engine Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine = nil
			err = fmt.Errorf("cannot create lua state: %v", r)
		}
	}()

	state := lua.NewState(lua.Options{
		CallStackSize: f.callStackSize,
		RegistrySize:  f.registrySize,
	})

	e := &luaEngine{
		state:     state,
		printSink: f.printSink,
	}

	f.publishConstants(state)

	if f.printSink != nil {
		state.SetGlobal("print", state.NewFunction(e.print))
	}

	return e, nil
}

func (f *LuaFactory) publishConstants(state *lua.LState) {
	tables := make([]string, 0, len(f.constants))
	for name := range f.constants {
		tables = append(tables, name)
	}

	sort.Strings(tables)

	for _, name := range tables {
		tbl := state.NewTable()
		for k, v := range f.constants[name] {
			state.SetField(tbl, k, lua.LNumber(v))
		}

		state.SetGlobal(name, tbl)
	}
}

type luaEngine struct {
	state     *lua.LState
	chunk     *lua.LFunction
	source    string
	printSink PrintSink
	closed    bool
}

func (e *luaEngine) Load(path string) error {
	fn, err := e.state.LoadFile(path)
	if err != nil {
		return err
	}

	e.chunk = fn
	e.source = filepath.Base(path)

	return nil
}

func (e *luaEngine) Exec() error {
	if e.chunk == nil {
		return errors.New("no script loaded")
	}

	base := e.state.GetTop()
	defer e.state.SetTop(base)

	e.state.Push(e.chunk)

	err := e.state.PCall(0, lua.MultRet, nil)
	if err != nil {
		return &RuntimeError{Message: errorMessage(err)}
	}

	return nil
}

func (e *luaEngine) HasFunction(name string) bool {
	_, ok := e.state.GetGlobal(name).(*lua.LFunction)
	return ok
}

func (e *luaEngine) Call(
	name string,
	args []Value,
	nret int,
) (results []Value, err error) {
	fn, ok := e.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}

	base := e.state.GetTop()
	defer e.state.SetTop(base)

	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = &RuntimeError{Func: name, Message: fmt.Sprint(r)}
		}
	}()

	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		luaArgs[i] = toLua(a)
	}

	err = e.state.CallByParam(
		lua.P{Fn: fn, NRet: nret, Protect: true},
		luaArgs...,
	)
	if err != nil {
		return nil, &RuntimeError{Func: name, Message: errorMessage(err)}
	}

	results = make([]Value, nret)
	for i := 0; i < nret; i++ {
		results[i] = fromLua(e.state.Get(base + 1 + i))
	}

	return results, nil
}

func (e *luaEngine) Close() {
	if e.closed {
		return
	}

	e.closed = true
	e.chunk = nil
	e.state.Close()
}

func (e *luaEngine) print(L *lua.LState) int {
	top := L.GetTop()

	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}

	e.printSink(e.source, strings.Join(parts, "\t"))

	return 0
}

func errorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}

	return err.Error()
}

func toLua(v Value) lua.LValue {
	switch v.kind {
	case KindInteger:
		return lua.LNumber(v.integer)
	case KindNumber:
		return lua.LNumber(v.number)
	case KindString:
		return lua.LString(v.str)
	case KindBoolean:
		return lua.LBool(v.boolean)
	default:
		return lua.LNil
	}
}

// fromLua maps a Lua value to a Value. Lua numbers are float64 in gopher-lua;
// an integral number within the int64 range is reported as an integer.
func fromLua(lv lua.LValue) Value {
	switch v := lv.(type) {
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return Int(int64(f))
		}

		return Number(f)
	case lua.LString:
		return Str(string(v))
	case lua.LBool:
		return Bool(bool(v))
	}

	if lv == nil || lv.Type() == lua.LTNil {
		return Nil()
	}

	return Other(lv.Type().String())
}

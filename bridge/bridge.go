// Package bridge connects a cycle-driven simulation kernel with behavioral
// models written as scripts.
//
// A Bridge owns a table of sessions. Each session owns one scripting engine
// with one loaded script. The kernel refers to sessions only by handle and
// drives them with master and slave exchanges, each a single synchronous call
// into the script.
package bridge

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/hooking"
	"github.com/sarchlab/luabridge/script"
	"github.com/tliron/commonlog"
)

// Hook positions of a Bridge.
var (
	HookPosSessionOpen   = &hooking.HookPos{Name: "SessionOpen"}
	HookPosSessionClose  = &hooking.HookPos{Name: "SessionClose"}
	HookPosExchangeStart = &hooking.HookPos{Name: "ExchangeStart"}
	HookPosExchangeEnd   = &hooking.HookPos{Name: "ExchangeEnd"}
)

// A Bridge manages script sessions and the exchanges with them.
type Bridge struct {
	hooking.HookableBase

	sessions *handle.Table[*Session]
	factory  script.Factory
	logger   commonlog.Logger
	revision Revision
	nextID   atomic.Uint64
}

// Name returns the name used in hooks and traces.
func (b *Bridge) Name() string {
	return "Bridge"
}

// Revision returns the master protocol revision the bridge speaks.
func (b *Bridge) Revision() Revision {
	return b.revision
}

// Init creates a session from the script at path. The script is loaded, its
// body is executed once and init_env is called. On any failure every resource
// acquired so far is released and the null handle is returned.
func (b *Bridge) Init(path string) (handle.Handle, error) {
	if b.sessions.Len() >= b.sessions.Cap() {
		return b.initFailed(path, &Error{
			Kind: AllocationFailed,
			Op:   "init",
			Err:  handle.ErrTableFull,
		})
	}

	s := &Session{scriptPath: path}

	engine, err := b.factory.NewEngine()
	if err != nil {
		return b.initFailed(path,
			&Error{Kind: EngineCreateFailed, Op: "init", Err: err})
	}

	s.engine = engine

	err = b.bootstrap(s)
	if err != nil {
		engine.Close()
		return b.initFailed(path, err)
	}

	s.openedAt = time.Now()

	h, err := b.sessions.InsertFunc(func(h handle.Handle) *Session {
		s.handle = h
		s.setState(StateReady)

		return s
	})
	if err != nil {
		engine.Close()
		return b.initFailed(path,
			&Error{Kind: AllocationFailed, Op: "init", Err: err})
	}

	b.logger.Infof("session %s opened from %s", h, path)
	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    HookPosSessionOpen,
		Item:   s.Info(),
	})

	return h, nil
}

func (b *Bridge) initFailed(path string, err error) (handle.Handle, error) {
	b.logger.Errorf("cannot open session from %s: %s", path, err)
	return handle.Null, err
}

func (b *Bridge) bootstrap(s *Session) error {
	err := s.engine.Load(s.scriptPath)
	if err != nil {
		return &Error{Kind: ScriptLoadFailed, Op: "init", Err: err}
	}

	err = s.engine.Exec()
	if err != nil {
		return &Error{Kind: ScriptExecFailed, Op: "init", Err: err}
	}

	c := call{fn: FuncInitEnv, returns: integers(1)}

	results, err := c.invoke(s.engine)
	if err != nil {
		return &Error{Kind: BootstrapFailed, Op: "init", Err: err}
	}

	status, _ := results[0].AsInt()
	s.bootstrap = status

	if status < 0 {
		return &Error{
			Kind:    BootstrapFailed,
			Op:      "init",
			Message: FuncInitEnv + " returned a negative status",
		}
	}

	s.scanFunctions()

	return nil
}

// Deinit closes a session and releases its engine. Deinit of the null handle
// does nothing. Deinit of a handle that is not live (already closed, or never
// issued) releases nothing and returns an InvalidSession error.
func (b *Bridge) Deinit(h handle.Handle) error {
	if h.IsNull() {
		return nil
	}

	s, ok := b.sessions.Remove(h)
	if !ok {
		b.logger.Warningf("deinit of stale session handle %s", h)
		return &Error{Kind: InvalidSession, Op: "deinit"}
	}

	s.setState(StateClosed)
	s.engine.Close()

	b.logger.Infof("session %s closed", h)
	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    HookPosSessionClose,
		Item:   s.Info(),
	})

	return nil
}

// Session resolves a handle to a live session.
func (b *Bridge) Session(h handle.Handle) (*Session, error) {
	return b.lookup(h, "lookup")
}

func (b *Bridge) lookup(h handle.Handle, op string) (*Session, error) {
	s, ok := b.sessions.Get(h)
	if !ok {
		if !h.IsNull() {
			b.logger.Warningf("%s on invalid session handle %s", op, h)
		}

		return nil, &Error{Kind: InvalidSession, Op: op}
	}

	return s, nil
}

// NumSessions returns the number of live sessions.
func (b *Bridge) NumSessions() int {
	return b.sessions.Len()
}

// Sessions returns a snapshot of every live session.
func (b *Bridge) Sessions() []SessionInfo {
	var infos []SessionInfo

	b.sessions.Each(func(_ handle.Handle, s *Session) {
		infos = append(infos, s.Info())
	})

	return infos
}

// Close closes every live session.
func (b *Bridge) Close() error {
	var errs []error

	for _, h := range b.sessions.Handles() {
		errs = append(errs, b.Deinit(h))
	}

	return errors.Join(errs...)
}

package bridge

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/script"
)

// State is the lifecycle state of a session.
type State int

// Session states. A session only moves forward.
const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// A Session owns one scripting engine and the script loaded into it.
//
// Exchanges on a session must not run on two goroutines at the same time. The
// host is expected to issue one exchange at a time per handle. Inspecting a
// session never touches its engine and is safe from any goroutine.
type Session struct {
	handle     handle.Handle
	engine     script.Engine
	scriptPath string
	bootstrap  int64
	functions  []string
	openedAt   time.Time

	state      atomic.Int32
	exchanges  atomic.Uint64
	failures   atomic.Uint64
	lastStatus atomic.Int32
}

// Handle returns the handle of the session.
func (s *Session) Handle() handle.Handle {
	return s.handle
}

// ScriptPath returns the path of the script the session was created from.
func (s *Session) ScriptPath() string {
	return s.scriptPath
}

// State returns the lifecycle state of the session.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Ready tells if the bootstrap of the session succeeded.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// HasFunction tells if the script of a ready session defines one of the
// ModelFuncs.
func (s *Session) HasFunction(name string) bool {
	return s.Ready() && slices.Contains(s.functions, name)
}

// Functions returns the model functions the script defined when the session
// opened, in the order they are listed in ModelFuncs.
func (s *Session) Functions() []string {
	if !s.Ready() {
		return nil
	}

	return slices.Clone(s.functions)
}

func (s *Session) scanFunctions() {
	s.functions = nil

	for _, fn := range ModelFuncs {
		if s.engine.HasFunction(fn) {
			s.functions = append(s.functions, fn)
		}
	}
}

func (s *Session) record(status int32) {
	s.exchanges.Add(1)
	if status != StatusOK {
		s.failures.Add(1)
	}

	s.lastStatus.Store(status)
}

// SessionInfo is a snapshot of a session.
type SessionInfo struct {
	Handle     string    `json:"handle"`
	ScriptPath string    `json:"script_path"`
	State      string    `json:"state"`
	InitStatus int64     `json:"init_status"`
	OpenedAt   time.Time `json:"opened_at"`
	Exchanges  uint64    `json:"exchanges"`
	Failures   uint64    `json:"failures"`
	LastStatus int32     `json:"last_status"`
}

// Info takes a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Handle:     s.handle.String(),
		ScriptPath: s.scriptPath,
		State:      s.State().String(),
		InitStatus: s.bootstrap,
		OpenedAt:   s.openedAt,
		Exchanges:  s.exchanges.Load(),
		Failures:   s.failures.Load(),
		LastStatus: s.lastStatus.Load(),
	}
}

package bridge

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sarchlab/luabridge/script"
)

// Kind classifies bridge failures. A Kind is an error itself, so it can be
// used as the target of errors.Is.
type Kind int

// The failure kinds.
const (
	AllocationFailed Kind = iota + 1
	EngineCreateFailed
	ScriptLoadFailed
	ScriptExecFailed
	BootstrapFailed
	InvalidSession
	CallTargetMissing
	ScriptRuntimeError
	ReturnTypeMismatch
	HostFault
)

var kindNames = map[Kind]string{
	AllocationFailed:   "allocation failed",
	EngineCreateFailed: "engine creation failed",
	ScriptLoadFailed:   "script load failed",
	ScriptExecFailed:   "script execution failed",
	BootstrapFailed:    "bootstrap failed",
	InvalidSession:     "invalid session",
	CallTargetMissing:  "call target missing",
	ScriptRuntimeError: "script runtime error",
	ReturnTypeMismatch: "return type mismatch",
	HostFault:          "host fault",
}

func (k Kind) Error() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Status codes written back to the host. Zero is success; every failure is
// negative.
const (
	StatusOK                 int32 = 0
	StatusScriptRuntimeError int32 = -1
	StatusInvalidSession     int32 = -10
	StatusCallTargetMissing  int32 = -11
	StatusAllocationFailed   int32 = -20
	StatusEngineCreateFailed int32 = -21
	StatusScriptLoadFailed   int32 = -22
	StatusScriptExecFailed   int32 = -23
	StatusBootstrapFailed    int32 = -24
	StatusHostFault          int32 = -30
)

// StatusReturnTypeMismatch returns the status code of a malformed return value
// at the 1-based position.
func StatusReturnTypeMismatch(position int) int32 {
	return int32(-1 - position)
}

// Code returns the status code of the failure kind. ReturnTypeMismatch needs
// a position and is reported by Error.Code instead.
func (k Kind) Code() int32 {
	switch k {
	case AllocationFailed:
		return StatusAllocationFailed
	case EngineCreateFailed:
		return StatusEngineCreateFailed
	case ScriptLoadFailed:
		return StatusScriptLoadFailed
	case ScriptExecFailed:
		return StatusScriptExecFailed
	case BootstrapFailed:
		return StatusBootstrapFailed
	case InvalidSession:
		return StatusInvalidSession
	case CallTargetMissing:
		return StatusCallTargetMissing
	case ScriptRuntimeError:
		return StatusScriptRuntimeError
	default:
		return StatusHostFault
	}
}

// An Error is a failure reported by the bridge.
type Error struct {
	Kind Kind

	// Op is the bridge operation or the script function involved.
	Op string

	// Position is the 1-based return position that failed validation.
	Position int
	Expected script.Kind
	Got      string

	// Message is the message raised by the script.
	Message string

	Err error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()

	switch {
	case e.Kind == ReturnTypeMismatch:
		msg += fmt.Sprintf(" at position %d, expected %s, got %s",
			e.Position, e.Expected, e.Got)
	case e.Message != "":
		msg += ": " + e.Message
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Code returns the host status code of the error.
func (e *Error) Code() int32 {
	if e.Kind == ReturnTypeMismatch {
		return StatusReturnTypeMismatch(e.Position)
	}

	return e.Kind.Code()
}

// StatusCode converts an error returned by the bridge into the status code
// handed to the host. A nil error is StatusOK.
func StatusCode(err error) int32 {
	if err == nil {
		return StatusOK
	}

	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code()
	}

	var kind Kind
	if errors.As(err, &kind) {
		return kind.Code()
	}

	return StatusHostFault
}

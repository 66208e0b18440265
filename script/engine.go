// Package script defines the scripting-engine capability consumed by the
// bridge and implements it on top of gopher-lua.
package script

import (
	"errors"
	"fmt"
)

// ErrFunctionNotFound is returned by Call when the script does not define a
// global function with the requested name.
var ErrFunctionNotFound = errors.New("function not found")

// A RuntimeError is raised inside the script while a function runs.
type RuntimeError struct {
	Func    string
	Message string
}

func (e *RuntimeError) Error() string {
	if e.Func == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Func, e.Message)
}

// An Engine is one exclusive scripting-engine instance.
//
// An Engine is not safe for concurrent use.
type Engine interface {
	// Load compiles the script file without running it.
	Load(path string) error

	// Exec runs the compiled script body once.
	Exec() error

	// HasFunction tells if the script defines a global function.
	HasFunction(name string) bool

	// Call invokes a global function with the arguments in order and returns
	// exactly nret values. Missing values are nil and extra values are
	// dropped.
	Call(name string, args []Value, nret int) ([]Value, error)

	// Close releases the engine. The engine must not be used afterwards.
	Close()
}

// A Factory creates engines.
type Factory interface {
	NewEngine() (Engine, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func() (Engine, error)

// NewEngine calls f.
func (f FactoryFunc) NewEngine() (Engine, error) {
	return f()
}

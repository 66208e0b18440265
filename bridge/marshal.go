package bridge

import (
	"errors"
	"fmt"

	"github.com/sarchlab/luabridge/script"
)

// A call is one round trip into a script function: the arguments are pushed
// in order and every return value is checked against the expected kind at its
// position.
type call struct {
	fn      string
	args    []script.Value
	returns []script.Kind
}

func wordArgs(words ...uint32) []script.Value {
	args := make([]script.Value, len(words))
	for i, w := range words {
		args[i] = script.Word(w)
	}

	return args
}

func integers(n int) []script.Kind {
	kinds := make([]script.Kind, n)
	for i := range kinds {
		kinds[i] = script.KindInteger
	}

	return kinds
}

func (c call) invoke(engine script.Engine) (results []script.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = &Error{
				Kind:    ScriptRuntimeError,
				Op:      c.fn,
				Message: fmt.Sprintf("engine panic: %v", r),
			}
		}
	}()

	results, err = engine.Call(c.fn, c.args, len(c.returns))
	if err != nil {
		return nil, c.engineError(err)
	}

	err = c.validate(results)
	if err != nil {
		return nil, err
	}

	return results, nil
}

func (c call) engineError(err error) error {
	if errors.Is(err, script.ErrFunctionNotFound) {
		return &Error{Kind: CallTargetMissing, Op: c.fn, Err: err}
	}

	var rtErr *script.RuntimeError
	if errors.As(err, &rtErr) {
		return &Error{Kind: ScriptRuntimeError, Op: c.fn, Message: rtErr.Message}
	}

	return &Error{Kind: ScriptRuntimeError, Op: c.fn, Message: err.Error()}
}

// validate stops at the first malformed value. Values after it are not
// checked.
func (c call) validate(results []script.Value) error {
	for i, want := range c.returns {
		got := "nil"
		if i < len(results) {
			if results[i].Kind() == want {
				continue
			}

			got = results[i].TypeName()
		}

		return &Error{
			Kind:     ReturnTypeMismatch,
			Op:       c.fn,
			Position: i + 1,
			Expected: want,
			Got:      got,
		}
	}

	return nil
}

func words(values []script.Value) []uint32 {
	out := make([]uint32, len(values))
	for i, v := range values {
		out[i], _ = v.AsWord()
	}

	return out
}

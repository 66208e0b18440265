package host

import (
	"fmt"

	"github.com/sarchlab/luabridge/handle"
)

// A BindingError is raised when the arguments of a task do not match the
// slots the task expects.
type BindingError struct {
	Task     string
	Position int
	Want     string
	Reason   string
}

func (e *BindingError) Error() string {
	if e.Position == 0 {
		return fmt.Sprintf("%s: %s", e.Task, e.Reason)
	}

	return fmt.Sprintf("%s: argument %d: want %s, %s",
		e.Task, e.Position, e.Want, e.Reason)
}

// A Binder reads the arguments of a task from left to right. The first
// missing or ill-typed argument is recorded and every later read returns the
// zero value, so a task binds everything and checks Err once.
type Binder struct {
	task   string
	args   []Slot
	pos    int
	err    error
	status Slot
}

// NewBinder creates a binder over the arguments of a task.
func NewBinder(task string, args []Slot) *Binder {
	return &Binder{task: task, args: args}
}

func (b *Binder) next(want string) (Slot, bool) {
	if b.err != nil {
		return nil, false
	}

	if b.pos >= len(b.args) {
		b.fail(b.pos+1, want, "missing")
		return nil, false
	}

	s := b.args[b.pos]
	b.pos++

	if s == nil {
		b.fail(b.pos, want, "got nothing")
		return nil, false
	}

	return s, true
}

func (b *Binder) fail(position int, want, reason string) {
	b.err = &BindingError{
		Task:     b.task,
		Position: position,
		Want:     want,
		Reason:   reason,
	}
}

// Word binds an input word.
func (b *Binder) Word() uint32 {
	s, ok := b.next("word")
	if !ok {
		return 0
	}

	v, ok := s.Word()
	if !ok {
		b.fail(b.pos, "word", "not a word")
	}

	return v
}

// Text binds an input string.
func (b *Binder) Text() string {
	s, ok := b.next("string")
	if !ok {
		return ""
	}

	v, ok := s.Text()
	if !ok {
		b.fail(b.pos, "string", "not a string")
	}

	return v
}

// Handle binds a session handle passed as its low word followed by its high
// word.
func (b *Binder) Handle() handle.Handle {
	lo := b.Word()
	hi := b.Word()

	return handle.Decode(hi, lo)
}

// Out binds an output word.
func (b *Binder) Out() Slot {
	s, ok := b.next("output word")
	if !ok {
		return nil
	}

	if _, ok := s.Word(); !ok {
		b.fail(b.pos, "output word", "not writable")
		return nil
	}

	return s
}

// Status binds the output that receives the status code of the task. If the
// task panics, the status is still written.
func (b *Binder) Status() Slot {
	s := b.Out()
	if s != nil {
		b.status = s
	}

	return s
}

// Err returns the first binding error. Arguments left unbound are an error
// too.
func (b *Binder) Err() error {
	if b.err == nil && b.pos < len(b.args) {
		b.err = &BindingError{
			Task: b.task,
			Reason: fmt.Sprintf("%d arguments given, %d expected",
				len(b.args), b.pos),
		}
	}

	return b.err
}

// Package host exposes the bridge through a narrow positional interface of
// 32-bit word and string arguments, the shape a simulator's system tasks
// offer.
package host

import (
	"strconv"

	"golang.org/x/exp/constraints"
)

// A Slot is one positional argument of a system task.
type Slot interface {
	// Word reads the slot as a 32-bit word.
	Word() (uint32, bool)

	// Text reads the slot as a string.
	Text() (string, bool)

	// Put writes a 32-bit word to the slot. It returns false if the slot
	// cannot be written.
	Put(v uint32) bool
}

// Reg is a 32-bit register. It can be read and written.
type Reg struct {
	value uint32
}

// NewReg creates a register holding v.
func NewReg(v uint32) *Reg {
	return &Reg{value: v}
}

// Regs creates n registers holding zero.
func Regs(n int) []*Reg {
	regs := make([]*Reg, n)
	for i := range regs {
		regs[i] = &Reg{}
	}

	return regs
}

// Word returns the value of the register.
func (r *Reg) Word() (uint32, bool) {
	return r.value, true
}

// Text always fails. A register is not a string.
func (r *Reg) Text() (string, bool) {
	return "", false
}

// Put sets the register.
func (r *Reg) Put(v uint32) bool {
	r.value = v
	return true
}

// Value returns the value of the register.
func (r *Reg) Value() uint32 {
	return r.value
}

// Signed returns the value of the register as a signed word. Status codes are
// read this way.
func (r *Reg) Signed() int32 {
	return int32(r.value)
}

func (r *Reg) String() string {
	return strconv.FormatUint(uint64(r.value), 10)
}

// Str is a read-only string literal.
type Str string

// Word always fails. A string literal is not a word.
func (s Str) Word() (uint32, bool) {
	return 0, false
}

// Text returns the string.
func (s Str) Text() (string, bool) {
	return string(s), true
}

// Put always fails.
func (s Str) Put(uint32) bool {
	return false
}

func put[T constraints.Integer](s Slot, v T) {
	s.Put(uint32(v))
}

// Slots converts registers and other slots into an argument list.
func Slots[S Slot](in ...S) []Slot {
	out := make([]Slot, len(in))
	for i, s := range in {
		out[i] = s
	}

	return out
}

package handle

import (
	"errors"
	"math"
	"sync"
)

// ErrTableFull is returned when a Table has no slot left for a new entry.
var ErrTableFull = errors.New("handle table is full")

// maxCapacity is the most entries a table can index with the low handle word,
// bounded by int on 32-bit platforms.
const maxCapacity = int(min(uint64(math.MaxInt), math.MaxUint32-1))

type slot[T any] struct {
	generation uint32
	occupied   bool
	value      T
}

// A Table is an arena of generation-tagged slots. Every Insert returns a
// handle that stays valid until the entry is removed. Reusing a slot bumps its
// generation, so stale handles are rejected instead of resolving to whatever
// lives in the slot now.
type Table[T any] struct {
	lock     sync.Mutex
	slots    []slot[T]
	free     []int
	capacity int
	count    int
}

// NewTable creates a table that holds at most capacity entries. A capacity of
// zero or less means the table is only bounded by the handle format.
func NewTable[T any](capacity int) *Table[T] {
	if capacity <= 0 || capacity > maxCapacity {
		capacity = maxCapacity
	}

	return &Table[T]{capacity: capacity}
}

// Insert stores the value in a free slot and returns its handle.
func (t *Table[T]) Insert(v T) (Handle, error) {
	return t.InsertFunc(func(Handle) T { return v })
}

// InsertFunc stores the value that fn makes for the new handle. fn runs with
// the table locked, so the value is complete before any other goroutine can
// resolve the handle.
func (t *Table[T]) InsertFunc(fn func(h Handle) T) (Handle, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.count >= t.capacity {
		return Null, ErrTableFull
	}

	index, ok := t.popFree()
	if !ok {
		if len(t.slots) >= t.capacity {
			return Null, ErrTableFull
		}

		t.slots = append(t.slots, slot[T]{})
		index = len(t.slots) - 1
	}

	s := &t.slots[index]
	s.generation++
	h := compose(s.generation, index)
	s.occupied = true
	s.value = fn(h)
	t.count++

	return h, nil
}

func (t *Table[T]) popFree() (int, bool) {
	if len(t.free) == 0 {
		return 0, false
	}

	index := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	return index, true
}

// Get resolves a handle. It returns false for the null handle, for handles
// that were never issued, and for handles whose entry has been removed.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	s := t.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}

	return s.value, true
}

// Remove deletes the entry referenced by the handle and returns it.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	var zero T

	s := t.lookup(h)
	if s == nil {
		return zero, false
	}

	v := s.value
	s.value = zero
	s.occupied = false
	t.count--

	// A slot whose generation is exhausted is never handed out again.
	index, _ := h.index()
	if s.generation != math.MaxUint32 {
		t.free = append(t.free, index)
	}

	return v, true
}

func (t *Table[T]) lookup(h Handle) *slot[T] {
	index, ok := h.index()
	if !ok || index >= len(t.slots) {
		return nil
	}

	s := &t.slots[index]
	if !s.occupied || s.generation != h.generation() {
		return nil
	}

	return s
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count
}

// Cap returns the maximum number of live entries.
func (t *Table[T]) Cap() int {
	return t.capacity
}

// Each calls fn for every live entry in slot order. The table is locked while
// fn runs, so fn must not call back into the table.
func (t *Table[T]) Each(fn func(h Handle, v T)) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for i := range t.slots {
		s := &t.slots[i]
		if s.occupied {
			fn(compose(s.generation, i), s.value)
		}
	}
}

// Handles returns the handles of every live entry in slot order.
func (t *Table[T]) Handles() []Handle {
	handles := make([]Handle, 0, t.Len())

	t.Each(func(h Handle, _ T) {
		handles = append(handles, h)
	})

	return handles
}

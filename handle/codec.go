// Package handle provides the opaque session handles that cross the narrow
// 32-bit host interface, and the arena that resolves them.
package handle

import "fmt"

// Handle identifies a live session. The high word holds the generation of the
// slot and the low word holds the slot index plus one, so a handle issued by a
// Table is never zero in either word.
type Handle uint64

// Null is the reserved "no session" handle.
const Null Handle = 0

// Encode splits a handle into the two words that the host interface can carry.
func Encode(h Handle) (hi, lo uint32) {
	return uint32(h >> 32), uint32(h)
}

// Decode joins the two host words back into a handle.
func Decode(hi, lo uint32) Handle {
	return Handle(uint64(hi)<<32 | uint64(lo))
}

// IsNull returns true if the handle is the reserved null handle.
func (h Handle) IsNull() bool {
	return h == Null
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) index() (int, bool) {
	lo := uint32(h)
	if lo == 0 {
		return 0, false
	}

	return int(lo - 1), true
}

func compose(generation uint32, index int) Handle {
	return Decode(generation, uint32(index+1))
}

// String formats the handle as the hex value shown in logs and the monitor.
func (h Handle) String() string {
	return fmt.Sprintf("0x%016x", uint64(h))
}

// Parse parses a handle formatted by String. The 0x prefix is optional.
func Parse(s string) (Handle, error) {
	var v uint64

	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	_, err := fmt.Sscanf(s, "%x", &v)
	if err != nil {
		return Null, fmt.Errorf("invalid handle %q: %w", s, err)
	}

	return Handle(v), nil
}

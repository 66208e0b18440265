package busmodel

import (
	"encoding/binary"
	"sync"

	"github.com/sarchlab/luabridge/bridge"
)

const wordSize = 4

// Memory is a sparse memory slave. Addresses are byte addresses and every
// access moves one little-endian word. Storage is allocated in units of
// unitSize bytes the first time a unit is touched.
type Memory struct {
	lock     sync.Mutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte

	reads  uint64
	writes uint64
}

// NewMemory creates a memory of the given capacity in bytes.
func NewMemory(capacity uint64) *Memory {
	return &Memory{
		unitSize: 4096,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the size of the memory in bytes.
func (m *Memory) Capacity() uint64 {
	return m.capacity
}

// NumUnits returns the number of storage units allocated so far.
func (m *Memory) NumUnits() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.data)
}

// Access serves one bus transaction. Accesses beyond the capacity answer
// StatusBusError. Commands other than read and write are ignored.
func (m *Memory) Access(
	_ uint32,
	cmd bridge.Command,
	addr, data uint32,
) (bridge.SlaveResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch cmd {
	case bridge.CmdRead:
		buf, ok := m.read(uint64(addr), wordSize)
		if !ok {
			return bridge.SlaveResult{Status: StatusBusError}, nil
		}

		m.reads++

		return bridge.SlaveResult{Data: binary.LittleEndian.Uint32(buf)}, nil
	case bridge.CmdWrite:
		buf := make([]byte, wordSize)
		binary.LittleEndian.PutUint32(buf, data)

		if !m.write(uint64(addr), buf) {
			return bridge.SlaveResult{Status: StatusBusError}, nil
		}

		m.writes++

		return bridge.SlaveResult{}, nil
	default:
		return bridge.SlaveResult{}, nil
	}
}

// Word reads the word at addr without counting a bus access.
func (m *Memory) Word(addr uint32) (uint32, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	buf, ok := m.read(uint64(addr), wordSize)
	if !ok {
		return 0, false
	}

	return binary.LittleEndian.Uint32(buf), true
}

// Stats returns the number of reads and writes served.
func (m *Memory) Stats() (reads, writes uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.reads, m.writes
}

func (m *Memory) inRange(addr, n uint64) bool {
	return addr+n <= m.capacity
}

func (m *Memory) unit(addr uint64) []byte {
	base, _ := m.split(addr)

	u, ok := m.data[base]
	if !ok {
		u = make([]byte, m.unitSize)
		m.data[base] = u
	}

	return u
}

func (m *Memory) split(addr uint64) (base, offset uint64) {
	offset = addr % m.unitSize
	return addr - offset, offset
}

func (m *Memory) read(addr, n uint64) ([]byte, bool) {
	if !m.inRange(addr, n) {
		return nil, false
	}

	out := make([]byte, n)
	done := uint64(0)

	for done < n {
		curr := addr + done
		_, offset := m.split(curr)
		chunk := min(n-done, m.unitSize-offset)

		copy(out[done:done+chunk], m.unit(curr)[offset:offset+chunk])
		done += chunk
	}

	return out, true
}

func (m *Memory) write(addr uint64, buf []byte) bool {
	n := uint64(len(buf))
	if !m.inRange(addr, n) {
		return false
	}

	done := uint64(0)

	for done < n {
		curr := addr + done
		_, offset := m.split(curr)
		chunk := min(n-done, m.unitSize-offset)

		copy(m.unit(curr)[offset:offset+chunk], buf[done:done+chunk])
		done += chunk
	}

	return true
}

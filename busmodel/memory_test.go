package busmodel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/bridge"
)

var _ = Describe("Memory", func() {
	var m *Memory

	BeforeEach(func() {
		m = NewMemory(1 << 20)
	})

	It("should read zero from untouched memory", func() {
		r, err := m.Access(0, bridge.CmdRead, 0x100, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(bridge.SlaveResult{Data: 0, Status: StatusOK}))
	})

	It("should read back written words", func() {
		_, _ = m.Access(0, bridge.CmdWrite, 0x100, 0xdeadbeef)

		r, _ := m.Access(1, bridge.CmdRead, 0x100, 0)

		reads, writes := m.Stats()
		Expect(r.Data).To(Equal(uint32(0xdeadbeef)))
		Expect(reads).To(Equal(uint64(1)))
		Expect(writes).To(Equal(uint64(1)))
	})

	It("should handle words across units", func() {
		_, _ = m.Access(0, bridge.CmdWrite, 4094, 0x11223344)

		v, ok := m.Word(4094)

		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint32(0x11223344)))
		Expect(m.NumUnits()).To(Equal(2))
	})

	It("should allocate units only when touched", func() {
		_, _ = m.Access(0, bridge.CmdWrite, 0x8000, 1)

		Expect(m.NumUnits()).To(Equal(1))
	})

	It("should answer a bus error beyond the capacity", func() {
		r, err := m.Access(0, bridge.CmdWrite, 1<<20, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Status).To(Equal(StatusBusError))

		r, _ = m.Access(0, bridge.CmdRead, (1<<20)-2, 0)
		Expect(r.Status).To(Equal(StatusBusError))
	})

	It("should ignore idle cycles", func() {
		r, _ := m.Access(0, bridge.CmdIdle, 0, 5)

		Expect(r).To(Equal(bridge.SlaveResult{}))
		Expect(m.NumUnits()).To(BeZero())
	})
})

package busmodel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/host"
	"github.com/sarchlab/luabridge/timing"
)

const copyMaster = `
local step = 0
function init_env() return 0 end
function exchange_M(data, status)
  step = step + 1
  if step == 1 then return 0, bus.WRITE, 0, 41 end
  if step == 2 then return 0, bus.READ, 0, 0 end
  if step == 3 then return 0, bus.WRITE, 8, data + 1 end
  return 0, bus.IDLE, 0, 0
end
`

const waitingMaster = `
function init_env() return 0 end
function exchange_M(data, status) return 5, bus.IDLE, 0, 0 end
`

const statusMaster = `
function init_env() return 0 end
function exchange_M(data, status) return 0, bus.WRITE, 0, status end
`

const brokenMaster = `
function init_env() return 0 end
function exchange_M(data, status) return 0, "write", 0, 0 end
`

const echoSlave = `
local mem = {}
function init_env() return 0 end
function exchange_S(time, cmd, addr, data)
  if cmd == bus.WRITE then mem[addr] = data return 0, 0 end
  if cmd == bus.READ then return mem[addr] or 0, 0 end
  return 0, 0
end
`

var _ = Describe("Master", func() {
	var (
		b      *bridge.Bridge
		reg    *host.Registry
		engine *timing.SerialEngine
		memory *Memory
	)

	BeforeEach(func() {
		b = bridge.MakeBuilder().Build()
		reg = newRegistry(b)
		engine = timing.NewSerialEngine()
		memory = NewMemory(1 << 16)
	})

	AfterEach(func() {
		Expect(b.Close()).To(Succeed())
	})

	build := func(script string, maxCycles uint64) *Master {
		port := openScript(reg, "master.lua", script)

		return MakeMasterBuilder().
			WithEngine(engine).
			WithTarget(memory).
			WithMaxCycles(maxCycles).
			Build("Master", port)
	}

	It("should perform the commands of the script", func() {
		m := build(copyMaster, 10)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		v, _ := memory.Word(8)
		Expect(v).To(Equal(uint32(42)))
		Expect(m.Done()).To(BeTrue())
		Expect(m.Err()).NotTo(HaveOccurred())
		Expect(m.Stats()).To(Equal(MasterStats{
			Exchanges: 10, Reads: 1, Writes: 2,
		}))
		Expect(reg.Calls(host.TaskExchangeM)).To(Equal(uint64(10)))
	})

	It("should wait the cycles requested by the script", func() {
		m := build(waitingMaster, 20)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		Expect(m.Stats().Exchanges).To(Equal(uint64(4)))
		Expect(m.CurrentCycle()).To(Equal(uint64(20)))
	})

	It("should pass the status lines", func() {
		m := build(statusMaster, 1)
		m.AssertReset()
		m.RaiseIRQ(3)
		m.RaiseIRQ(0)
		m.ClearIRQ(0)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		v, _ := memory.Word(0)
		Expect(v).To(Equal(bridge.StatusReset | 1<<3))

		m.ReleaseReset()
		Expect(m.Status()).To(Equal(uint32(1 << 3)))
	})

	It("should stop on a failed exchange", func() {
		m := build(brokenMaster, 10)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		Expect(m.Done()).To(BeTrue())
		Expect(m.Err()).To(MatchError(bridge.ReturnTypeMismatch))
		Expect(bridge.StatusCode(m.Err())).To(Equal(int32(-3)))
		Expect(m.Stats().Exchanges).To(Equal(uint64(1)))
	})

	It("should stop when its session is gone", func() {
		m := build(statusMaster, 10)
		Expect(b.Deinit(m.Handle())).To(Succeed())

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		Expect(m.Err()).To(MatchError(bridge.InvalidSession))
		Expect(m.Stats().Exchanges).To(Equal(uint64(1)))
	})

	It("should stop on a host fault", func() {
		panicking := host.NewRegistry(nil)
		panicking.Register(host.TaskExchangeM, func(*host.Binder) error {
			panic("simulator fault")
		})
		port := host.NewPort(panicking,
			openScript(reg, "master.lua", statusMaster).Handle())

		m := MakeMasterBuilder().
			WithEngine(engine).
			WithTarget(memory).
			WithMaxCycles(10).
			Build("Master", port)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		Expect(m.Err()).To(MatchError(bridge.HostFault))
		Expect(m.Done()).To(BeTrue())
	})

	It("should count bus errors", func() {
		memory = NewMemory(4)
		m := build(copyMaster, 3)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		Expect(m.Stats().BusErrors).To(Equal(uint64(1)))
		Expect(m.Err()).NotTo(HaveOccurred())
	})

	It("should reject interrupt lines out of range", func() {
		m := build(statusMaster, 1)

		Expect(func() { m.RaiseIRQ(31) }).To(Panic())
	})

	It("should talk to a script slave", func() {
		slave := NewScriptSlave(openScript(reg, "slave.lua", echoSlave))
		port := openScript(reg, "master.lua", copyMaster)
		m := MakeMasterBuilder().
			WithEngine(engine).
			WithTarget(slave).
			WithMaxCycles(4).
			Build("Master", port)

		m.TickNow()
		Expect(engine.Run()).To(Succeed())

		r, err := slave.Access(0, bridge.CmdRead, 8, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Data).To(Equal(uint32(42)))
		Expect(reg.Calls(host.TaskExchangeS)).To(Equal(uint64(4)))
	})
})

package tracing

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
)

var _ = Describe("Transcript", func() {
	var (
		b    *bridge.Bridge
		path string
		h    handle.Handle
		buf  *bytes.Buffer
		w    *TranscriptWriter
	)

	BeforeEach(func() {
		b = bridge.MakeBuilder().Build()
		path = writeScript("counter.lua", counterModel)

		buf = new(bytes.Buffer)
		w = NewTranscriptWriter(buf, b)
		CollectExchanges(b, w)

		var err error
		h, err = b.Init(path)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(b.Close()).To(Succeed())
	})

	record := func() {
		_, err := b.ExchangeMaster(h, 1, 2)
		Expect(err).NotTo(HaveOccurred())
		_, err = b.ExchangeSlave(h, 10, bridge.CmdRead, 3, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.WriteData(h, 11, 40)).To(Succeed())
		_, err = b.ReadData(h, 1)
		Expect(err).NotTo(HaveOccurred())
		_, err = b.ExchangeMaster(h, 0, 0)
		Expect(err).NotTo(HaveOccurred())
	}

	It("should read back what was written", func() {
		record()
		Expect(w.Count()).To(Equal(5))
		Expect(w.Close()).To(Succeed())

		entries, err := ReadTranscript(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(5))

		Expect(entries[0].Script).To(Equal("counter.lua"))
		Expect(entries[0].Handle).To(Equal(uint64(h)))
		Expect(entries[0].Kind).To(Equal(bridge.ExchangeMaster))
		Expect(entries[0].Args).To(Equal([]uint32{1, 2}))
		Expect(entries[0].Results).To(Equal([]uint32{0, 2, 1, 3}))
		Expect(entries[1].Results).To(Equal([]uint32{7, 0}))
		Expect(entries[3].Results).To(Equal([]uint32{40}))
		Expect(entries[4].Results).To(Equal([]uint32{0, 2, 41, 0}))
	})

	It("should replay against a fresh session", func() {
		record()

		entries, err := ReadTranscript(buf)
		Expect(err).NotTo(HaveOccurred())

		replayed, err := b.Init(path)
		Expect(err).NotTo(HaveOccurred())

		n, err := Replay(b, replayed, entries)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))
	})

	It("should report the first divergence", func() {
		record()

		entries, err := ReadTranscript(buf)
		Expect(err).NotTo(HaveOccurred())

		changed := writeScript("counter.lua",
			strings.Replace(counterModel, "n = data", "n = data + 1", 1))
		replayed, err := b.Init(changed)
		Expect(err).NotTo(HaveOccurred())

		n, err := Replay(b, replayed, entries)
		Expect(n).To(Equal(3))

		var d *Divergence
		Expect(errors.As(err, &d)).To(BeTrue())
		Expect(d.Index).To(Equal(3))
		Expect(d.Results).To(Equal([]uint32{41}))
		Expect(d.Status).To(Equal(bridge.StatusOK))
	})

	It("should stop on a closed session", func() {
		record()

		entries, err := ReadTranscript(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Deinit(h)).To(Succeed())

		n, err := Replay(b, h, entries)
		Expect(n).To(BeZero())
		Expect(err).To(MatchError(bridge.InvalidSession))
	})

	It("should select the entries of one script", func() {
		other := writeScript("other.lua", counterModel)
		h2, err := b.Init(other)
		Expect(err).NotTo(HaveOccurred())

		record()
		_, err = b.ReadData(h2, 0)
		Expect(err).NotTo(HaveOccurred())

		entries, err := ReadTranscript(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(6))

		Expect(SelectScript(entries, "counter.lua")).To(HaveLen(5))
		Expect(SelectScript(entries, filepath.Join("x", "other.lua"))).
			To(HaveLen(1))
	})

	It("should write and open transcript files", func() {
		file := filepath.Join(GinkgoT().TempDir(), "run.cbor")

		fw, err := CreateTranscript(file, b)
		Expect(err).NotTo(HaveOccurred())
		CollectExchanges(b, fw)

		record()
		Expect(fw.Close()).To(Succeed())

		entries, err := OpenTranscript(file)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(5))
	})
})

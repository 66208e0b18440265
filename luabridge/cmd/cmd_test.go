package cmd

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/config"
	"github.com/sarchlab/luabridge/simulation"
	"github.com/sarchlab/luabridge/tracing"
)

var errClosedPipe = errors.New("closed pipe")

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errClosedPipe
}

var _ = Describe("check", func() {
	var (
		dir string
		out *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = new(bytes.Buffer)
	})

	It("should list the functions of a script", func() {
		path := writeScript(dir, "model.lua", model)

		Expect(checkScript(out, bridge.RevisionTimed, path)).To(Succeed())

		Expect(out.String()).To(ContainSubstring("init_env returned 3"))
		Expect(out.String()).To(ContainSubstring("+ exchange_M"))
		Expect(out.String()).To(ContainSubstring("- exchange_CAD"))
		Expect(out.String()).NotTo(ContainSubstring("does not define"))
	})

	It("should warn about the wrong revision", func() {
		path := writeScript(dir, "model.lua", model)

		Expect(checkScript(out, bridge.RevisionCAD, path)).To(Succeed())
		Expect(out.String()).To(ContainSubstring(
			"calls exchange_CAD, which the script does not define"))
	})

	It("should report the status of a failed init", func() {
		path := writeScript(dir, "bad.lua", "function init_env(")

		err := checkScript(out, bridge.RevisionTimed, path)
		Expect(err).To(MatchError(bridge.ScriptLoadFailed))
		Expect(out.String()).To(ContainSubstring("status -22"))
	})
})

var _ = Describe("console", func() {
	var (
		b   *bridge.Bridge
		c   *console
		out *bytes.Buffer
	)

	BeforeEach(func() {
		out = new(bytes.Buffer)
		b = bridge.MakeBuilder().Build()

		h, err := b.Init(writeScript(GinkgoT().TempDir(), "model.lua", model))
		Expect(err).NotTo(HaveOccurred())

		c = &console{b: b, h: h, out: out}
	})

	AfterEach(func() {
		Expect(b.Close()).To(Succeed())
	})

	It("should run master exchanges", func() {
		Expect(c.exec("m 5 0x2")).To(Succeed())
		Expect(out.String()).To(Equal(
			"time=2 cmd=write addr=0x00000010 data=0x00000007\n"))
	})

	It("should run slave exchanges and streams", func() {
		Expect(c.exec("s 0 2 0 99")).To(Succeed())
		Expect(c.exec("r 1")).To(Succeed())
		Expect(c.exec("w 3 7")).To(Succeed())
		Expect(c.exec("s 4 1 0 0")).To(Succeed())

		Expect(strings.Split(out.String(), "\n")).To(Equal([]string{
			"data=0x00000000 status=0",
			"data=0x00000063",
			"ok",
			"data=0x00000007 status=0",
			"",
		}))
	})

	It("should show the session", func() {
		Expect(c.exec("m 1 1")).To(Succeed())
		Expect(c.exec("info")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("exchanges 1, failures 0"))
		Expect(out.String()).To(ContainSubstring("functions init_env"))
	})

	It("should reject bad input", func() {
		Expect(c.exec("m 1")).To(MatchError("1 arguments given, 2 expected"))
		Expect(c.exec("r x")).To(MatchError(ContainSubstring("argument 1")))
		Expect(c.exec("r 0x100000000")).To(HaveOccurred())
		Expect(c.exec("jump")).To(MatchError(ContainSubstring("unknown command")))
		Expect(c.exec("")).To(Succeed())
	})

	It("should print status codes of failed exchanges", func() {
		Expect(b.Deinit(c.h)).To(Succeed())

		Expect(c.exec("r 1")).To(MatchError(bridge.InvalidSession))
		Expect(out.String()).To(Equal("status -10\n"))
	})

	It("should quit", func() {
		Expect(c.exec("quit")).To(MatchError(errQuit))
	})
})

var _ = Describe("run and replay", func() {
	var (
		dir string
		cfg *config.Config
		out *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = new(bytes.Buffer)

		cfg = config.Default()
		cfg.Master.Script = writeScript(dir, "master.lua", model)
		cfg.Master.MaxCycles = 20
		cfg.Trace.Transcript = filepath.Join(dir, "run.cbor")
	})

	It("should run the configured master and summarize", func() {
		Expect(runSimulation(out, cfg)).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Master: 10 exchanges"))
		Expect(out.String()).To(ContainSubstring("exchange_M"))
	})

	It("should replay the transcript of a run", func() {
		Expect(runSimulation(out, cfg)).To(Succeed())
		out.Reset()

		Expect(replayTranscript(out, cfg.Master.Script, cfg.Trace.Transcript)).
			To(Succeed())
		Expect(out.String()).To(Equal("all 10 exchanges matched\n"))
	})

	It("should report a divergence", func() {
		Expect(runSimulation(out, cfg)).To(Succeed())
		out.Reset()

		changed := writeScript(GinkgoT().TempDir(), "master.lua",
			strings.Replace(model, "data + status", "data + status + 1", 1))

		err := replayTranscript(out, changed, cfg.Trace.Transcript)

		var d *tracing.Divergence
		Expect(err).To(BeAssignableToTypeOf(d))
		Expect(out.String()).To(Equal("0 of 10 exchanges matched\n"))
	})

	It("should guess the revision of a transcript", func() {
		Expect(transcriptRevision([]tracing.TranscriptEntry{
			{Kind: bridge.ExchangeReadData, Func: bridge.FuncReadData},
			{Kind: bridge.ExchangeMaster, Func: bridge.FuncExchangeCAD},
		})).To(Equal(bridge.RevisionCAD))
		Expect(transcriptRevision(nil)).To(Equal(bridge.RevisionTimed))
	})
})

var _ = Describe("summary", func() {
	It("should report a failed write", func() {
		s, err := simulation.MakeBuilder().Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		err = printSummary(brokenWriter{}, s)

		Expect(err).To(MatchError(errClosedPipe))
		Expect(err).To(MatchError(ContainSubstring("cannot print summary")))
	})

	It("should print the function table", func() {
		s, err := simulation.MakeBuilder().Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		out := new(bytes.Buffer)
		Expect(printSummary(out, s)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("FUNCTION"))
	})
})

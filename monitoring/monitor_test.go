package monitoring

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/tracing"
	"go.uber.org/mock/gomock"
)

const model = `
function init_env() return 0 end
function read_data(cmd) return cmd end
`

var _ = Describe("Monitor", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		b        *bridge.Bridge
		stats    *tracing.StatsTracer
		m        *Monitor
		router   http.Handler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
		b = bridge.MakeBuilder().Build()
		stats = tracing.NewStatsTracer()
		tracing.CollectExchanges(b, stats)

		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterBridge(b)
		m.RegisterStats(stats)
		router = m.Router()
	})

	AfterEach(func() {
		Expect(b.Close()).To(Succeed())
		mockCtrl.Finish()
	})

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		return rec
	}

	It("should report the simulated time", func() {
		engine.EXPECT().Now().Return(1.5)

		rec := get("/api/now")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal(`{"now":1.5000000000}`))
	})

	It("should pause and continue the engine", func() {
		engine.EXPECT().Pause()
		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))

		engine.EXPECT().Continue()
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))
	})

	It("should list sessions", func() {
		rec := get("/api/sessions")
		Expect(rec.Body.String()).To(Equal("[]"))

		h, err := b.Init(writeScript("model.lua", model))
		Expect(err).NotTo(HaveOccurred())

		_, err = b.ReadData(h, 1)
		Expect(err).NotTo(HaveOccurred())

		var sessions []bridge.SessionInfo
		Expect(json.Unmarshal(get("/api/sessions").Body.Bytes(), &sessions)).
			To(Succeed())
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].Handle).To(Equal(h.String()))
		Expect(sessions[0].Exchanges).To(Equal(uint64(1)))
	})

	It("should show a session", func() {
		h, err := b.Init(writeScript("model.lua", model))
		Expect(err).NotTo(HaveOccurred())

		rec := get("/api/session/" + h.String())

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("model.lua"))
		Expect(rec.Body.String()).To(ContainSubstring(bridge.FuncReadData))
	})

	It("should not find closed sessions", func() {
		h, err := b.Init(writeScript("model.lua", model))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Deinit(h)).To(Succeed())

		Expect(get("/api/session/" + h.String()).Code).
			To(Equal(http.StatusNotFound))
		Expect(get("/api/session/" + handle.Null.String()).Code).
			To(Equal(http.StatusNotFound))
	})

	It("should reject malformed handles", func() {
		Expect(get("/api/session/xyz").Code).To(Equal(http.StatusBadRequest))
	})

	It("should report exchange statistics", func() {
		h, err := b.Init(writeScript("model.lua", model))
		Expect(err).NotTo(HaveOccurred())

		for i := uint32(0); i < 3; i++ {
			_, err = b.ReadData(h, i)
			Expect(err).NotTo(HaveOccurred())
		}

		var rsp statsRsp
		Expect(json.Unmarshal(get("/api/stats").Body.Bytes(), &rsp)).
			To(Succeed())
		Expect(rsp.Total).To(Equal(uint64(3)))
		Expect(rsp.Funcs).To(HaveLen(1))
		Expect(rsp.Funcs[0].Func).To(Equal(bridge.FuncReadData))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("master", 100)
		bar.IncrementInProgress(5)
		bar.MoveInProgressToFinished(3)

		var bars []ProgressBarStatus
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).
			To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("master"))
		Expect(bars[0].Finished).To(Equal(uint64(3)))
		Expect(bars[0].InProgress).To(Equal(uint64(2)))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should report resources", func() {
		var rsp resourceRsp
		Expect(json.Unmarshal(get("/api/resource").Body.Bytes(), &rsp)).
			To(Succeed())
		Expect(rsp.MemorySize).NotTo(BeZero())
	})

	It("should serve on a random port", func() {
		m.WithPortNumber(80)

		port, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())
		Expect(port).NotTo(BeZero())

		defer func() { Expect(m.StopServer()).To(Succeed()) }()

		rsp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/sessions", port))
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("[]"))
	})

	It("should serve sessions while exchanges run", func() {
		h, err := b.Init(writeScript("model.lua", model))
		Expect(err).NotTo(HaveOccurred())

		port, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())

		defer func() { Expect(m.StopServer()).To(Succeed()) }()

		base := fmt.Sprintf("http://localhost:%d/api/", port)
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)

		go func() {
			defer GinkgoRecover()
			defer wg.Done()

			for {
				select {
				case <-done:
					return
				default:
				}

				for _, path := range []string{
					"session/" + h.String(), "sessions", "stats",
				} {
					rsp, err := http.Get(base + path)
					Expect(err).NotTo(HaveOccurred())
					_, _ = io.Copy(io.Discard, rsp.Body)
					rsp.Body.Close()
					Expect(rsp.StatusCode).To(Equal(http.StatusOK))
				}
			}
		}()

		for i := range uint32(300) {
			v, err := b.ReadData(h, i)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(i))
		}

		close(done)
		wg.Wait()

		Expect(stats.Total()).To(Equal(uint64(300)))
	})
})

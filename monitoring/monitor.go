// Package monitoring serves a small HTTP API that shows the live sessions of a
// bridge and lets a user pause and continue the simulation.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
	"github.com/sarchlab/luabridge/timing"
	"github.com/sarchlab/luabridge/tracing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"github.com/tliron/commonlog"
)

// Monitor turns a simulation into a server that can be watched and controlled
// from outside.
type Monitor struct {
	engine     timing.Engine
	bridge     *bridge.Bridge
	stats      *tracing.StatsTracer
	portNumber int
	logger     commonlog.Logger

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		logger: commonlog.GetLogger("luabridge.monitor"),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// not allowed and select a random port instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		if portNumber != 0 {
			m.logger.Warningf(
				"port %d is not allowed for the monitor, using a random port",
				portNumber)
		}

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers the engine that runs the simulation.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterBridge registers the bridge whose sessions are shown.
func (m *Monitor) RegisterBridge(b *bridge.Bridge) {
	m.bridge = b
}

// RegisterStats registers the tracer that counts exchanges.
func (m *Monitor) RegisterStats(t *tracing.StatsTracer) {
	m.stats = t
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the list of shown bars.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			bars = append(bars, b)
		}
	}

	m.progressBars = bars
}

// Router returns the handler that serves the API.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now).Methods(http.MethodGet)
	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/sessions", m.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{handle}", m.sessionDetails).
		Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.listStats).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

// StartServer starts serving the API in the background and returns the port
// it listens on.
func (m *Monitor) StartServer() (int, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return 0, err
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(os.Stderr,
		"Monitoring simulation with http://localhost:%d\n", port)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("monitor stopped: %s", err)
		}
	}()

	return port, nil
}

// StopServer stops the server started by StartServer.
func (m *Monitor) StopServer() error {
	if m.server == nil {
		return nil
	}

	err := m.server.Close()
	m.server = nil

	return err
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if m.engine == nil {
		http.Error(w, "no engine", http.StatusServiceUnavailable)
		return
	}

	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if m.engine == nil {
		http.Error(w, "no engine", http.StatusServiceUnavailable)
		return
	}

	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	var now timing.VTimeInSec
	if m.engine != nil {
		now = m.engine.Now()
	}

	fmt.Fprintf(w, "{\"now\":%.10f}", now)
}

func (m *Monitor) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := []bridge.SessionInfo{}
	if m.bridge != nil {
		sessions = append(sessions, m.bridge.Sessions()...)
	}

	writeJSON(w, sessions)
}

type sessionDetail struct {
	Info      bridge.SessionInfo
	Revision  string
	Functions []string
}

func (m *Monitor) sessionDetails(w http.ResponseWriter, r *http.Request) {
	h, err := handle.Parse(mux.Vars(r)["handle"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if m.bridge == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	s, err := m.bridge.Session(h)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	detail := &sessionDetail{
		Info:      s.Info(),
		Revision:  m.bridge.Revision().String(),
		Functions: s.Functions(),
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(detail)
	serializer.SetMaxDepth(2)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type statsRsp struct {
	Total uint64              `json:"total"`
	Funcs []tracing.FuncStats `json:"funcs"`
}

func (m *Monitor) listStats(w http.ResponseWriter, _ *http.Request) {
	rsp := statsRsp{Funcs: []tracing.FuncStats{}}

	if m.stats != nil {
		rsp.Total = m.stats.Total()
		rsp.Funcs = m.stats.Snapshot()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBarStatus, 0, len(m.progressBars))

	for _, b := range m.progressBars {
		bars = append(bars, b.Status())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memory, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second

	if s := r.URL.Query().Get("seconds"); s != "" {
		d, err := time.ParseDuration(s + "s")
		if err != nil || d <= 0 {
			http.Error(w, "invalid seconds", http.StatusBadRequest)
			return
		}

		duration = d
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

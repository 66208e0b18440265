package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/luabridge/bridge"
)

// FuncStats counts the exchanges that called one script function.
type FuncStats struct {
	Func     string           `json:"func"`
	Count    uint64           `json:"count"`
	Failures uint64           `json:"failures"`
	ByStatus map[int32]uint64 `json:"by_status"`
}

// StatsTracer counts exchanges per script function and status code.
type StatsTracer struct {
	lock  sync.Mutex
	funcs map[string]*FuncStats
	total uint64
}

// NewStatsTracer creates a StatsTracer.
func NewStatsTracer() *StatsTracer {
	return &StatsTracer{funcs: make(map[string]*FuncStats)}
}

// StartExchange does nothing.
func (t *StatsTracer) StartExchange(bridge.Exchange) {}

// EndExchange counts the exchange.
func (t *StatsTracer) EndExchange(x bridge.Exchange) {
	t.lock.Lock()
	defer t.lock.Unlock()

	s, ok := t.funcs[x.Func]
	if !ok {
		s = &FuncStats{Func: x.Func, ByStatus: make(map[int32]uint64)}
		t.funcs[x.Func] = s
	}

	s.Count++
	s.ByStatus[x.Status]++

	if x.Status != bridge.StatusOK {
		s.Failures++
	}

	t.total++
}

// Total returns the number of exchanges counted.
func (t *StatsTracer) Total() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.total
}

// Snapshot returns a copy of the counters sorted by function name.
func (t *StatsTracer) Snapshot() []FuncStats {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make([]FuncStats, 0, len(t.funcs))

	for _, s := range t.funcs {
		c := *s
		c.ByStatus = make(map[int32]uint64, len(s.ByStatus))

		for k, v := range s.ByStatus {
			c.ByStatus[k] = v
		}

		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Func < out[j].Func })

	return out
}

package tracing

import (
	"strconv"
	"strings"
	"sync"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/datarecording"
	"github.com/sarchlab/luabridge/timing"
	"github.com/tebeka/atexit"
)

// ExchangeTable is the table the DBTracer writes to.
const ExchangeTable = "exchange"

// ExchangeEntry is one row of the exchange table.
type ExchangeEntry struct {
	ID        string  `json:"id"`
	Handle    string  `json:"handle"`
	Kind      string  `json:"kind"`
	Func      string  `json:"func"`
	Args      string  `json:"args"`
	Results   string  `json:"results"`
	Status    int32   `json:"status"`
	Error     string  `json:"error"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// DBTracer stores exchanges in a data recorder, one row per exchange.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	inflight map[string]float64
	count    int
}

// NewDBTracer creates a DBTracer. The time teller stamps each exchange with
// the simulated time. It may be nil, in which case all times are zero.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	backend datarecording.DataRecorder,
) *DBTracer {
	backend.CreateTable(ExchangeTable, ExchangeEntry{})

	t := &DBTracer{
		timeTeller: timeTeller,
		backend:    backend,
		inflight:   make(map[string]float64),
	}

	atexit.Register(t.Terminate)

	return t
}

func (t *DBTracer) now() float64 {
	if t.timeTeller == nil {
		return 0
	}

	return t.timeTeller.Now()
}

// StartExchange remembers when the exchange started.
func (t *DBTracer) StartExchange(x bridge.Exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflight[x.ID] = t.now()
}

// EndExchange writes the exchange.
func (t *DBTracer) EndExchange(x bridge.Exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	endTime := t.now()

	startTime, ok := t.inflight[x.ID]
	if !ok {
		startTime = endTime
	}

	delete(t.inflight, x.ID)

	entry := ExchangeEntry{
		ID:        x.ID,
		Handle:    x.Handle.String(),
		Kind:      string(x.Kind),
		Func:      x.Func,
		Args:      formatWords(x.Args),
		Results:   formatWords(x.Results),
		Status:    x.Status,
		StartTime: startTime,
		EndTime:   endTime,
	}

	if x.Err != nil {
		entry.Error = x.Err.Error()
	}

	t.backend.InsertData(ExchangeTable, entry)
	t.count++
}

// Count returns the number of exchanges written.
func (t *DBTracer) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count
}

// Terminate flushes the rows written so far.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflight = make(map[string]float64)
	t.backend.Flush()
}

func formatWords(words []uint32) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strconv.FormatUint(uint64(w), 10)
	}

	return strings.Join(parts, ",")
}

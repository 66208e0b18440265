package tracing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
)

// A TranscriptEntry is one recorded exchange.
type TranscriptEntry struct {
	Script  string              `cbor:"script"`
	Handle  uint64              `cbor:"handle"`
	Kind    bridge.ExchangeKind `cbor:"kind"`
	Func    string              `cbor:"func"`
	Args    []uint32            `cbor:"args"`
	Results []uint32            `cbor:"results"`
	Status  int32               `cbor:"status"`
}

// TranscriptWriter streams the exchanges of a bridge as a sequence of CBOR
// items, one per finished exchange.
type TranscriptWriter struct {
	lock    sync.Mutex
	bridge  *bridge.Bridge
	encoder *cbor.Encoder
	closer  io.Closer
	count   int
	err     error
}

// NewTranscriptWriter creates a writer that encodes to w.
func NewTranscriptWriter(w io.Writer, b *bridge.Bridge) *TranscriptWriter {
	return &TranscriptWriter{
		bridge:  b,
		encoder: cbor.NewEncoder(w),
	}
}

// CreateTranscript creates a transcript file.
func CreateTranscript(path string, b *bridge.Bridge) (*TranscriptWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	t := NewTranscriptWriter(f, b)
	t.closer = f

	return t, nil
}

// StartExchange does nothing.
func (t *TranscriptWriter) StartExchange(bridge.Exchange) {}

// EndExchange appends the exchange to the transcript. After the first write
// error the transcript stops growing and Close reports the error.
func (t *TranscriptWriter) EndExchange(x bridge.Exchange) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.err != nil {
		return
	}

	entry := TranscriptEntry{
		Handle:  uint64(x.Handle),
		Kind:    x.Kind,
		Func:    x.Func,
		Args:    x.Args,
		Results: x.Results,
		Status:  x.Status,
	}

	if s, err := t.bridge.Session(x.Handle); err == nil {
		entry.Script = filepath.Base(s.ScriptPath())
	}

	t.err = t.encoder.Encode(entry)
	if t.err == nil {
		t.count++
	}
}

// Count returns the number of exchanges written.
func (t *TranscriptWriter) Count() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count
}

// Close closes the underlying file, if the writer owns one.
func (t *TranscriptWriter) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	var err error
	if t.closer != nil {
		err = t.closer.Close()
		t.closer = nil
	}

	return errors.Join(t.err, err)
}

// ReadTranscript decodes every entry of a transcript.
func ReadTranscript(r io.Reader) ([]TranscriptEntry, error) {
	var entries []TranscriptEntry

	dec := cbor.NewDecoder(r)

	for {
		var e TranscriptEntry

		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return entries, fmt.Errorf("entry %d: %w", len(entries), err)
		}

		entries = append(entries, e)
	}
}

// OpenTranscript reads a transcript file.
func OpenTranscript(path string) ([]TranscriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTranscript(f)
}

// SelectScript returns the entries recorded from the script with the given
// base name. If the transcript holds a single session, all entries are
// returned whatever the script name.
func SelectScript(entries []TranscriptEntry, script string) []TranscriptEntry {
	handles := make(map[uint64]bool)
	for _, e := range entries {
		handles[e.Handle] = true
	}

	if len(handles) <= 1 {
		return entries
	}

	var out []TranscriptEntry

	for _, e := range entries {
		if e.Script == filepath.Base(script) {
			out = append(out, e)
		}
	}

	return out
}

// A Divergence is reported when a replayed exchange does not reproduce the
// recorded one.
type Divergence struct {
	Index   int
	Entry   TranscriptEntry
	Results []uint32
	Status  int32
}

func (d *Divergence) Error() string {
	return fmt.Sprintf(
		"exchange %d (%s%v) diverged: recorded %v status %d, got %v status %d",
		d.Index, d.Entry.Func, d.Entry.Args,
		d.Entry.Results, d.Entry.Status, d.Results, d.Status)
}

// Replay issues the recorded inputs against the session h in order and checks
// that every exchange reproduces the recorded results and status. It returns
// the number of exchanges that matched. The first mismatch is returned as a
// *Divergence.
func Replay(
	b *bridge.Bridge,
	h handle.Handle,
	entries []TranscriptEntry,
) (int, error) {
	for i, e := range entries {
		results, err := replayOne(b, h, e)

		status := bridge.StatusCode(err)
		if status == bridge.StatusInvalidSession {
			return i, err
		}

		var argErr *replayArgError
		if errors.As(err, &argErr) {
			argErr.index = i
			return i, err
		}

		if status != e.Status ||
			(status == bridge.StatusOK && !slices.Equal(results, e.Results)) {
			return i, &Divergence{
				Index:   i,
				Entry:   e,
				Results: results,
				Status:  status,
			}
		}
	}

	return len(entries), nil
}

type replayArgError struct {
	index int
	entry TranscriptEntry
	msg   string
}

func (e *replayArgError) Error() string {
	return fmt.Sprintf("entry %d (%s): %s", e.index, e.entry.Func, e.msg)
}

func replayOne(
	b *bridge.Bridge,
	h handle.Handle,
	e TranscriptEntry,
) ([]uint32, error) {
	want := map[bridge.ExchangeKind]int{
		bridge.ExchangeMaster:    2,
		bridge.ExchangeSlave:     4,
		bridge.ExchangeReadData:  1,
		bridge.ExchangeWriteData: 2,
	}

	n, ok := want[e.Kind]
	if !ok || len(e.Args) != n {
		return nil, &replayArgError{entry: e, msg: "malformed entry"}
	}

	a := e.Args

	switch e.Kind {
	case bridge.ExchangeMaster:
		if e.Func != b.Revision().MasterFunc() {
			return nil, &replayArgError{
				entry: e,
				msg:   "recorded with another protocol revision",
			}
		}

		r, err := b.ExchangeMaster(h, a[0], a[1])
		if err != nil {
			return nil, err
		}

		if b.Revision() == bridge.RevisionCAD {
			return []uint32{uint32(r.Cmd), r.Addr, r.Data}, nil
		}

		return []uint32{r.Time, uint32(r.Cmd), r.Addr, r.Data}, nil
	case bridge.ExchangeSlave:
		r, err := b.ExchangeSlave(h, a[0], bridge.Command(a[1]), a[2], a[3])
		if err != nil {
			return nil, err
		}

		return []uint32{r.Data, r.Status}, nil
	case bridge.ExchangeReadData:
		v, err := b.ReadData(h, a[0])
		if err != nil {
			return nil, err
		}

		return []uint32{v}, nil
	default:
		return nil, b.WriteData(h, a[0], a[1])
	}
}

package tracing

import (
	"context"
	"database/sql"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/datarecording"
	"github.com/sarchlab/luabridge/handle"
	"go.uber.org/mock/gomock"
)

var _ = Describe("DBTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		recorder   datarecording.DataRecorder
		reader     datarecording.DataReader
		tracer     *DBTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		db, err := sql.Open("sqlite3", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		db.SetMaxOpenConns(1)

		recorder = datarecording.NewWithDB(db)
		reader = datarecording.NewReaderWithDB(db)
		reader.MapTable(ExchangeTable, ExchangeEntry{})

		tracer = NewDBTracer(timeTeller, recorder)
	})

	AfterEach(func() {
		Expect(recorder.Close()).To(Succeed())
		mockCtrl.Finish()
	})

	query := func() []*ExchangeEntry {
		results, _, err := reader.Query(context.Background(), ExchangeTable,
			datarecording.QueryParams{OrderBy: "ID"})
		Expect(err).NotTo(HaveOccurred())

		entries := make([]*ExchangeEntry, len(results))
		for i, r := range results {
			entries[i] = r.(*ExchangeEntry)
		}

		return entries
	}

	It("should create the exchange table", func() {
		Expect(recorder.ListTables()).To(ContainElement(ExchangeTable))
	})

	It("should write one row per exchange", func() {
		x := bridge.Exchange{
			ID:     "1",
			Handle: handle.Decode(1, 1),
			Kind:   bridge.ExchangeMaster,
			Func:   bridge.FuncExchangeM,
			Args:   []uint32{7, 0},
		}

		timeTeller.EXPECT().Now().Return(1.5)
		tracer.StartExchange(x)

		x.Results = []uint32{0, 1, 16, 0}
		timeTeller.EXPECT().Now().Return(2.0)
		tracer.EndExchange(x)
		tracer.Terminate()

		Expect(tracer.Count()).To(Equal(1))

		entries := query()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Handle).To(Equal("0x0000000100000001"))
		Expect(entries[0].Kind).To(Equal("master"))
		Expect(entries[0].Args).To(Equal("7,0"))
		Expect(entries[0].Results).To(Equal("0,1,16,0"))
		Expect(entries[0].Status).To(Equal(int32(0)))
		Expect(entries[0].StartTime).To(Equal(1.5))
		Expect(entries[0].EndTime).To(Equal(2.0))
	})

	It("should record failures", func() {
		x := bridge.Exchange{
			ID:     "2",
			Kind:   bridge.ExchangeReadData,
			Func:   bridge.FuncReadData,
			Args:   []uint32{1},
			Status: bridge.StatusReturnTypeMismatch(1),
			Err:    errors.New("not an integer"),
		}

		timeTeller.EXPECT().Now().Return(3.0)
		tracer.EndExchange(x)
		tracer.Terminate()

		entries := query()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Status).To(Equal(int32(-2)))
		Expect(entries[0].Error).To(Equal("not an integer"))
		Expect(entries[0].Results).To(BeEmpty())
		Expect(entries[0].StartTime).To(Equal(3.0))
	})

	It("should stamp zero time without a time teller", func() {
		db, err := sql.Open("sqlite3", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		db.SetMaxOpenConns(1)

		other := datarecording.NewWithDB(db)
		defer other.Close()

		t := NewDBTracer(nil, other)
		t.StartExchange(bridge.Exchange{ID: "3"})
		t.EndExchange(bridge.Exchange{ID: "3"})
		t.Terminate()

		r := datarecording.NewReaderWithDB(db)
		r.MapTable(ExchangeTable, ExchangeEntry{})

		results, total, err := r.Query(context.Background(), ExchangeTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))

		entry := results[0].(*ExchangeEntry)
		Expect(entry.StartTime).To(BeZero())
		Expect(entry.EndTime).To(BeZero())
	})
})

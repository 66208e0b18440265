package timing

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/luabridge/hooking"
	"go.uber.org/mock/gomock"
)

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	mockEvent := func(t VTimeInSec, handler Handler, secondary bool) *MockEvent {
		evt := NewMockEvent(mockCtrl)
		evt.EXPECT().Time().Return(t).AnyTimes()
		evt.EXPECT().Handler().Return(handler).AnyTimes()
		evt.EXPECT().IsSecondary().Return(secondary).AnyTimes()

		return evt
	}

	It("should run events in time order", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)
		evt1 := mockEvent(4.0, handler1, false)
		evt2 := mockEvent(2.0, handler2, false)
		evt3 := mockEvent(3.0, handler1, false)
		evt4 := mockEvent(5.0, handler1, false)

		handleEvt2 := handler2.EXPECT().Handle(evt2).
			DoAndReturn(func(Event) error {
				engine.Schedule(evt3)
				engine.Schedule(evt4)
				return nil
			})
		handleEvt3 := handler1.EXPECT().Handle(evt3).After(handleEvt2)
		handleEvt1 := handler1.EXPECT().Handle(evt1).After(handleEvt3)
		handler1.EXPECT().Handle(evt4).After(handleEvt1)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		Expect(engine.Run()).To(Succeed())
		Expect(engine.Now()).To(Equal(5.0))
	})

	It("should run same-time events in scheduling order", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := mockEvent(1.0, handler, false)
		evt2 := mockEvent(1.0, handler, false)
		evt3 := mockEvent(1.0, handler, false)

		first := handler.EXPECT().Handle(evt1)
		second := handler.EXPECT().Handle(evt2).After(first)
		handler.EXPECT().Handle(evt3).After(second)

		engine.Schedule(evt1)
		engine.Schedule(evt2)
		engine.Schedule(evt3)

		Expect(engine.Run()).To(Succeed())
	})

	It("should run secondary events after primary events", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := mockEvent(2.0, handler, true)
		evt2 := mockEvent(2.0, handler, false)
		evt3 := mockEvent(3.0, handler, false)

		first := handler.EXPECT().Handle(evt2)
		second := handler.EXPECT().Handle(evt1).After(first)
		handler.EXPECT().Handle(evt3).After(second)

		engine.Schedule(evt1)
		engine.Schedule(evt2)
		engine.Schedule(evt3)

		Expect(engine.Run()).To(Succeed())
	})

	It("should stop on a handler error", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := mockEvent(1.0, handler, false)
		evt2 := mockEvent(2.0, handler, false)

		handler.EXPECT().Handle(evt1).Return(errors.New("failed"))

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		Expect(engine.Run()).To(MatchError("failed"))
	})

	It("should panic when scheduling in the past", func() {
		handler := NewMockHandler(mockCtrl)
		evt1 := mockEvent(2.0, handler, false)
		evt2 := mockEvent(1.0, handler, false)

		handler.EXPECT().Handle(evt1)
		engine.Schedule(evt1)
		Expect(engine.Run()).To(Succeed())

		Expect(func() { engine.Schedule(evt2) }).To(Panic())
	})

	It("should invoke hooks around every event", func() {
		handler := NewMockHandler(mockCtrl)
		evt := mockEvent(1.0, handler, false)
		handler.EXPECT().Handle(evt)

		var positions []*hooking.HookPos
		engine.AcceptHook(hooking.NewHookFunc(func(ctx hooking.HookCtx) {
			Expect(ctx.Item).To(BeIdenticalTo(evt))
			positions = append(positions, ctx.Pos)
		}))

		engine.Schedule(evt)
		Expect(engine.Run()).To(Succeed())

		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosBeforeEvent, HookPosAfterEvent,
		}))
	})

	It("should pause and continue", func() {
		handler := NewMockHandler(mockCtrl)
		evt := mockEvent(1.0, handler, false)
		handled := make(chan struct{})
		handler.EXPECT().Handle(evt).Do(func(Event) { close(handled) })

		engine.Schedule(evt)
		engine.Pause()
		Expect(engine.Paused()).To(BeTrue())

		done := make(chan error)
		go func() { done <- engine.Run() }()

		Consistently(handled, "50ms").ShouldNot(BeClosed())

		engine.Continue()

		Eventually(handled).Should(BeClosed())
		Eventually(done).Should(Receive(BeNil()))
		Expect(engine.Paused()).To(BeFalse())
	})
})

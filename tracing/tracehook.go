package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/hooking"
)

// CollectExchanges lets the tracer collect the exchanges of a bridge.
// Attaching the same tracer twice panics.
func CollectExchanges(b *bridge.Bridge, tracer ExchangeTracer) {
	for _, hook := range b.Hooks() {
		h, ok := hook.(*exchangeHook)
		if ok && h.t == tracer {
			panic(fmt.Sprintf(
				"%s already has tracer %s",
				b.Name(), reflect.TypeOf(tracer)))
		}
	}

	b.AcceptHook(&exchangeHook{t: tracer})
}

type exchangeHook struct {
	t ExchangeTracer
}

func (h *exchangeHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case bridge.HookPosExchangeStart:
		h.t.StartExchange(ctx.Item.(bridge.Exchange))
	case bridge.HookPosExchangeEnd:
		h.t.EndExchange(ctx.Item.(bridge.Exchange))
	case bridge.HookPosSessionOpen:
		if st, ok := h.t.(SessionTracer); ok {
			st.OpenSession(ctx.Item.(bridge.SessionInfo))
		}
	case bridge.HookPosSessionClose:
		if st, ok := h.t.(SessionTracer); ok {
			st.CloseSession(ctx.Item.(bridge.SessionInfo))
		}
	}
}

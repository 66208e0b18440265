// Package tracing collects the exchanges between the bridge and its scripts.
package tracing

import "github.com/sarchlab/luabridge/bridge"

// An ExchangeTracer collects exchanges.
type ExchangeTracer interface {
	// StartExchange is called before the script function runs. The exchange
	// has no results yet.
	StartExchange(x bridge.Exchange)

	// EndExchange is called after the script function returned or failed.
	EndExchange(x bridge.Exchange)
}

// A SessionTracer is an ExchangeTracer that also wants to know when sessions
// open and close.
type SessionTracer interface {
	ExchangeTracer

	OpenSession(info bridge.SessionInfo)
	CloseSession(info bridge.SessionInfo)
}

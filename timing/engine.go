// Package timing is the discrete-event kernel that advances simulated time
// and delivers the tick events that drive bus participants.
package timing

import "github.com/sarchlab/luabridge/hooking"

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() VTimeInSec
}

// EventScheduler can be used to schedule future events.
type EventScheduler interface {
	TimeTeller

	Schedule(e Event)
}

// An Engine keeps the discrete-event simulation running.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run processes events until no event is left.
	Run() error

	// Pause stops the engine from handling more events until Continue is
	// called.
	Pause()

	// Continue resumes a paused engine.
	Continue()
}

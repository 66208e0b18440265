package script

import (
	"sync"
	"sync/atomic"
)

// A Counter wraps a Factory and keeps track of how many of the engines it
// created are still open.
type Counter struct {
	factory Factory
	live    atomic.Int64
	created atomic.Int64
}

// NewCounter creates a Counter around the given factory.
func NewCounter(factory Factory) *Counter {
	return &Counter{factory: factory}
}

// NewEngine creates an engine with the wrapped factory.
func (c *Counter) NewEngine() (Engine, error) {
	e, err := c.factory.NewEngine()
	if err != nil {
		return nil, err
	}

	c.live.Add(1)
	c.created.Add(1)

	return &countedEngine{Engine: e, counter: c}, nil
}

// Live returns the number of engines that have not been closed.
func (c *Counter) Live() int {
	return int(c.live.Load())
}

// Created returns the number of engines created so far.
func (c *Counter) Created() int {
	return int(c.created.Load())
}

type countedEngine struct {
	Engine

	counter *Counter
	once    sync.Once
}

func (e *countedEngine) Close() {
	e.once.Do(func() {
		e.Engine.Close()
		e.counter.live.Add(-1)
	})
}

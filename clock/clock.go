// Package clock provides the pack uptime counter, a millisecond tick
// kept apart from wall time so telemetry rows stay ordered when the
// system clock steps.
package clock

import (
	"sync/atomic"
	"time"
)

// Counter is a millisecond counter driven by its own tick goroutine.
// Readers take an atomic snapshot, never raw shared memory.
type Counter struct {
	millis atomic.Int64
	ticker *time.Ticker
	done   chan struct{}
}

// Start begins counting from zero.
func Start() *Counter {
	c := &Counter{
		ticker: time.NewTicker(time.Millisecond),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Counter) run() {
	for {
		select {
		case <-c.ticker.C:
			c.millis.Add(1)
		case <-c.done:
			return
		}
	}
}

// Millis returns the uptime in milliseconds.
func (c *Counter) Millis() int64 {
	return c.millis.Load()
}

// Stop ends the tick goroutine. Call it once.
func (c *Counter) Stop() {
	c.ticker.Stop()
	close(c.done)
}

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounterTicks(t *testing.T) {
	c := Start()
	defer c.Stop()

	time.Sleep(50 * time.Millisecond)
	first := c.Millis()
	assert.Greater(t, first, int64(0))

	time.Sleep(50 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Millis(), first)
}

func TestCounterStops(t *testing.T) {
	c := Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	time.Sleep(20 * time.Millisecond)
	frozen := c.Millis()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, c.Millis())
}

package sched

import (
	"context"
	"time"

	"contentment/src/boot/bootloader"
)

// Clock counts scheduler ticks, HZ of them per second.
type Clock interface {
	Now() uint64
	// Tick is called after every dispatch.
	Tick()
	// AdvanceTo is called when nothing can run until the tick given.
	AdvanceTo(ctx context.Context, ticks uint64)
}

// virtualClock advances one tick per dispatch and jumps straight to the next
// wake up when every task is asleep.  Runs are reproducible and never wait.
type virtualClock struct {
	now uint64
}

func (c *virtualClock) Now() uint64 {
	return c.now
}

func (c *virtualClock) Tick() {
	c.now++
}

func (c *virtualClock) AdvanceTo(_ context.Context, ticks uint64) {
	if ticks > c.now {
		c.now = ticks
	}
}

// realtimeClock derives ticks from the monotonic time since boot.
type realtimeClock struct {
	start  time.Time
	period time.Duration
}

func newRealtimeClock(hz uint64) *realtimeClock {
	log.Assertf(hz > 0 && hz <= bootloader.MaxRealtimeHZ, "realtime clock cannot tick at %d hz", hz)
	return &realtimeClock{
		start:  time.Now(),
		period: time.Second / time.Duration(hz),
	}
}

func (c *realtimeClock) Now() uint64 {
	return uint64(time.Since(c.start) / c.period)
}

func (c *realtimeClock) Tick() {}

func (c *realtimeClock) AdvanceTo(ctx context.Context, ticks uint64) {
	now := c.Now()
	if ticks <= now {
		return
	}
	timer := time.NewTimer(time.Duration(ticks-now) * c.period)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func newClock(p *bootloader.Params) Clock {
	if p.Clock == bootloader.ClockRealtime {
		return newRealtimeClock(p.HZ)
	}
	return &virtualClock{}
}

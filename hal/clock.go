package hal

import (
	"sync"
	"time"
)

type clockDevice struct {
	c        *CPU
	interval time.Duration

	mu    sync.Mutex
	ticks int64
	last  time.Time
}

func newClockDevice(c *CPU, interval time.Duration) *clockDevice {
	return &clockDevice{c: c, interval: interval, last: time.Now()}
}

func (d *clockDevice) run(done <-chan struct{}) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			d.step()
		}
	}
}

func (d *clockDevice) step() {
	d.mu.Lock()
	d.ticks++
	d.last = time.Now()
	d.mu.Unlock()
	d.c.raise(ClockDev, 0)
}

// now returns simulated microseconds: whole ticks plus the scaled real time
// elapsed since the last tick, capped below one tick.
func (d *clockDevice) now() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	frac := int64(time.Since(d.last)) * TickMicros / int64(d.interval)
	if frac < 0 {
		frac = 0
	}
	if frac >= TickMicros {
		frac = TickMicros - 1
	}
	return d.ticks*TickMicros + frac
}

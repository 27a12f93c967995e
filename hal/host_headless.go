package hal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	Ticks   uint64
}

// RunHeadless runs the machine without opening a window and returns its halt
// code.
func RunHeadless(ctx context.Context, cfg Config, newApp func(HAL) (App, error), hcfg HeadlessConfig) (int, error) {
	if hcfg.Hz <= 0 {
		hcfg.Hz = 60
	}
	d := time.Second / time.Duration(hcfg.Hz)
	if d <= 0 {
		return 1, fmt.Errorf("invalid headless hz: %d", hcfg.Hz)
	}

	h, err := newHostHAL(cfg)
	if err != nil {
		return 1, err
	}
	app, err := newApp(h)
	if err != nil {
		return 1, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.cpu.Run(app.Boot)
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()

		var tick uint64
		for {
			select {
			case <-h.cpu.Done():
				return app.Step()
			case <-ctx.Done():
				h.cpu.Shutdown(1)
				return ctx.Err()
			case <-t.C:
				if err := app.Step(); err != nil {
					h.cpu.Shutdown(1)
					return err
				}
				tick++
				if hcfg.Ticks > 0 && tick >= hcfg.Ticks {
					h.cpu.Shutdown(0)
					return nil
				}
			}
		}
	})
	err = g.Wait()
	return h.cpu.ExitCode(), err
}

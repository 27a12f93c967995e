package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"simkern/app"
	"simkern/hal"
	"simkern/internal/buildinfo"
	"simkern/internal/log"
	"simkern/simos/services/term"
	"simkern/simos/tasks/demo"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

var (
	fHeadless = pflag.Bool("headless", false, "run without a window")
	fHz       = pflag.Int("hz", 60, "host step rate in headless mode")
	fTicks    = pflag.Uint64("ticks", 0, "stop after N host steps in headless mode (0 = until halt)")
	fTick     = pflag.Duration("tick", 20*time.Millisecond, "real time between clock interrupts")
	fWorkload = pflag.String("workload", demo.Default, "demo to run: "+strings.Join(demo.Names(), ", "))
	fDiskDir  = pflag.String("disk-dir", hal.DiskDir(), "directory holding disk0/disk1 (empty keeps disks in memory)")
	fTracks0  = pflag.Int("tracks0", 0, "tracks on disk 0 when its file is created (0 = default)")
	fTracks1  = pflag.Int("tracks1", 0, "tracks on disk 1 when its file is created (0 = default)")
	fDump     = pflag.Bool("dump", false, "print the process table when the workload finishes")
	fVerbose  = pflag.BoolP("verbose", "v", false, "debug logging")
	fVersion  = pflag.Bool("version", false, "print the build identifier and exit")
)

func main() {
	pflag.Parse()

	if *fVersion {
		fmt.Println("simkern", buildinfo.Short())
		return
	}

	if *fVerbose {
		log.SetVerbose()
	}

	code, err := run()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "simkern: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run() (int, error) {
	screen := term.NewScreen()
	cfg := hal.Config{
		TickInterval: *fTick,
		DiskTracks:   [hal.DiskUnits]int{*fTracks0, *fTracks1},
		DiskDir:      *fDiskDir,
		TermOut:      screen.Put,
	}
	acfg := app.Config{
		Workload:   *fWorkload,
		Dump:       *fDump,
		Screen:     screen,
		MirrorTerm: *fHeadless,
	}
	log.L.Debug("starting", "version", buildinfo.Short(), "workload", acfg.Workload, "disk-dir", cfg.DiskDir)
	newApp := func(h hal.HAL) (hal.App, error) { return app.New(h, acfg) }

	if *fHeadless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return hal.RunHeadless(ctx, cfg, newApp, hal.HeadlessConfig{
			Enabled: true,
			Hz:      *fHz,
			Ticks:   *fTicks,
		})
	}
	return hal.RunWindow(cfg, newApp)
}

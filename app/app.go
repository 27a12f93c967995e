// Package app wires the simulated machine, the kernel and the services
// into the boot chain start1 -> start2 -> start3 -> start4.
package app

import (
	"simkern/hal"
	"simkern/internal/log"
	"simkern/kernel"
	"simkern/simos/client/sys"
	"simkern/simos/ipc"
	"simkern/simos/services/clock"
	"simkern/simos/services/disk"
	"simkern/simos/services/sems"
	"simkern/simos/services/term"
	"simkern/simos/services/userproc"
	"simkern/simos/tasks/demo"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Config selects what the system runs. Zero values select defaults.
type Config struct {
	// Workload names the demo run as start4.
	Workload string

	// Dump prints the process table once start4 has finished.
	Dump bool

	// Screen receives terminal unit 0. It must also be installed as the
	// machine's hal.Config.TermOut.
	Screen *term.Screen

	// MirrorTerm copies terminal lines to the console logger.
	MirrorTerm bool
}

type system struct {
	h      hal.HAL
	cfg    Config
	k      *kernel.Kernel
	w      demo.Workload
	screen *term.Screen
	log    hclog.Logger

	mb  *ipc.Mailboxes
	mgr *userproc.Manager
}

// New builds the system on h. The returned App boots the kernel when the
// machine starts and refreshes the screen on every host step.
func New(h hal.HAL, cfg Config) (hal.App, error) {
	if cfg.Workload == "" {
		cfg.Workload = demo.Default
	}
	w, err := demo.Lookup(cfg.Workload)
	if err != nil {
		return nil, errors.Wrap(err, "app")
	}
	if cfg.Screen == nil {
		cfg.Screen = term.NewScreen()
	}
	if cfg.MirrorTerm {
		cfg.Screen.Mirror(h.Logger())
	}
	if disp := h.Display(); disp != nil {
		cfg.Screen.Attach(disp.Framebuffer())
	}

	installPanicHandler(h)

	return &system{
		h:      h,
		cfg:    cfg,
		k:      kernel.New(h.Machine()),
		w:      w,
		screen: cfg.Screen,
		log:    log.L.Named("app"),
	}, nil
}

// Boot runs as the machine's first context and never returns.
func (s *system) Boot() {
	s.log.Debug("booting", "workload", s.cfg.Workload)
	s.k.Startup(s.start1)
}

func (s *system) Step() error {
	s.screen.Flush()
	return nil
}

func (s *system) start1(string) int {
	s.mb = ipc.New(s.k)
	if _, err := s.k.Fork("start2", s.start2, "", 4*kernel.MinStack, kernel.HighestPriority); err != nil {
		s.k.Fatalf("start1(): fork of start2 failed: %v", err)
	}
	_, status := s.k.Join()
	if status != 0 {
		s.k.Fatalf("start1(): start2 quit with status %d. Halting...", status)
	}
	return 0
}

func (s *system) start2(string) int {
	s.mgr = userproc.New(s.mb, sems.New(s.mb))
	if _, err := s.k.Fork("start3", s.start3, "", 4*kernel.MinStack, 3); err != nil {
		s.k.Fatalf("start2(): fork of start3 failed: %v", err)
	}
	_, status := s.k.Join()
	return status
}

func (s *system) start3(string) int {
	k, st := s.k, s.mgr.Sems()

	clk := clock.New(s.mgr)
	disks := disk.New(s.mgr)
	term.New(s.mgr)

	running := st.Create(0)
	if _, err := clk.Start(running); err != nil {
		k.Fatalf("start3(): Can't create clock driver: %v", err)
	}
	st.P(running)
	if err := disks.Start(running); err != nil {
		k.Fatalf("start3(): Can't create disk driver: %v", err)
	}
	for range disks.PIDs() {
		st.P(running)
	}

	m := k.Machine()
	if _, err := s.mgr.Spawn("start4", func(string) int { return s.w(sys.New(m)) }, "", 8*kernel.MinStack, 3); err != nil {
		k.Fatalf("start3(): Can't spawn start4: %v", err)
	}
	_, status := s.mgr.Wait()
	s.log.Info("start4 finished", "status", status)
	if s.cfg.Dump {
		k.DumpProcesses()
	}

	clk.Stop()
	k.Join()
	disks.Stop()
	for range disks.PIDs() {
		k.Join()
	}
	return status
}

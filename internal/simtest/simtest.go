// Package simtest boots simulated machines for package tests.
package simtest

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"simkern/hal"
	"simkern/kernel"

	"github.com/stretchr/testify/require"
)

// Console collects machine console lines.
type Console struct {
	mu    sync.Mutex
	lines []string
}

func (c *Console) WriteLineString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, s)
}

func (c *Console) WriteLineBytes(b []byte) { c.WriteLineString(string(b)) }

func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *Console) String() string { return strings.Join(c.Lines(), "\n") }

// Trace records events in the order simulated processes produce them.
type Trace struct {
	mu sync.Mutex
	ev []string
}

func (tr *Trace) Add(format string, args ...any) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.ev = append(tr.ev, fmt.Sprintf(format, args...))
}

func (tr *Trace) Events() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ev...)
}

// Timeout bounds a single simulated run.
var Timeout = 20 * time.Second

// Boot runs start1 on a fresh machine with a 1ms clock and in-memory disks
// and returns the halt code and console. cfg may be nil.
func Boot(t *testing.T, cfg *hal.Config, start1 func(k *kernel.Kernel) kernel.Entry) (int, *Console) {
	t.Helper()

	out := &Console{}
	c := hal.Config{TickInterval: time.Millisecond}
	if cfg != nil {
		c = *cfg
		if c.TickInterval == 0 {
			c.TickInterval = time.Millisecond
		}
	}
	c.Console = out

	cpu, err := hal.NewCPU(c)
	require.NoError(t, err)

	k := kernel.New(cpu)
	done := make(chan int, 1)
	go func() {
		done <- cpu.Run(func() { k.Startup(start1(k)) })
	}()

	select {
	case code := <-done:
		return code, out
	case <-time.After(Timeout):
		cpu.Shutdown(3)
		t.Fatalf("machine did not halt; console:\n%s", out)
		return 0, nil
	}
}

// JoinAll collects every child of the running process.
func JoinAll(k *kernel.Kernel) {
	for {
		if pid, _ := k.Join(); pid == -2 {
			return
		}
	}
}

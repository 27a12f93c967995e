package kernel

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"simkern/hal"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

type trace struct {
	mu sync.Mutex
	ev []string
}

func (tr *trace) add(format string, args ...any) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.ev = append(tr.ev, fmt.Sprintf(format, args...))
}

func (tr *trace) events() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ev...)
}

// boot runs start1 on a fresh machine and returns the halt code.
func boot(t *testing.T, start1 func(k *Kernel) Entry) (int, *lineLog) {
	t.Helper()

	out := &lineLog{}
	cpu, err := hal.NewCPU(hal.Config{TickInterval: time.Millisecond, Console: out})
	require.NoError(t, err)

	k := New(cpu)
	done := make(chan int, 1)
	go func() {
		done <- cpu.Run(func() { k.Startup(start1(k)) })
	}()

	select {
	case code := <-done:
		return code, out
	case <-time.After(10 * time.Second):
		cpu.Shutdown(3)
		t.Fatalf("machine did not halt; console:\n%s", out)
		return 0, nil
	}
}

func joinAll(k *Kernel) {
	for {
		if pid, _ := k.Join(); pid == -2 {
			return
		}
	}
}

func TestSchedulerPicksHighestPriority(t *testing.T) {
	var tr trace
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			for _, prio := range []int{3, 2, 4, 5, 2} {
				prio := prio
				_, err := k.Fork(fmt.Sprintf("p%d", prio), func(string) int {
					tr.add("prio%d", prio)
					return 0
				}, "", MinStack, prio)
				if err != nil {
					tr.add("fork error %v", err)
				}
			}
			joinAll(k)
			return 0
		}
	})

	require.Equal(t, 0, code, out.String())
	require.Equal(t, []string{"prio2", "prio2", "prio3", "prio4", "prio5"}, tr.events())
	require.Contains(t, out.String(), "All processes completed.")
}

func TestSchedulerFIFOWithinPriority(t *testing.T) {
	var tr trace
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			for i := 0; i < 5; i++ {
				i := i
				_, _ = k.Fork(fmt.Sprintf("child%d", i), func(string) int {
					tr.add("child%d", i)
					return i
				}, "", MinStack, 3)
			}
			joinAll(k)
			return 0
		}
	})

	require.Equal(t, 0, code, out.String())
	require.Equal(t, []string{"child0", "child1", "child2", "child3", "child4"}, tr.events())
}

func TestForkPreemptsForHigherPriority(t *testing.T) {
	var tr trace
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			_, _ = k.Fork("parent", func(string) int {
				tr.add("parent start")
				_, _ = k.Fork("urgent", func(string) int {
					tr.add("urgent")
					return 0
				}, "", MinStack, 2)
				tr.add("parent after fork")
				k.Join()
				return 0
			}, "", MinStack, 4)
			k.Join()
			return 0
		}
	})

	require.Equal(t, 0, code, out.String())
	require.Equal(t, []string{"parent start", "urgent", "parent after fork"}, tr.events())
}

func TestForkValidation(t *testing.T) {
	var tr trace
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			noop := func(string) int { return 0 }

			pid, err := k.Fork("small", noop, "", MinStack-1, 3)
			tr.add("small %d %v", pid, errors.Is(err, ErrStackTooSmall))

			pid, err = k.Fork(strings.Repeat("n", MaxName+1), noop, "", MinStack, 3)
			tr.add("name %d %v", pid, err != nil)

			pid, err = k.Fork("prio", noop, "", MinStack, 0)
			tr.add("prio0 %d %v", pid, err != nil)
			pid, err = k.Fork("prio", noop, "", MinStack, SentinelPriority)
			tr.add("prio6 %d %v", pid, err != nil)

			pid, err = k.Fork("noentry", nil, "", MinStack, 3)
			tr.add("noentry %d %v", pid, err != nil)

			created := 0
			for {
				if _, err := k.Fork("filler", noop, "", MinStack, 5); err != nil {
					tr.add("full after %d %v", created, ErrCode(err))
					break
				}
				created++
			}
			joinAll(k)
			return 0
		}
	})

	require.Equal(t, 0, code, out.String())
	require.Equal(t, []string{
		"small -2 true",
		"name -1 true",
		"prio0 -1 true",
		"prio6 -1 true",
		"noentry -1 true",
		fmt.Sprintf("full after %d -1", MaxProc-2),
	}, tr.events())
}

func TestUserModeCallHalts(t *testing.T) {
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			m := k.Machine()
			m.WritePSR(m.ReadPSR() &^ hal.PSRKernel)
			_, _ = k.Fork("never", func(string) int { return 0 }, "", MinStack, 3)
			return 0
		}
	})

	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "fork1(): called while in user mode")
}

func TestQuitWithActiveChildrenHalts(t *testing.T) {
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			_, _ = k.Fork("orphan", func(string) int { return 0 }, "", MinStack, 5)
			return 0
		}
	})

	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "quitting with active child")
}

func TestSentinelDetectsDeadlock(t *testing.T) {
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			_, _ = k.Fork("stuck", func(string) int {
				k.BlockMe(StatusBlockedBase + 1)
				return 0
			}, "", MinStack, 3)
			k.Join()
			return 0
		}
	})

	require.Equal(t, 1, code)
	require.Contains(t, out.String(), "deadlock")
	require.Contains(t, out.String(), "stuck")
}

func TestTimeSliceRotatesEqualPriority(t *testing.T) {
	var tr trace
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			k.Machine().RegisterInterrupt(hal.ClockDev, func(hal.Device, any) { k.TimeSlice() })
			var otherRan bool
			_, _ = k.Fork("spinner", func(string) int {
				deadline := time.Now().Add(5 * time.Second)
				for !otherRan && time.Now().Before(deadline) {
					k.Checkpoint()
				}
				tr.add("spinner saw other=%v cpu>0=%v", otherRan, k.ReadTime() > 0)
				return 0
			}, "", MinStack, 3)
			_, _ = k.Fork("other", func(string) int {
				otherRan = true
				return 0
			}, "", MinStack, 3)
			joinAll(k)
			return 0
		}
	})

	require.Equal(t, 0, code, out.String())
	require.Equal(t, []string{"spinner saw other=true cpu>0=true"}, tr.events())
}

func TestUnblockProc(t *testing.T) {
	var tr trace
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			sleeper, _ := k.Fork("sleeper", func(string) int {
				tr.add("block rc=%d", k.BlockMe(StatusBlockedBase+2))
				return 0
			}, "", MinStack, 3)
			_, _ = k.Fork("waker", func(string) int {
				tr.add("self=%d", k.UnblockProc(k.GetPID()))
				tr.add("missing=%d", k.UnblockProc(MaxProc*3+7))
				rc := k.UnblockProc(sleeper)
				tr.add("unblock=%d", rc)
				return 0
			}, "", MinStack, 4)
			joinAll(k)
			return 0
		}
	})

	require.Equal(t, 0, code, out.String())
	require.Equal(t, []string{"self=-2", "missing=-2", "block rc=0", "unblock=0"}, tr.events())
}

func TestDumpProcesses(t *testing.T) {
	code, out := boot(t, func(k *Kernel) Entry {
		return func(string) int {
			k.NameStatus(StatusBlockedBase+1, "TEST_BLOCK")
			k.DumpProcesses()
			return 0
		}
	})

	require.Equal(t, 0, code)
	s := out.String()
	require.Contains(t, s, "PID")
	require.Contains(t, s, "CPUtime")
	require.Contains(t, s, "sentinel")
	require.Contains(t, s, "start1")
}

func TestStatusString(t *testing.T) {
	if got := StatusJoinBlocked.String(); got != "JOIN_BLOCKED" {
		t.Fatalf("String() = %q, want %q", got, "JOIN_BLOCKED")
	}
	if got := (StatusBlockedBase + 3).String(); got != "BLOCKED(13)" {
		t.Fatalf("String() = %q, want %q", got, "BLOCKED(13)")
	}
}

package clock

import (
	"fmt"
	"testing"

	"simkern/internal/simtest"
	"simkern/kernel"
	"simkern/simos/client/sys"
	"simkern/simos/ipc"
	"simkern/simos/services/sems"
	"simkern/simos/services/userproc"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func boot(t *testing.T, body func(d *Driver, m *userproc.Manager, s *sys.Sys) int) (int, *simtest.Console) {
	t.Helper()
	return simtest.Boot(t, nil, func(k *kernel.Kernel) kernel.Entry {
		return func(string) int {
			mb := ipc.New(k)
			m := userproc.New(mb, sems.New(mb))
			d := New(m)
			ready := m.Sems().Create(0)
			if _, err := d.Start(ready); err != nil {
				k.Fatalf("start clock driver: %v", err)
			}
			m.Sems().P(ready)

			rc := body(d, m, sys.New(k.Machine()))

			d.Stop()
			simtest.JoinAll(k)
			return rc
		}
	})
}

func TestSleepQueueOrder(t *testing.T) {
	q := btree.NewG(8, wakesBefore)
	q.ReplaceOrInsert(sleeper{wake: 300, seq: 1, pid: 4})
	q.ReplaceOrInsert(sleeper{wake: 100, seq: 2, pid: 5})
	q.ReplaceOrInsert(sleeper{wake: 300, seq: 3, pid: 6})
	q.ReplaceOrInsert(sleeper{wake: 200, seq: 4, pid: 7})

	var pids []int
	for q.Len() > 0 {
		s, _ := q.DeleteMin()
		pids = append(pids, s.pid)
	}
	require.Equal(t, []int{5, 7, 4, 6}, pids)
}

func TestSleep(t *testing.T) {
	n := neko.Modern(t)

	n.It("wakes sleepers in wake time order", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(d *Driver, m *userproc.Manager, s *sys.Sys) int {
			for _, secs := range []int{3, 1, 2} {
				secs := secs
				_, err := m.Spawn(fmt.Sprintf("sleep%d", secs), func(string) int {
					start := s.GetTimeOfDay()
					err := s.Sleep(secs)
					slept := s.GetTimeOfDay() - start
					tr.Add("woke %d err=%v long enough=%v", secs, err, slept >= secs*microsPerSecond)
					return 0
				}, "", kernel.MinStack, 3)
				if err != nil {
					m.Kernel().Fatalf("spawn: %v", err)
				}
			}
			for i := 0; i < 3; i++ {
				m.Wait()
			}
			tr.Add("queue empty=%v", d.Sleepers() == 0)
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{
			"woke 1 err=<nil> long enough=true",
			"woke 2 err=<nil> long enough=true",
			"woke 3 err=<nil> long enough=true",
			"queue empty=true",
		}, tr.Events())
	})

	n.It("returns promptly for zero seconds", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(d *Driver, m *userproc.Manager, s *sys.Sys) int {
			m.Spawn("nap", func(string) int {
				tr.Add("err=%v", s.Sleep(0))
				return 0
			}, "", kernel.MinStack, 3)
			m.Wait()
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"err=<nil>"}, tr.Events())
	})

	n.It("rejects negative durations", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(d *Driver, m *userproc.Manager, s *sys.Sys) int {
			m.Spawn("neg", func(string) int {
				err := s.Sleep(-1)
				tr.Add("invalid=%v", errors.Is(err, sys.ErrInvalid))
				return 0
			}, "", kernel.MinStack, 3)
			m.Wait()
			tr.Add("queued=%d", d.Sleepers())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"invalid=true", "queued=0"}, tr.Events())
	})

	n.It("terminates a zapped sleeper once it wakes", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(d *Driver, m *userproc.Manager, s *sys.Sys) int {
			m.Spawn("parent", func(string) int {
				s.Spawn("child", func(string) int {
					s.Sleep(1)
					tr.Add("child kept running")
					return 0
				}, "", kernel.MinStack, 2)
				return 5
			}, "", kernel.MinStack, 3)
			_, status := m.Wait()
			tr.Add("parent status=%d", status)
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"parent status=5"}, tr.Events())
	})

	n.Meow()
}

package ipc

import (
	"fmt"
	"testing"

	"simkern/hal"
	"simkern/internal/simtest"
	"simkern/kernel"
	"simkern/simos/proto"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func boot(t *testing.T, body func(mb *Mailboxes) int) (int, *simtest.Console) {
	t.Helper()
	return simtest.Boot(t, nil, func(k *kernel.Kernel) kernel.Entry {
		return func(string) int {
			return body(New(k))
		}
	})
}

func fork(mb *Mailboxes, name string, prio int, fn func() int) int {
	pid, err := mb.Kernel().Fork(name, func(string) int { return fn() }, "", kernel.MinStack, prio)
	if err != nil {
		mb.Kernel().Fatalf("fork %s: %v", name, err)
	}
	return pid
}

func TestMailboxes(t *testing.T) {
	n := neko.Modern(t)

	n.It("round trips a message unchanged", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(3, 20)
			tr.Add("send=%d", mb.Send(id, []byte("hello, mailbox")))
			buf := make([]byte, 20)
			got := mb.Receive(id, buf)
			tr.Add("recv=%d %q", got, buf[:got])
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"send=0", `recv=14 "hello, mailbox"`}, tr.Events())
	})

	n.It("refuses a second message into a full one-slot mailbox", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(1, 4)
			tr.Add("send=%d", mb.Send(id, []byte("abcd")))
			tr.Add("cond=%d", mb.CondSend(id, []byte("efgh")))
			buf := make([]byte, 4)
			got := mb.Receive(id, buf)
			tr.Add("recv=%q", buf[:got])
			tr.Add("cond=%d", mb.CondSend(id, []byte("efgh")))
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"send=0", "cond=-2", `recv="abcd"`, "cond=0"}, tr.Events())
	})

	n.It("rejects bad arguments", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			tr.Add("create size=%d", mb.Create(1, MaxMessage+1))
			tr.Add("create slots=%d", mb.Create(-1, 4))
			id := mb.Create(2, 4)
			tr.Add("oversize=%d", mb.Send(id, []byte("12345")))
			tr.Add("bad id=%d", mb.Send(id+100, []byte("1")))
			tr.Add("empty=%d", mb.CondReceive(id, make([]byte, 4)))
			tr.Add("recv bad id=%d", mb.Receive(-4, make([]byte, 4)))
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{
			"create size=-1",
			"create slots=-1",
			"oversize=-1",
			"bad id=-1",
			"empty=-2",
			"recv bad id=-1",
		}, tr.Events())
	})

	n.It("keeps a message a small buffer could not hold", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(1, 10)
			mb.Send(id, []byte("0123456789"))
			tr.Add("small=%d", mb.Receive(id, make([]byte, 4)))
			buf := make([]byte, 10)
			got := mb.Receive(id, buf)
			tr.Add("big=%q", buf[:got])
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"small=-1", `big="0123456789"`}, tr.Events())
	})

	n.It("rendezvous on a zero-slot mailbox with the receiver first", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(0, 8)
			fork(mb, "receiver", 3, func() int {
				buf := make([]byte, 8)
				got := mb.Receive(id, buf)
				tr.Add("received %q", buf[:got])
				return 0
			})
			fork(mb, "sender", 4, func() int {
				tr.Add("sent rc=%d", mb.Send(id, []byte("ping")))
				return 0
			})
			simtest.JoinAll(mb.Kernel())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{`received "ping"`, "sent rc=0"}, tr.Events())
	})

	n.It("rendezvous on a zero-slot mailbox with the sender first", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(0, 8)
			fork(mb, "sender", 3, func() int {
				tr.Add("sent rc=%d", mb.Send(id, []byte("pong")))
				return 0
			})
			fork(mb, "receiver", 4, func() int {
				buf := make([]byte, 8)
				got := mb.Receive(id, buf)
				tr.Add("received %q", buf[:got])
				return 0
			})
			simtest.JoinAll(mb.Kernel())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.ElementsMatch(t, []string{`received "pong"`, "sent rc=0"}, tr.Events())
	})

	n.It("does not buffer on a zero-slot mailbox", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(0, 8)
			tr.Add("cond send=%d", mb.CondSend(id, []byte("x")))
			tr.Add("cond recv=%d", mb.CondReceive(id, make([]byte, 8)))
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"cond send=-2", "cond recv=-2"}, tr.Events())
	})

	for _, slots := range []int{0, 1, 2} {
		slots := slots
		n.It(fmt.Sprintf("delivers blocked senders in send order with %d slots", slots), func(t *testing.T) {
			var tr simtest.Trace
			code, out := boot(t, func(mb *Mailboxes) int {
				id := mb.Create(slots, 8)
				for i := 0; i < 5; i++ {
					i := i
					fork(mb, fmt.Sprintf("sender%d", i), 3, func() int {
						mb.Send(id, []byte(fmt.Sprintf("m%d", i)))
						return 0
					})
				}
				fork(mb, "receiver", 4, func() int {
					buf := make([]byte, 8)
					for i := 0; i < 5; i++ {
						got := mb.Receive(id, buf)
						tr.Add("%s", buf[:got])
					}
					return 0
				})
				simtest.JoinAll(mb.Kernel())
				return 0
			})

			require.Equal(t, 0, code, out.String())
			require.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, tr.Events())
		})
	}

	n.It("keeps send order when senders and receives interleave", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(1, 8)
			k := mb.Kernel()
			mb.Send(id, []byte("a"))
			fork(mb, "s1", 2, func() int { mb.Send(id, []byte("b")); return 0 })
			fork(mb, "s2", 2, func() int { mb.Send(id, []byte("c")); return 0 })
			fork(mb, "receiver", 3, func() int {
				buf := make([]byte, 8)
				got := mb.Receive(id, buf)
				tr.Add("%s", buf[:got])
				fork(mb, "s3", 2, func() int { mb.Send(id, []byte("d")); return 0 })
				for i := 0; i < 3; i++ {
					got = mb.Receive(id, buf)
					tr.Add("%s", buf[:got])
				}
				simtest.JoinAll(k)
				return 0
			})
			simtest.JoinAll(k)
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"a", "b", "c", "d"}, tr.Events())
	})

	n.It("hands messages to blocked receivers in arrival order", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(2, 8)
			for i := 0; i < 3; i++ {
				i := i
				fork(mb, fmt.Sprintf("r%d", i), 3, func() int {
					buf := make([]byte, 8)
					got := mb.Receive(id, buf)
					tr.Add("r%d:%s", i, buf[:got])
					return 0
				})
			}
			fork(mb, "sender", 4, func() int {
				for _, m := range []string{"x", "y", "z"} {
					mb.Send(id, []byte(m))
				}
				return 0
			})
			simtest.JoinAll(mb.Kernel())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"r0:x", "r1:y", "r2:z"}, tr.Events())
	})

	n.Meow()
}

func TestRelease(t *testing.T) {
	n := neko.Modern(t)

	n.It("wakes blocked processes with -3 before the releaser returns", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(0, 8)
			fork(mb, "r1", 3, func() int {
				tr.Add("r1=%d", mb.Receive(id, make([]byte, 8)))
				return 0
			})
			fork(mb, "s1", 3, func() int {
				tr.Add("s1=%d", mb.Send(id, []byte("lost")))
				return 0
			})
			fork(mb, "releaser", 4, func() int {
				tr.Add("release=%d", mb.Release(id))
				_, open := mb.Info(id)
				tr.Add("open=%v send=%d", open, mb.Send(id, []byte("x")))
				return 0
			})
			simtest.JoinAll(mb.Kernel())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		// r1 and s1 meet first, so nothing is blocked when the mailbox goes.
		require.Equal(t, []string{"s1=0", "r1=4", "release=0", "open=false send=-1"}, tr.Events())
	})

	n.It("unblocks every waiter of a released mailbox", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			id := mb.Create(0, 8)
			for i := 0; i < 3; i++ {
				i := i
				fork(mb, fmt.Sprintf("r%d", i), 3, func() int {
					tr.Add("r%d=%d", i, mb.Receive(id, make([]byte, 8)))
					return 0
				})
			}
			fork(mb, "releaser", 4, func() int {
				tr.Add("release=%d", mb.Release(id))
				return 0
			})
			simtest.JoinAll(mb.Kernel())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"r0=-3", "r1=-3", "r2=-3", "release=0"}, tr.Events())
	})

	n.It("frees buffered slots and rejects a second release", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			before := mb.FreeSlots()
			id := mb.Create(4, 8)
			mb.Send(id, []byte("a"))
			mb.Send(id, []byte("b"))
			tr.Add("used=%d", before-mb.FreeSlots())
			tr.Add("release=%d", mb.Release(id))
			tr.Add("used=%d", before-mb.FreeSlots())
			tr.Add("again=%d", mb.Release(id))
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"used=2", "release=0", "used=0", "again=-1"}, tr.Events())
	})

	n.Meow()
}

func TestSlotExhaustion(t *testing.T) {
	t.Run("cond send reports would block", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			big := mb.Create(MaxSlots, 1)
			for mb.FreeSlots() > 0 {
				if rc := mb.CondSend(big, []byte{1}); rc != 0 {
					tr.Add("fill rc=%d", rc)
					return 1
				}
			}
			other := mb.Create(1, 1)
			tr.Add("cond=%d", mb.CondSend(other, []byte{2}))
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"cond=-2"}, tr.Events())
	})

	t.Run("send halts", func(t *testing.T) {
		code, out := boot(t, func(mb *Mailboxes) int {
			big := mb.Create(MaxSlots, 1)
			for mb.FreeSlots() > 0 {
				mb.Send(big, []byte{1})
			}
			mb.Send(mb.Create(1, 1), []byte{2})
			return 0
		})

		require.Equal(t, 1, code)
		require.Contains(t, out.String(), "no message slots left")
	})
}

func TestWaitDevice(t *testing.T) {
	n := neko.Modern(t)

	n.It("returns the clock status every fifth tick", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			fork(mb, "waiter", 2, func() int {
				status, rc := mb.WaitDevice(hal.ClockDev, 0)
				tr.Add("rc=%d late=%v", rc, status >= 5*hal.TickMicros)
				return 0
			})
			simtest.JoinAll(mb.Kernel())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"rc=0 late=true"}, tr.Events())
	})

	n.It("reports disk completion status", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			req := &hal.DeviceRequest{Op: hal.OpDiskTracks}
			tr.Add("issue=%s", mb.k.Machine().DeviceOutput(hal.DiskDev, 1, req))
			status, rc := mb.WaitDevice(hal.DiskDev, 1)
			tr.Add("status=%s rc=%d tracks=%d", hal.DevStatus(status), rc, req.Reg1)
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"issue=ok", "status=ok rc=0 tracks=32"}, tr.Events())
	})

	n.It("rejects unknown units", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			_, rc1 := mb.WaitDevice(hal.DiskDev, hal.DiskUnits)
			_, rc2 := mb.WaitDevice(hal.ClockDev, 1)
			_, rc3 := mb.WaitDevice(hal.SyscallDev, 0)
			tr.Add("%d %d %d", rc1, rc2, rc3)
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"-1 -1 -1"}, tr.Events())
	})

	n.Meow()
}

func TestSyscallVector(t *testing.T) {
	t.Run("unassigned opcode halts", func(t *testing.T) {
		code, out := boot(t, func(mb *Mailboxes) int {
			mb.k.Machine().Syscall(&proto.SysArgs{Number: 30})
			return 0
		})

		require.Equal(t, 1, code)
		require.Contains(t, out.String(), "Invalid syscall 30")
	})

	t.Run("out of range opcode halts", func(t *testing.T) {
		code, out := boot(t, func(mb *Mailboxes) int {
			mb.k.Machine().Syscall(&proto.SysArgs{Number: proto.MaxSyscalls + 2})
			return 0
		})

		require.Equal(t, 1, code)
		require.Contains(t, out.String(), "is wrong")
	})

	t.Run("installed handler fills the argument block", func(t *testing.T) {
		var tr simtest.Trace
		code, out := boot(t, func(mb *Mailboxes) int {
			mb.SetSyscall(proto.SysGetPID, func(a *proto.SysArgs) { a.Arg1 = mb.k.GetPID() })
			args := &proto.SysArgs{Number: proto.SysGetPID}
			mb.k.Machine().Syscall(args)
			tr.Add("pid match=%v", args.Arg1 == mb.k.GetPID())
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"pid match=true"}, tr.Events())
	})
}

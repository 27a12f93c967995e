package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type lines []string

func (l *lines) WriteLineString(s string) { *l = append(*l, s) }
func (l *lines) WriteLineBytes(b []byte)  { *l = append(*l, string(b)) }

func newTestCPU(t *testing.T, out *lines) *CPU {
	c, err := NewCPU(Config{TickInterval: time.Millisecond, Console: out})
	require.NoError(t, err)
	return c
}

func TestCPUContextSwitch(t *testing.T) {
	var out lines
	c := newTestCPU(t, &out)

	var order []string
	code := c.Run(func() {
		a, b := &Context{}, &Context{}
		c.ContextInit(a, nil, func() {
			order = append(order, "a1")
			c.ContextSwitch(a, b)
			order = append(order, "a2")
			c.Console("done\n")
			c.Halt(7)
		})
		c.ContextInit(b, nil, func() {
			order = append(order, "b")
			c.ContextSwitch(nil, a)
		})
		c.ContextSwitch(nil, a)
	})

	require.Equal(t, 7, code)
	require.Equal(t, []string{"a1", "b", "a2"}, order)
	require.Equal(t, lines{"done"}, out)
}

func TestCPUSyscall(t *testing.T) {
	var out lines
	c := newTestCPU(t, &out)

	var seen []any
	var kernel bool
	var after PSR
	c.Run(func() {
		c.RegisterInterrupt(SyscallDev, func(dev Device, arg any) {
			kernel = c.ReadPSR().Kernel()
			seen = append(seen, arg)
		})
		c.WritePSR(0)
		c.Syscall("hello")
		after = c.ReadPSR()
		c.Halt(0)
	})

	require.Equal(t, []any{"hello"}, seen)
	require.True(t, kernel)
	require.Equal(t, PSR(0), after)
}

func TestCPUUserPSRWriteHalts(t *testing.T) {
	var out lines
	c := newTestCPU(t, &out)

	code := c.Run(func() {
		c.WritePSR(0)
		c.WritePSR(PSRKernel)
	})
	require.Equal(t, 1, code)
	require.Equal(t, lines{"psr write in user mode"}, out)
}

func TestCPUPanic(t *testing.T) {
	defer SetPanicHandler(nil)

	var got PanicInfo
	SetPanicHandler(func(info PanicInfo) { got = info })

	var out lines
	c := newTestCPU(t, &out)
	code := c.Run(func() { panic("boom") })

	require.Equal(t, 2, code)
	require.Equal(t, "boom", got.Value)
	require.NotEmpty(t, got.Stack)
}

func TestCPUClockTicks(t *testing.T) {
	var out lines
	c := newTestCPU(t, &out)

	ticks := 0
	c.Run(func() {
		c.RegisterInterrupt(ClockDev, func(Device, any) { ticks++ })
		for ticks < 3 {
			c.WaitInt()
		}
		c.Halt(0)
	})
	require.GreaterOrEqual(t, ticks, 3)
	require.GreaterOrEqual(t, c.SysClock(), int64(3*TickMicros))
}

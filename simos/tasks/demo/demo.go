// Package demo holds the workloads run as the first user process.
package demo

import (
	"fmt"
	"sort"

	"simkern/simos/client/sys"

	"github.com/pkg/errors"
)

// Workload is the body of the first user process.
type Workload func(s *sys.Sys) int

var ErrUnknownWorkload = errors.New("unknown workload")

var workloads = map[string]Workload{
	"sleepers": Sleepers,
	"disk":     Disk,
	"pingpong": PingPong,
	"all":      All,
}

// Default is the workload run when none is named.
const Default = "all"

// Lookup returns the workload called name.
func Lookup(name string) (Workload, error) {
	w, ok := workloads[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownWorkload, "%q (have %v)", name, Names())
	}
	return w, nil
}

// Names lists the workloads in sorted order.
func Names() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All runs every other workload in turn and returns the first failure.
func All(s *sys.Sys) int {
	rc := 0
	for _, w := range []Workload{Sleepers, Disk, PingPong} {
		if r := w(s); r != 0 && rc == 0 {
			rc = r
		}
	}
	return rc
}

func printf(s *sys.Sys, format string, args ...any) {
	_, _ = s.TermWrite(0, []byte(fmt.Sprintf(format, args...)+"\n"))
}

// spawn starts a child at priority and returns false after reporting a
// failure on the terminal.
func spawn(s *sys.Sys, name string, priority int, fn func(string) int) bool {
	if _, err := s.Spawn(name, fn, "", stackSize, priority); err != nil {
		printf(s, "%s: spawn failed: %v", name, err)
		return false
	}
	return true
}

// waitAll collects n children and returns the first non-zero status.
func waitAll(s *sys.Sys, n int) int {
	rc := 0
	for i := 0; i < n; i++ {
		_, status, err := s.Wait()
		if err != nil {
			return 1
		}
		if status != 0 && rc == 0 {
			rc = status
		}
	}
	return rc
}

const (
	stackSize     = 4096
	childPriority = 3
)

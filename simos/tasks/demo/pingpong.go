package demo

import (
	"fmt"

	"simkern/simos/client/sys"
)

const pingRounds = 5

// PingPong bounces a message between two children over zero-slot
// mailboxes. Both bump a counter guarded by a semaphore.
func PingPong(s *sys.Sys) int {
	toPong, err1 := s.MboxCreate(0, 16)
	toPing, err2 := s.MboxCreate(0, 16)
	mutex, err3 := s.SemCreate(1)
	if err1 != nil || err2 != nil || err3 != nil {
		printf(s, "pingpong: setup failed")
		return 1
	}

	counter := 0
	bump := func() error {
		if err := s.SemP(mutex); err != nil {
			return err
		}
		counter++
		return s.SemV(mutex)
	}

	player := func(name string, in, out int, serve bool) func(string) int {
		return func(string) int {
			buf := make([]byte, 16)
			for i := 0; i < pingRounds; i++ {
				if serve {
					if err := s.MboxSend(out, []byte(fmt.Sprintf("%s %d", name, i))); err != nil {
						return 1
					}
				}
				n, err := s.MboxReceive(in, buf)
				if err != nil {
					return 1
				}
				printf(s, "%s got %q", name, buf[:n])
				if !serve {
					if err := s.MboxSend(out, []byte(fmt.Sprintf("%s %d", name, i))); err != nil {
						return 1
					}
				}
				if err := bump(); err != nil {
					return 1
				}
			}
			return 0
		}
	}

	started := 0
	if spawn(s, "ping", childPriority, player("ping", toPing, toPong, true)) {
		started++
	}
	if spawn(s, "pong", childPriority, player("pong", toPong, toPing, false)) {
		started++
	}
	rc := waitAll(s, started)

	_ = s.MboxRelease(toPong)
	_ = s.MboxRelease(toPing)
	_, _ = s.SemFree(mutex)

	printf(s, "pingpong: counter %d", counter)
	if counter != 2*pingRounds {
		return 1
	}
	return rc
}

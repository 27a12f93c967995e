package demo

import (
	"strconv"

	"simkern/simos/client/sys"
)

var sleepSeconds = []int{3, 1, 2}

// Sleepers starts one child per entry of sleepSeconds. Each sleeps and
// then posts its duration to a shared mailbox, so the mailbox holds the
// wake order.
func Sleepers(s *sys.Sys) int {
	printf(s, "sleepers: starting %v", sleepSeconds)
	box, err := s.MboxCreate(len(sleepSeconds), 8)
	if err != nil {
		printf(s, "sleepers: mailbox: %v", err)
		return 1
	}

	started := 0
	for _, secs := range sleepSeconds {
		secs := secs
		ok := spawn(s, "sleeper"+strconv.Itoa(secs), childPriority, func(string) int {
			start := s.GetTimeOfDay()
			if err := s.Sleep(secs); err != nil {
				printf(s, "sleeper %d: %v", secs, err)
				return 1
			}
			printf(s, "sleeper %d: woke after %d us", secs, s.GetTimeOfDay()-start)
			return errRc(s.MboxSend(box, []byte(strconv.Itoa(secs))))
		})
		if ok {
			started++
		}
	}
	rc := waitAll(s, started)

	var order []int
	buf := make([]byte, 8)
	for {
		n, err := s.MboxCondReceive(box, buf)
		if err != nil {
			break
		}
		v, _ := strconv.Atoi(string(buf[:n]))
		order = append(order, v)
	}
	_ = s.MboxRelease(box)

	printf(s, "sleepers: wake order %v", order)
	for i := 1; i < len(order); i++ {
		if order[i-1] > order[i] {
			printf(s, "sleepers: out of order")
			return 1
		}
	}
	if len(order) != len(sleepSeconds) {
		return 1
	}
	return rc
}

func errRc(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

package disk

import (
	"math"

	"simkern/hal"

	"github.com/google/btree"
)

type request struct {
	pid     int
	op      hal.Op
	track   int
	first   int
	sectors int
	buf     []byte
	status  int
}

func trackOrder(a, b *request) bool {
	if a.track != b.track {
		return a.track < b.track
	}
	return a.pid < b.pid
}

// elevator orders pending requests by (track, pid). It sweeps in one
// direction from the track last served and turns around when nothing is
// left ahead. Every request on the head track counts as ahead.
type elevator struct {
	tree *btree.BTreeG[*request]
	up   bool
	head int
}

func newElevator() *elevator {
	return &elevator{
		tree: btree.NewG(8, trackOrder),
		up:   true,
	}
}

func (e *elevator) add(r *request) { e.tree.ReplaceOrInsert(r) }

func (e *elevator) remove(r *request) bool {
	_, ok := e.tree.Delete(r)
	return ok
}

func (e *elevator) len() int { return e.tree.Len() }

func (e *elevator) next() (*request, bool) {
	if e.tree.Len() == 0 {
		return nil, false
	}
	r := e.scan(e.up)
	if r == nil {
		e.up = !e.up
		r = e.scan(e.up)
	}
	e.tree.Delete(r)
	e.head = r.track
	return r, true
}

func (e *elevator) scan(up bool) *request {
	var found *request
	visit := func(r *request) bool {
		found = r
		return false
	}
	if up {
		e.tree.AscendGreaterOrEqual(&request{track: e.head, pid: math.MinInt}, visit)
	} else {
		e.tree.DescendLessOrEqual(&request{track: e.head, pid: math.MaxInt}, visit)
	}
	return found
}

package ring

import "testing"

func TestQueuePopEmpty(t *testing.T) {
	var q Queue[int]

	_, ok := q.Pop()
	if ok {
		t.Fatalf("Pop() ok = true, want false")
	}
	if _, ok := q.Peek(); ok {
		t.Fatalf("Peek() ok = true, want false")
	}
}

func TestQueueFIFOAcrossGrowth(t *testing.T) {
	var q Queue[int]

	const total = 1000
	for i := 0; i < total; i++ {
		q.Push(i)
		if i%3 == 0 {
			// Interleave pops so the ring wraps before it grows.
			v, ok := q.Pop()
			if !ok || v != i/3 {
				t.Fatalf("Pop() = %d, %v, want %d, true", v, ok, i/3)
			}
		}
	}

	want := (total + 2) / 3
	for q.Len() > 0 {
		v, _ := q.Pop()
		if v != want {
			t.Fatalf("Pop() = %d, want %d", v, want)
		}
		want++
	}
	if want != total {
		t.Fatalf("drained up to %d, want %d", want, total)
	}
}

func TestQueueRemoveKeepsOrder(t *testing.T) {
	var q Queue[string]
	for _, s := range []string{"a", "b", "c", "b", "d"} {
		q.Push(s)
	}

	if !q.Remove(func(s string) bool { return s == "b" }) {
		t.Fatalf("Remove(b) = false, want true")
	}
	if q.Remove(func(s string) bool { return s == "x" }) {
		t.Fatalf("Remove(x) = true, want false")
	}

	got := q.Drain()
	want := []string{"a", "c", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Drain() = %v, want %v", got, want)
		}
	}
}

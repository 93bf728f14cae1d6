package eventsvc

import "testing"

func TestBoundedQueue_DropsOldestOnOverflow(t *testing.T) {
	q := newBoundedQueue(2)
	q.push([]byte("1"))
	q.push([]byte("2"))
	q.push([]byte("3"))

	first, ok := q.pop()
	if !ok || string(first) != "2" {
		t.Fatalf("expected oldest surviving item %q, got %q (ok=%v)", "2", first, ok)
	}
	second, ok := q.pop()
	if !ok || string(second) != "3" {
		t.Fatalf("expected %q, got %q (ok=%v)", "3", second, ok)
	}
	if q.droppedCount() != 1 {
		t.Fatalf("expected dropped count 1, got %d", q.droppedCount())
	}
}

func TestBoundedQueue_PopEmpty(t *testing.T) {
	q := newBoundedQueue(2)
	if _, ok := q.pop(); ok {
		t.Fatal("expected pop on empty queue to report ok=false")
	}
}

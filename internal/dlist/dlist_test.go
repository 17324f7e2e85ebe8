package dlist

import "testing"

func TestEnqueueFront_EvictsLRUWhenFull(t *testing.T) {
	l := New[int](2)
	l.EnqueueFront(1)
	l.EnqueueFront(2)
	_, evicted := l.EnqueueFront(3)
	if evicted == nil || *evicted != 1 {
		t.Fatalf("expected 1 evicted, got %v", evicted)
	}
	if l.Len() != 2 {
		t.Fatalf("expected len 2, got %d", l.Len())
	}
	if v, _ := l.DequeueFront(); v != 3 {
		t.Fatalf("expected front 3, got %d", v)
	}
}

func TestEnqueueFront_ZeroCapacityAlwaysEvicts(t *testing.T) {
	l := New[string](0)
	node, evicted := l.EnqueueFront("x")
	if node != nil {
		t.Fatalf("expected nil node for zero-capacity list")
	}
	if evicted == nil || *evicted != "x" {
		t.Fatalf("expected the inserted element reported as evicted, got %v", evicted)
	}
	if l.Len() != 0 {
		t.Fatalf("expected len 0, got %d", l.Len())
	}
}

func TestMoveToFront(t *testing.T) {
	l := New[int](4)
	na, _ := l.EnqueueFront(1)
	l.EnqueueFront(2)
	l.EnqueueFront(3)

	l.MoveToFront(na)
	if l.Front().Element() != 1 {
		t.Fatalf("expected front to be 1 after MoveToFront, got %d", l.Front().Element())
	}
	if l.Back().Element() != 2 {
		t.Fatalf("expected back to be 2, got %d", l.Back().Element())
	}
}

func TestRemove(t *testing.T) {
	l := New[int](4)
	na, _ := l.EnqueueFront(1)
	nb, _ := l.EnqueueFront(2)
	nc, _ := l.EnqueueFront(3)

	l.Remove(nb)
	if l.Len() != 2 {
		t.Fatalf("expected len 2, got %d", l.Len())
	}
	if nc.Next() != na {
		t.Fatalf("expected nc.Next()==na after removing nb")
	}
}

func TestDequeueBack(t *testing.T) {
	l := New[int](4)
	l.EnqueueFront(1)
	l.EnqueueFront(2)

	v, ok := l.DequeueBack()
	if !ok || v != 1 {
		t.Fatalf("expected back 1, got %d ok=%v", v, ok)
	}
	if l.Len() != 1 {
		t.Fatalf("expected len 1, got %d", l.Len())
	}
}

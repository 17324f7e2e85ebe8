package prioritylru

import "testing"

// Scenario 1 from spec.md §8: LRU eviction at full capacity, default priority.
func TestMap_LRUEvictionAtCapacity(t *testing.T) {
	m := New[string, int](3)
	m.Set("a", 1, 0)
	m.Set("b", 2, 0)
	m.Set("c", 3, 0)
	m.Get("a") // promote a
	ek, ev, evicted := m.Set("d", 4, 0)
	if !evicted || ek != "b" || ev != 2 {
		t.Fatalf("expected b=2 evicted, got k=%v v=%v ok=%v", ek, ev, evicted)
	}
	if _, ok := m.Get("b"); ok {
		t.Fatal("b must be gone")
	}
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatal("a must survive (promoted)")
	}
	if v, ok := m.Get("c"); !ok || v != 3 {
		t.Fatal("c must survive")
	}
	if v, ok := m.Get("d"); !ok || v != 4 {
		t.Fatal("d must be present")
	}
}

// Scenario 2 from spec.md §8: priority beats LRU.
func TestMap_PriorityBeatsLRU(t *testing.T) {
	m := New[string, int](2)
	m.Set("A", 1, 1)
	m.Set("B", 2, 2)
	_, _, evicted := m.Set("C", 3, 3)
	if !evicted {
		t.Fatal("expected an eviction when inserting C over capacity")
	}
	if _, ok := m.Get("A"); ok {
		t.Fatal("A (lowest priority) must be evicted")
	}
	if v, ok := m.Get("B"); !ok || v != 2 {
		t.Fatal("B must survive")
	}
	if v, ok := m.Get("C"); !ok || v != 3 {
		t.Fatal("C must survive")
	}
}

func TestMap_OverwriteDoesNotEvictOrChangeCount(t *testing.T) {
	m := New[string, int](1)
	m.Set("a", 1, 0)
	_, _, evicted := m.Set("a", 2, 5) // priority param ignored on overwrite
	if evicted {
		t.Fatal("overwrite must not report an eviction")
	}
	if m.Count() != 1 {
		t.Fatalf("expected count 1, got %d", m.Count())
	}
	if v, _ := m.Get("a"); v != 2 {
		t.Fatalf("expected updated value 2, got %d", v)
	}
}

func TestMap_ZeroCapacityRejectsEverything(t *testing.T) {
	m := New[string, int](0)
	k, v, evicted := m.Set("a", 1, 0)
	if !evicted || k != "a" || v != 1 {
		t.Fatalf("expected the incoming value reported as evicted, got k=%v v=%v ok=%v", k, v, evicted)
	}
	if m.Count() != 0 {
		t.Fatalf("expected count 0, got %d", m.Count())
	}
}

func TestMap_RemoveDropsEmptyBucket(t *testing.T) {
	m := New[string, int](4)
	m.Set("a", 1, 9)
	m.Remove("a")
	if len(m.buckets) != 0 {
		t.Fatalf("expected empty-bucket cleanup, got %d buckets", len(m.buckets))
	}
}

func TestMap_RemoveNonexistentIsNoop(t *testing.T) {
	m := New[string, int](4)
	if _, ok := m.Remove("missing"); ok {
		t.Fatal("expected no-op removal to report false")
	}
}

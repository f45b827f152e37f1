package status

import "testing"

func TestRegistryFIFOAndRemove(t *testing.T) {
	r := NewRegistry()
	var seen []string
	h1 := r.Add(func(cat, msg string) { seen = append(seen, "1:"+cat) })
	h2 := r.Add(func(cat, msg string) { seen = append(seen, "2:"+cat) })
	r.Emit("Info", "hello")
	if len(seen) != 2 || seen[0] != "1:Info" || seen[1] != "2:Info" {
		t.Fatalf("expected FIFO order, got %v", seen)
	}
	seen = nil
	r.Remove(h1)
	r.Emit("Warning", "again")
	if len(seen) != 1 || seen[0] != "2:Warning" {
		t.Fatalf("expected only handle 2 to remain, got %v", seen)
	}
	r.Remove(h2)
	seen = nil
	r.Emit("Info", "nobody home")
	if len(seen) != 0 {
		t.Fatalf("expected no callbacks after removing all, got %v", seen)
	}
	// Removing twice is a no-op, not an error.
	r.Remove(h1)
}

func TestRingDropsWhenFull(t *testing.T) {
	ring := NewRing(2)
	if !ring.TryPush("Underrun", "a") {
		t.Fatal("expected first push to succeed")
	}
	if !ring.TryPush("Underrun", "b") {
		t.Fatal("expected second push to succeed")
	}
	if ring.TryPush("Underrun", "c") {
		t.Fatal("expected third push to be dropped on a full ring of capacity 2")
	}
	cat, msg, ok := ring.TryPop()
	if !ok || cat != "Underrun" || msg != "a" {
		t.Fatalf("expected to pop the first event, got %q %q %v", cat, msg, ok)
	}
	if !ring.TryPush("Underrun", "c") {
		t.Fatal("expected push to succeed after freeing a slot")
	}
}

func TestRingEmptyPop(t *testing.T) {
	ring := NewRing(4)
	if _, _, ok := ring.TryPop(); ok {
		t.Fatal("expected pop on empty ring to report not-ok")
	}
}

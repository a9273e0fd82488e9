package pipeline

import "testing"

func TestEnqueueDeduplicates(t *testing.T) {
	runner := NewRunner(nil, nil, 2, 8)

	if !runner.Enqueue("p1") {
		t.Fatal("first enqueue must succeed")
	}
	if runner.Enqueue("p1") {
		t.Fatal("duplicate enqueue must be rejected while queued")
	}
	if !runner.Enqueue("p2") {
		t.Fatal("different patient must enqueue")
	}
}

func TestEnqueueFullQueue(t *testing.T) {
	runner := NewRunner(nil, nil, 1, 1)
	if !runner.Enqueue("p1") {
		t.Fatal("first enqueue must fill the queue")
	}
	if runner.Enqueue("overflow") {
		t.Fatal("full queue must reject new patients")
	}
	// The rejected patient is not left marked as queued.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.queued["overflow"] {
		t.Fatal("rejected patient must not stay marked queued")
	}
}

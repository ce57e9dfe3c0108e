package mqtt

import "testing"

func msg(topic string) bufferedMsg {
	return bufferedMsg{topic: topic, payload: []byte("x")}
}

func TestRingBufferPushDrain(t *testing.T) {
	r := newRingBuffer(4)
	if r.len() != 0 {
		t.Fatalf("new buffer should be empty, got %d", r.len())
	}

	r.push(msg("a"))
	r.push(msg("b"))
	r.push(msg("c"))
	if r.len() != 3 {
		t.Fatalf("expected 3 buffered, got %d", r.len())
	}

	drained := r.drainAll()
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained, got %d", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if drained[i].topic != want {
			t.Errorf("drained[%d].topic = %q, want %q", i, drained[i].topic, want)
		}
	}
	if r.len() != 0 {
		t.Errorf("buffer should be empty after drain, got %d", r.len())
	}
	if r.drainAll() != nil {
		t.Error("draining an empty buffer should return nil")
	}
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	r := newRingBuffer(3)
	for _, topic := range []string{"a", "b", "c", "d", "e"} {
		r.push(msg(topic))
	}

	if r.len() != 3 {
		t.Fatalf("expected capacity-bounded length 3, got %d", r.len())
	}
	drained := r.drainAll()
	for i, want := range []string{"c", "d", "e"} {
		if drained[i].topic != want {
			t.Errorf("drained[%d].topic = %q, want %q", i, drained[i].topic, want)
		}
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	r := newRingBuffer(2)
	r.push(msg("a"))
	r.push(msg("b"))
	r.push(msg("c"))
	r.drainAll()

	r.push(msg("d"))
	drained := r.drainAll()
	if len(drained) != 1 || drained[0].topic != "d" {
		t.Errorf("buffer not reusable after overflow+drain: %v", drained)
	}
}

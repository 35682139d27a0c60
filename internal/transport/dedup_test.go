package transport

import "testing"

func TestSeenSetCheckAndMark(t *testing.T) {
	s := newSeenSet(10)
	key := DedupKey(NewMsgID())

	if already := s.CheckAndMark(key); already {
		t.Fatalf("expected first mark to report not-already-seen")
	}
	if already := s.CheckAndMark(key); !already {
		t.Fatalf("expected second mark of the same key to report already-seen")
	}
}

func TestSeenSetEvictsOldestBeyondMax(t *testing.T) {
	s := newSeenSet(2)
	k1 := DedupKey(NewMsgID())
	k2 := DedupKey(NewMsgID())
	k3 := DedupKey(NewMsgID())

	s.CheckAndMark(k1)
	s.CheckAndMark(k2)
	s.CheckAndMark(k3) // evicts k1

	if already := s.CheckAndMark(k2); !already {
		t.Fatalf("expected k2 to still be tracked as seen")
	}
	if already := s.CheckAndMark(k1); already {
		t.Fatalf("expected k1 to have been evicted and treated as unseen")
	}
}

func TestNewSeenSetDefaultsMax(t *testing.T) {
	s := newSeenSet(0)
	if s.max != 4096 {
		t.Fatalf("expected default max of 4096, got %d", s.max)
	}
}

package ring

import (
	"testing"
	"time"
)

func TestHashToUnitDeterministic(t *testing.T) {
	a := HashToUnit("peer-1")
	b := HashToUnit("peer-1")
	if a != b {
		t.Fatalf("expected deterministic mapping, got %v vs %v", a, b)
	}
	if a < 0 || a >= 1 {
		t.Fatalf("expected value in [0,1), got %v", a)
	}
	if HashToUnit("peer-2") == a {
		t.Fatalf("expected distinct peers to map to distinct points (flaky only in pathological hash collision)")
	}
}

func TestUpsertGetRemove(t *testing.T) {
	r := New()
	r.Upsert(Range{PeerID: "p1", Offset: 0.1, Factor: 0.2, Timestamp: time.Now()})
	if r.Len() != 1 {
		t.Fatalf("expected len 1, got %d", r.Len())
	}
	got, ok := r.Get("p1")
	if !ok || got.Factor != 0.2 {
		t.Fatalf("expected to find p1 with factor 0.2, got %+v ok=%v", got, ok)
	}
	r.Upsert(Range{PeerID: "p1", Offset: 0.1, Factor: 0.5, Timestamp: time.Now()})
	got, _ = r.Get("p1")
	if got.Factor != 0.5 {
		t.Fatalf("expected upsert to overwrite factor, got %v", got.Factor)
	}
	r.Remove("p1")
	if _, ok := r.Get("p1"); ok {
		t.Fatalf("expected p1 removed")
	}
}

func TestIsMature(t *testing.T) {
	now := time.Now()
	old := Range{PeerID: "old", Timestamp: now.Add(-time.Hour)}
	fresh := Range{PeerID: "fresh", Timestamp: now}
	if !IsMature(old, now, time.Minute) {
		t.Fatalf("expected old range to be mature")
	}
	if IsMature(fresh, now, time.Minute) {
		t.Fatalf("expected fresh range to be immature")
	}
}

func TestCoverSetPrefersMature(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(Range{PeerID: "a", Offset: 0.0, Factor: 0.34, Timestamp: now.Add(-time.Hour)})
	r.Upsert(Range{PeerID: "b", Offset: 0.34, Factor: 0.33, Timestamp: now}) // immature
	r.Upsert(Range{PeerID: "c", Offset: 0.67, Factor: 0.33, Timestamp: now.Add(-time.Hour)})

	set := r.CoverSet(0.6, "a", now, time.Minute)
	if len(set) == 0 || set[0] != "a" {
		t.Fatalf("expected cover set to start with start peer, got %v", set)
	}
	for _, p := range set {
		if p == "b" {
			t.Fatalf("expected immature peer b to be skipped while mature peers exist, got %v", set)
		}
	}
}

func TestCoverSetFallsBackWhenNoneMature(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(Range{PeerID: "a", Offset: 0.0, Factor: 0.5, Timestamp: now})
	r.Upsert(Range{PeerID: "b", Offset: 0.5, Factor: 0.5, Timestamp: now})

	set := r.CoverSet(0.9, "a", now, time.Hour)
	if len(set) != 2 {
		t.Fatalf("expected fallback to cover both immature peers, got %v", set)
	}
}

func TestSampleDeterministicAndCoversDistinctPeers(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(Range{PeerID: "a", Offset: 0.0, Factor: 0.34, Timestamp: now})
	r.Upsert(Range{PeerID: "b", Offset: 0.34, Factor: 0.33, Timestamp: now})
	r.Upsert(Range{PeerID: "c", Offset: 0.67, Factor: 0.33, Timestamp: now})

	s1 := r.Sample(0.1, 2)
	s2 := r.Sample(0.1, 2)
	if len(s1) != len(s2) {
		t.Fatalf("expected deterministic sample, got %v vs %v", s1, s2)
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			t.Fatalf("expected deterministic sample, got %v vs %v", s1, s2)
		}
	}
}

func TestSampleEmptyRing(t *testing.T) {
	r := New()
	if got := r.Sample(0.5, 3); got != nil {
		t.Fatalf("expected nil sample on empty ring, got %v", got)
	}
}

func TestTotalParticipation(t *testing.T) {
	r := New()
	r.Upsert(Range{PeerID: "a", Factor: 0.3})
	r.Upsert(Range{PeerID: "b", Factor: 0.4})
	if got := r.TotalParticipation(); got != 0.7 {
		t.Fatalf("expected total participation 0.7, got %v", got)
	}
}

package routing

import (
	"testing"
	"time"
)

func TestLearnPicksLowestRTTAsPrimary(t *testing.T) {
	tbl := New()
	now := time.Now()
	tbl.Learn("target", "slow", 100*time.Millisecond, now)
	tbl.Learn("target", "fast", 10*time.Millisecond, now)

	hop, ok := tbl.Primary("target")
	if !ok || hop != "fast" {
		t.Fatalf("expected primary 'fast', got %q ok=%v", hop, ok)
	}
	hops := tbl.Hops("target")
	if len(hops) != 2 || hops[0].Peer != "fast" || hops[1].Peer != "slow" {
		t.Fatalf("expected hops sorted by RTT, got %+v", hops)
	}
}

func TestLearnUpdatesExistingHop(t *testing.T) {
	tbl := New()
	now := time.Now()
	tbl.Learn("target", "a", 50*time.Millisecond, now)
	tbl.Learn("target", "a", 5*time.Millisecond, now.Add(time.Second))

	hops := tbl.Hops("target")
	if len(hops) != 1 {
		t.Fatalf("expected a single retained hop, got %d", len(hops))
	}
	if hops[0].RTT != 5*time.Millisecond {
		t.Fatalf("expected updated RTT, got %v", hops[0].RTT)
	}
}

func TestReachable(t *testing.T) {
	tbl := New()
	if tbl.Reachable("x") {
		t.Fatalf("expected unreachable before any Learn")
	}
	tbl.Learn("x", "hop", time.Millisecond, time.Now())
	if !tbl.Reachable("x") {
		t.Fatalf("expected reachable after Learn")
	}
}

func TestEvictNeighborRemovesAllRoutesViaIt(t *testing.T) {
	tbl := New()
	now := time.Now()
	tbl.Learn("t1", "hop", time.Millisecond, now)
	tbl.Learn("t2", "hop", time.Millisecond, now)
	tbl.Learn("t2", "other", 2*time.Millisecond, now)

	tbl.EvictNeighbor("hop")

	if tbl.Reachable("t1") {
		t.Fatalf("expected t1 unreachable after evicting its only hop")
	}
	hops := tbl.Hops("t2")
	if len(hops) != 1 || hops[0].Peer != "other" {
		t.Fatalf("expected t2 to retain only 'other', got %+v", hops)
	}
}

func TestExpireStaleDropsOldRoutes(t *testing.T) {
	tbl := New()
	old := time.Now().Add(-time.Hour)
	tbl.Learn("t1", "hop", time.Millisecond, old)

	tbl.ExpireStale(time.Now(), time.Minute)
	if tbl.Reachable("t1") {
		t.Fatalf("expected stale route to be expired")
	}
}

func TestHopCountDirectVersusRelayed(t *testing.T) {
	tbl := New()
	now := time.Now()
	tbl.Learn("self-reachable", "self-reachable", time.Millisecond, now)
	tbl.Learn("relayed", "hop", time.Millisecond, now)

	if n, ok := tbl.HopCount("self-reachable"); !ok || n != 1 {
		t.Fatalf("expected hop count 1 for direct route, got %d ok=%v", n, ok)
	}
	if n, ok := tbl.HopCount("relayed"); !ok || n != 2 {
		t.Fatalf("expected hop count 2 for relayed route, got %d ok=%v", n, ok)
	}
	if _, ok := tbl.HopCount("unknown"); ok {
		t.Fatalf("expected unknown target to report not-ok")
	}
}

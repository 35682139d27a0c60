package dlog

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/keystore"
)

// tmpLogOptions builds a ready-to-use Options backed by a fresh
// keystore identity, following the teacher's tmp*Config-style helper
// constructor pattern.
func tmpLogOptions(t *testing.T) (Options, *keystore.Identity) {
	t.Helper()
	id, err := keystore.CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	return Options{
		Signer:           id,
		IdentityProvider: keystore.SingleVerifierProvider{},
	}, id
}

func TestAppendAdvancesHeadsAndClock(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	l := New("t1", opt)

	e1, err := l.Append(context.Background(), []byte("a"), AppendOptions{})
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	e2, err := l.Append(context.Background(), []byte("b"), AppendOptions{})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}

	heads := l.Heads()
	if len(heads) != 1 || !heads[0].Hash.Equals(e2.Hash) {
		t.Fatalf("expected single head == e2, got %+v", heads)
	}
	if len(e2.Next) != 1 || !e2.Next[0].Equals(e1.Hash) {
		t.Fatalf("expected e2 to reference e1 as parent, got %+v", e2.Next)
	}
	if l.Clock() != e2.Clock.Time {
		t.Fatalf("expected log clock to track latest entry, got %d vs %d", l.Clock(), e2.Clock.Time)
	}
	if e2.Gid != e1.Gid {
		t.Fatalf("expected continuing chain to share gid, got %q vs %q", e1.Gid, e2.Gid)
	}
}

func TestAppendRejectsAfterClose(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	l := New("t1", opt)
	l.Close()

	if _, err := l.Append(context.Background(), []byte("a"), AppendOptions{}); err == nil {
		t.Fatalf("expected append on closed log to fail")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	l := New("t1", opt)
	e, err := l.Append(context.Background(), []byte("a"), AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	other := New("t1", opt)
	res, err := other.Join(context.Background(), []*entry.Entry{e})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(res.Added) != 1 {
		t.Fatalf("expected 1 added, got %d", len(res.Added))
	}

	res2, err := other.Join(context.Background(), []*entry.Entry{e})
	if err != nil {
		t.Fatalf("join again: %v", err)
	}
	if len(res2.Added) != 0 {
		t.Fatalf("expected idempotent re-join to add nothing, got %d", len(res2.Added))
	}
	if other.Len() != 1 {
		t.Fatalf("expected exactly one integrated entry, got %d", other.Len())
	}
}

func TestJoinDefersOnMissingParent(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	origin := New("t1", opt)
	e1, _ := origin.Append(context.Background(), []byte("a"), AppendOptions{})
	e2, _ := origin.Append(context.Background(), []byte("b"), AppendOptions{})

	joiner := New("t1", opt)
	res, err := joiner.Join(context.Background(), []*entry.Entry{e2})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(res.Deferred) != 1 {
		t.Fatalf("expected e2 deferred pending its parent, got added=%d deferred=%d", len(res.Added), len(res.Deferred))
	}
	if joiner.Len() != 0 {
		t.Fatalf("expected nothing integrated yet, got %d", joiner.Len())
	}

	res, err = joiner.Join(context.Background(), []*entry.Entry{e1})
	if err != nil {
		t.Fatalf("join parent: %v", err)
	}
	if len(res.Added) != 1 {
		t.Fatalf("expected parent added directly, got %d", len(res.Added))
	}
	if joiner.Len() != 2 {
		t.Fatalf("expected deferred child resolved once parent arrived, got len=%d", joiner.Len())
	}
	heads := joiner.Heads()
	if len(heads) != 1 || !heads[0].Hash.Equals(e2.Hash) {
		t.Fatalf("expected head to converge to e2, got %+v", heads)
	}
}

func TestJoinOrderIndependenceConverges(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	origin := New("t1", opt)
	e1, _ := origin.Append(context.Background(), []byte("a"), AppendOptions{})
	e2, _ := origin.Append(context.Background(), []byte("b"), AppendOptions{})
	e3, _ := origin.Append(context.Background(), []byte("c"), AppendOptions{})

	forward := New("t1", opt)
	forward.Join(context.Background(), []*entry.Entry{e1, e2, e3})

	backward := New("t1", opt)
	backward.Join(context.Background(), []*entry.Entry{e3, e2, e1})

	if forward.Len() != backward.Len() {
		t.Fatalf("expected convergent state regardless of join order, got %d vs %d", forward.Len(), backward.Len())
	}
	fh, bh := forward.Heads(), backward.Heads()
	if len(fh) != 1 || len(bh) != 1 || !fh[0].Hash.Equals(bh[0].Hash) {
		t.Fatalf("expected same head regardless of join order, got %+v vs %+v", fh, bh)
	}
}

func TestTraverseNewestFirst(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	l := New("t1", opt)
	e1, _ := l.Append(context.Background(), []byte("a"), AppendOptions{})
	e2, _ := l.Append(context.Background(), []byte("b"), AppendOptions{})
	e3, _ := l.Append(context.Background(), []byte("c"), AppendOptions{})

	out := l.Traverse([]cid.Cid{e3.Hash}, 3, nil)
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if !out[0].Hash.Equals(e3.Hash) || !out[1].Hash.Equals(e2.Hash) || !out[2].Hash.Equals(e1.Hash) {
		t.Fatalf("expected newest-first order e3,e2,e1, got %+v", out)
	}
}

func TestRemovePromotesUnreferencedParentToHead(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	l := New("t1", opt)
	e1, _ := l.Append(context.Background(), []byte("a"), AppendOptions{})
	e2, _ := l.Append(context.Background(), []byte("b"), AppendOptions{})

	if !l.Remove(e2.Hash) {
		t.Fatalf("expected Remove(e2) to report removal")
	}
	heads := l.Heads()
	if len(heads) != 1 || !heads[0].Hash.Equals(e1.Hash) {
		t.Fatalf("expected e1 promoted to head after removing e2, got %+v", heads)
	}
}

func TestCutKeepsNewestEntries(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	l := New("t1", opt)
	for i := 0; i < 5; i++ {
		if _, err := l.Append(context.Background(), []byte{byte(i)}, AppendOptions{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := l.Cut(2); err != nil {
		t.Fatalf("cut: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries retained, got %d", l.Len())
	}
}

func TestExpirePendingDropsStaleDeferrals(t *testing.T) {
	opt, _ := tmpLogOptions(t)
	opt.PendingTimeout = time.Millisecond
	origin := New("t1", opt)
	origin.Append(context.Background(), []byte("a"), AppendOptions{})
	e2, _ := origin.Append(context.Background(), []byte("b"), AppendOptions{})

	joiner := New("t1", opt)
	joiner.Join(context.Background(), []*entry.Entry{e2})

	n := joiner.ExpirePending(time.Now().Add(time.Hour))
	if n != 1 {
		t.Fatalf("expected 1 expired pending entry, got %d", n)
	}
}

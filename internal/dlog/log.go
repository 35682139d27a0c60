// Package dlog implements the partially-ordered, content-addressed
// entry log (§4.2): a DAG of signed entries with head/tail indexing,
// append, causal join, traversal and trimming.
package dlog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
)

// CanAppendFunc gates whether a given identity may append to the log,
// §6 "canReplicate(pubkey, role) -> bool" generalized to append
// permission.
type CanAppendFunc func(pubkey []byte) bool

// Options configures a Log at construction time.
type Options struct {
	Signer           entry.Signer
	IdentityProvider entry.IdentityProvider
	BlockStore       BlockStore
	Encryptor        entry.Encryptor
	CanAppend        CanAppendFunc
	MaxLen           int // 0 = unbounded; recycle policy cuts to this length
	RefWidth         int // max power-of-two references per append; 0 => default 8
	PendingTimeout   time.Duration
	Logger           *logrus.Logger
}

// Log is the DAG index for one topic/gid-space.
type Log struct {
	mu sync.RWMutex

	id  string
	opt Options
	log *logrus.Entry

	entries map[string]*entry.Entry
	heads   map[string]*entry.Entry
	clock   uint64

	pending map[string]*pendingEntry

	closed bool
}

type pendingEntry struct {
	e        *entry.Entry
	missing  map[string]struct{}
	deadline time.Time
}

// New constructs a Log identified by id (the topic string, §6).
func New(id string, opt Options) *Log {
	if opt.RefWidth <= 0 {
		opt.RefWidth = 8
	}
	if opt.PendingTimeout <= 0 {
		opt.PendingTimeout = 30 * time.Second
	}
	lg := opt.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Log{
		id:      id,
		opt:     opt,
		log:     lg.WithField("log", id),
		entries: make(map[string]*entry.Entry),
		heads:   make(map[string]*entry.Entry),
		pending: make(map[string]*pendingEntry),
	}
}

// ID returns the log's topic identifier.
func (l *Log) ID() string { return l.id }

func keyOf(c cid.Cid) string { return c.KeyString() }

// Len returns the number of integrated entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Heads returns a snapshot of the current heads (GLOSSARY: Head), in
// sort order.
func (l *Log) Heads() []*entry.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedEntries(l.heads)
}

// Get returns the entry with the given hash, if present locally.
func (l *Log) Get(h cid.Cid) (*entry.Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[keyOf(h)]
	return e, ok
}

// Clock returns the log's current logical time (max over all entries).
func (l *Log) Clock() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.clock
}

func sortedEntries(m map[string]*entry.Entry) []*entry.Entry {
	out := make([]*entry.Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return entry.Compare(out[i], out[j]) < 0 })
	return out
}

// AppendOptions configures a single Append call.
type AppendOptions struct {
	Gid         string // continuing chain; empty => derive a fresh root gid
	MinReplicas uint32
	Recipients  [][]byte // X25519 recipients if Options.Encryptor is set
}

// Append extends the log with a new entry authored locally (§4.2).
func (l *Log) Append(ctx context.Context, payload []byte, opts AppendOptions) (*entry.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, logerr.ErrClosed
	}
	if l.opt.Signer == nil {
		return nil, fmt.Errorf("dlog: append requires a Signer")
	}

	headClocks := make([]entry.Clock, 0, len(l.heads))
	headCids := make([]cid.Cid, 0, len(l.heads))
	for _, h := range sortedEntries(l.heads) {
		headClocks = append(headClocks, h.Clock)
		headCids = append(headCids, h.Hash)
	}

	clk := entry.Tick(l.opt.Signer.PublicKey(), headClocks)
	if clk.Time <= l.clock {
		clk.Time = l.clock + 1
	}

	gid := opts.Gid
	if gid == "" {
		gid = maxParentGid(l.heads, headCids)
	}
	if gid == "" {
		gid = deriveRootGid(l.opt.Signer.PublicKey(), clk.Time)
	}

	refs := l.selectReferences(headCids)

	var encr entry.Encryptor
	if len(opts.Recipients) > 0 {
		encr = l.opt.Encryptor
	}

	e, err := entry.Create(payload, clk, l.opt.Signer, entry.CreateOptions{
		Next:        headCids,
		Refs:        refs,
		Gid:         gid,
		MinReplicas: opts.MinReplicas,
		Encryptor:   encr,
		Recipients:  opts.Recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("dlog: append: %w", err)
	}

	l.integrateLocked(e)
	l.clock = clk.Time

	if l.opt.MaxLen > 0 && len(l.entries) > l.opt.MaxLen {
		l.cutLocked(l.opt.MaxLen)
	}
	l.log.WithFields(logrus.Fields{"hash": e.Hash.String(), "gid": gid}).Debug("appended entry")
	return e, nil
}

// maxParentGid picks the lexicographically maximum gid among the
// given heads (§3 "the gid of a child is the maximum gid of its
// parents under lexicographic order").
func maxParentGid(heads map[string]*entry.Entry, order []cid.Cid) string {
	var max string
	for _, c := range order {
		h, ok := heads[keyOf(c)]
		if !ok {
			continue
		}
		if h.Gid > max {
			max = h.Gid
		}
	}
	return max
}

// integrateLocked inserts e into the indices and recomputes heads.
// Caller holds l.mu.
func (l *Log) integrateLocked(e *entry.Entry) {
	l.entries[keyOf(e.Hash)] = e
	for _, n := range e.Next {
		delete(l.heads, keyOf(n))
	}
	l.heads[keyOf(e.Hash)] = e
}

// selectReferences implements the power-of-two distance schedule
// (§4.2): the k-th reference is the entry at position
// min(2^k-1, all_entries-1) in a traversal from heads.
func (l *Log) selectReferences(from []cid.Cid) []cid.Cid {
	if len(l.entries) == 0 {
		return nil
	}
	order := l.traverseLocked(from, len(l.entries), nil)
	if len(order) == 0 {
		return nil
	}
	var refs []cid.Cid
	for k := 0; k < l.opt.RefWidth; k++ {
		pos := (1 << uint(k)) - 1
		if pos > len(order)-1 {
			pos = len(order) - 1
		}
		h := order[pos].Hash
		if len(refs) > 0 && refs[len(refs)-1].Equals(h) {
			break
		}
		refs = append(refs, h)
	}
	return refs
}

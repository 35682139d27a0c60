package sharedlog

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
	"github.com/orbas1/sharedlog/internal/role"
	"github.com/orbas1/sharedlog/internal/wire"
)

// encodeExchangeHeads serializes a batch of fully-serialized entries
// (§6 "ExchangeHeads: [entries] where each entry is fully serialized").
func encodeExchangeHeads(entries []*entry.Entry) []byte {
	w := wire.NewWriter(256 * len(entries))
	w.Varint(uint64(len(entries)))
	for _, e := range entries {
		w.Blob(entry.Encode(e))
	}
	return w.Bytes()
}

func decodeExchangeHeads(b []byte) ([]*entry.Entry, error) {
	r := wire.NewReader(b)
	n, err := r.Varint()
	if err != nil {
		return nil, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
	}
	out := make([]*entry.Entry, 0, n)
	for i := uint64(0); i < n; i++ {
		raw, err := r.Blob()
		if err != nil {
			return nil, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
		}
		e, err := entry.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// encodeHashList serializes RequestIPrune/ResponseIPrune's `[hash_32]*`
// payload (§6).
func encodeHashList(hashes []cid.Cid) []byte {
	w := wire.NewWriter(40 * len(hashes))
	w.Varint(uint64(len(hashes)))
	for _, h := range hashes {
		w.Blob(h.Bytes())
	}
	return w.Bytes()
}

func decodeHashList(b []byte) ([]cid.Cid, error) {
	r := wire.NewReader(b)
	n, err := r.Varint()
	if err != nil {
		return nil, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
	}
	out := make([]cid.Cid, 0, n)
	for i := uint64(0); i < n; i++ {
		raw, err := r.Blob()
		if err != nil {
			return nil, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
		}
		c, err := cid.Cast(raw)
		if err != nil {
			return nil, fmt.Errorf("sharedlog: %w: bad cid: %v", logerr.ErrUndecodable, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// roleMessage is the §6 "Role message: variant_u8 ‖ factor_f64? ‖
// timestamp_u64" wire shape.
type roleMessage struct {
	Kind      role.Kind
	Factor    float64
	Timestamp uint64
}

func encodeRoleMessage(m roleMessage) []byte {
	w := wire.NewWriter(24)
	w.U8(uint8(m.Kind))
	w.F64(m.Factor)
	w.U64(m.Timestamp)
	return w.Bytes()
}

func decodeRoleMessage(b []byte) (roleMessage, error) {
	var m roleMessage
	r := wire.NewReader(b)
	k, err := r.U8()
	if err != nil {
		return m, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
	}
	f, err := r.F64()
	if err != nil {
		return m, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
	}
	ts, err := r.U64()
	if err != nil {
		return m, fmt.Errorf("sharedlog: %w: %v", logerr.ErrUndecodable, err)
	}
	m.Kind = role.Kind(k)
	m.Factor = f
	m.Timestamp = ts
	return m, nil
}

package entry

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/orbas1/sharedlog/internal/logerr"
	"github.com/orbas1/sharedlog/internal/wire"
)

// Encode serializes the full wire form of an entry, §6:
// id_meta‖clock‖payload‖next_refs‖ref_hashes‖hash(trailing)‖signatures.
func Encode(e *Entry) []byte {
	w := wire.NewWriter(320)
	writeCanonical(w, e)
	w.Blob(e.Hash.Bytes())
	w.Varint(uint64(len(e.Signatures)))
	for _, s := range e.Signatures {
		w.Blob(s.Key)
		w.Blob(s.Sig)
	}
	return w.Bytes()
}

// Decode parses the wire form produced by Encode. It does not verify
// signatures; callers must call Verify afterward.
func Decode(b []byte) (*Entry, error) {
	r := wire.NewReader(b)

	encFlags, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	gid, err := r.String()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	minReplicas, err := r.Varint()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	clockTime, err := r.U64()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	clockID, err := r.Blob()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	identity, err := r.Blob()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	payload, err := r.Blob()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	next, err := readCidSlice(r)
	if err != nil {
		return nil, err
	}
	refs, err := readCidSlice(r)
	if err != nil {
		return nil, err
	}
	recipients, err := r.BlobSlice()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	hashBytes, err := r.Blob()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	h, err := cid.Cast(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("entry: %w: bad hash: %v", logerr.ErrUndecodable, err)
	}
	nsig, err := r.Varint()
	if err != nil {
		return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
	}
	sigs := make([]Signature, 0, nsig)
	for i := uint64(0); i < nsig; i++ {
		key, err := r.Blob()
		if err != nil {
			return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
		}
		sig, err := r.Blob()
		if err != nil {
			return nil, fmt.Errorf("entry: %w: %v", logerr.ErrUndecodable, err)
		}
		sigs = append(sigs, Signature{Key: key, Sig: sig})
	}

	return &Entry{
		Hash:          h,
		Next:          next,
		Refs:          refs,
		Clock:         Clock{ID: clockID, Time: clockTime},
		Gid:           gid,
		MinReplicas:   uint32(minReplicas),
		Encrypted:     EncryptedFields(encFlags),
		Identity:      identity,
		Payload:       payload,
		RecipientKeys: recipients,
		Signatures:    sigs,
	}, nil
}

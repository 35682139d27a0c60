// Package entry implements the content-addressed, signed, optionally
// encrypted DAG node that is the atomic unit of replication (§4.1).
package entry

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/orbas1/sharedlog/internal/logerr"
	"github.com/orbas1/sharedlog/internal/wire"
)

// hashCodec is the CID codec tag used for entry hashes. 0x55 is the
// "raw binary" multicodec, matching how the pack's ipfs/go-cid +
// multiformats/go-multihash pairing addresses opaque payloads.
const hashCodec = 0x55

// Signature pairs the signing identity's public key with the
// signature bytes it produced over the entry's canonical form.
type Signature struct {
	Key []byte
	Sig []byte
}

// Entry is one immutable signed record (GLOSSARY: Entry).
type Entry struct {
	Hash cid.Cid

	Next []cid.Cid // parent hashes ("next")
	Refs []cid.Cid // secondary ancestors for traversal amortization

	Clock Clock
	Gid   string

	MinReplicas uint32

	// Payload may be encrypted under recipient X25519 keys; Encrypted
	// records whether it was sealed so Verify/decode know what to
	// expect. Identity and Clock are never sealed: Identity must stay
	// plaintext for CanAppend's admission check (§6 "canReplicate"),
	// and Clock must stay plaintext for local causal ordering, so
	// neither can be a recipient-only secret without breaking a
	// function every peer (not just a recipient) must run.
	Encrypted     EncryptedFields
	Identity      []byte // creator public key
	Payload       []byte // maybe encrypted
	RecipientKeys [][]byte

	Signatures []Signature
}

// EncryptedFields is a bitmask of which logical fields are ciphertext.
// Only the payload is ever sealed; see the Entry field comments above.
type EncryptedFields uint8

const (
	EncPayload EncryptedFields = 1 << iota
)

func (e EncryptedFields) Has(f EncryptedFields) bool { return e&f != 0 }

// Signer is the minimal collaborator contract this package needs from
// the keystore (§6 Keystore collaborator).
type Signer interface {
	PublicKey() []byte
	Sign(data []byte) ([]byte, error)
}

// Verifier checks a signature produced by the holder of pubkey.
type Verifier interface {
	Verify(pubkey, sig, data []byte) bool
}

// IdentityProvider resolves a creator's public key to a Verifier
// capable of checking its signatures; in the simplest case this is a
// single Verifier shared by all keys (e.g. ed25519.Verify).
type IdentityProvider interface {
	VerifierFor(pubkey []byte) Verifier
}

// CreateOptions configures Create.
type CreateOptions struct {
	Next        []cid.Cid
	Refs        []cid.Cid
	Gid         string
	MinReplicas uint32
	Encryptor   Encryptor // nil => no encryption
	Recipients  [][]byte  // X25519 recipient public keys, if Encryptor != nil
}

// Encryptor seals plaintext for a set of recipients; implemented by
// the keystore collaborator.
type Encryptor interface {
	SealFor(recipients [][]byte, plaintext []byte) ([]byte, error)
}

// Create signs and content-addresses a new entry. The clock is left
// to the caller (the Log computes it from local/head times); Create
// only stamps identity, signs, and hashes.
func Create(payload []byte, clock Clock, signer Signer, opts CreateOptions) (*Entry, error) {
	e := &Entry{
		Next:          opts.Next,
		Refs:          opts.Refs,
		Clock:         clock,
		Gid:           opts.Gid,
		MinReplicas:   opts.MinReplicas,
		Identity:      signer.PublicKey(),
		Payload:       payload,
		RecipientKeys: opts.Recipients,
	}

	if opts.Encryptor != nil && len(opts.Recipients) > 0 {
		sealedPayload, err := opts.Encryptor.SealFor(opts.Recipients, e.Payload)
		if err != nil {
			return nil, fmt.Errorf("entry: seal payload: %w", err)
		}
		e.Payload = sealedPayload
		e.Encrypted |= EncPayload
	}

	canon := ToCanonicalBytes(e)
	sig, err := signer.Sign(canon)
	if err != nil {
		return nil, fmt.Errorf("entry: sign: %w", err)
	}
	e.Signatures = []Signature{{Key: signer.PublicKey(), Sig: sig}}

	h, err := hashBytes(canon)
	if err != nil {
		return nil, err
	}
	e.Hash = h
	return e, nil
}

// hashBytes computes the sha2-256 multihash of b wrapped as a CIDv1,
// matching §3's "hash equals the multihash of the serialization".
func hashBytes(b []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("entry: hash: %w", err)
	}
	return cid.NewCidV1(hashCodec, mh), nil
}

// Verify checks structural well-formedness and every signature's
// validity under the claimed identity, then recomputes the hash of the
// canonical bytes and returns ErrHashMismatch when it differs from the
// Entry's Hash field.
func Verify(e *Entry, ip IdentityProvider) error {
	if len(e.Signatures) == 0 {
		return fmt.Errorf("entry: %w: no signatures", logerr.ErrSignatureInvalid)
	}
	canon := ToCanonicalBytes(e)
	for _, sig := range e.Signatures {
		v := ip.VerifierFor(sig.Key)
		if v == nil || !v.Verify(sig.Key, sig.Sig, canon) {
			return logerr.ErrSignatureInvalid
		}
	}
	wantHash, err := hashBytes(canon)
	if err != nil {
		return err
	}
	if !wantHash.Equals(e.Hash) {
		return logerr.ErrHashMismatch
	}
	return nil
}

// Compare orders two entries by Lamport clock, tiebreaking on clock
// identity bytes (§4.2 default sort order).
func Compare(a, b *Entry) int {
	return a.Clock.Compare(b.Clock)
}

// ToCanonicalBytes serializes e for signing: every field except Hash
// and Signatures, in a fixed field order.
func ToCanonicalBytes(e *Entry) []byte {
	w := wire.NewWriter(256)
	writeCanonical(w, e)
	return w.Bytes()
}

// writeCanonical writes the hash/signature-excluded field sequence
// onto an existing writer so Encode can share it with the trailing
// hash and signature fields without re-copying bytes through a blob.
func writeCanonical(w *wire.Writer, e *Entry) {
	w.U8(uint8(e.Encrypted))
	w.String(e.Gid)
	w.Varint(uint64(e.MinReplicas))
	w.U64(e.Clock.Time)
	w.Blob(e.Clock.ID)
	w.Blob(e.Identity)
	w.Blob(e.Payload)
	writeCidSlice(w, e.Next)
	writeCidSlice(w, e.Refs)
	w.BlobSlice(e.RecipientKeys)
}

func writeCidSlice(w *wire.Writer, cids []cid.Cid) {
	w.Varint(uint64(len(cids)))
	for _, c := range cids {
		w.Blob(c.Bytes())
	}
}

func readCidSlice(r *wire.Reader) ([]cid.Cid, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	out := make([]cid.Cid, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := r.Blob()
		if err != nil {
			return nil, err
		}
		c, err := cid.Cast(b)
		if err != nil {
			return nil, fmt.Errorf("entry: %w: bad cid: %v", logerr.ErrUndecodable, err)
		}
		out = append(out, c)
	}
	return out, nil
}

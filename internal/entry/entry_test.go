package entry

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"testing"
)

type edSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newEdSigner(t *testing.T) *edSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &edSigner{pub: pub, priv: priv}
}

func (s *edSigner) PublicKey() []byte { return []byte(s.pub) }
func (s *edSigner) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, data), nil
}

type edVerifier struct{}

func (edVerifier) Verify(pubkey, sig, data []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey), data, sig)
}

type singleProvider struct{}

func (singleProvider) VerifierFor(pubkey []byte) Verifier { return edVerifier{} }

func TestCreateVerifyRoundTrip(t *testing.T) {
	signer := newEdSigner(t)
	clock := Clock{ID: signer.PublicKey(), Time: 1}

	e, err := Create([]byte("payload"), clock, signer, CreateOptions{Gid: "g1", MinReplicas: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !e.Hash.Defined() {
		t.Fatalf("expected a populated hash")
	}
	if err := Verify(e, singleProvider{}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	signer := newEdSigner(t)
	clock := Clock{ID: signer.PublicKey(), Time: 1}

	e, err := Create([]byte("payload"), clock, signer, CreateOptions{Gid: "g1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.Payload = []byte("tampered")
	if err := Verify(e, singleProvider{}); err == nil {
		t.Fatalf("expected verify to fail on tampered payload")
	}
}

func TestHashStableAcrossSecondSignature(t *testing.T) {
	signer := newEdSigner(t)
	clock := Clock{ID: signer.PublicKey(), Time: 1}

	e, err := Create([]byte("payload"), clock, signer, CreateOptions{Gid: "g1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := e.Hash

	second := newEdSigner(t)
	sig, err := second.Sign(ToCanonicalBytes(e))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	e.Signatures = append(e.Signatures, Signature{Key: second.PublicKey(), Sig: sig})
	h, err := hashBytes(ToCanonicalBytes(e))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Equals(before) {
		t.Fatalf("expected hash to stay stable after a relay adds a second signature, so existing Next/Refs references stay valid")
	}
}

func TestClockCompare(t *testing.T) {
	a := Clock{ID: []byte("a"), Time: 1}
	b := Clock{ID: []byte("b"), Time: 2}
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a before b by time")
	}
	tie1 := Clock{ID: []byte{1}, Time: 5}
	tie2 := Clock{ID: []byte{2}, Time: 5}
	if tie1.Compare(tie2) >= 0 {
		t.Fatalf("expected tie1 before tie2 by id")
	}
}

func TestTickAdvancesPastParents(t *testing.T) {
	parents := []Clock{{ID: []byte("x"), Time: 3}, {ID: []byte("y"), Time: 7}}
	got := Tick([]byte("z"), parents)
	if got.Time != 8 {
		t.Fatalf("expected tick to be 8, got %d", got.Time)
	}
}

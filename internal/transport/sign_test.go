package transport

import (
	"testing"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/keystore"
)

// bareTransport builds a Transport with only the fields signHeader
// and verifyHeader touch, avoiding the need for a live libp2p host.
// signer is passed as the entry.Signer interface so a nil *Identity
// isn't boxed into a non-nil interface value.
func bareTransport(t *testing.T, signer entry.Signer, verify bool) *Transport {
	t.Helper()
	tr := &Transport{signer: signer}
	if verify {
		tr.idProv = keystore.SingleVerifierProvider{}
	}
	return tr
}

func TestSignHeaderStampsSignature(t *testing.T) {
	id, err := keystore.CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	tr := bareTransport(t, id, false)

	h := Header{ID: NewMsgID(), Origin: "peer-a"}
	tr.signHeader(&h, []byte("body"))

	if len(h.Signatures) != 1 {
		t.Fatalf("expected exactly one signature, got %d", len(h.Signatures))
	}
	if string(h.Signatures[0].Key) != string(id.PublicKey()) {
		t.Fatalf("expected signature keyed to the signer's public key")
	}
}

func TestSignHeaderNoOpWithoutSigner(t *testing.T) {
	tr := bareTransport(t, nil, false)
	h := Header{ID: NewMsgID()}
	tr.signHeader(&h, []byte("body"))
	if len(h.Signatures) != 0 {
		t.Fatalf("expected no signature without a configured signer, got %+v", h.Signatures)
	}
}

func TestVerifyHeaderAcceptsValidSignature(t *testing.T) {
	id, err := keystore.CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	signer := bareTransport(t, id, false)
	verifier := bareTransport(t, nil, true)

	h := Header{ID: NewMsgID(), Origin: "peer-a"}
	body := []byte("body")
	signer.signHeader(&h, body)

	if err := verifier.verifyHeader(h, body); err != nil {
		t.Fatalf("expected signed header to verify, got %v", err)
	}
}

func TestVerifyHeaderRejectsTamperedBody(t *testing.T) {
	id, err := keystore.CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	signer := bareTransport(t, id, false)
	verifier := bareTransport(t, nil, true)

	h := Header{ID: NewMsgID(), Origin: "peer-a"}
	signer.signHeader(&h, []byte("body"))

	if err := verifier.verifyHeader(h, []byte("tampered")); err == nil {
		t.Fatalf("expected verification to fail on tampered body")
	}
}

func TestVerifyHeaderRejectsMissingSignature(t *testing.T) {
	verifier := bareTransport(t, nil, true)
	h := Header{ID: NewMsgID(), Origin: "peer-a"}
	if err := verifier.verifyHeader(h, []byte("body")); err == nil {
		t.Fatalf("expected verification to fail when no signature is present")
	}
}

func TestVerifyHeaderNoOpWithoutIdentityProvider(t *testing.T) {
	verifier := bareTransport(t, nil, false)
	h := Header{ID: NewMsgID()}
	if err := verifier.verifyHeader(h, []byte("body")); err != nil {
		t.Fatalf("expected no-op verification without an identity provider, got %v", err)
	}
}

func TestVerifyHeaderIgnoresToListChanges(t *testing.T) {
	id, err := keystore.CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	signer := bareTransport(t, id, false)
	verifier := bareTransport(t, nil, true)

	h := Header{ID: NewMsgID(), Origin: "peer-a", To: []string{"peer-b"}}
	body := []byte("body")
	signer.signHeader(&h, body)

	relayed := h
	relayed.To = []string{"peer-c", "peer-d"}
	if err := verifier.verifyHeader(relayed, body); err != nil {
		t.Fatalf("expected a relay narrowing/changing To to not invalidate the signature, got %v", err)
	}
}

func TestDataMessageBodyAndAckBodyCoverTamperableFields(t *testing.T) {
	m1 := DataMessage{Mode: ModeAcknowledged, Redundancy: 2, PayloadKind: PayloadRole, TTL: 4, Payload: []byte("x")}
	m2 := m1
	m2.Payload = []byte("y")
	if string(dataMessageBody(m1)) == string(dataMessageBody(m2)) {
		t.Fatalf("expected dataMessageBody to change when payload changes")
	}

	a1 := Ack{InReplyTo: NewMsgID(), SeenCounter: 1, SendTime: 10}
	a2 := a1
	a2.SendTime = 11
	if string(ackBody(a1)) == string(ackBody(a2)) {
		t.Fatalf("expected ackBody to change when send time changes")
	}
	a3 := a1
	a3.SeenCounter = 2
	if string(ackBody(a1)) != string(ackBody(a3)) {
		t.Fatalf("expected ackBody to ignore the seen counter, which relays bump")
	}
}

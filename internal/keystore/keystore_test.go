package keystore

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	data := []byte("hello entry")
	sig, err := id.Sign(data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	v := Verifier{}
	if !v.Verify(id.PublicKey(), sig, data) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	id1, _ := CreateKey()
	id2, _ := CreateKey()
	data := []byte("hello")
	sig, _ := id1.Sign(data)

	v := Verifier{}
	if v.Verify(id2.PublicKey(), sig, data) {
		t.Fatalf("expected verification under the wrong key to fail")
	}
}

func TestVerifyRejectsShortKey(t *testing.T) {
	v := Verifier{}
	if v.Verify([]byte{1, 2, 3}, []byte("sig"), []byte("data")) {
		t.Fatalf("expected verification with a malformed key to fail")
	}
}

func TestSingleVerifierProviderReturnsSameVerifier(t *testing.T) {
	p := SingleVerifierProvider{}
	id, _ := CreateKey()
	data := []byte("x")
	sig, _ := id.Sign(data)
	if !p.VerifierFor(id.PublicKey()).Verify(id.PublicKey(), sig, data) {
		t.Fatalf("expected provider's verifier to validate the signature")
	}
}

func TestSealForOpenAsRoundTrip(t *testing.T) {
	sender, err := CreateKey()
	if err != nil {
		t.Fatalf("create sender: %v", err)
	}
	recipient, err := CreateKey()
	if err != nil {
		t.Fatalf("create recipient: %v", err)
	}

	enc := &BoxEncryptor{Sender: sender}
	plaintext := []byte("payload bytes")
	sealed, err := enc.SealFor([][]byte{recipient.BoxPub[:]}, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	opened, err := OpenAs(sealed, recipient.boxPriv, sender.BoxPub)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("expected round-tripped plaintext, got %q", opened)
	}
}

func TestSealForMultipleRecipients(t *testing.T) {
	sender, _ := CreateKey()
	r1, _ := CreateKey()
	r2, _ := CreateKey()

	enc := &BoxEncryptor{Sender: sender}
	plaintext := []byte("shared secret")
	sealed, err := enc.SealFor([][]byte{r1.BoxPub[:], r2.BoxPub[:]}, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	for _, r := range []*Identity{r1, r2} {
		opened, err := OpenAs(sealed, r.boxPriv, sender.BoxPub)
		if err != nil {
			t.Fatalf("open for recipient: %v", err)
		}
		if string(opened) != string(plaintext) {
			t.Fatalf("expected plaintext for every recipient, got %q", opened)
		}
	}
}

func TestOpenAsRejectsNonRecipient(t *testing.T) {
	sender, _ := CreateKey()
	r1, _ := CreateKey()
	stranger, _ := CreateKey()

	enc := &BoxEncryptor{Sender: sender}
	sealed, err := enc.SealFor([][]byte{r1.BoxPub[:]}, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := OpenAs(sealed, stranger.boxPriv, sender.BoxPub); err == nil {
		t.Fatalf("expected a non-recipient to fail to open the envelope")
	}
}

func TestDerivedBoxPubMatchesGeneratedPub(t *testing.T) {
	id, err := CreateKey()
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	derived, err := DerivedBoxPub(id.boxPriv)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if *derived != *id.BoxPub {
		t.Fatalf("expected derived pub to match generated pub")
	}
}

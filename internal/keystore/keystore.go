// Package keystore implements the §6 Keystore collaborator contract:
// Ed25519 signing/verification and X25519 box encryption, in-memory.
// Production deployments are expected to swap this for a
// hardware-backed or persisted implementation; this package exists so
// the rest of the module has something real to run against and test
// with.
package keystore

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/orbas1/sharedlog/internal/entry"
	"github.com/orbas1/sharedlog/internal/logerr"
)

// KeyType enumerates the supported key algorithms (§6).
type KeyType int

const (
	Ed25519 KeyType = iota
	X25519
)

// Identity bundles the Ed25519 signing keypair and the X25519 box
// keypair derived for it, one per logical identity ("create_key").
type Identity struct {
	SignPub  ed25519.PublicKey
	signPriv ed25519.PrivateKey
	BoxPub   *[32]byte
	boxPriv  *[32]byte
}

// CreateKey generates a fresh identity, mirroring the keystore
// collaborator's create_key(id, type, group?) contract — the id/group
// labeling is left to the caller, this returns the key material.
func CreateKey() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate ed25519: %w", err)
	}
	boxPub, boxPriv, err := box.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate x25519: %w", err)
	}
	return &Identity{SignPub: pub, signPriv: priv, BoxPub: boxPub, boxPriv: boxPriv}, nil
}

// PublicKey returns the Ed25519 public key bytes used to identify the
// creator of signed entries/messages.
func (id *Identity) PublicKey() []byte { return []byte(id.SignPub) }

// Sign implements entry.Signer and message-header signing.
func (id *Identity) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(id.signPriv, data), nil
}

// Verifier is a free-standing Ed25519 verifier: pubkey bytes travel
// alongside every signature so a single Verifier instance suffices
// for all identities (entry.IdentityProvider wraps this).
type Verifier struct{}

// Verify checks sig over data under the given Ed25519 public key.
func (Verifier) Verify(pubkey, sig, data []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), data, sig)
}

// SingleVerifierProvider implements entry.IdentityProvider by
// returning the same Ed25519 Verifier regardless of requested key —
// correct because Verifier.Verify takes the key as an argument.
type SingleVerifierProvider struct{ V Verifier }

func (p SingleVerifierProvider) VerifierFor(pubkey []byte) entry.Verifier {
	return p.V
}

// BoxEncryptor implements entry.Encryptor using X25519+XSalsa20Poly1305
// sealed boxes, one per recipient, framed together so a multi-recipient
// entry can be opened by any holder of a matching private key.
type BoxEncryptor struct {
	Sender *Identity
}

// sealedEnvelope is the wire shape produced by SealFor: an ephemeral
// nonce followed by one ciphertext per recipient, recipient order
// matching the caller-supplied recipient list.
type sealedEnvelope struct {
	nonce       [24]byte
	ciphertexts [][]byte
}

// SealFor encrypts plaintext once per recipient under the sender's
// box keypair, per §4.1's "payload...may be separately encrypted with
// a recipient X25519 public key".
func (e *BoxEncryptor) SealFor(recipients [][]byte, plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := cryptorand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("keystore: nonce: %w", err)
	}
	env := sealedEnvelope{nonce: nonce}
	for _, r := range recipients {
		if len(r) != 32 {
			return nil, fmt.Errorf("keystore: recipient key must be 32 bytes")
		}
		var rpk [32]byte
		copy(rpk[:], r)
		ct := box.Seal(nil, plaintext, &nonce, &rpk, e.Sender.boxPriv)
		env.ciphertexts = append(env.ciphertexts, ct)
	}
	return encodeEnvelope(env), nil
}

// OpenAs decrypts an envelope produced by SealFor using the
// recipient's box private key and the sender's box public key.
func OpenAs(envelope []byte, recipientPriv *[32]byte, senderPub *[32]byte) ([]byte, error) {
	env, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	for _, ct := range env.ciphertexts {
		if out, ok := box.Open(nil, ct, &env.nonce, senderPub, recipientPriv); ok {
			return out, nil
		}
	}
	return nil, fmt.Errorf("keystore: %w: no matching recipient", logerr.ErrUndecodable)
}

// DerivedBoxPub recomputes the X25519 public key from a private key,
// used when only the scalar is on hand (e.g. restored from storage).
func DerivedBoxPub(priv *[32]byte) (*[32]byte, error) {
	raw, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	var pub [32]byte
	copy(pub[:], raw)
	return &pub, nil
}

package keystore

import "github.com/orbas1/sharedlog/internal/wire"

func encodeEnvelope(env sealedEnvelope) []byte {
	w := wire.NewWriter(64 + 64*len(env.ciphertexts))
	w.Blob(env.nonce[:])
	w.BlobSlice(env.ciphertexts)
	return w.Bytes()
}

func decodeEnvelope(b []byte) (sealedEnvelope, error) {
	r := wire.NewReader(b)
	nonceB, err := r.Blob()
	if err != nil {
		return sealedEnvelope{}, err
	}
	var env sealedEnvelope
	copy(env.nonce[:], nonceB)
	cts, err := r.BlobSlice()
	if err != nil {
		return sealedEnvelope{}, err
	}
	env.ciphertexts = cts
	return env, nil
}

package noise

import "fmt"

// CipherState wraps a single AEAD key with the Noise nonce counter
// discipline: the counter increments on every successful operation and the
// state refuses to wrap silently once exhausted.
type CipherState struct {
	key [KeySize]byte
	n   uint64
}

// NewCipherState builds a CipherState around a derived key, counter reset
// to zero as required after Split.
func NewCipherState(key [KeySize]byte) *CipherState {
	return &CipherState{key: key}
}

// EncryptWithAd seals plaintext under the current nonce and additional
// data, then advances the nonce counter.
func (cs *CipherState) EncryptWithAd(ad, plaintext []byte) ([]byte, error) {
	if cs.n == ^uint64(0) {
		return nil, fmt.Errorf("noise: cipherstate nonce exhausted")
	}
	out, err := aeadEncrypt(&cs.key, cs.n, ad, plaintext)
	if err != nil {
		return nil, err
	}
	cs.n++
	return out, nil
}

// DecryptWithAd opens ciphertext under the current nonce and additional
// data, then advances the nonce counter. The nonce does not advance on
// failure.
func (cs *CipherState) DecryptWithAd(ad, ciphertext []byte) ([]byte, error) {
	if cs.n == ^uint64(0) {
		return nil, fmt.Errorf("noise: cipherstate nonce exhausted")
	}
	out, err := aeadDecrypt(&cs.key, cs.n, ad, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt failed: %w", err)
	}
	cs.n++
	return out, nil
}

// EncryptMessage seals an arbitrarily large plaintext as one or more
// MaxChunkSize chunks, each sealed independently with empty additional
// data, matching the Sv2 transport framing's chunk boundaries.
func (cs *CipherState) EncryptMessage(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return cs.EncryptWithAd(nil, plaintext)
	}
	out := make([]byte, 0, len(plaintext)+TagLen*((len(plaintext)/MaxChunkSize)+1))
	for off := 0; off < len(plaintext); off += MaxChunkSize {
		end := off + MaxChunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		chunk, err := cs.EncryptWithAd(nil, plaintext[off:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// DecryptMessage reverses EncryptMessage: ciphertext is a concatenation of
// MaxChunkSize+TagLen chunks (the final chunk may be shorter), each opened
// independently in order.
func (cs *CipherState) DecryptMessage(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("noise: empty ciphertext")
	}
	const maxSealed = MaxChunkSize + TagLen
	out := make([]byte, 0, len(ciphertext))
	for off := 0; off < len(ciphertext); off += maxSealed {
		end := off + maxSealed
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		if end-off < TagLen {
			return nil, fmt.Errorf("noise: truncated ciphertext chunk")
		}
		plain, err := cs.DecryptWithAd(nil, ciphertext[off:end])
		if err != nil {
			return nil, err
		}
		out = append(out, plain...)
	}
	return out, nil
}

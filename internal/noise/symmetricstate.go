package noise

import "crypto/sha256"

// SymmetricState tracks the running chaining key and transcript hash during
// a handshake, per the Noise Protocol Framework's Symmetric State object.
type SymmetricState struct {
	ck [KeySize]byte
	h  [32]byte
	cs *CipherState
}

// NewSymmetricState seeds ck/h from the protocol name, as
// Noise_NX_EllSwiftXonly_ChaChaPoly_SHA256 requires.
func NewSymmetricState() *SymmetricState {
	return &SymmetricState{
		ck: protocolNameHash,
		h:  protocolNameDoubleHash,
	}
}

// MixHash folds data into the transcript hash: h = SHA256(h || data).
func (s *SymmetricState) MixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

// MixKey derives a fresh chaining key and temporary AEAD key from input
// keying material, installing the AEAD key as the current CipherState.
func (s *SymmetricState) MixKey(ikm []byte) error {
	ck, tempK, err := hkdf2(&s.ck, ikm)
	if err != nil {
		return err
	}
	s.ck = ck
	s.cs = NewCipherState(tempK)
	return nil
}

// EncryptAndHash seals plaintext under the current CipherState (using the
// transcript hash as additional data when one is installed, or returns the
// plaintext unsealed otherwise) and mixes the resulting ciphertext into the
// transcript.
func (s *SymmetricState) EncryptAndHash(plaintext []byte) ([]byte, error) {
	var ciphertext []byte
	if s.cs == nil {
		ciphertext = plaintext
	} else {
		ct, err := s.cs.EncryptWithAd(s.h[:], plaintext)
		if err != nil {
			return nil, err
		}
		ciphertext = ct
	}
	s.MixHash(ciphertext)
	return ciphertext, nil
}

// DecryptAndHash reverses EncryptAndHash.
func (s *SymmetricState) DecryptAndHash(ciphertext []byte) ([]byte, error) {
	var plaintext []byte
	if s.cs == nil {
		plaintext = ciphertext
	} else {
		pt, err := s.cs.DecryptWithAd(s.h[:], ciphertext)
		if err != nil {
			return nil, err
		}
		plaintext = pt
	}
	s.MixHash(ciphertext)
	return plaintext, nil
}

// Split derives the two transport-phase CipherStates from the final
// chaining key. The handshake initiator and responder assign cs1/cs2 to
// send/receive in opposite order; see Sv2Cipher.
func (s *SymmetricState) Split() (cs1, cs2 *CipherState, err error) {
	k1, k2, err := hkdf2(&s.ck, nil)
	if err != nil {
		return nil, nil, err
	}
	return NewCipherState(k1), NewCipherState(k2), nil
}

// Hash returns the current transcript hash.
func (s *SymmetricState) Hash() [32]byte { return s.h }

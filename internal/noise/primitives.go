// Package noise implements the Noise NX variant used by Stratum V2 to
// encrypt the template-distribution transport: ChaCha20-Poly1305 AEAD framing
// keyed via a two-message handshake over secp256k1 ElligatorSwift-encoded
// public keys, with the responder's static key authenticated by a
// BIP-340 Schnorr certificate signed by an out-of-band authority key.
package noise

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the width of a CipherState AEAD key and a SymmetricState
	// chaining key, in bytes.
	KeySize = 32
	// EllSwiftKeySize is the width of an ElligatorSwift-encoded secp256k1
	// public key, in bytes.
	EllSwiftKeySize = 64
	// TagLen is the Poly1305 authentication tag length, in bytes.
	TagLen = chacha20poly1305.Overhead
	// MaxChunkSize is the largest plaintext chunk a single AEAD seal may
	// cover; larger payloads are split across multiple chunks.
	MaxChunkSize = 65535
	// SignatureNoiseMessageSize is the wire size of a certificate's
	// signed fields: version(2) + valid_from(4) + valid_to(4) + sig(64).
	SignatureNoiseMessageSize = 2 + 4 + 4 + 64
)

const protocolName = "Noise_NX_EllSwiftXonly_ChaChaPoly_SHA256"

// protocolNameHash and protocolNameDoubleHash seed SymmetricState's chaining
// key and hash respectively: ck0 = SHA256(protocol_name), h0 = SHA256(ck0).
var (
	protocolNameHash       = sha256.Sum256([]byte(protocolName))
	protocolNameDoubleHash = sha256.Sum256(protocolNameHash[:])
)

// nonceBytes formats a CipherState counter as the 12-byte AEAD nonce the
// Noise spec requires: four zero bytes followed by the little-endian
// counter.
func nonceBytes(n uint64) [12]byte {
	var out [12]byte
	binary.LittleEndian.PutUint64(out[4:], n)
	return out
}

// aeadEncrypt seals msg (appending a 16-byte tag) under key/nonce/ad using
// the IETF ChaCha20-Poly1305 construction.
func aeadEncrypt(key *[KeySize]byte, n uint64, ad, msg []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("noise: init aead: %w", err)
	}
	nonce := nonceBytes(n)
	return aead.Seal(msg[:0:len(msg)], nonce[:], msg, ad), nil
}

// aeadDecrypt opens ciphertext (msg, including its trailing tag) under
// key/nonce/ad. A failure returns a non-nil error and must be treated as
// fatal to the session: nonces never advance on failure, so retrying would
// violate the Noise nonce discipline.
func aeadDecrypt(key *[KeySize]byte, n uint64, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("noise: init aead: %w", err)
	}
	nonce := nonceBytes(n)
	return aead.Open(nil, nonce[:], ciphertext, ad)
}

// hkdf2 derives two 32-byte outputs from chainingKey (as salt) and ikm (as
// secret), matching Noise's HKDF-SHA256 two-output construction.
func hkdf2(chainingKey *[KeySize]byte, ikm []byte) (out0, out1 [KeySize]byte, err error) {
	r := hkdf.New(sha256.New, ikm, chainingKey[:], nil)
	if _, err = r.Read(out0[:]); err != nil {
		return out0, out1, fmt.Errorf("noise: hkdf out0: %w", err)
	}
	if _, err = r.Read(out1[:]); err != nil {
		return out0, out1, fmt.Errorf("noise: hkdf out1: %w", err)
	}
	return out0, out1, nil
}

// certificateMessageHash computes the SHA-256 digest that a
// SignatureNoiseMessage's signature covers: the little-endian-serialized
// (version, valid_from, valid_to) prefix concatenated with the x-only
// static public key being certified.
func certificateMessageHash(version uint16, validFrom, validTo uint32, xonlyStatic []byte) [32]byte {
	var buf [2 + 4 + 4]byte
	binary.LittleEndian.PutUint16(buf[0:2], version)
	binary.LittleEndian.PutUint32(buf[2:6], validFrom)
	binary.LittleEndian.PutUint32(buf[6:10], validTo)
	h := sha256.New()
	h.Write(buf[:])
	h.Write(xonlyStatic)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// verifySchnorr checks a BIP-340 signature over msgHash against an x-only
// secp256k1 public key.
func verifySchnorr(pubKeyXOnly []byte, msgHash [32]byte, sig []byte) bool {
	pk, err := schnorr.ParsePubKey(pubKeyXOnly)
	if err != nil {
		return false
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return s.Verify(msgHash[:], pk)
}

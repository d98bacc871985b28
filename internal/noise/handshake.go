package noise

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
)

// Certificate is the authority-signed attestation a responder presents for
// its static key: Sv2SignatureNoiseMessage in the upstream handshake
// message catalogue.
type Certificate struct {
	Version   uint16
	ValidFrom uint32
	ValidTo   uint32
	Signature [64]byte
}

// MarshalBinary serializes the certificate's wire fields.
func (c Certificate) MarshalBinary() []byte {
	out := make([]byte, SignatureNoiseMessageSize)
	binary.LittleEndian.PutUint16(out[0:2], c.Version)
	binary.LittleEndian.PutUint32(out[2:6], c.ValidFrom)
	binary.LittleEndian.PutUint32(out[6:10], c.ValidTo)
	copy(out[10:74], c.Signature[:])
	return out
}

// ParseCertificate parses a raw SignatureNoiseMessage.
func ParseCertificate(b []byte) (Certificate, error) {
	if len(b) != SignatureNoiseMessageSize {
		return Certificate{}, fmt.Errorf("noise: certificate has wrong length %d", len(b))
	}
	var c Certificate
	c.Version = binary.LittleEndian.Uint16(b[0:2])
	c.ValidFrom = binary.LittleEndian.Uint32(b[2:6])
	c.ValidTo = binary.LittleEndian.Uint32(b[6:10])
	copy(c.Signature[:], b[10:74])
	return c, nil
}

// Verify checks the certificate's signature over the responder's x-only
// static key using the given authority public key.
func (c Certificate) Verify(authorityXOnly []byte, staticXOnly []byte) bool {
	hash := certificateMessageHash(c.Version, c.ValidFrom, c.ValidTo, staticXOnly)
	return verifySchnorr(authorityXOnly, hash, c.Signature[:])
}

// ValidAt reports whether now falls within [ValidFrom, ValidTo], rejecting
// a certificate that isn't yet valid or has expired.
func (c Certificate) ValidAt(now time.Time) bool {
	t := uint32(now.Unix())
	return t >= c.ValidFrom && t <= c.ValidTo
}

// CertificateSigningHash computes the digest an authority key must sign
// (offline, at certificate-issuance time) to produce Certificate.Signature
// for the given static key and validity window.
func CertificateSigningHash(version uint16, validFrom, validTo uint32, staticXOnly []byte) [32]byte {
	return certificateMessageHash(version, validFrom, validTo, staticXOnly)
}

// Role distinguishes the two parties of the NX pattern.
type Role int

const (
	// Initiator is the role played by a mining device / job declarator
	// connecting to a template provider.
	Initiator Role = iota
	// Responder is the role played by the template provider.
	Responder
)

// HandshakeState drives the two-message Noise_NX handshake: -> e, then
// <- e, ee, s, es (plus, out of band, the responder's certificate).
type HandshakeState struct {
	role Role
	sym  *SymmetricState

	ePriv []byte
	eX    *big.Int

	sPriv []byte // responder only: static private key
	sX    *big.Int

	remoteEphemeralX *big.Int
	remoteStaticX    *big.Int

	cert Certificate // responder only

	// clock is consulted against the remote certificate's validity
	// window in ReadMessage2. Defaults to time.Now; tests inject a fixed
	// clock via SetClock to exercise expiry without sleeping.
	clock func() time.Time
}

// NewInitiatorHandshake starts a handshake as the connecting party.
func NewInitiatorHandshake() (*HandshakeState, error) {
	ePriv, eX, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	hs := &HandshakeState{role: Initiator, sym: NewSymmetricState(), ePriv: ePriv, eX: eX, clock: time.Now}
	return hs, nil
}

// SetClock overrides the clock ReadMessage2 checks the remote
// certificate's validity window against. Intended for tests.
func (hs *HandshakeState) SetClock(clock func() time.Time) {
	hs.clock = clock
}

// NewResponderHandshake starts a handshake as the listening template
// provider, using its long-lived static key and the certificate attesting
// to it.
func NewResponderHandshake(staticPriv []byte, staticX *big.Int, cert Certificate) (*HandshakeState, error) {
	ePriv, eX, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	hs := &HandshakeState{
		role:  Responder,
		sym:   NewSymmetricState(),
		ePriv: ePriv,
		eX:    eX,
		sPriv: staticPriv,
		sX:    staticX,
		cert:  cert,
	}
	return hs, nil
}

func generateKeyPair() (priv []byte, x *big.Int, err error) {
	priv = make([]byte, 32)
	if _, err = rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("noise: generate key: %w", err)
	}
	x, err = XOnlyPubKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return priv, x, nil
}

// WriteMessage1 builds the initiator's first handshake message: its
// ElligatorSwift-encoded ephemeral public key.
func (hs *HandshakeState) WriteMessage1() ([]byte, error) {
	if hs.role != Initiator {
		return nil, fmt.Errorf("noise: WriteMessage1 called by responder")
	}
	enc, err := EllSwiftEncode(hs.eX)
	if err != nil {
		return nil, err
	}
	hs.sym.MixHash(enc[:])
	return enc[:], nil
}

// ReadMessage1 consumes the initiator's first handshake message.
func (hs *HandshakeState) ReadMessage1(msg []byte) error {
	if hs.role != Responder {
		return fmt.Errorf("noise: ReadMessage1 called by initiator")
	}
	if len(msg) != EllSwiftKeySize {
		return fmt.Errorf("noise: handshake message 1 has wrong length %d", len(msg))
	}
	var enc [EllSwiftKeySize]byte
	copy(enc[:], msg)
	hs.remoteEphemeralX = EllSwiftDecodeX(enc)
	hs.sym.MixHash(enc[:])
	return nil
}

// WriteMessage2 builds the responder's second handshake message: its
// ephemeral key, its encrypted-and-authenticated static key, and the
// encrypted certificate attesting to that static key. It performs the ee
// and es DH mixes along the way.
func (hs *HandshakeState) WriteMessage2() ([]byte, error) {
	if hs.role != Responder {
		return nil, fmt.Errorf("noise: WriteMessage2 called by initiator")
	}
	eEnc, err := EllSwiftEncode(hs.eX)
	if err != nil {
		return nil, err
	}
	hs.sym.MixHash(eEnc[:])

	// The remote ephemeral x-coordinate was already captured in
	// ReadMessage1.
	ee, err := xOnlyECDHWithX(hs.ePriv, hs.remoteEphemeralX)
	if err != nil {
		return nil, fmt.Errorf("noise: ee dh: %w", err)
	}
	if err := hs.sym.MixKey(ee[:]); err != nil {
		return nil, err
	}

	sEnc, err := EllSwiftEncode(hs.sX)
	if err != nil {
		return nil, err
	}
	sCipher, err := hs.sym.EncryptAndHash(sEnc[:])
	if err != nil {
		return nil, err
	}

	es, err := xOnlyECDHWithX(hs.sPriv, hs.remoteEphemeralX)
	if err != nil {
		return nil, fmt.Errorf("noise: es dh: %w", err)
	}
	if err := hs.sym.MixKey(es[:]); err != nil {
		return nil, err
	}

	certCipher, err := hs.sym.EncryptAndHash(hs.cert.MarshalBinary())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, EllSwiftKeySize+len(sCipher)+len(certCipher))
	out = append(out, eEnc[:]...)
	out = append(out, sCipher...)
	out = append(out, certCipher...)
	return out, nil
}

// ReadMessage2 consumes the responder's second handshake message,
// performing the matching ee and es DH mixes and verifying the embedded
// certificate against the given authority key.
func (hs *HandshakeState) ReadMessage2(msg []byte, authorityXOnly []byte) error {
	if hs.role != Initiator {
		return fmt.Errorf("noise: ReadMessage2 called by responder")
	}
	if len(msg) < EllSwiftKeySize {
		return fmt.Errorf("noise: handshake message 2 too short")
	}
	var remoteEphemeralEnc [EllSwiftKeySize]byte
	copy(remoteEphemeralEnc[:], msg[0:EllSwiftKeySize])
	hs.remoteEphemeralX = EllSwiftDecodeX(remoteEphemeralEnc)
	hs.sym.MixHash(remoteEphemeralEnc[:])

	ee, err := XOnlyECDH(hs.ePriv, remoteEphemeralEnc)
	if err != nil {
		return fmt.Errorf("noise: ee dh: %w", err)
	}
	if err := hs.sym.MixKey(ee[:]); err != nil {
		return err
	}

	rest := msg[EllSwiftKeySize:]
	sCipherLen := EllSwiftKeySize + TagLen
	if len(rest) < sCipherLen {
		return fmt.Errorf("noise: handshake message 2 missing static key field")
	}
	sPlain, err := hs.sym.DecryptAndHash(rest[:sCipherLen])
	if err != nil {
		return fmt.Errorf("noise: decrypt remote static key: %w", err)
	}
	var remoteStaticEnc [EllSwiftKeySize]byte
	copy(remoteStaticEnc[:], sPlain)
	hs.remoteStaticX = EllSwiftDecodeX(remoteStaticEnc)

	es, err := XOnlyECDH(hs.ePriv, remoteStaticEnc)
	if err != nil {
		return fmt.Errorf("noise: es dh: %w", err)
	}
	if err := hs.sym.MixKey(es[:]); err != nil {
		return err
	}

	certCipher := rest[sCipherLen:]
	certPlain, err := hs.sym.DecryptAndHash(certCipher)
	if err != nil {
		return fmt.Errorf("noise: decrypt certificate: %w", err)
	}
	cert, err := ParseCertificate(certPlain)
	if err != nil {
		return err
	}
	staticXOnlyBytes := fe32(hs.remoteStaticX)
	if !cert.Verify(authorityXOnly, staticXOnlyBytes) {
		return fmt.Errorf("noise: certificate signature verification failed")
	}
	if !cert.ValidAt(hs.clock()) {
		return fmt.Errorf("noise: certificate outside its validity window (valid_from=%d valid_to=%d)", cert.ValidFrom, cert.ValidTo)
	}
	hs.cert = cert
	return nil
}

// Finish completes the handshake, returning the two transport CipherStates
// in send/receive order for this party's role.
func (hs *HandshakeState) Finish() (send, recv *CipherState, err error) {
	cs1, cs2, err := hs.sym.Split()
	if err != nil {
		return nil, nil, err
	}
	if hs.role == Initiator {
		return cs1, cs2, nil
	}
	return cs2, cs1, nil
}

// RemoteStaticX returns the peer's x-only static public key, once known.
func (hs *HandshakeState) RemoteStaticX() *big.Int { return hs.remoteStaticX }

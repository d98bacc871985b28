package noise

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

func signedCertificate(t *testing.T, authorityPriv *btcec.PrivateKey, staticXOnly []byte) Certificate {
	t.Helper()
	return signedCertificateWindow(t, authorityPriv, staticXOnly, 0, 0xffffffff)
}

func signedCertificateWindow(t *testing.T, authorityPriv *btcec.PrivateKey, staticXOnly []byte, validFrom, validTo uint32) Certificate {
	t.Helper()
	cert := Certificate{Version: 0, ValidFrom: validFrom, ValidTo: validTo}
	hash := CertificateSigningHash(cert.Version, cert.ValidFrom, cert.ValidTo, staticXOnly)
	sig, err := schnorr.Sign(authorityPriv, hash[:])
	if err != nil {
		t.Fatalf("schnorr.Sign: %v", err)
	}
	copy(cert.Signature[:], sig.Serialize())
	return cert
}

func TestHandshakeEndToEnd(t *testing.T) {
	authorityPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	authorityXOnly := authorityPriv.PubKey().X().Bytes()

	staticPriv := make([]byte, 32)
	if _, err := rand.Read(staticPriv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	staticX, err := XOnlyPubKey(staticPriv)
	if err != nil {
		t.Fatalf("XOnlyPubKey: %v", err)
	}
	cert := signedCertificate(t, authorityPriv, fe32(staticX))

	responder, err := NewResponderCipher(staticPriv, staticX, cert)
	if err != nil {
		t.Fatalf("NewResponderCipher: %v", err)
	}
	initiator, err := NewInitiatorCipher()
	if err != nil {
		t.Fatalf("NewInitiatorCipher: %v", err)
	}

	msg1, err := initiator.Step1()
	if err != nil {
		t.Fatalf("Step1: %v", err)
	}
	msg2, err := responder.Step1Responder(msg1)
	if err != nil {
		t.Fatalf("Step1Responder: %v", err)
	}
	if err := initiator.Step2Initiator(msg2, authorityXOnly[:]); err != nil {
		t.Fatalf("Step2Initiator: %v", err)
	}

	if initiator.Step() != StepTransport || responder.Step() != StepTransport {
		t.Fatalf("expected both sides in transport step")
	}

	plaintext := []byte("SetupConnection")
	ct, err := initiator.EncryptMessage(plaintext)
	if err != nil {
		t.Fatalf("initiator encrypt: %v", err)
	}
	pt, err := responder.DecryptMessage(ct)
	if err != nil {
		t.Fatalf("responder decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("transport round trip mismatch: got %q want %q", pt, plaintext)
	}

	reply := []byte("NewTemplate")
	ct2, err := responder.EncryptMessage(reply)
	if err != nil {
		t.Fatalf("responder encrypt: %v", err)
	}
	pt2, err := initiator.DecryptMessage(ct2)
	if err != nil {
		t.Fatalf("initiator decrypt: %v", err)
	}
	if !bytes.Equal(pt2, reply) {
		t.Fatalf("transport round trip mismatch: got %q want %q", pt2, reply)
	}
}

func TestHandshakeRejectsBadCertificate(t *testing.T) {
	authorityPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	wrongAuthorityPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate wrong authority key: %v", err)
	}
	authorityXOnly := authorityPriv.PubKey().X().Bytes()
	wrongAuthorityXOnly := wrongAuthorityPriv.PubKey().X().Bytes()
	if bytes.Equal(authorityXOnly[:], wrongAuthorityXOnly[:]) {
		t.Fatalf("test setup produced identical authority keys")
	}

	staticPriv := make([]byte, 32)
	if _, err := rand.Read(staticPriv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	staticX, err := XOnlyPubKey(staticPriv)
	if err != nil {
		t.Fatalf("XOnlyPubKey: %v", err)
	}
	// Sign with the wrong authority key; verification under the real
	// authority key must fail.
	cert := signedCertificate(t, wrongAuthorityPriv, fe32(staticX))

	responder, err := NewResponderCipher(staticPriv, staticX, cert)
	if err != nil {
		t.Fatalf("NewResponderCipher: %v", err)
	}
	initiator, err := NewInitiatorCipher()
	if err != nil {
		t.Fatalf("NewInitiatorCipher: %v", err)
	}

	msg1, err := initiator.Step1()
	if err != nil {
		t.Fatalf("Step1: %v", err)
	}
	msg2, err := responder.Step1Responder(msg1)
	if err != nil {
		t.Fatalf("Step1Responder: %v", err)
	}
	if err := initiator.Step2Initiator(msg2, authorityXOnly[:]); err == nil {
		t.Fatalf("expected certificate verification to fail under the real authority key")
	}
}

func TestHandshakeRejectsExpiredCertificate(t *testing.T) {
	authorityPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	authorityXOnly := authorityPriv.PubKey().X().Bytes()

	staticPriv := make([]byte, 32)
	if _, err := rand.Read(staticPriv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	staticX, err := XOnlyPubKey(staticPriv)
	if err != nil {
		t.Fatalf("XOnlyPubKey: %v", err)
	}

	now := time.Unix(2_000_000_000, 0)
	// valid_to is one hour before "now": a correctly-signed but expired cert.
	cert := signedCertificateWindow(t, authorityPriv, fe32(staticX), 0, uint32(now.Add(-time.Hour).Unix()))

	responder, err := NewResponderCipher(staticPriv, staticX, cert)
	if err != nil {
		t.Fatalf("NewResponderCipher: %v", err)
	}
	initiator, err := NewInitiatorCipher()
	if err != nil {
		t.Fatalf("NewInitiatorCipher: %v", err)
	}
	initiator.SetClock(func() time.Time { return now })

	msg1, err := initiator.Step1()
	if err != nil {
		t.Fatalf("Step1: %v", err)
	}
	msg2, err := responder.Step1Responder(msg1)
	if err != nil {
		t.Fatalf("Step1Responder: %v", err)
	}
	if err := initiator.Step2Initiator(msg2, authorityXOnly[:]); err == nil {
		t.Fatalf("expected an expired certificate to be rejected")
	}
}

func TestHandshakeRejectsNotYetValidCertificate(t *testing.T) {
	authorityPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	authorityXOnly := authorityPriv.PubKey().X().Bytes()

	staticPriv := make([]byte, 32)
	if _, err := rand.Read(staticPriv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	staticX, err := XOnlyPubKey(staticPriv)
	if err != nil {
		t.Fatalf("XOnlyPubKey: %v", err)
	}

	now := time.Unix(2_000_000_000, 0)
	// valid_from is one hour after "now": a correctly-signed but not-yet-valid cert.
	cert := signedCertificateWindow(t, authorityPriv, fe32(staticX), uint32(now.Add(time.Hour).Unix()), 0xffffffff)

	responder, err := NewResponderCipher(staticPriv, staticX, cert)
	if err != nil {
		t.Fatalf("NewResponderCipher: %v", err)
	}
	initiator, err := NewInitiatorCipher()
	if err != nil {
		t.Fatalf("NewInitiatorCipher: %v", err)
	}
	initiator.SetClock(func() time.Time { return now })

	msg1, err := initiator.Step1()
	if err != nil {
		t.Fatalf("Step1: %v", err)
	}
	msg2, err := responder.Step1Responder(msg1)
	if err != nil {
		t.Fatalf("Step1Responder: %v", err)
	}
	if err := initiator.Step2Initiator(msg2, authorityXOnly[:]); err == nil {
		t.Fatalf("expected a not-yet-valid certificate to be rejected")
	}
}

func TestCertificateValidAtBoundaries(t *testing.T) {
	cert := Certificate{ValidFrom: 100, ValidTo: 200}
	if !cert.ValidAt(time.Unix(100, 0)) {
		t.Fatalf("expected valid_from itself to be within the window")
	}
	if !cert.ValidAt(time.Unix(200, 0)) {
		t.Fatalf("expected valid_to itself to be within the window")
	}
	if cert.ValidAt(time.Unix(99, 0)) {
		t.Fatalf("expected a timestamp before valid_from to be rejected")
	}
	if cert.ValidAt(time.Unix(201, 0)) {
		t.Fatalf("expected a timestamp after valid_to to be rejected")
	}
}

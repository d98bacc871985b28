package noise

import (
	"fmt"
	"math/big"
	"time"
)

// HandshakeStep tracks an Sv2Cipher's progress through the NX pattern.
type HandshakeStep int

const (
	StepHandshakeStep1 HandshakeStep = iota
	StepHandshakeStep2
	StepTransport
)

// Sv2Cipher is the per-connection state machine layered over
// HandshakeState: it runs the two-message handshake, then exposes
// symmetric encrypt/decrypt of arbitrarily large application messages
// using the two Split CipherStates.
type Sv2Cipher struct {
	role Role
	step HandshakeStep
	hs   *HandshakeState
	send *CipherState
	recv *CipherState
}

// NewInitiatorCipher begins a handshake as the connecting party.
func NewInitiatorCipher() (*Sv2Cipher, error) {
	hs, err := NewInitiatorHandshake()
	if err != nil {
		return nil, err
	}
	return &Sv2Cipher{role: Initiator, step: StepHandshakeStep1, hs: hs}, nil
}

// NewResponderCipher begins a handshake as the template provider, using
// its long-lived static key and a certificate attesting to it.
func NewResponderCipher(staticPriv []byte, staticX *big.Int, cert Certificate) (*Sv2Cipher, error) {
	hs, err := NewResponderHandshake(staticPriv, staticX, cert)
	if err != nil {
		return nil, err
	}
	return &Sv2Cipher{role: Responder, step: StepHandshakeStep1, hs: hs}, nil
}

// Step1 produces the initiator's first handshake message (-> e).
func (c *Sv2Cipher) Step1() ([]byte, error) {
	if c.role != Initiator || c.step != StepHandshakeStep1 {
		return nil, fmt.Errorf("noise: Step1 called out of order")
	}
	msg, err := c.hs.WriteMessage1()
	if err != nil {
		return nil, err
	}
	c.step = StepHandshakeStep2
	return msg, nil
}

// Step2Initiator consumes the responder's reply (<- e, ee, s, es) and
// completes the handshake from the initiator's side.
func (c *Sv2Cipher) Step2Initiator(msg []byte, authorityXOnly []byte) error {
	if c.role != Initiator || c.step != StepHandshakeStep2 {
		return fmt.Errorf("noise: Step2Initiator called out of order")
	}
	if err := c.hs.ReadMessage2(msg, authorityXOnly); err != nil {
		return err
	}
	send, recv, err := c.hs.Finish()
	if err != nil {
		return err
	}
	c.send, c.recv = send, recv
	c.step = StepTransport
	return nil
}

// Step1Responder consumes the initiator's first message, then immediately
// produces the responder's reply, completing the handshake.
func (c *Sv2Cipher) Step1Responder(msg []byte) ([]byte, error) {
	if c.role != Responder || c.step != StepHandshakeStep1 {
		return nil, fmt.Errorf("noise: Step1Responder called out of order")
	}
	if err := c.hs.ReadMessage1(msg); err != nil {
		return nil, err
	}
	reply, err := c.hs.WriteMessage2()
	if err != nil {
		return nil, err
	}
	send, recv, err := c.hs.Finish()
	if err != nil {
		return nil, err
	}
	c.send, c.recv = send, recv
	c.step = StepTransport
	return reply, nil
}

// Step returns the cipher's current handshake step.
func (c *Sv2Cipher) Step() HandshakeStep { return c.step }

// EncryptMessage seals an application-layer message for the transport
// phase.
func (c *Sv2Cipher) EncryptMessage(plaintext []byte) ([]byte, error) {
	if c.step != StepTransport {
		return nil, fmt.Errorf("noise: EncryptMessage called before handshake completed")
	}
	return c.send.EncryptMessage(plaintext)
}

// DecryptMessage opens an application-layer message received during the
// transport phase.
func (c *Sv2Cipher) DecryptMessage(ciphertext []byte) ([]byte, error) {
	if c.step != StepTransport {
		return nil, fmt.Errorf("noise: DecryptMessage called before handshake completed")
	}
	return c.recv.DecryptMessage(ciphertext)
}

// SetClock overrides the clock the initiator checks the responder's
// certificate validity window against. Intended for tests.
func (c *Sv2Cipher) SetClock(clock func() time.Time) {
	c.hs.SetClock(clock)
}

// RemoteStaticX returns the peer's x-only static public key, once the
// handshake has revealed it (responders learn the peer's static key only
// if the variant requires client authentication; the NX pattern used here
// only authenticates the responder, so initiators always have it after
// Step2Initiator, responders never do).
func (c *Sv2Cipher) RemoteStaticX() *big.Int { return c.hs.RemoteStaticX() }

// EncryptedMessageSize returns the on-wire length of an encrypted message
// whose plaintext is plaintextLen bytes, accounting for chunking and
// per-chunk authentication tags.
func EncryptedMessageSize(plaintextLen int) int {
	if plaintextLen == 0 {
		return TagLen
	}
	chunks := (plaintextLen + MaxChunkSize - 1) / MaxChunkSize
	return plaintextLen + chunks*TagLen
}

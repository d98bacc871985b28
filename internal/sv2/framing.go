package sv2

import (
	"encoding/binary"
	"fmt"
	"io"

	"sv2tp/internal/noise"
)

// HeaderPlaintextSize is the size of the plaintext frame header:
// extension_type(2) + msg_type(1) + msg_length(3).
const HeaderPlaintextSize = 6

// HeaderWireSize is the header's size once AEAD-sealed as a single chunk.
const HeaderWireSize = HeaderPlaintextSize + noise.TagLen

// Cipher is the subset of noise.Sv2Cipher the framing layer needs; frame
// encode/decode works against this interface so tests can stub it out
// without a full handshake.
type Cipher interface {
	EncryptMessage(plaintext []byte) ([]byte, error)
	DecryptMessage(ciphertext []byte) ([]byte, error)
}

// WriteFrame encrypts and serializes one message: a 22-byte encrypted
// header followed by the chunked, encrypted payload.
func WriteFrame(c Cipher, m Message) ([]byte, error) {
	payload, err := Encode(m)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xffffff {
		return nil, fmt.Errorf("sv2: payload too large for u24 length (%d bytes)", len(payload))
	}

	var header [HeaderPlaintextSize]byte
	binary.LittleEndian.PutUint16(header[0:2], 0) // extension_type, reserved
	header[2] = byte(m.Type())
	header[3] = byte(len(payload))
	header[4] = byte(len(payload) >> 8)
	header[5] = byte(len(payload) >> 16)

	encHeader, err := c.EncryptMessage(header[:])
	if err != nil {
		return nil, fmt.Errorf("sv2: encrypt header: %w", err)
	}
	encPayload, err := c.EncryptMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("sv2: encrypt payload: %w", err)
	}

	out := make([]byte, 0, len(encHeader)+len(encPayload))
	out = append(out, encHeader...)
	out = append(out, encPayload...)
	return out, nil
}

// ReadFrame reads and decrypts exactly one message from r.
func ReadFrame(c Cipher, r io.Reader) (MsgType, Message, error) {
	var encHeader [HeaderWireSize]byte
	if _, err := io.ReadFull(r, encHeader[:]); err != nil {
		return 0, nil, fmt.Errorf("sv2: read header: %w", err)
	}
	header, err := c.DecryptMessage(encHeader[:])
	if err != nil {
		return 0, nil, fmt.Errorf("sv2: decrypt header: %w", err)
	}
	if len(header) != HeaderPlaintextSize {
		return 0, nil, fmt.Errorf("sv2: decrypted header has wrong length %d", len(header))
	}

	msgType := MsgType(header[2])
	msgLen := int(header[3]) | int(header[4])<<8 | int(header[5])<<16

	wireLen := noise.EncryptedMessageSize(msgLen)
	encPayload := make([]byte, wireLen)
	if wireLen > 0 {
		if _, err := io.ReadFull(r, encPayload); err != nil {
			return 0, nil, fmt.Errorf("sv2: read payload: %w", err)
		}
	}
	payload, err := c.DecryptMessage(encPayload)
	if err != nil {
		return 0, nil, fmt.Errorf("sv2: decrypt payload: %w", err)
	}

	m, err := Decode(msgType, payload)
	if err != nil {
		return 0, nil, err
	}
	return msgType, m, nil
}

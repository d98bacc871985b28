// Package sv2 implements the Template Distribution subprotocol (id 0x02)
// message catalogue and its encrypted framing over a noise.Sv2Cipher.
package sv2

import (
	"encoding/binary"
	"fmt"
)

// SubprotocolID is the Stratum V2 subprotocol identifier for Template
// Distribution.
const SubprotocolID = 0x02

// MsgType enumerates the Template Distribution message catalogue.
type MsgType uint8

const (
	MsgSetupConnection               MsgType = 0x00
	MsgSetupConnectionSuccess        MsgType = 0x01
	MsgSetupConnectionError          MsgType = 0x02
	MsgCoinbaseOutputDataSize        MsgType = 0x70
	MsgNewTemplate                   MsgType = 0x71
	MsgSetNewPrevHash                MsgType = 0x72
	MsgRequestTransactionData        MsgType = 0x73
	MsgRequestTransactionDataSuccess MsgType = 0x74
	MsgRequestTransactionDataError   MsgType = 0x75
	MsgSubmitSolution                MsgType = 0x76
)

// writer accumulates a message payload using the catalogue's little-endian,
// length-prefixed encodings.
type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{buf: make([]byte, 0, 128)} }

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

// str8 writes a u8-length-prefixed string.
func (w *writer) str8(s string) error {
	if len(s) > 0xff {
		return fmt.Errorf("sv2: str8 value too long (%d bytes)", len(s))
	}
	w.u8(uint8(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// bytesU16 writes a u16-length-prefixed byte string.
func (w *writer) bytesU16(b []byte) error {
	if len(b) > 0xffff {
		return fmt.Errorf("sv2: bytes_u16 value too long (%d bytes)", len(b))
	}
	w.u16(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// bytesU24 writes a u24-le-length-prefixed byte string.
func (w *writer) bytesU24(b []byte) error {
	if len(b) > 0xffffff {
		return fmt.Errorf("sv2: bytes_u24 value too long (%d bytes)", len(b))
	}
	var lb [3]byte
	lb[0] = byte(len(b))
	lb[1] = byte(len(b) >> 8)
	lb[2] = byte(len(b) >> 16)
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, b...)
	return nil
}

// hashVec writes a u16-count-prefixed vector of 32-byte hashes.
func (w *writer) hashVec(hashes [][32]byte) error {
	if len(hashes) > 0xffff {
		return fmt.Errorf("sv2: hash vector too long (%d elements)", len(hashes))
	}
	w.u16(uint16(len(hashes)))
	for _, h := range hashes {
		w.raw(h[:])
	}
	return nil
}

// bytesU24Vec writes a u16-count-prefixed vector of bytes_u24 elements.
func (w *writer) bytesU24Vec(elems [][]byte) error {
	if len(elems) > 0xffff {
		return fmt.Errorf("sv2: bytes_u24 vector too long (%d elements)", len(elems))
	}
	w.u16(uint16(len(elems)))
	for _, e := range elems {
		if err := w.bytesU24(e); err != nil {
			return err
		}
	}
	return nil
}

// reader consumes a message payload using the catalogue's encodings,
// bounds-checking every read against the remaining buffer.
type reader struct {
	buf []byte
	off int
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) need(n int) error {
	if r.remaining() < n {
		return fmt.Errorf("sv2: short read: need %d bytes, have %d", n, r.remaining())
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) boolean() (bool, error) {
	v, err := r.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *reader) rawN(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

func (r *reader) hash32() ([32]byte, error) {
	var out [32]byte
	b, err := r.rawN(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *reader) str8() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	b, err := r.rawN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) bytesU16() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	return r.rawN(int(n))
}

func (r *reader) bytesU24() ([]byte, error) {
	if err := r.need(3); err != nil {
		return nil, err
	}
	n := int(r.buf[r.off]) | int(r.buf[r.off+1])<<8 | int(r.buf[r.off+2])<<16
	r.off += 3
	return r.rawN(n)
}

func (r *reader) hashVec() ([][32]byte, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, count)
	for i := range out {
		h, err := r.hash32()
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (r *reader) bytesU24Vec() ([][]byte, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, count)
	for i := range out {
		e, err := r.bytesU24()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (r *reader) finished() bool { return r.remaining() == 0 }

package noise

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCipherStateRoundTrip(t *testing.T) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	enc := NewCipherState(key)
	dec := NewCipherState(key)

	ad := []byte("associated-data")
	plaintext := []byte("setup_connection payload")

	ct, err := enc.EncryptWithAd(ad, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := dec.DecryptWithAd(ad, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestCipherStateWrongAdFails(t *testing.T) {
	var key [KeySize]byte
	enc := NewCipherState(key)
	dec := NewCipherState(key)

	ct, err := enc.EncryptWithAd([]byte("ad1"), []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := dec.DecryptWithAd([]byte("ad2"), ct); err == nil {
		t.Fatalf("expected decrypt to fail with mismatched associated data")
	}
}

func TestCipherStateMessageChunking(t *testing.T) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}

	for _, size := range []int{0, 1, MaxChunkSize, MaxChunkSize + 1, 2*MaxChunkSize + 100} {
		enc := NewCipherState(key)
		dec := NewCipherState(key)

		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("rand: %v", err)
		}

		ct, err := enc.EncryptMessage(plaintext)
		if err != nil {
			t.Fatalf("size %d: encrypt: %v", size, err)
		}
		if got := EncryptedMessageSize(size); got != len(ct) {
			t.Fatalf("size %d: EncryptedMessageSize=%d but ciphertext is %d bytes", size, got, len(ct))
		}

		pt, err := dec.DecryptMessage(ct)
		if err != nil {
			t.Fatalf("size %d: decrypt: %v", size, err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
	}
}

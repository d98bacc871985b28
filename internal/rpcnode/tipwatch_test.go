package rpcnode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func bestBlockHashServer(t *testing.T, hashes func(call int) string) *httptest.Server {
	t.Helper()
	var calls atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"bestblockhash":"` + hashes(n) + `"},"error":null}`))
	}))
}

func TestTipWatcherReportsChange(t *testing.T) {
	oldHash := "000000000000000000000000000000000000000000000000000000000000000a"
	newHash := "000000000000000000000000000000000000000000000000000000000000000b"
	srv := bestBlockHashServer(t, func(call int) string {
		if call < 3 {
			return oldHash
		}
		return newHash
	})
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := NewTipWatcher(c, 5*time.Millisecond)

	lastKnown, err2 := reverseHash(oldHash)
	if err2 != nil {
		t.Fatalf("reverseHash: %v", err2)
	}

	hash, changed := w.Wait(context.Background(), 200*time.Millisecond, lastKnown)
	if !changed {
		t.Fatalf("expected Wait to report a change within the timeout")
	}
	want, _ := reverseHash(newHash)
	if hash != want {
		t.Fatalf("Wait returned %x, want %x", hash, want)
	}
}

func TestTipWatcherTimesOutWithoutChange(t *testing.T) {
	sameHash := "000000000000000000000000000000000000000000000000000000000000000a"
	srv := bestBlockHashServer(t, func(call int) string { return sameHash })
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := NewTipWatcher(c, 5*time.Millisecond)

	lastKnown, _ := reverseHash(sameHash)
	_, changed := w.Wait(context.Background(), 30*time.Millisecond, lastKnown)
	if changed {
		t.Fatalf("expected Wait to time out and report no change")
	}
}

func TestTipWatcherRespectsContextCancellation(t *testing.T) {
	sameHash := "000000000000000000000000000000000000000000000000000000000000000a"
	srv := bestBlockHashServer(t, func(call int) string { return sameHash })
	defer srv.Close()

	c, _ := New(srv.URL)
	w := NewTipWatcher(c, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lastKnown, _ := reverseHash(sameHash)
	_, changed := w.Wait(ctx, time.Second, lastKnown)
	if changed {
		t.Fatalf("expected a canceled context to report no change")
	}
}

package rpcnode

import (
	"context"
	"time"

	"sv2tp/internal/tp"
)

// defaultPollInterval is used when a TipWatcher is built with a
// non-positive poll interval.
const defaultPollInterval = 10 * time.Millisecond

// TipWatcher polls a Client's best-block hash to approximate the node's
// internal best-block condition variable, which isn't reachable over
// RPC. Grounded on blockwatch.Service's ticker-driven poll loop, adapted
// from a background confirmation sweep into a bounded synchronous wait.
type TipWatcher struct {
	client       *Client
	pollInterval time.Duration
}

// NewTipWatcher wraps a Client for tip-change polling, re-checking the
// best block hash every pollInterval while Wait is blocked.
func NewTipWatcher(client *Client, pollInterval time.Duration) *TipWatcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &TipWatcher{client: client, pollInterval: pollInterval}
}

// Wait implements tp.TipWatcher: it polls at w.pollInterval until the best
// block hash differs from lastKnown or timeout elapses.
func (w *TipWatcher) Wait(ctx context.Context, timeout time.Duration, lastKnown [32]byte) ([32]byte, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		hash, err := w.client.BestBlockHash(ctx)
		if err == nil && hash != lastKnown {
			return hash, true
		}
		select {
		case <-ctx.Done():
			return lastKnown, false
		case <-deadline.C:
			return lastKnown, false
		case <-ticker.C:
		}
	}
}

var _ tp.TipWatcher = (*TipWatcher)(nil)

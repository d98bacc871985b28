package tp

import (
	"encoding/hex"
	"sync"
)

// liveStatus guards the small set of fields the admin HTTP surface reads
// concurrently with the dispatch loop, using a mutex-guarded stats
// snapshot rather than letting the status handler touch sessions/cache
// directly.
type liveStatus struct {
	mu              sync.RWMutex
	sessionCount    int
	cachedTemplates int
	bestBlockHash   [32]byte
}

func (s *Server) setSessionCount(n int) {
	s.status.mu.Lock()
	s.status.sessionCount = n
	s.status.mu.Unlock()
}

func (s *Server) setCachedTemplates(n int) {
	s.status.mu.Lock()
	s.status.cachedTemplates = n
	s.status.mu.Unlock()
}

func (s *Server) setBestBlockHash(h [32]byte) {
	s.status.mu.Lock()
	s.status.bestBlockHash = h
	s.status.mu.Unlock()
}

// SessionCount implements httpapi.StatusProvider.
func (s *Server) SessionCount() int {
	s.status.mu.RLock()
	defer s.status.mu.RUnlock()
	return s.status.sessionCount
}

// CachedTemplateCount implements httpapi.StatusProvider.
func (s *Server) CachedTemplateCount() int {
	s.status.mu.RLock()
	defer s.status.mu.RUnlock()
	return s.status.cachedTemplates
}

// BestBlockHash implements httpapi.StatusProvider, reporting the tip hash
// in the same big-endian display convention bitcoind's RPC uses.
func (s *Server) BestBlockHash() string {
	s.status.mu.RLock()
	h := s.status.bestBlockHash
	s.status.mu.RUnlock()

	reversed := make([]byte, 32)
	for i := range h {
		reversed[i] = h[32-1-i]
	}
	return hex.EncodeToString(reversed)
}

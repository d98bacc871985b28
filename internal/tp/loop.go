package tp

import (
	"context"
	"time"

	"sv2tp/internal/sv2"
)

// checkTipChange polls the chain manager's best-block condition variable
// for up to 10ms (the select loop's 50ms ticker already bounds how often
// this runs). A changed tip invalidates every cached template and forces
// a fresh send_work cycle, with SetNewPrevHash, to every streaming
// session.
func (s *Server) checkTipChange(ctx context.Context) {
	hash, changed := s.tipWatcher.Wait(ctx, 10*time.Millisecond, s.bestBlockHash)
	if !changed {
		return
	}
	s.bestBlockHash = hash
	s.setBestBlockHash(hash)
	s.cache.Reset()
	s.setCachedTemplates(0)
	for _, cc := range s.sessions {
		cc.session.LastSubmittedTemplateFees = 0
		if cc.session.State == StateStreaming {
			s.sendWork(ctx, cc, true)
		}
	}
}

// checkMempoolRebuild fires on the configured template interval: if the
// mempool's update counter has advanced since the last check, every
// streaming session gets an opportunity at a fresh (non-tip-changing)
// template, subject to the fee-delta gate in sendWork.
func (s *Server) checkMempoolRebuild(ctx context.Context) {
	count, err := s.mempool.TransactionsUpdated(ctx)
	if err != nil {
		s.logger.Printf("tp: mempool query failed: %v", err)
		return
	}
	if count == s.lastMempoolCount {
		return
	}
	s.lastMempoolCount = count
	for _, cc := range s.sessions {
		if cc.session.State == StateStreaming {
			s.sendWork(ctx, cc, false)
		}
	}
}

// sendWork assembles a new candidate block sized for one session's
// reserved coinbase space and, unless the fee-delta gate suppresses it,
// announces it as NewTemplate (plus SetNewPrevHash when the tip moved).
func (s *Server) sendWork(ctx context.Context, cc *clientConn, sendNewPrevHash bool) {
	if cc.session.CoinbaseOutputMaxSize > s.cfg.MaxBlockWeight {
		return
	}
	handle, err := s.assembler.CreateNewBlock(ctx, BlockAssemblerOptions{
		MaxWeight: s.cfg.MaxBlockWeight - cc.session.CoinbaseOutputMaxSize,
	})
	if err != nil {
		s.logger.Printf("tp: assemble block template for session %d: %v", cc.session.ID, err)
		return
	}

	if !sendNewPrevHash {
		delta := handle.TotalFees - cc.session.LastSubmittedTemplateFees
		if delta < s.cfg.FeeDeltaSats {
			s.metrics.TemplateSkipped()
			return
		}
	}

	id := s.cache.AllocateID()
	handle.TemplateID = id
	s.cache.Insert(handle)
	s.setCachedTemplates(s.cache.Len())

	newTemplate := sv2.NewTemplate{
		TemplateID:               id,
		FutureTemplate:           sendNewPrevHash && s.cfg.DefaultFutureTemplates,
		Version:                  handle.Version,
		CoinbaseTxVersion:        handle.CoinbaseTxVersion,
		CoinbasePrefix:           handle.CoinbasePrefix,
		CoinbaseTxInputSequence:  handle.CoinbaseTxInputSequence,
		CoinbaseTxValueRemaining: handle.CoinbaseTxValueRemaining,
		CoinbaseTxOutputsCount:   handle.CoinbaseTxOutputsCount,
		CoinbaseTxOutputs:        handle.CoinbaseTxOutputs,
		CoinbaseTxLocktime:       handle.CoinbaseTxLocktime,
		MerklePath:               handle.MerklePath,
	}
	if err := s.send(cc, newTemplate); err != nil {
		s.disconnect(cc, cc.session.ID)
		return
	}

	if sendNewPrevHash {
		prevHash := sv2.SetNewPrevHash{
			TemplateID:      id,
			PrevHash:        handle.PrevHash,
			HeaderTimestamp: uint32(time.Now().Unix()),
			NBits:           handle.NBits,
			Target:          handle.Target,
		}
		if err := s.send(cc, prevHash); err != nil {
			s.disconnect(cc, cc.session.ID)
			return
		}
	}

	cc.session.LastSubmittedTemplateFees = handle.TotalFees
	s.metrics.TemplateSent(sendNewPrevHash)
	s.metrics.TemplateDifficulty(templateDifficulty(handle.Target))
}

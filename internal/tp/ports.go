// Package tp implements the template provider's per-client session state
// machine, template cache, and single-writer dispatch loop.
package tp

import (
	"context"
	"time"
)

// ChainstateManager is the abstract port onto the node's chain validation
// and block-submission machinery. The template provider never validates a
// block itself; it only asks whether the node is still catching up and
// forwards completed solutions.
type ChainstateManager interface {
	IsIBD(ctx context.Context) (bool, error)
	BestBlockHash(ctx context.Context) ([32]byte, error)
	ProcessNewBlock(ctx context.Context, rawBlock []byte) error
}

// Mempool exposes the one fact the dispatch loop needs about mempool
// churn: a monotonic counter that increases whenever the node's mempool
// contents change.
type Mempool interface {
	TransactionsUpdated(ctx context.Context) (uint64, error)
}

// BlockAssemblerOptions configures one call to BlockAssembler.CreateNewBlock.
type BlockAssemblerOptions struct {
	// MaxWeight caps the assembled block's weight; the dispatch loop sets
	// this to MaxBlockWeight - session.CoinbaseOutputMaxSize so the
	// client's own coinbase outputs always fit.
	MaxWeight uint32
	// MinFeeRate is the minimum fee rate (satoshis per weight unit,
	// scaled) a transaction must clear to be included.
	MinFeeRate int64
}

// Tx is an opaque, already-serialized transaction, plus the witness-stripped
// id the block assembler already knows (getblocktemplate reports it
// directly, so the provider never needs to parse Raw to derive it). The
// template provider otherwise never inspects inputs or outputs; it only
// hashes, counts, and relays.
type Tx struct {
	Raw []byte
	Fee int64
	ID  [32]byte
}

// BlockTemplateHandle is an immutable candidate block plus the metadata
// the template distribution protocol needs to describe and later
// reconstitute it. Once inserted into the cache it is never mutated;
// solution submission builds a fresh serialized block rather than editing
// the handle in place.
type BlockTemplateHandle struct {
	TemplateID uint64

	Version  uint32
	PrevHash [32]byte
	NBits    uint32
	Target   [32]byte

	CoinbasePrefix           []byte
	CoinbaseTxVersion        uint32
	CoinbaseTxInputSequence  uint32
	CoinbaseTxOutputsCount   uint32
	CoinbaseTxOutputs        []byte
	CoinbaseTxValueRemaining uint64
	CoinbaseTxLocktime       uint32

	// WitnessReserveValue is the coinbase input's witness-stack reserve
	// value used to compute the segwit witness commitment (the
	// default_witness_commitment output). RequestTransactionData.Success
	// echoes it back to the client as excess_data, per the coinbase
	// witness-commitment rules.
	WitnessReserveValue []byte

	// NonCoinbaseTxs is the template's non-coinbase transaction set, in
	// block order. MerklePath is derived from their Tx.ID fields via
	// ComputeMerklePath and cached alongside them.
	NonCoinbaseTxs []Tx
	MerklePath     [][32]byte

	// TotalFees is the sum of NonCoinbaseTxs' fees, used by the fee-delta
	// gate.
	TotalFees int64
}

// BlockAssembler is the abstract port onto block construction: given the
// current chain tip and mempool, produce a candidate block honoring the
// weight and fee-rate constraints.
type BlockAssembler interface {
	CreateNewBlock(ctx context.Context, opts BlockAssemblerOptions) (*BlockTemplateHandle, error)
}

// TipWatcher abstracts the chain manager's best-block condition variable:
// Wait blocks until either the tip changes from lastKnown or timeout
// elapses, returning the (possibly unchanged) current tip.
type TipWatcher interface {
	Wait(ctx context.Context, timeout time.Duration, lastKnown [32]byte) (hash [32]byte, changed bool)
}

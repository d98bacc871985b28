package rpcnode

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"sv2tp/internal/tp"
)

type templateResult struct {
	Version              uint32       `json:"version"`
	PreviousBlockhash    string       `json:"previousblockhash"`
	Bits                 string       `json:"bits"`
	Target               string       `json:"target"`
	Height               int64        `json:"height"`
	CoinbaseValue        uint64       `json:"coinbasevalue"`
	DefaultWitnessCommit string       `json:"default_witness_commitment"`
	Transactions         []templateTx `json:"transactions"`
}

type templateTx struct {
	Data string `json:"data"`
	TxID string `json:"txid"`
	Fee  int64  `json:"fee"` // satoshis
}

// CreateNewBlock implements tp.BlockAssembler against getblocktemplate.
// The node still decides which transactions go into the block and at
// what total fee; this method only translates its JSON response into a
// BlockTemplateHandle and builds the coinbase skeleton the Template
// Distribution protocol hands to clients. Of opts, only MaxWeight is
// applied; MinFeeRate is ignored.
func (c *Client) CreateNewBlock(ctx context.Context, opts tp.BlockAssemblerOptions) (*tp.BlockTemplateHandle, error) {
	req := map[string]interface{}{
		"rules": []string{"segwit"},
	}
	var tr templateResult
	if err := c.call(ctx, "getblocktemplate", []interface{}{req}, &tr); err != nil {
		return nil, err
	}

	prevHash, err := reverseHash(tr.PreviousBlockhash)
	if err != nil {
		return nil, fmt.Errorf("rpcnode: previousblockhash: %w", err)
	}
	target, err := reverseHash(padHex64(tr.Target))
	if err != nil {
		return nil, fmt.Errorf("rpcnode: target: %w", err)
	}
	nBits, err := parseBitsHex(tr.Bits)
	if err != nil {
		return nil, fmt.Errorf("rpcnode: bits: %w", err)
	}

	txs := make([]tp.Tx, 0, len(tr.Transactions))
	var totalFees int64
	var totalWeight uint32
	for _, t := range tr.Transactions {
		raw, err := hex.DecodeString(t.Data)
		if err != nil {
			return nil, fmt.Errorf("rpcnode: transaction data: %w", err)
		}
		// getblocktemplate already excludes transactions that would
		// violate consensus rules; opts.MaxWeight only needs enforcing
		// here because it is narrower than the node's own block-max
		// (the coinbase reservation the client asked for).
		totalWeight += uint32(len(raw)) * 4
		if totalWeight > opts.MaxWeight {
			break
		}
		// The node reports txid already witness-stripped, matching the
		// hash a block's merkle root is computed over; "data" itself is
		// the full segwit-inclusive serialization, so hashing it directly
		// would produce the wrong (wtxid) merkle leaf for a segwit tx.
		id, err := reverseHash(t.TxID)
		if err != nil {
			return nil, fmt.Errorf("rpcnode: transaction txid: %w", err)
		}
		txs = append(txs, tp.Tx{Raw: raw, Fee: t.Fee, ID: id})
		totalFees += t.Fee
	}

	outputs, outputsCount, err := buildWitnessCommitmentOutputs(tr.DefaultWitnessCommit)
	if err != nil {
		return nil, err
	}

	return &tp.BlockTemplateHandle{
		Version:                  tr.Version,
		PrevHash:                 prevHash,
		NBits:                    nBits,
		Target:                   target,
		CoinbasePrefix:           bip34HeightScript(tr.Height),
		CoinbaseTxVersion:        1,
		CoinbaseTxInputSequence:  0xffffffff,
		CoinbaseTxOutputsCount:   outputsCount,
		CoinbaseTxOutputs:        outputs,
		CoinbaseTxValueRemaining: tr.CoinbaseValue,
		CoinbaseTxLocktime:       0,
		WitnessReserveValue:      witnessReserveValue(),
		NonCoinbaseTxs:           txs,
		MerklePath:               computeMerklePathForTxs(txs),
		TotalFees:                totalFees,
	}, nil
}

func computeMerklePathForTxs(txs []tp.Tx) [][32]byte {
	ids := make([][32]byte, len(txs))
	for i, t := range txs {
		ids[i] = t.ID
	}
	return tp.ComputeMerklePath(ids)
}

// padHex64 left-pads a target hex string to 64 hex digits (32 bytes);
// bitcoind trims leading zero bytes in its "target" field.
func padHex64(s string) string {
	for len(s) < 64 {
		s = "0" + s
	}
	return s
}

// parseBitsHex parses the 4-byte "bits" field as the big-endian uint32
// it visually represents (e.g. "1d00ffff" -> 0x1d00ffff); callers
// little-endian-encode it when serializing a header, per Bitcoin's wire
// format.
func parseBitsHex(s string) (uint32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(raw))
	}
	return binary.BigEndian.Uint32(raw), nil
}

// bip34HeightScript returns the BIP34 block-height push bitcoind prepends
// to every coinbase scriptSig, as the fixed prefix the client's own
// extranonce is appended after.
func bip34HeightScript(height int64) []byte {
	if height == 0 {
		return []byte{0x00}
	}
	var buf []byte
	n := height
	for n > 0 {
		buf = append(buf, byte(n&0xff))
		n >>= 8
	}
	if buf[len(buf)-1]&0x80 != 0 {
		buf = append(buf, 0x00)
	}
	return append([]byte{byte(len(buf))}, buf...)
}

// buildWitnessCommitmentOutputs serializes the coinbase's fixed output
// set: a single zero-value OP_RETURN carrying the segwit witness
// commitment the node computed. Clients append their own payout outputs
// after this within CoinbaseOutputMaxAdditionalSize.
func buildWitnessCommitmentOutputs(commitScriptHex string) ([]byte, uint32, error) {
	if commitScriptHex == "" {
		return nil, 0, nil
	}
	script, err := hex.DecodeString(commitScriptHex)
	if err != nil {
		return nil, 0, fmt.Errorf("rpcnode: default_witness_commitment: %w", err)
	}
	out := make([]byte, 0, 8+9+len(script))
	var value [8]byte // zero satoshis
	out = append(out, value[:]...)
	out = appendCompactSize(out, uint64(len(script)))
	out = append(out, script...)
	return out, 1, nil
}

// witnessReserveValue returns the coinbase input's witness-stack reserve
// value used to derive the segwit witness commitment. The node always
// commits a 32-byte all-zero reserve value when it has none of its own
// (the same default getblocktemplate's default_witness_commitment was
// computed against), so the template provider reports that back rather
// than inventing a value the client could not independently verify.
func witnessReserveValue() []byte {
	return make([]byte, 32)
}

func appendCompactSize(buf []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(buf, byte(n))
	case n <= 0xffff:
		buf = append(buf, 0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		return append(buf, b[:]...)
	case n <= 0xffffffff:
		buf = append(buf, 0xfe)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		return append(buf, b[:]...)
	default:
		buf = append(buf, 0xff)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], n)
		return append(buf, b[:]...)
	}
}

var _ tp.BlockAssembler = (*Client)(nil)

package tp

import "crypto/sha256"

// sha256d is Bitcoin's double-SHA256.
func sha256d(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

func concat32(a, b [32]byte) []byte {
	out := make([]byte, 64)
	copy(out[0:32], a[:])
	copy(out[32:64], b[:])
	return out
}

// ComputeMerklePath derives the merkle branch for the coinbase slot (leaf
// 0) of a block whose non-coinbase transactions are txIDs, in order. The
// branch lets any party recompute the merkle root from just a coinbase
// txid, without needing the rest of the transaction set. This is exactly
// what NewTemplate.merkle_path carries to clients, and what SubmitSolution
// handling recomputes from a client-supplied coinbase.
func ComputeMerklePath(txIDs [][32]byte) [][32]byte {
	level := make([][32]byte, len(txIDs)+1)
	// level[0] is the coinbase slot; its value does not affect the
	// siblings recorded into the branch, so a zero placeholder is fine.
	copy(level[1:], txIDs)

	var branch [][32]byte
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		branch = append(branch, level[1])
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = sha256d(concat32(level[i], level[i+1]))
		}
		level = next
	}
	return branch
}

// MerkleRootFromPath folds a coinbase txid up through a merkle branch
// produced by ComputeMerklePath to recompute the block's merkle root.
func MerkleRootFromPath(coinbaseTxID [32]byte, branch [][32]byte) [32]byte {
	h := coinbaseTxID
	for _, sibling := range branch {
		h = sha256d(concat32(h, sibling))
	}
	return h
}

// TxID computes a transaction's id as the double-SHA256 of its
// witness-stripped serialization, matching bitcoind's CTransaction::GetHash().
// A block's merkle root is always computed over witness-stripped txids,
// even for a segwit transaction whose wire bytes carry witness data - a
// client's submitted coinbase always does, since that is where the
// witness-reserve value lives. Non-coinbase transaction ids come from the
// node's own getblocktemplate response instead (it already reports them
// witness-stripped), so this is only called on a submitted coinbase.
func TxID(raw []byte) ([32]byte, error) {
	stripped, err := stripWitness(raw)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256d(stripped), nil
}

package tp

import (
	"encoding/binary"
	"fmt"

	"sv2tp/internal/sv2"
)

// HeaderSize is the fixed size of a Bitcoin block header.
const HeaderSize = 4 + 32 + 32 + 4 + 4 + 4

// writeCompactSize appends a Bitcoin CompactSize-encoded integer.
func writeCompactSize(buf []byte, n uint64) []byte {
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

// AssembleSubmittedBlock reconstitutes a full serialized block from a
// cached template and a client's SubmitSolution: it substitutes the
// client-supplied coinbase for vtx[0], overwrites the header's
// version/timestamp/nonce fields, and recomputes the merkle root from the
// template's cached merkle branch rather than re-hashing every
// transaction.
func AssembleSubmittedBlock(handle *BlockTemplateHandle, sol sv2.SubmitSolution) ([]byte, error) {
	if len(sol.CoinbaseTx) == 0 {
		return nil, fmt.Errorf("tp: empty coinbase in submitted solution")
	}

	coinbaseTxID, err := TxID(sol.CoinbaseTx)
	if err != nil {
		return nil, fmt.Errorf("tp: parse submitted coinbase: %w", err)
	}
	merkleRoot := MerkleRootFromPath(coinbaseTxID, handle.MerklePath)

	header := make([]byte, 0, HeaderSize)
	var versionBytes [4]byte
	binary.LittleEndian.PutUint32(versionBytes[:], sol.Version)
	header = append(header, versionBytes[:]...)
	header = append(header, handle.PrevHash[:]...)
	header = append(header, merkleRoot[:]...)
	var timestampBytes, nbitsBytes, nonceBytes [4]byte
	binary.LittleEndian.PutUint32(timestampBytes[:], sol.HeaderTimestamp)
	binary.LittleEndian.PutUint32(nbitsBytes[:], handle.NBits)
	binary.LittleEndian.PutUint32(nonceBytes[:], sol.HeaderNonce)
	header = append(header, timestampBytes[:]...)
	header = append(header, nbitsBytes[:]...)
	header = append(header, nonceBytes[:]...)

	out := make([]byte, 0, len(header)+16+len(sol.CoinbaseTx)+blockBodySize(handle))
	out = append(out, header...)
	out = writeCompactSize(out, uint64(1+len(handle.NonCoinbaseTxs)))
	out = append(out, sol.CoinbaseTx...)
	for _, tx := range handle.NonCoinbaseTxs {
		out = append(out, tx.Raw...)
	}
	return out, nil
}

func blockBodySize(handle *BlockTemplateHandle) int {
	n := 0
	for _, tx := range handle.NonCoinbaseTxs {
		n += len(tx.Raw)
	}
	return n
}

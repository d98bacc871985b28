package tp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"sv2tp/internal/sv2"
)

func TestWriteCompactSize(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{252, []byte{0xfc}},
		{253, []byte{0xfd, 0xfd, 0x00}},
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
	}
	for _, c := range cases {
		got := writeCompactSize(nil, c.n)
		if !bytes.Equal(got, c.want) {
			t.Fatalf("writeCompactSize(%d) = %x, want %x", c.n, got, c.want)
		}
	}
}

func TestAssembleSubmittedBlockStructure(t *testing.T) {
	txA, txB := legacyTx(), segwitTx()
	idA, err := TxID(txA)
	if err != nil {
		t.Fatalf("TxID(txA): %v", err)
	}
	idB, err := TxID(txB)
	if err != nil {
		t.Fatalf("TxID(txB): %v", err)
	}

	handle := &BlockTemplateHandle{
		PrevHash: txid(3),
		NBits:    0x1d00ffff,
		NonCoinbaseTxs: []Tx{
			{Raw: txA, ID: idA},
			{Raw: txB, ID: idB},
		},
	}
	handle.MerklePath = ComputeMerklePath([][32]byte{idA, idB})

	coinbase := segwitTx()
	sol := sv2.SubmitSolution{
		Version:         0x20000000,
		HeaderTimestamp: 1_700_000_123,
		HeaderNonce:     0xdeadbeef,
		CoinbaseTx:      coinbase,
	}

	block, err := AssembleSubmittedBlock(handle, sol)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block) < HeaderSize {
		t.Fatalf("block shorter than a header: %d bytes", len(block))
	}

	if gotVersion := binary.LittleEndian.Uint32(block[0:4]); gotVersion != sol.Version {
		t.Fatalf("header version = %#x, want %#x", gotVersion, sol.Version)
	}
	if !bytes.Equal(block[4:36], handle.PrevHash[:]) {
		t.Fatalf("header prev_hash does not match handle.PrevHash")
	}

	coinbaseID, err := TxID(coinbase)
	if err != nil {
		t.Fatalf("TxID(coinbase): %v", err)
	}
	wantRoot := MerkleRootFromPath(coinbaseID, handle.MerklePath)
	if !bytes.Equal(block[36:68], wantRoot[:]) {
		t.Fatalf("header merkle_root does not match the recomputed root")
	}
	if gotTimestamp := binary.LittleEndian.Uint32(block[68:72]); gotTimestamp != sol.HeaderTimestamp {
		t.Fatalf("header timestamp mismatch")
	}
	if gotBits := binary.LittleEndian.Uint32(block[72:76]); gotBits != handle.NBits {
		t.Fatalf("header nBits mismatch")
	}
	if gotNonce := binary.LittleEndian.Uint32(block[76:80]); gotNonce != sol.HeaderNonce {
		t.Fatalf("header nonce mismatch")
	}

	body := block[HeaderSize:]
	if body[0] != 3 {
		t.Fatalf("expected a CompactSize tx count of 3 (coinbase + 2), got %d", body[0])
	}
	rest := body[1:]
	if !bytes.HasPrefix(rest, coinbase) {
		t.Fatalf("serialized block does not start its tx list with the submitted coinbase")
	}
	rest = rest[len(coinbase):]
	if !bytes.Equal(rest, append(append([]byte{}, handle.NonCoinbaseTxs[0].Raw...), handle.NonCoinbaseTxs[1].Raw...)) {
		t.Fatalf("serialized block does not append the cached non-coinbase transactions in order")
	}
}

func TestAssembleSubmittedBlockRejectsEmptyCoinbase(t *testing.T) {
	handle := &BlockTemplateHandle{PrevHash: txid(1)}
	_, err := AssembleSubmittedBlock(handle, sv2.SubmitSolution{CoinbaseTx: nil})
	if err == nil {
		t.Fatalf("expected an error for an empty coinbase transaction")
	}
}

func TestAssembleSubmittedBlockRejectsUnparsableCoinbase(t *testing.T) {
	handle := &BlockTemplateHandle{PrevHash: txid(1)}
	_, err := AssembleSubmittedBlock(handle, sv2.SubmitSolution{CoinbaseTx: []byte{0x01, 0x02, 0x03}})
	if err == nil {
		t.Fatalf("expected an error for a coinbase transaction too short to parse")
	}
}

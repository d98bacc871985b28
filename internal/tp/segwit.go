package tp

import (
	"encoding/binary"
	"fmt"
)

// readCompactSize decodes a Bitcoin CompactSize integer at the start of b,
// returning its value and the number of bytes it occupies.
func readCompactSize(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("tp: compact size: empty input")
	}
	switch b[0] {
	case 0xfd:
		if len(b) < 3 {
			return 0, 0, fmt.Errorf("tp: compact size: truncated uint16")
		}
		return uint64(binary.LittleEndian.Uint16(b[1:3])), 3, nil
	case 0xfe:
		if len(b) < 5 {
			return 0, 0, fmt.Errorf("tp: compact size: truncated uint32")
		}
		return uint64(binary.LittleEndian.Uint32(b[1:5])), 5, nil
	case 0xff:
		if len(b) < 9 {
			return 0, 0, fmt.Errorf("tp: compact size: truncated uint64")
		}
		return binary.LittleEndian.Uint64(b[1:9]), 9, nil
	default:
		return uint64(b[0]), 1, nil
	}
}

// stripWitness re-serializes a transaction without its BIP144 segwit
// marker, flag, and per-input witness stacks. A legacy (non-segwit)
// transaction is returned byte-identical. This is the transformation
// CTransaction(tx).GetHash() applies before hashing: the merkle root a
// block commits to is always computed over this witness-stripped form.
func stripWitness(raw []byte) ([]byte, error) {
	if len(raw) < 10 {
		return nil, fmt.Errorf("tp: transaction too short: %d bytes", len(raw))
	}

	pos := 4 // past nVersion
	hasWitness := raw[pos] == 0x00 && raw[pos+1] == 0x01
	if hasWitness {
		pos += 2
	}

	vinCount, n, err := readCompactSize(raw[pos:])
	if err != nil {
		return nil, fmt.Errorf("tp: vin count: %w", err)
	}
	vinStart := pos
	pos += n
	for i := uint64(0); i < vinCount; i++ {
		if len(raw) < pos+36 {
			return nil, fmt.Errorf("tp: truncated vin prevout")
		}
		pos += 36 // prevout hash + index
		scriptLen, n, err := readCompactSize(raw[pos:])
		if err != nil {
			return nil, fmt.Errorf("tp: vin scriptSig length: %w", err)
		}
		pos += n + int(scriptLen)
		if len(raw) < pos+4 {
			return nil, fmt.Errorf("tp: truncated vin sequence")
		}
		pos += 4 // sequence
	}

	voutCount, n, err := readCompactSize(raw[pos:])
	if err != nil {
		return nil, fmt.Errorf("tp: vout count: %w", err)
	}
	pos += n
	for i := uint64(0); i < voutCount; i++ {
		if len(raw) < pos+8 {
			return nil, fmt.Errorf("tp: truncated vout value")
		}
		pos += 8 // value
		scriptLen, n, err := readCompactSize(raw[pos:])
		if err != nil {
			return nil, fmt.Errorf("tp: vout scriptPubKey length: %w", err)
		}
		pos += n + int(scriptLen)
	}
	voutEnd := pos

	out := make([]byte, 0, 4+(voutEnd-vinStart)+4)
	out = append(out, raw[0:4]...) // nVersion
	out = append(out, raw[vinStart:voutEnd]...)

	if hasWitness {
		for i := uint64(0); i < vinCount; i++ {
			itemCount, n, err := readCompactSize(raw[pos:])
			if err != nil {
				return nil, fmt.Errorf("tp: witness item count: %w", err)
			}
			pos += n
			for j := uint64(0); j < itemCount; j++ {
				itemLen, n, err := readCompactSize(raw[pos:])
				if err != nil {
					return nil, fmt.Errorf("tp: witness item length: %w", err)
				}
				pos += n + int(itemLen)
			}
		}
	}

	if len(raw) < pos+4 {
		return nil, fmt.Errorf("tp: truncated locktime")
	}
	out = append(out, raw[pos:pos+4]...) // nLockTime

	return out, nil
}

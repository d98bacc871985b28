package tp

import (
	"bytes"
	"math/big"

	"github.com/holiman/uint256"
)

// maxTarget is the all-ones 256-bit value. It is not bitcoind's
// difficulty-1 target (0xffff << 208), so the ratio computed here is about
// 2^32 times the value bitcoind reports as getdifficulty.
var maxTarget = uint256.NewInt(0).SetBytes32(bytes.Repeat([]byte{0xff}, 32))

// templateDifficulty converts a little-endian proof-of-work target into the
// ratio maxTarget / target, for the template_difficulty gauge the Prometheus
// exporter reports alongside each NewTemplate.
func templateDifficulty(target [32]byte) float64 {
	be := make([]byte, 32)
	for i := range target {
		be[i] = target[32-1-i]
	}
	t := uint256.NewInt(0).SetBytes32(be)
	if t.IsZero() {
		return 0
	}
	ratio := uint256.NewInt(0).Div(maxTarget, t)
	f := new(big.Float).SetInt(ratio.ToBig())
	result, _ := f.Float64()
	return result
}

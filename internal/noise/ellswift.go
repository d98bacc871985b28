package noise

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ElligatorSwift maps secp256k1 points to and from a 64-byte encoding with
// no distinguishable bias, letting ephemeral and static Noise keys be sent
// on the wire without revealing they are secp256k1 public keys. Stratum V2
// additionally only ever needs the resulting point's x-coordinate (for
// x-only ECDH), so decode here yields an x-coordinate rather than a full
// point.
//
// No example library in the retrieved pack implements secp256k1's
// ElligatorSwift; this is a from-scratch field-arithmetic implementation
// targeting the same y^2 = x^3 + 7 curve, built on math/big (for the custom
// modular arithmetic, including the quadratic-residue tests ElligatorSwift
// needs) and github.com/btcsuite/btcd/btcec/v2 (for ordinary scalar
// multiplication once a curve point has been recovered).

var (
	fieldP = mustHex("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f")
	curveB = big.NewInt(7)
	four   = big.NewInt(4)
	two    = big.NewInt(2)

	// sqrtNeg3 is a square root of -3 mod fieldP, used by the SwiftEC-style
	// branch formulas below. fieldP is congruent to 3 mod 4, so ModSqrt is
	// well defined for any quadratic residue, including -3 mod p.
	sqrtNeg3 = computeSqrtNeg3()
)

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("noise: bad hex constant")
	}
	return n
}

func computeSqrtNeg3() *big.Int {
	neg3 := new(big.Int).Mod(big.NewInt(-3), fieldP)
	return new(big.Int).ModSqrt(neg3, fieldP)
}

func feMod(x *big.Int) *big.Int { return new(big.Int).Mod(x, fieldP) }

func feAdd(a, b *big.Int) *big.Int { return feMod(new(big.Int).Add(a, b)) }
func feSub(a, b *big.Int) *big.Int { return feMod(new(big.Int).Sub(a, b)) }
func feMul(a, b *big.Int) *big.Int { return feMod(new(big.Int).Mul(a, b)) }
func feSqr(a *big.Int) *big.Int    { return feMul(a, a) }
func feInv(a *big.Int) *big.Int    { return new(big.Int).ModInverse(a, fieldP) }
func feNeg(a *big.Int) *big.Int    { return feMod(new(big.Int).Neg(a)) }

// isQR reports whether v is a nonzero quadratic residue mod fieldP.
func isQR(v *big.Int) bool {
	if v.Sign() == 0 {
		return false
	}
	return big.Jacobi(v, fieldP) == 1
}

func feSqrt(v *big.Int) *big.Int { return new(big.Int).ModSqrt(v, fieldP) }

// curveRHS returns x^3+7 mod p.
func curveRHS(x *big.Int) *big.Int {
	x3 := feMul(feSqr(x), x)
	return feAdd(x3, curveB)
}

// isOnCurve reports whether x is the x-coordinate of some point on the
// curve.
func isOnCurve(x *big.Int) bool {
	rhs := curveRHS(x)
	return rhs.Sign() == 0 || isQR(rhs)
}

// xswiftec evaluates the SwiftEC-style decoding map for y^2=x^3+B curves:
// given field elements (u, t), it returns the unique x-coordinate the pair
// encodes.
func xswiftec(u, t *big.Int) *big.Int {
	if u.Sign() == 0 {
		u = big.NewInt(1)
	}
	if t.Sign() == 0 {
		t = big.NewInt(1)
	}
	u3 := feMul(feSqr(u), u)
	if feAdd(feAdd(u3, curveB), feSqr(t)).Sign() == 0 {
		t = feAdd(t, t)
	}
	// X = (u^3+B-t^2) / (2t)
	numX := feSub(feAdd(u3, curveB), feSqr(t))
	X := feMul(numX, feInv(feMul(two, t)))
	// Y = (X+t) / (c*u)
	Y := feMul(feAdd(X, t), feInv(feMul(sqrtNeg3, u)))
	if Y.Sign() == 0 {
		return u
	}
	Yinv := feInv(Y)
	candidates := [3]*big.Int{
		feAdd(u, feMul(four, feSqr(Y))),
		feMul(feSub(feNeg(feMul(X, Yinv)), u), feInv(two)),
		feMul(feSub(feMul(X, Yinv), u), feInv(two)),
	}
	for _, x := range candidates {
		if isOnCurve(x) {
			return x
		}
	}
	return u
}

// encodeBranch1 is the algebraic inverse of xswiftec's first branch,
// x = u + 4*Y^2: given a target x-coordinate, it searches random u values
// for one admitting a (u, t) pair that decodes back to x via that branch.
func encodeBranch1(x *big.Int) (u, t *big.Int, err error) {
	const maxAttempts = 512
	for attempt := 0; attempt < maxAttempts; attempt++ {
		uCandidate, err := randomFieldElement()
		if err != nil {
			return nil, nil, err
		}
		if uCandidate.Sign() == 0 {
			continue
		}
		// w = Y^2 = (x-u)/4
		w := feMul(feSub(x, uCandidate), feInv(four))
		if !isQR(w) {
			continue
		}
		Y := feSqrt(w)
		if coinFlip() {
			Y = feNeg(Y)
		}
		// s = c*u*Y ; t^2 - 2*s*t + (u^3+B) = 0
		s := feMul(feMul(sqrtNeg3, uCandidate), Y)
		u3plusB := feAdd(feMul(feSqr(uCandidate), uCandidate), curveB)
		disc := feSub(feSqr(s), u3plusB)
		if !isQR(disc) {
			continue
		}
		root := feSqrt(disc)
		tCandidate := feAdd(s, root)
		if coinFlip() {
			tCandidate = feSub(s, root)
		}
		if tCandidate.Sign() == 0 {
			continue
		}
		return uCandidate, tCandidate, nil
	}
	return nil, nil, fmt.Errorf("noise: ellswift encode exhausted attempts")
}

func randomFieldElement() (*big.Int, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("noise: random field element: %w", err)
		}
		v := new(big.Int).SetBytes(buf)
		if v.Cmp(fieldP) < 0 {
			return v, nil
		}
	}
}

func coinFlip() bool {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return b[0]&1 == 1
}

func fe32(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

// EllSwiftEncode produces a 64-byte ElligatorSwift encoding of the
// x-coordinate x (the x-only public key being published on the wire).
func EllSwiftEncode(x *big.Int) ([EllSwiftKeySize]byte, error) {
	var out [EllSwiftKeySize]byte
	u, t, err := encodeBranch1(x)
	if err != nil {
		return out, err
	}
	copy(out[0:32], fe32(u))
	copy(out[32:64], fe32(t))
	return out, nil
}

// EllSwiftDecodeX recovers the x-coordinate encoded by a 64-byte
// ElligatorSwift key.
func EllSwiftDecodeX(enc [EllSwiftKeySize]byte) *big.Int {
	u := new(big.Int).SetBytes(enc[0:32])
	t := new(big.Int).SetBytes(enc[32:64])
	return feMod(xswiftec(u, t))
}

// XOnlyECDH performs x-only Diffie-Hellman: it decodes their's 64-byte
// ElligatorSwift-encoded point to an x-coordinate, recovers a matching
// y-coordinate (either root serves: negating y negates the scalar product
// but not its x-coordinate), multiplies by our private scalar, and returns
// the big-endian x-coordinate of the resulting point as the shared secret.
func XOnlyECDH(ourPriv []byte, theirs [EllSwiftKeySize]byte) ([32]byte, error) {
	return xOnlyECDHWithX(ourPriv, EllSwiftDecodeX(theirs))
}

// xOnlyECDHWithX is XOnlyECDH's core, taking an already-decoded peer
// x-coordinate directly. Handshake code that has decoded a remote key once
// uses this to avoid a redundant decode.
func xOnlyECDHWithX(ourPriv []byte, x *big.Int) ([32]byte, error) {
	var secret [32]byte

	rhs := curveRHS(x)
	var y *big.Int
	if rhs.Sign() == 0 {
		y = big.NewInt(0)
	} else if isQR(rhs) {
		y = feSqrt(rhs)
	} else {
		return secret, fmt.Errorf("noise: ellswift decode produced an off-curve x-coordinate")
	}

	var pt, result btcec.JacobianPoint
	pt.X.SetByteSlice(fe32(x))
	pt.Y.SetByteSlice(fe32(y))
	pt.Z.SetInt(1)

	var k btcec.ModNScalar
	overflow := k.SetByteSlice(ourPriv)
	if overflow {
		return secret, fmt.Errorf("noise: private scalar out of range")
	}

	btcec.ScalarMultNonConst(&k, &pt, &result)
	result.ToAffine()

	xBytes := result.X.Bytes()
	copy(secret[:], xBytes[:])
	return secret, nil
}

// XOnlyPubKey derives the x-coordinate of privKey*G, as required to publish
// our own ElligatorSwift-encoded keys.
func XOnlyPubKey(privKey []byte) (*big.Int, error) {
	_, pub := btcec.PrivKeyFromBytes(privKey)
	xBytes := pub.X().Bytes()
	return new(big.Int).SetBytes(xBytes[:]), nil
}

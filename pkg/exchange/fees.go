package exchange

import "math/bits"

// Scale is the fixed-point rationalisation constant for prices: a ratio of
// Scale means 1 target unit per base unit.
const Scale uint64 = 1_000_000_000_000 // 10^12

// feePermill is the retained settlement/refund cut: 0.1% to the vault.
const feePermill uint64 = 999 // counterparty share, out of 1000

// FeeSplit divides v into the counterparty's net share and the vault fee.
// net = floor(v * 999/1000); net + fee == v always.
func FeeSplit(v uint64) (net, fee uint64) {
	net = mulDiv(v, feePermill, 1000)
	return net, v - net
}

// mulDiv computes a*b/den with a 128-bit intermediate, saturating at
// MaxUint64 when the quotient does not fit.
func mulDiv(a, b, den uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, den)
	return q
}

// satMul multiplies saturating at MaxUint64.
func satMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}

// satSub subtracts saturating at zero. Remaining order volume is defined to
// never go negative even when the implied-volume arithmetic overshoots.
func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

package domain

import "math/big"

// mulDivFloor computes floor(a * num / den) using math/big for the
// intermediate product so a*num never overflows an int64, then narrows the
// quotient back to int64. Every caller passes den = 10_000; num can exceed
// den (DelayCost's priority and overdue multipliers pass more than 10_000
// bps), so the quotient can be larger than a.
func mulDivFloor(a, num, den int64) int64 {
	if den == 0 {
		return 0
	}
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(num))
	q := new(big.Int)
	m := new(big.Int)
	q.QuoRem(prod, big.NewInt(den), m)
	// big.Int.QuoRem truncates toward zero; convert to floor division so
	// negative intermediate products round the same way integer cents
	// accounting expects (toward negative infinity), matching the spec's
	// "floor division" rounding rule.
	if m.Sign() != 0 && (m.Sign() < 0) != (den < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return q.Int64()
}

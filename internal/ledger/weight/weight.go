// Package weight implements the quadratic vote weight function: influence
// grows as the square root of reputation, so influence cannot scale linearly
// with headcount. Doubling accounts does not double total weight unless
// reputation is also doubled, and reputation is expensive to acquire.
package weight

// Scale is the fixed precision factor. Weights are integers in units of
// 1/Scale of a reputation square root, so sub-integer resolution survives
// integer arithmetic: reputation 10 yields 3162 (3.162 at unit scale).
const Scale = 1000

// ForReputation maps reputation to vote weight: isqrt(reputation · Scale²).
// Zero or negative reputation yields zero weight.
func ForReputation(reputation int) uint64 {
	if reputation <= 0 {
		return 0
	}
	return Isqrt(uint64(reputation) * Scale * Scale)
}

// Isqrt returns the floored integer square root of x by Newton's method
// (Babylonian iteration). Floor division keeps every step in integers, so the
// result is bit-exact and replayable across independent executions; the loop
// terminates when the estimate stops decreasing, guaranteeing y² ≤ x < (y+1)².
func Isqrt(x uint64) uint64 {
	if x < 2 {
		return x
	}
	// Start at x/2+1, an upper bound on the root for x >= 2. Starting at x
	// itself would let the first step compute x/1 + x, which wraps for huge
	// inputs and divides by zero next iteration.
	y := x/2 + 1
	for {
		z := (x/y + y) / 2
		if z >= y {
			return y
		}
		y = z
	}
}

// Package amm models trades against constant-product pool reserves. All
// functions are pure: results depend only on the inputs, so the valuation
// layer can replay them deterministically in tests.
package amm

import "math"

// SwapResult describes the simulated outcome of swapping AmountIn of the
// input token against a pool.
type SwapResult struct {
	AmountOut float64 // output tokens received
	OldPrice  float64 // reserveOut/reserveIn before the swap
	NewPrice  float64 // pool price after the swap
	Impact    float64 // |NewPrice-OldPrice|/OldPrice, in [0,1]
}

// Swap simulates a constant-product swap with the given pool fee.
//
//	out = in*(1-fee)*reserveOut / (reserveIn + in*(1-fee))
//
// Price impact is the fractional move of the pool price caused by the swap.
// It is monotonically non-decreasing in amountIn and stays below 1 for any
// finite trade against positive reserves. A pool with a zero reserve on
// either side is unusable: the result carries Impact 1 and AmountOut 0.
func Swap(reserveIn, reserveOut, amountIn, fee float64) SwapResult {
	if reserveIn <= 0 || reserveOut <= 0 {
		return SwapResult{Impact: 1}
	}

	oldPrice := reserveOut / reserveIn
	if amountIn <= 0 {
		return SwapResult{OldPrice: oldPrice, NewPrice: oldPrice}
	}

	inWithFee := amountIn * (1 - fee)
	amountOut := inWithFee * reserveOut / (reserveIn + inWithFee)

	newPrice := (reserveOut - amountOut) / (reserveIn + amountIn)
	impact := math.Abs(newPrice-oldPrice) / oldPrice

	return SwapResult{
		AmountOut: amountOut,
		OldPrice:  oldPrice,
		NewPrice:  newPrice,
		Impact:    impact,
	}
}

// SpotPrice returns reserveOut/reserveIn, or 0 when reserveIn is zero.
func SpotPrice(reserveIn, reserveOut float64) float64 {
	if reserveIn <= 0 {
		return 0
	}
	return reserveOut / reserveIn
}

package accrual

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	ValueConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}         // 0.000001 currency unit
	RateConfig  = DecimalConfig{DecimalPrecision: 9, Scale: 1_000_000_000}     // annual rate fraction
	ShareConfig = DecimalConfig{DecimalPrecision: 7, Scale: 10_000_000}        // 0.0000001 share
	RatioConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}         // congestion multiplier
)

// SecondsPerYear is the accrual year basis (365 days).
const SecondsPerYear = 31_536_000

// int128Pool holds pooled big.Ints for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() > 0 {
			result++
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// ConvertToShares converts a fee amount in value units to fund shares at the
// point-in-time share price: shares = amount * sharesOutstanding / fundValue.
// Both amount and fundValue carry ValueConfig scale; sharesOutstanding and the
// result carry ShareConfig scale. Returns 0 if the fund holds no value.
func ConvertToShares(amount, fundValue, sharesOutstanding int64) int64 {
	if fundValue <= 0 || amount <= 0 || sharesOutstanding <= 0 {
		return 0
	}

	numerator := MultiplyInt128(amount, sharesOutstanding)
	shares := DivideInt128(numerator, fundValue, RoundHalfEven)
	putInt128(numerator)

	return shares
}

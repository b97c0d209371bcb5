package accrual

import (
	"FeeMint/internal/event"
	"fmt"
	"math/big"
)

// Calculator computes the management fee owed for an elapsed interval:
//
//	fee = fundValue * annualRate * elapsedSeconds / secondsPerYear
//
// fundValue and the result carry ValueConfig scale; annualRate carries
// RateConfig scale. Pure and deterministic; fails only on invalid input.
//
// Minting is driven by ledger closes a few seconds apart, so per-interval
// amounts sit near the rounding floor. ComputeOwedWithRemainder carries the
// exact division remainder forward between calls, which makes accrual over
// consecutive sub-intervals sum to exactly the accrual over the whole
// interval — no drift, however small the slices.

// ComputeOwed returns the fee owed for a single interval, rounding half-even.
// Use ComputeOwedWithRemainder when amounts are accumulated across intervals.
func ComputeOwed(fundValue, annualRate, elapsedSeconds int64) (int64, error) {
	fee, _, err := computeOwed(fundValue, annualRate, elapsedSeconds, 0, RoundHalfEven)
	return fee, err
}

// ComputeOwedWithRemainder returns the fee owed plus the sub-unit remainder to
// carry into the next interval. The remainder is denominated in
// (annualRate-scale * secondsPerYear)-ths of one minimal value unit and must
// be fed back verbatim on the next call.
func ComputeOwedWithRemainder(fundValue, annualRate, elapsedSeconds, remainder int64) (fee, newRemainder int64, err error) {
	return computeOwed(fundValue, annualRate, elapsedSeconds, remainder, RoundDown)
}

func computeOwed(fundValue, annualRate, elapsedSeconds, remainder int64, mode RoundingMode) (int64, int64, error) {
	if fundValue < 0 {
		return 0, 0, fmt.Errorf("%w: negative fund value %d", event.ErrInvalidInput, fundValue)
	}
	if annualRate < 0 || annualRate >= RateConfig.Scale {
		return 0, 0, fmt.Errorf("%w: annual rate %d outside [0, %d)", event.ErrInvalidInput, annualRate, RateConfig.Scale)
	}
	if elapsedSeconds < 0 {
		return 0, 0, fmt.Errorf("%w: negative elapsed time %ds", event.ErrInvalidInput, elapsedSeconds)
	}
	if remainder < 0 {
		return 0, 0, fmt.Errorf("%w: negative remainder %d", event.ErrInvalidInput, remainder)
	}

	// numerator = fundValue * annualRate * elapsedSeconds + remainder
	numerator := MultiplyInt128(fundValue, annualRate)
	numerator.Mul(numerator, big.NewInt(elapsedSeconds))
	numerator.Add(numerator, big.NewInt(remainder))

	denominator := RateConfig.Scale * SecondsPerYear

	if mode == RoundDown {
		// Exact carry: fee = numerator div denom, remainder = numerator mod denom
		denom := big.NewInt(denominator)
		rem := getInt128()
		quotient := getInt128()
		quotient.DivMod(numerator, denom, rem)

		fee := quotient.Int64()
		newRemainder := rem.Int64()

		putInt128(quotient)
		putInt128(rem)
		putInt128(numerator)

		return fee, newRemainder, nil
	}

	fee := DivideInt128(numerator, denominator, mode)
	putInt128(numerator)

	return fee, 0, nil
}

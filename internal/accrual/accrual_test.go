package accrual_test

import (
	"FeeMint/internal/accrual"
	"FeeMint/internal/event"
	"errors"
	"testing"
)

// ============================================================================
// Test: ComputeOwed
// ============================================================================

func TestComputeOwed_TypicalCloseInterval(t *testing.T) {
	// $1,000,000 fund, 2% annual rate, 5-second close interval:
	// 1e6 value units * 0.02 * 5 / 31_536_000 ≈ 0.003171 value units
	fundValue := int64(1_000_000) * accrual.ValueConfig.Scale
	annualRate := int64(0.02 * float64(accrual.RateConfig.Scale))

	fee, err := accrual.ComputeOwed(fundValue, annualRate, 5)
	if err != nil {
		t.Fatalf("compute owed: %v", err)
	}
	// Exact quotient is 3170.979..., half-even rounds up.
	if fee != 3171 {
		t.Errorf("fee: got %d, want 3171", fee)
	}
}

func TestComputeOwed_ZeroRate(t *testing.T) {
	fee, err := accrual.ComputeOwed(1_000_000_000, 0, 3600)
	if err != nil {
		t.Fatalf("compute owed: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee: got %d, want 0", fee)
	}
}

func TestComputeOwed_ZeroElapsed(t *testing.T) {
	fee, err := accrual.ComputeOwed(1_000_000_000, 20_000_000, 0)
	if err != nil {
		t.Fatalf("compute owed: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee: got %d, want 0", fee)
	}
}

func TestComputeOwed_InvalidInputs(t *testing.T) {
	cases := []struct {
		name                 string
		value, rate, elapsed int64
	}{
		{"negative value", -1, 20_000_000, 5},
		{"negative rate", 1000, -1, 5},
		{"rate at scale", 1000, accrual.RateConfig.Scale, 5},
		{"negative elapsed", 1000, 20_000_000, -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accrual.ComputeOwed(tc.value, tc.rate, tc.elapsed)
			if !errors.Is(err, event.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

// ============================================================================
// Test: remainder carry
// ============================================================================

func TestComputeOwedWithRemainder_Additivity(t *testing.T) {
	// Accruing over many small slices with the remainder carried forward must
	// equal one accrual over the whole interval, exactly.
	fundValue := int64(2_500_000) * accrual.ValueConfig.Scale
	annualRate := int64(15_000_000) // 1.5%

	slices := []int64{1, 5, 7, 2, 13, 4, 4, 60, 1, 3}
	var totalElapsed int64
	for _, s := range slices {
		totalElapsed += s
	}

	wholeFee, wholeRem, err := accrual.ComputeOwedWithRemainder(fundValue, annualRate, totalElapsed, 0)
	if err != nil {
		t.Fatalf("whole interval: %v", err)
	}

	var slicedFee, rem int64
	for i, s := range slices {
		var fee int64
		fee, rem, err = accrual.ComputeOwedWithRemainder(fundValue, annualRate, s, rem)
		if err != nil {
			t.Fatalf("slice %d: %v", i, err)
		}
		slicedFee += fee
	}

	if slicedFee != wholeFee {
		t.Errorf("sliced fee: got %d, want %d", slicedFee, wholeFee)
	}
	if rem != wholeRem {
		t.Errorf("final remainder: got %d, want %d", rem, wholeRem)
	}
}

func TestComputeOwedWithRemainder_TinyFundNoDrift(t *testing.T) {
	// A fund so small that each slice rounds to a zero fee must still
	// accumulate the remainder and eventually produce a unit.
	fundValue := int64(100) * accrual.ValueConfig.Scale // $100
	annualRate := int64(10_000_000)                     // 1%

	var total, rem int64
	var err error
	// 1% of $100 over a year is $1. Accrue 1000 one-second slices.
	for i := 0; i < 1000; i++ {
		var fee int64
		fee, rem, err = accrual.ComputeOwedWithRemainder(fundValue, annualRate, 1, rem)
		if err != nil {
			t.Fatalf("slice %d: %v", i, err)
		}
		total += fee
	}

	whole, _, err := accrual.ComputeOwedWithRemainder(fundValue, annualRate, 1000, 0)
	if err != nil {
		t.Fatalf("whole: %v", err)
	}
	if total != whole {
		t.Errorf("accumulated fee: got %d, want %d", total, whole)
	}
	if whole == 0 {
		t.Fatal("test expects a nonzero fee over 1000s")
	}
}

// ============================================================================
// Test: fixed-point helpers
// ============================================================================

func TestDivideInt128_BankersRounding(t *testing.T) {
	cases := []struct {
		numerator int64
		denom     int64
		want      int64
	}{
		{5, 2, 2},  // 2.5 rounds to even 2
		{7, 2, 4},  // 3.5 rounds to even 4
		{6, 4, 2},  // 1.5 rounds to even 2
		{9, 4, 2},  // 2.25 rounds down
		{11, 4, 3}, // 2.75 rounds up
	}
	for _, tc := range cases {
		got := accrual.DivideInt128(accrual.MultiplyInt128(tc.numerator, 1), tc.denom, accrual.RoundHalfEven)
		if got != tc.want {
			t.Errorf("%d/%d: got %d, want %d", tc.numerator, tc.denom, got, tc.want)
		}
	}
}

func TestConvertToShares(t *testing.T) {
	// $10 fee against a $1,000,000 fund with 1,000,000 shares outstanding:
	// share price $1, so 10 shares.
	amount := int64(10) * accrual.ValueConfig.Scale
	fundValue := int64(1_000_000) * accrual.ValueConfig.Scale
	sharesOutstanding := int64(1_000_000) * accrual.ShareConfig.Scale

	shares := accrual.ConvertToShares(amount, fundValue, sharesOutstanding)
	if shares != 10*accrual.ShareConfig.Scale {
		t.Errorf("shares: got %d, want %d", shares, 10*accrual.ShareConfig.Scale)
	}
}

func TestConvertToShares_EmptyFund(t *testing.T) {
	if got := accrual.ConvertToShares(1000, 0, 1000); got != 0 {
		t.Errorf("zero fund value: got %d, want 0", got)
	}
	if got := accrual.ConvertToShares(1000, 1000, 0); got != 0 {
		t.Errorf("zero shares outstanding: got %d, want 0", got)
	}
}

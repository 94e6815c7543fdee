// Package returns computes annualised and absolute portfolio returns.
package returns

import (
	"errors"
	"math"
	"slices"

	"mf-portfolio-go/internal/date"

	"github.com/shopspring/decimal"
)

const (
	maxIterations = 100
	tolerance     = 1e-6
	minRate       = -0.99
	maxRate       = 10.0
	daysPerYear   = 365.0
)

var (
	ErrTooFewFlows   = errors.New("xirr needs at least two cash flows")
	ErrNoConvergence = errors.New("xirr did not converge")
)

// CashFlow is money paid out (negative) or received (positive) on a day.
type CashFlow struct {
	Date   date.Date
	Amount decimal.Decimal
}

// XIRR returns the annual rate at which the net present value of flows is
// zero, found by Newton-Raphson from guess. The rate is kept within
// [-0.99, 10]. Flows that are all of one sign have no such rate.
func XIRR(flows []CashFlow, guess float64) (float64, error) {
	if len(flows) < 2 {
		return 0, ErrTooFewFlows
	}

	sorted := slices.Clone(flows)
	slices.SortStableFunc(sorted, func(a, b CashFlow) int { return a.Date.Compare(b.Date) })

	var pos, neg bool
	years := make([]float64, len(sorted))
	amounts := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = float64(f.Date.DaysSince(sorted[0].Date)) / daysPerYear
		amounts[i] = f.Amount.InexactFloat64()
		pos = pos || amounts[i] > 0
		neg = neg || amounts[i] < 0
	}
	if !pos || !neg {
		return 0, ErrNoConvergence
	}

	rate := guess
	for i := 0; i < maxIterations; i++ {
		npv, dnpv := presentValue(rate, years, amounts)
		if math.Abs(npv) < tolerance {
			return rate, nil
		}
		if math.Abs(dnpv) < 1e-10 {
			break
		}

		rate -= npv / dnpv
		rate = math.Max(minRate, math.Min(maxRate, rate))
	}

	// Accept a near root only if it holds at the rate actually returned.
	if npv, _ := presentValue(rate, years, amounts); math.Abs(npv) < 0.01 {
		return rate, nil
	}
	return 0, ErrNoConvergence
}

// presentValue returns the NPV of amounts at rate and its derivative.
func presentValue(rate float64, years, amounts []float64) (npv, dnpv float64) {
	for j := range amounts {
		factor := math.Pow(1+rate, years[j])
		npv += amounts[j] / factor
		dnpv -= years[j] * amounts[j] / (factor * (1 + rate))
	}
	return npv, dnpv
}

// CAGR returns the compound annual growth rate in percent of invested
// growing to current over days. ok is false when an input is not positive
// or the period is too short to annualise.
func CAGR(invested, current decimal.Decimal, days int) (pct float64, ok bool) {
	if !invested.IsPositive() || !current.IsPositive() || days <= 0 {
		return 0, false
	}
	years := float64(days) / daysPerYear
	if years < 0.01 {
		return 0, false
	}
	ratio := current.Div(invested).InexactFloat64()
	return (math.Pow(ratio, 1/years) - 1) * 100, true
}

// Absolute returns (current - invested) / invested in percent, or zero
// when nothing was invested.
func Absolute(invested, current decimal.Decimal) decimal.Decimal {
	if invested.IsZero() {
		return decimal.Zero
	}
	return current.Sub(invested).Div(invested).Mul(decimal.NewFromInt(100))
}

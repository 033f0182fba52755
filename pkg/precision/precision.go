// Package precision holds the decimal helpers used for order sizing,
// price rounding and exchange wire formatting.
package precision

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotLotMultiple means rounding to the contract precision moved the size
// off the lot grid, i.e. the precision is too coarse for lotSz.
var ErrNotLotMultiple = errors.New("contract size is not a multiple of the lot size")

var (
	ten   = decimal.NewFromInt(10)
	tenth = decimal.New(1, -1)
)

// CountDecimals returns the number of digits after the decimal point in a
// step string such as "0.001" (3) or "1" (0).
func CountDecimals(step string) int {
	step = strings.TrimSpace(step)
	if i := strings.IndexByte(step, '.'); i >= 0 {
		return len(step) - i - 1
	}
	return 0
}

// ContractSize converts a margin budget into a contract count that is a whole
// multiple of lotSz:
//
//	round(round((margin*volumeRate/100*leverage/entry)/ctVal/lotSz)*lotSz, contractPrecision)
//
// Halves round to even. A zero or negative result means the order must not
// be placed.
func ContractSize(margin, volumeRate float64, leverage int, entry, ctVal, lotSz float64, contractPrecision int) (decimal.Decimal, error) {
	if entry <= 0 || ctVal <= 0 || lotSz <= 0 {
		return decimal.Zero, fmt.Errorf("invalid sizing inputs: entry=%v ctVal=%v lotSz=%v", entry, ctVal, lotSz)
	}
	deal := decimal.NewFromFloat(margin).Mul(decimal.NewFromFloat(volumeRate)).Div(decimal.NewFromInt(100))
	baseQty := deal.Mul(decimal.NewFromInt(int64(leverage))).Div(decimal.NewFromFloat(entry))
	lot := decimal.NewFromFloat(lotSz)
	steps := baseQty.Div(decimal.NewFromFloat(ctVal)).Div(lot).RoundBank(0)
	size := steps.Mul(lot).RoundBank(int32(contractPrecision))
	if !IsLotMultiple(size, lotSz) {
		return decimal.Zero, fmt.Errorf("%w: %s with lotSz=%v precision=%d", ErrNotLotMultiple, size, lotSz, contractPrecision)
	}
	return size, nil
}

// FixPriceScale rescales price by the power of ten that brings it into the
// same decade as the reference mark price. Prices that are already within a
// factor of ~3 of the mark, or non-positive inputs, are returned unchanged.
func FixPriceScale(price, mark float64) float64 {
	if price <= 0 || mark <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	ratio := decimal.NewFromFloat(mark).Div(p)
	exp := int32(math.Round(math.Log10(ratio.InexactFloat64())))
	mult := decimal.New(1, exp)
	if mult.GreaterThanOrEqual(ten) || mult.LessThanOrEqual(tenth) {
		return p.Mul(mult).InexactFloat64()
	}
	return price
}

// RoundPrice rounds v to the instrument's price precision.
func RoundPrice(v float64, pricePrecision int) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(int32(pricePrecision))
}

// Round rounds v to places decimals and returns it as float64.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Wire renders a decimal as the plain string the exchange expects.
func Wire(d decimal.Decimal) string {
	return d.String()
}

// IsLotMultiple reports whether contracts is an exact multiple of lotSz.
func IsLotMultiple(contracts decimal.Decimal, lotSz float64) bool {
	lot := decimal.NewFromFloat(lotSz)
	if lot.IsZero() {
		return false
	}
	return contracts.Mod(lot).IsZero()
}

// FormatDuration renders a millisecond span as "Xh Ym", "Xm Ys", "Xm" or "Xs".
// Spans of an hour or more always use the hour form.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0 && seconds > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

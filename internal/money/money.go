package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Paise is an amount of the external currency in minor units.
type Paise int64

// Credits is an amount of internal wallet credit.
type Credits int64

// CreditRateVersion identifies the conversion rate below. Bump it together with
// CreditRate so historical entries can be traced back to the rate in force.
const CreditRateVersion = "2024-01"

// CreditRate is the number of credits granted per paise paid through the gateway.
// It is the only place the conversion is defined.
var CreditRate = decimal.RequireFromString("0.02")

// ErrInvalidAmount rejects amounts that are not positive, whole paise or in range.
var ErrInvalidAmount = errors.New("invalid amount")

var maxPaise = decimal.NewFromInt(math.MaxInt64)

// ToCredits converts a gateway amount into credits, rounding down.
func ToCredits(p Paise) Credits {
	return Credits(decimal.NewFromInt(int64(p)).Mul(CreditRate).Floor().IntPart())
}

// ParsePaise parses a decimal rupee string ("12.34") into paise.
func ParsePaise(rupees string) (Paise, error) {
	d, err := decimal.NewFromString(rupees)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	paise := d.Mul(decimal.NewFromInt(100))
	if !paise.Equal(paise.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}
	if paise.GreaterThan(maxPaise) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Paise(paise.IntPart()), nil
}

// String formats paise as rupees with two decimals.
func (p Paise) String() string {
	return decimal.New(int64(p), -2).StringFixed(2)
}

// Abs returns the magnitude of c.
func (c Credits) Abs() Credits {
	if c < 0 {
		return -c
	}
	return c
}

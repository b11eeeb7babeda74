// Package money converts between catalog prices and the integer cents the
// stores persist. All arithmetic on totals happens in cents.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Cents is an amount in minor units.
type Cents int64

// FromFloat converts a price such as 2.5 to 250 cents, rounding half away from zero.
func FromFloat(v float64) Cents {
	return Cents(decimal.NewFromFloat(v).Mul(hundred).Round(0).IntPart())
}

// Parse reads a decimal string such as "10.00".
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return Cents(d.Mul(hundred).Round(0).IntPart()), nil
}

// LineTotal is quantity × unit with a percentage discount applied.
func LineTotal(quantity int, unit Cents, discountPct float64) Cents {
	total := decimal.NewFromInt(int64(unit)).Mul(decimal.NewFromInt(int64(quantity)))
	if discountPct > 0 {
		keep := hundred.Sub(decimal.NewFromFloat(discountPct)).Div(hundred)
		total = total.Mul(keep)
	}
	return Cents(total.Round(0).IntPart())
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats as a fixed two-decimal amount, e.g. "10.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

func (c Cents) Float64() float64 {
	f, _ := c.Decimal().Float64()
	return f
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cents) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

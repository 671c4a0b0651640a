/*
Package money provides integer-minor-unit currency arithmetic and the
fiscal-calendar helpers the billing core reasons about dates with.

PURPOSE:
  Every amount inside the billing core is a signed int64 count of
  centavos (1/100 of a peso). Peso-decimal values only exist at the
  API/UI edge, parsed in and formatted out through this package.

WHY INTEGERS:
  Floating point pesos accumulate rounding error across thousands of
  bill/payment operations. The source system this core replaces stored
  some amounts in pesos and some in centavos inconsistently (see
  DESIGN.md); this package is the single place that conversion happens
  so the rest of the core never multiplies a float.

SEE ALSO:
  - clock.go: the substitutable "now" used everywhere instead of time.Now
  - fiscal.go: fiscal-year window and month-index helpers
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a signed integer count of centavos (1/100 of a peso).
type Money int64

// Zero is the additive identity.
const Zero Money = 0

func (m Money) Add(other Money) Money { return m + other }
func (m Money) Sub(other Money) Money { return m - other }
func (m Money) Neg() Money             { return -m }
func (m Money) IsZero() bool           { return m == 0 }
func (m Money) IsNegative() bool       { return m < 0 }
func (m Money) IsPositive() bool       { return m > 0 }

func (m Money) Min(other Money) Money {
	if m < other {
		return m
	}
	return other
}

func (m Money) Max(other Money) Money {
	if m > other {
		return m
	}
	return other
}

// Centavos parses a decimal peso string ("123.45") into centavos,
// rounding to the nearest minor unit using banker's rounding (round
// half to even), matching the engine's "intermediate division uses
// banker's rounding" rule.
func Centavos(pesosString string) (Money, error) {
	d, err := decimal.NewFromString(pesosString)
	if err != nil {
		return 0, fmt.Errorf("money: invalid pesos string %q: %w", pesosString, err)
	}
	return fromDecimalPesos(d), nil
}

// MustCentavos is Centavos but panics on a malformed literal; it exists
// for package-level constants and tests, never for user input.
func MustCentavos(pesosString string) Money {
	m, err := Centavos(pesosString)
	if err != nil {
		panic(err)
	}
	return m
}

// NonNegativeCentavos is Centavos for "non-negative context" callers
// (e.g. parsing a configured rate): it rejects a negative result.
func NonNegativeCentavos(pesosString string) (Money, error) {
	m, err := Centavos(pesosString)
	if err != nil {
		return 0, err
	}
	if m.IsNegative() {
		return 0, fmt.Errorf("money: %q must not be negative", pesosString)
	}
	return m, nil
}

func fromDecimalPesos(d decimal.Decimal) Money {
	centavos := d.Mul(decimal.NewFromInt(100)).RoundBank(0)
	return Money(centavos.IntPart())
}

// DisplayPesos formats centavos as a locale-formatted peso string.
// Only "es-MX" and "en-US" groupings are supported; both produce
// identical output ("," thousands separator, "." decimal separator),
// so the locale argument does not change the result.
func DisplayPesos(c Money, locale string) string {
	whole := int64(c) / 100
	frac := int64(c) % 100
	if frac < 0 {
		frac = -frac
	}
	sign := ""
	if c < 0 && whole == 0 {
		sign = "-"
	}
	grouped := groupThousands(whole, locale)
	sep := "."
	if locale == "es-MX" {
		sep = "."
	}
	return fmt.Sprintf("$%s%s%s%02d", sign, grouped, sep, frac)
}

func groupThousands(n int64, locale string) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// MulRate multiplies an amount by a decimal rate (e.g. a 0.05 penalty
// rate, or a per-m3 tariff), rounding the result to the nearest
// centavo with banker's rounding. This is the only place the engine
// performs non-integer multiplication; the result is always re-cast
// to integer Money immediately.
func MulRate(base Money, rate decimal.Decimal) Money {
	product := decimal.NewFromInt(int64(base)).Mul(rate).RoundBank(0)
	return Money(product.IntPart())
}

// CompoundFactor returns (1+rate)^months - 1 as a decimal, the
// compounding multiplier the penalty engine applies to an unpaid base.
func CompoundFactor(rate decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	factor := one
	compounded := one.Add(rate)
	for i := 0; i < months; i++ {
		factor = factor.Mul(compounded)
	}
	return factor.Sub(one)
}

// Package amount converts user-facing quantities (token amounts, dollar
// amounts, percentages of a position) into minimal on-chain units. All math
// runs on big integers and rationals; float64 never touches an amount.
package amount

import (
	"math/big"
	"strings"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
)

// Unit says how a quantity is denominated.
type Unit string

const (
	UnitSymbol  Unit = "SYMBOL"
	UnitUSD     Unit = "USD"
	UnitPercent Unit = "PERCENT"
)

// MaxSafeAmount caps any computed minimal-unit amount at 2^53-1 so results
// survive round-trips through JSON layers that read numbers as float64.
var MaxSafeAmount = new(big.Int).SetUint64(1<<53 - 1)

// percentScale carries percentages to a hundredth of a basis point before
// the integer division.
var (
	percentScale   = big.NewInt(10_000)
	percentDivisor = big.NewInt(1_000_000)
	oneHundred     = new(big.Rat).SetInt64(100)
)

// ParseUnit maps the extraction layer's unit spelling to a Unit. An empty
// unit means the quantity is a plain token amount.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "SYMBOL", "TOKEN":
		return UnitSymbol, nil
	case "USD", "$":
		return UnitUSD, nil
	case "PERCENT", "%":
		return UnitPercent, nil
	}
	return "", agerr.Newf(agerr.CodeInvalidAmount, "unrecognized amount unit %q", raw)
}

// ToMinimalUnits converts quantity, denominated in unit, to minimal units of
// the pool's asset. percentBase is the position balance a percentage applies
// to and is required only for UnitPercent.
//
// Rounding: token and dollar quantities round half away from zero at the
// minimal-unit boundary; percentages floor at a hundredth of a basis point so
// a percentage never spends more than the base.
func ToMinimalUnits(pool navi.Pool, quantity string, unit Unit, percentBase *big.Int) (*big.Int, error) {
	q, err := parseQuantity(quantity)
	if err != nil {
		return nil, err
	}

	var units *big.Int
	switch unit {
	case UnitSymbol:
		units = roundRat(scaleRat(q, pool.Decimals))
	case UnitUSD:
		price, ok := new(big.Rat).SetString(strings.TrimSpace(pool.Price))
		if !ok || price.Sign() <= 0 {
			return nil, agerr.Newf(agerr.CodePriceUnavailable, "no usable price for %s", pool.Symbol)
		}
		units = roundRat(scaleRat(new(big.Rat).Quo(q, price), pool.Decimals))
	case UnitPercent:
		if percentBase == nil || percentBase.Sign() <= 0 {
			return nil, agerr.New(agerr.CodePercentBase, "no balance to take a percentage of")
		}
		if q.Cmp(oneHundred) > 0 {
			return nil, agerr.Newf(agerr.CodePercentBase, "percentage %s exceeds 100", q.RatString())
		}
		scaled := floorRat(new(big.Rat).Mul(q, new(big.Rat).SetInt(percentScale)))
		units = new(big.Int).Mul(percentBase, scaled)
		units.Quo(units, percentDivisor)
	default:
		return nil, agerr.Newf(agerr.CodeInvalidAmount, "unrecognized amount unit %q", unit)
	}

	if units.Sign() <= 0 {
		return nil, agerr.New(agerr.CodeInvalidAmount, "amount rounds to zero")
	}
	if units.Cmp(MaxSafeAmount) > 0 {
		return nil, agerr.New(agerr.CodeAmountOverflow, "amount exceeds the safe integer ceiling")
	}
	return units, nil
}

// ToMist converts a plain SUI quantity to mist.
func ToMist(quantity string) (*big.Int, error) {
	return ToMinimalUnits(navi.Pool{Symbol: navi.NativeSymbol, Decimals: navi.NativeDecimals}, quantity, UnitSymbol, nil)
}

// ToCoin renders minimal units as a human decimal string, trimming trailing
// zeros ("1500000000", 9 -> "1.5").
func ToCoin(units *big.Int, decimals int) string {
	if units == nil {
		return "0"
	}
	s := new(big.Int).Abs(units).String()
	neg := units.Sign() < 0
	if decimals <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	cut := len(s) - decimals
	whole, frac := s[:cut], s[cut:]
	frac = strings.TrimRight(frac, "0")
	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

func parseQuantity(raw string) (*big.Rat, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, agerr.New(agerr.CodeInvalidAmount, "empty amount")
	}
	q, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, agerr.Newf(agerr.CodeInvalidAmount, "unparseable amount %q", raw)
	}
	if q.Sign() <= 0 {
		return nil, agerr.Newf(agerr.CodeInvalidAmount, "amount must be positive, got %q", raw)
	}
	return q, nil
}

func scaleRat(q *big.Rat, decimals int) *big.Rat {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).Mul(q, new(big.Rat).SetInt(scale))
}

// roundRat rounds half away from zero to the nearest integer.
func roundRat(r *big.Rat) *big.Int {
	quo, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	rem.Abs(rem).Mul(rem, big.NewInt(2))
	if rem.Cmp(r.Denom()) >= 0 {
		if r.Sign() >= 0 {
			quo.Add(quo, big.NewInt(1))
		} else {
			quo.Sub(quo, big.NewInt(1))
		}
	}
	return quo
}

// floorRat truncates toward negative infinity; inputs here are nonnegative,
// so plain integer division suffices.
func floorRat(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}

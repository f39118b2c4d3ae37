// Package amount converts between UI decimal amounts and integer base units
// without going through floating point.
package amount

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Amount is a selected quantity of a token in both representations.
type Amount struct {
	UI   *big.Rat
	Base *big.Int
}

// String renders the UI amount without trailing zeros.
func (a Amount) String() string {
	if a.UI == nil {
		return "0"
	}
	return FormatRat(a.UI)
}

// ParseUI parses user-entered decimal text such as "1.25".
func ParseUI(text string) (*big.Rat, error) {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, ",", ".")
	if !decimalPattern.MatchString(s) {
		return nil, errs.Newf(errs.CodeValidation, "invalid amount %q, enter a number like 1.5", text)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, errs.Newf(errs.CodeValidation, "invalid amount %q", text)
	}
	return r, nil
}

// ParseBalance parses a balance reported by a provider; empty means zero.
func ParseBalance(s string) *big.Rat {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Rat)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return new(big.Rat)
	}
	return r
}

// ToBaseUnits returns floor(ui * 10^decimals).
func ToBaseUnits(ui *big.Rat, decimals uint8) *big.Int {
	if ui == nil || ui.Sign() <= 0 {
		return new(big.Int)
	}
	scaled := new(big.Rat).Mul(ui, new(big.Rat).SetInt(pow10(decimals)))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

// FromBaseUnits returns base / 10^decimals.
func FromBaseUnits(base *big.Int, decimals uint8) *big.Rat {
	if base == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(base, pow10(decimals))
}

// ParseBaseUnits parses an integer base-unit string.
func ParseBaseUnits(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

// FloorToGrid truncates ui to the token's base-unit grid.
func FloorToGrid(ui *big.Rat, decimals uint8) *big.Rat {
	return FromBaseUnits(ToBaseUnits(ui, decimals), decimals)
}

// Percent selects pct percent of balance. 100% returns the balance as is,
// using rawBase verbatim when the provider reported it; every other
// fraction floors to the base-unit grid.
func Percent(balance *big.Rat, rawBase string, pct int, decimals uint8) (Amount, error) {
	if pct <= 0 || pct > 100 {
		return Amount{}, errs.Newf(errs.CodeValidation, "invalid percentage %d", pct)
	}
	if balance == nil || balance.Sign() <= 0 {
		return Amount{}, errs.New(errs.CodeValidation, "balance is empty")
	}
	if pct == 100 {
		ui := new(big.Rat).Set(balance)
		base, ok := ParseBaseUnits(rawBase)
		if !ok {
			base = ToBaseUnits(ui, decimals)
		}
		return Amount{UI: ui, Base: base}, nil
	}
	share := new(big.Rat).Mul(balance, big.NewRat(int64(pct), 100))
	base := ToBaseUnits(share, decimals)
	if base.Sign() == 0 {
		return Amount{}, errs.Newf(errs.CodeValidation, "%d%% of the balance rounds to zero", pct)
	}
	return Amount{UI: FromBaseUnits(base, decimals), Base: base}, nil
}

// Manual validates a typed amount against the balance and floors it to the grid.
func Manual(text string, balance *big.Rat, decimals uint8) (Amount, error) {
	ui, err := ParseUI(text)
	if err != nil {
		return Amount{}, err
	}
	if ui.Sign() <= 0 {
		return Amount{}, errs.New(errs.CodeValidation, "amount must be greater than zero")
	}
	if balance != nil && ui.Cmp(balance) > 0 {
		return Amount{}, errs.Newf(errs.CodeValidation, "amount exceeds available balance (%s)", FormatRat(balance))
	}
	base := ToBaseUnits(ui, decimals)
	if base.Sign() == 0 {
		return Amount{}, errs.New(errs.CodeValidation, "amount is below the token's smallest unit")
	}
	return Amount{UI: FromBaseUnits(base, decimals), Base: base}, nil
}

// FormatRat renders r with up to 12 fractional digits, trailing zeros trimmed.
func FormatRat(r *big.Rat) string {
	return FormatRatPrec(r, 12)
}

// FormatRatPrec renders r rounded to prec fractional digits, trailing zeros trimmed.
func FormatRatPrec(r *big.Rat, prec int) string {
	if r == nil {
		return "0"
	}
	s := r.FloatString(prec)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// FormatBase renders base units as a decimal string for the given decimals.
func FormatBase(base *big.Int, decimals uint8) string {
	return FormatRatPrec(FromBaseUnits(base, decimals), int(decimals))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// Package pricing parses limit-order trigger prices and enforces the
// market-distance and minimum-notional guards.
package pricing

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/errs"
)

// Kind tells how a price input was written.
type Kind string

const (
	Absolute   Kind = "absolute"
	Percentage Kind = "percentage"
)

// Direction fixes buy/sell semantics of a limit order.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

const (
	// MaxDeviationPct bounds how far a trigger may sit from market.
	MaxDeviationPct = 5
	// MinNotionalUSD is the smallest order value accepted.
	MinNotionalUSD = 5
)

var (
	percentPattern  = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)%$`)
	absolutePattern = regexp.MustCompile(`^\$?(\d+(?:\.\d+)?)$`)
)

// Input is the syntactic result of parsing; it needs no market data.
type Input struct {
	Kind  Kind
	Value *big.Rat
}

// Resolved is an Input bound to the market price it was resolved against.
type Resolved struct {
	Input
	Trigger *big.Rat
	// Market is the snapshot used for percentage resolution; nil for absolute input.
	Market *big.Rat
}

// Parse recognises "$150.50", "150.50", "+5%", "-5%" and "5%".
func Parse(text string) (Input, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if m := percentPattern.FindStringSubmatch(s); m != nil {
		v, ok := new(big.Rat).SetString(strings.TrimPrefix(m[1], "+"))
		if !ok {
			return Input{}, errs.Newf(errs.CodeValidation, "invalid percentage %q", text)
		}
		return Input{Kind: Percentage, Value: v}, nil
	}
	if m := absolutePattern.FindStringSubmatch(s); m != nil {
		v, ok := new(big.Rat).SetString(m[1])
		if !ok {
			return Input{}, errs.Newf(errs.CodeValidation, "invalid price %q", text)
		}
		if v.Sign() <= 0 {
			return Input{}, errs.New(errs.CodeValidation, "price must be greater than 0")
		}
		return Input{Kind: Absolute, Value: v}, nil
	}
	return Input{}, errs.Newf(errs.CodeValidation, "unrecognised price %q, use 150.50, $150.50 or +5%%", text)
}

// NeedsMarket reports whether resolution requires a live price read.
func (in Input) NeedsMarket() bool { return in.Kind == Percentage }

// Resolve computes the trigger price. Percentage input is relative to market
// at call time: trigger = market * (1 + pct/100).
func Resolve(in Input, market *big.Rat) (Resolved, error) {
	switch in.Kind {
	case Absolute:
		return Resolved{Input: in, Trigger: new(big.Rat).Set(in.Value)}, nil
	case Percentage:
		if market == nil || market.Sign() <= 0 {
			return Resolved{}, errs.New(errs.CodeValidation, "current price unavailable, enter an absolute price instead")
		}
		factor := new(big.Rat).Add(big.NewRat(1, 1), new(big.Rat).Quo(in.Value, big.NewRat(100, 1)))
		trigger := new(big.Rat).Mul(market, factor)
		if trigger.Sign() <= 0 {
			return Resolved{}, errs.New(errs.CodeValidation, "resulting trigger price must be greater than 0")
		}
		return Resolved{Input: in, Trigger: trigger, Market: new(big.Rat).Set(market)}, nil
	}
	return Resolved{}, errs.New(errs.CodeValidation, "unknown price kind")
}

// Guard rejects a buy trigger more than MaxDeviationPct above market and a
// sell trigger more than MaxDeviationPct below market.
func Guard(dir Direction, trigger, market *big.Rat) error {
	if trigger == nil || market == nil || market.Sign() <= 0 {
		return errs.New(errs.CodeValidation, "market price unavailable for guard check")
	}
	switch dir {
	case Buy:
		limit := new(big.Rat).Mul(market, big.NewRat(100+MaxDeviationPct, 100))
		if trigger.Cmp(limit) > 0 {
			return errs.Newf(errs.CodeGuard, "buy price %s is more than %d%% above market %s (max %s)",
				FormatPrice(trigger), MaxDeviationPct, FormatPrice(market), FormatPrice(limit))
		}
	case Sell:
		limit := new(big.Rat).Mul(market, big.NewRat(100-MaxDeviationPct, 100))
		if trigger.Cmp(limit) < 0 {
			return errs.Newf(errs.CodeGuard, "sell price %s is more than %d%% below market %s (min %s)",
				FormatPrice(trigger), MaxDeviationPct, FormatPrice(market), FormatPrice(limit))
		}
	default:
		return errs.Newf(errs.CodeValidation, "unknown direction %q", dir)
	}
	return nil
}

// CheckMinNotional enforces amount*usdPrice >= MinNotionalUSD. A nil price
// means the oracle was unavailable and the check is skipped.
func CheckMinNotional(ui, usdPrice *big.Rat) error {
	if usdPrice == nil || ui == nil {
		return nil
	}
	notional := new(big.Rat).Mul(ui, usdPrice)
	if notional.Cmp(big.NewRat(MinNotionalUSD, 1)) < 0 {
		return errs.Newf(errs.CodeGuard, "order value $%s is below the $%d minimum",
			notional.FloatString(2), MinNotionalUSD)
	}
	return nil
}

// FormatPrice renders a USD price with precision scaled to its magnitude.
func FormatPrice(p *big.Rat) string {
	if p == nil {
		return "$0"
	}
	switch {
	case p.Cmp(big.NewRat(1, 1)) >= 0:
		return "$" + p.FloatString(2)
	case p.Cmp(big.NewRat(1, 100)) >= 0:
		return "$" + p.FloatString(4)
	default:
		return "$" + amount.FormatRatPrec(p, 8)
	}
}

// FormatPercent renders a signed percentage such as "+5.0%".
func FormatPercent(v *big.Rat) string {
	if v == nil {
		return "0%"
	}
	sign := ""
	if v.Sign() >= 0 {
		sign = "+"
	}
	return sign + v.FloatString(1) + "%"
}

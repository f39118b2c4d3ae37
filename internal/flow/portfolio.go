package flow

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/amount"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/session"
)

const (
	// maxTokenButtons caps the token picker.
	maxTokenButtons = 10
	unknownSymbol   = "Unknown"
)

// portfolio returns the nonzero balances of address: SOL first, then
// tokens by symbol.
func (e *Engine) portfolio(ctx context.Context, address string) ([]session.TokenRef, error) {
	h, err := e.trading.Holdings(ctx, address)
	if err != nil {
		return nil, errs.Wrap(errs.CodeUpstream, "Error loading your holdings", err)
	}

	var out []session.TokenRef
	if sol := amount.ParseBalance(h.UIAmountString); sol.Sign() > 0 {
		out = append(out, session.TokenRef{
			Mint:      session.NativeMint,
			Symbol:    "SOL",
			Decimals:  session.NativeDecimals,
			UIAmount:  h.UIAmountString,
			RawAmount: h.Amount,
		})
	}

	var tokens []session.TokenRef
	for mint, accounts := range h.Tokens {
		if mint == session.NativeMint || len(accounts) == 0 {
			continue
		}
		acc := accounts[0]
		if amount.ParseBalance(acc.UIAmountString).Sign() <= 0 {
			continue
		}
		ref := session.TokenRef{
			Mint:      mint,
			Symbol:    unknownSymbol,
			Decimals:  acc.Decimals,
			UIAmount:  acc.UIAmountString,
			RawAmount: acc.Amount,
		}
		if tok, ok := e.lookup(ctx, mint); ok {
			ref.Symbol = tok.Symbol
		}
		tokens = append(tokens, ref)
	}
	sort.Slice(tokens, func(i, j int) bool {
		a, b := strings.ToUpper(tokens[i].Symbol), strings.ToUpper(tokens[j].Symbol)
		if a != b {
			return a < b
		}
		return tokens[i].Mint < tokens[j].Mint
	})
	return append(out, tokens...), nil
}

// lookup resolves mint metadata, tolerating directory failures.
func (e *Engine) lookup(ctx context.Context, mint string) (jupiter.Token, bool) {
	if e.directory == nil {
		return jupiter.Token{}, false
	}
	tok, ok, err := e.directory.Resolve(ctx, mint)
	if err != nil {
		logger.Debug(ctx, "flow", "token.lookup",
			slog.String("status", "fail"),
			slog.String("mint", mint),
			slog.String("err", err.Error()),
		)
		return jupiter.Token{}, false
	}
	return tok, ok
}

// holding finds mint among the wallet's nonzero balances.
func (e *Engine) holding(ctx context.Context, address, mint string) (session.TokenRef, error) {
	refs, err := e.portfolio(ctx, address)
	if err != nil {
		return session.TokenRef{}, err
	}
	for _, ref := range refs {
		if ref.Mint == mint {
			return ref, nil
		}
	}
	return session.TokenRef{}, errs.New(errs.CodeValidation, "Token not found in your wallet, pick one from the list")
}

// resolveToken maps user text to a token, rejecting unknown input.
func (e *Engine) resolveToken(ctx context.Context, text string) (session.TokenRef, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return session.TokenRef{}, errs.New(errs.CodeValidation, "Send a token symbol or mint address")
	}
	tok, ok, err := e.directory.Resolve(ctx, q)
	if err != nil {
		return session.TokenRef{}, errs.Wrap(errs.CodeValidation, "Token lookup failed, try again", err)
	}
	if !ok {
		return session.TokenRef{}, errs.Newf(errs.CodeValidation, "Token %q not found", q)
	}
	return session.TokenRef{Mint: tok.ID, Symbol: tok.Symbol, Decimals: tok.Decimals}, nil
}

// marketPrice fetches a USD price; nil when unavailable.
func (e *Engine) marketPrice(ctx context.Context, mint string) *big.Rat {
	p, err := e.trading.Price(ctx, mint)
	if err != nil {
		logger.Debug(ctx, "flow", "price.lookup",
			slog.String("status", "fail"),
			slog.String("mint", mint),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return p
}

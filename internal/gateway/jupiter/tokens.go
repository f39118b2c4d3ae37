package jupiter

import (
	"context"
	"encoding/json"
	"math/big"
	"net/url"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
)

// Token is directory metadata for one mint.
type Token struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
	TokenProgram string `json:"tokenProgram"`
	IsVerified   bool   `json:"isVerified"`
}

// SearchTokens queries the directory by symbol, name or mint.
func (c *Client) SearchTokens(ctx context.Context, query string) ([]Token, error) {
	vals := url.Values{}
	vals.Set("query", strings.TrimSpace(query))
	var out []Token
	if err := c.get(ctx, c.urls.Tokens, "/search", vals, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type priceEntry struct {
	USDPrice json.Number `json:"usdPrice"`
	Decimals uint8       `json:"decimals"`
}

// Prices returns USD prices by mint. Mints without a price are absent.
func (c *Client) Prices(ctx context.Context, mints []string) (map[string]*big.Rat, error) {
	out := make(map[string]*big.Rat, len(mints))
	if len(mints) == 0 {
		return out, nil
	}
	vals := url.Values{}
	vals.Set("ids", strings.Join(mints, ","))
	var resp map[string]*priceEntry
	if err := c.get(ctx, c.urls.Price, "", vals, &resp); err != nil {
		return nil, err
	}
	for mint, entry := range resp {
		if entry == nil || entry.USDPrice == "" {
			continue
		}
		p, ok := new(big.Rat).SetString(entry.USDPrice.String())
		if !ok || p.Sign() <= 0 {
			continue
		}
		out[mint] = p
	}
	return out, nil
}

// Price returns the USD price of one mint.
func (c *Client) Price(ctx context.Context, mint string) (*big.Rat, error) {
	prices, err := c.Prices(ctx, []string{mint})
	if err != nil {
		return nil, err
	}
	p, ok := prices[mint]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "no price for %s", mint)
	}
	return p, nil
}

// Package privy is the custody gateway: it provisions one Solana server
// wallet per Telegram user and signs transactions remotely.
package privy

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/httpx"
)

const (
	DefaultAuthURL = "https://auth.privy.io"
	DefaultAPIURL  = "https://api.privy.io"
)

// Config holds app credentials. AuthorizationKey is the "wallet-auth:"
// prefixed PKCS#8 key used for request signatures; SignerID is added as an
// additional signer on new wallets.
type Config struct {
	AppID            string
	AppSecret        string
	AuthorizationKey string
	SignerID         string
	AuthURL          string
	APIURL           string
}

// Wallet is a custodial wallet.
type Wallet struct {
	ID      string `json:"id" db:"wallet_id"`
	Address string `json:"address" db:"address"`
}

type Client struct {
	http   *httpx.Client
	submit *httpx.Client
	cfg    Config
	signer *requestSigner
}

// New validates credentials and builds the client.
func New(httpClient *httpx.Client, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errs.New(errs.CodeAuth, "privy app id and secret are required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	c := &Client{
		http:   httpClient,
		submit: httpClient.WithRetries(0),
		cfg:    cfg,
	}
	if cfg.AuthorizationKey != "" {
		s, err := newRequestSigner(cfg.AuthorizationKey)
		if err != nil {
			return nil, err
		}
		c.signer = s
	}
	return c, nil
}

func (c *Client) headers() map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(c.cfg.AppID + ":" + c.cfg.AppSecret))
	return map[string]string{
		"Authorization": "Basic " + token,
		"privy-app-id":  c.cfg.AppID,
	}
}

type linkedAccount struct {
	Type             string `json:"type"`
	ID               string `json:"id,omitempty"`
	Address          string `json:"address,omitempty"`
	ChainType        string `json:"chain_type,omitempty"`
	WalletClientType string `json:"wallet_client_type,omitempty"`
	TelegramUserID   string `json:"telegram_user_id,omitempty"`
}

type user struct {
	ID             string          `json:"id"`
	LinkedAccounts []linkedAccount `json:"linked_accounts"`
}

// solanaWallet returns the first Privy-managed Solana wallet linked to u.
func (u user) solanaWallet() (Wallet, bool) {
	for _, acc := range u.LinkedAccounts {
		if acc.Type != "wallet" || acc.WalletClientType != "privy" {
			continue
		}
		if acc.ChainType != "" && acc.ChainType != "solana" {
			continue
		}
		if acc.ID == "" || acc.Address == "" {
			continue
		}
		return Wallet{ID: acc.ID, Address: acc.Address}, true
	}
	return Wallet{}, false
}

// userByTelegram returns the user linked to a Telegram id, or false.
func (c *Client) userByTelegram(ctx context.Context, telegramID int64) (user, bool, error) {
	body := map[string]string{"telegram_user_id": strconv.FormatInt(telegramID, 10)}
	var out user
	_, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost,
		c.cfg.AuthURL+"/api/v1/users/telegram/telegram_user_id", body, c.headers(), &out)
	if errs.Is(err, errs.CodeNotFound) {
		return user{}, false, nil
	}
	if err != nil {
		return user{}, false, err
	}
	return out, out.ID != "", nil
}

func (c *Client) createUser(ctx context.Context, telegramID int64) (user, error) {
	body := map[string]any{
		"linked_accounts": []linkedAccount{{
			Type:           "telegram",
			TelegramUserID: strconv.FormatInt(telegramID, 10),
		}},
	}
	var out user
	if _, err := httpx.DoBodyJSON(ctx, c.submit, http.MethodPost,
		c.cfg.AuthURL+"/api/v1/users", body, c.headers(), &out); err != nil {
		return user{}, err
	}
	if out.ID == "" {
		return user{}, errs.New(errs.CodeUpstream, "privy returned a user without id")
	}
	return out, nil
}

type createWalletBody struct {
	ChainType         string              `json:"chain_type"`
	Owner             map[string]string   `json:"owner"`
	AdditionalSigners []map[string]string `json:"additional_signers,omitempty"`
}

func (c *Client) createWallet(ctx context.Context, userID string) (Wallet, error) {
	body := createWalletBody{
		ChainType: "solana",
		Owner:     map[string]string{"user_id": userID},
	}
	if c.cfg.SignerID != "" {
		body.AdditionalSigners = []map[string]string{{"signer_id": c.cfg.SignerID}}
	}
	headers := c.headers()
	headers["privy-idempotency-key"] = uuid.NewString()

	var out Wallet
	if _, err := httpx.DoBodyJSON(ctx, c.submit, http.MethodPost,
		c.cfg.APIURL+"/v1/wallets", body, headers, &out); err != nil {
		return Wallet{}, err
	}
	if out.ID == "" || out.Address == "" {
		return Wallet{}, errs.New(errs.CodeUpstream, "privy returned an incomplete wallet")
	}
	return out, nil
}

// ResolveWallet finds the user's wallet, creating the user and wallet when
// either is missing.
func (c *Client) ResolveWallet(ctx context.Context, telegramID int64) (Wallet, error) {
	u, found, err := c.userByTelegram(ctx, telegramID)
	if err != nil {
		return Wallet{}, err
	}
	if found {
		if w, ok := u.solanaWallet(); ok {
			return w, nil
		}
	} else {
		if u, err = c.createUser(ctx, telegramID); err != nil {
			return Wallet{}, err
		}
	}
	return c.createWallet(ctx, u.ID)
}

type rpcBody struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

type rpcResponse struct {
	Method string `json:"method"`
	Data   struct {
		SignedTransaction string `json:"signed_transaction"`
		Encoding          string `json:"encoding"`
	} `json:"data"`
}

// SignTransaction signs a base64 transaction with the wallet and returns the
// signed transaction, base64 encoded.
func (c *Client) SignTransaction(ctx context.Context, walletID, txBase64 string) (string, error) {
	endpoint := c.cfg.APIURL + "/v1/wallets/" + walletID + "/rpc"
	body := rpcBody{
		Method: "signTransaction",
		Params: map[string]string{
			"transaction": txBase64,
			"encoding":    "base64",
		},
	}
	headers := c.headers()
	headers["privy-idempotency-key"] = uuid.NewString()
	if c.signer != nil {
		sig, err := c.signer.sign(http.MethodPost, endpoint, body, c.cfg.AppID)
		if err != nil {
			return "", err
		}
		headers["privy-authorization-signature"] = sig
	}

	var out rpcResponse
	if _, err := httpx.DoBodyJSON(ctx, c.submit, http.MethodPost, endpoint, body, headers, &out); err != nil {
		return "", errs.Wrap(errs.CodeUpstream, "failed to sign transaction", err)
	}
	if out.Data.SignedTransaction == "" {
		return "", errs.New(errs.CodeUpstream, "failed to sign transaction")
	}
	return out.Data.SignedTransaction, nil
}

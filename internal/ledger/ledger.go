// Package ledger is the Solana RPC collaborator: simulation, blockhash,
// account ownership, raw submission and confirmation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/errs"
)

const (
	// DefaultConfirmTimeout bounds the wait for confirmation.
	DefaultConfirmTimeout = 60 * time.Second
	// DefaultPollInterval is the signature status polling period.
	DefaultPollInterval = 2 * time.Second
)

// Simulation is the subset of a simulation result the estimator reads.
type Simulation struct {
	Err           any
	Logs          []string
	UnitsConsumed uint64
}

// Failed reports whether the simulated transaction returned an error.
func (s Simulation) Failed() bool { return s.Err != nil }

// RPC is the part of rpc.Client the ledger uses.
type RPC interface {
	SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Options tunes confirmation.
type Options struct {
	Commitment     rpc.CommitmentType
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

type Client struct {
	rpc  RPC
	opts Options
}

// Dial connects to an RPC endpoint.
func Dial(endpoint string, opts Options) *Client {
	return New(rpc.New(endpoint), opts)
}

// New wraps an RPC implementation.
func New(r RPC, opts Options) *Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Client{rpc: r, opts: opts}
}

// Simulate runs tx without signature verification or blockhash replacement.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) (Simulation, error) {
	resp, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: false,
		Commitment:             c.opts.Commitment,
	})
	if err != nil {
		return Simulation{}, errs.Wrap(errs.CodeUpstream, "simulate transaction", err)
	}
	if resp == nil || resp.Value == nil {
		return Simulation{}, errs.New(errs.CodeUpstream, "simulate transaction: empty result")
	}
	out := Simulation{Err: resp.Value.Err, Logs: resp.Value.Logs}
	if resp.Value.UnitsConsumed != nil {
		out.UnitsConsumed = *resp.Value.UnitsConsumed
	}
	return out, nil
}

// LatestBlockhash fetches a fresh blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	resp, err := c.rpc.GetLatestBlockhash(ctx, c.opts.Commitment)
	if err != nil {
		return solana.Hash{}, errs.Wrap(errs.CodeUpstream, "get latest blockhash", err)
	}
	if resp == nil || resp.Value == nil {
		return solana.Hash{}, errs.New(errs.CodeUpstream, "get latest blockhash: empty result")
	}
	return resp.Value.Blockhash, nil
}

// AccountOwner returns the program owning account.
func (c *Client) AccountOwner(ctx context.Context, account solana.PublicKey) (solana.PublicKey, error) {
	resp, err := c.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return solana.PublicKey{}, errs.Newf(errs.CodeNotFound, "account %s not found", account)
	}
	if err != nil {
		return solana.PublicKey{}, errs.Wrap(errs.CodeUpstream, "get account info", err)
	}
	if resp == nil || resp.Value == nil {
		return solana.PublicKey{}, errs.Newf(errs.CodeNotFound, "account %s not found", account)
	}
	return resp.Value.Owner, nil
}

// SendRaw submits a signed transaction with preflight checks enabled.
func (c *Client) SendRaw(ctx context.Context, raw []byte) (solana.Signature, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.opts.Commitment,
	})
	if err != nil {
		return solana.Signature{}, errs.Wrap(errs.CodeUpstream, "send transaction", err)
	}
	return sig, nil
}

// Confirm blocks until sig reaches the configured commitment, fails on
// chain, or the confirm timeout elapses.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	start := time.Now()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkStatus(ctx, sig)
		if err != nil {
			return err
		}
		if done {
			logger.Info(ctx, "ledger", "tx.confirm",
				slog.String("status", "ok"),
				slog.String("signature", sig.String()),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.CodeUnavailable,
				fmt.Sprintf("transaction %s not confirmed within %s", sig, c.opts.ConfirmTimeout), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	resp, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		logger.Debug(ctx, "ledger", "tx.status",
			slog.String("status", "retry"),
			slog.String("err", err.Error()),
		)
		return false, nil
	}
	if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
		return false, nil
	}
	st := resp.Value[0]
	if st.Err != nil {
		return false, errs.Newf(errs.CodeUpstream, "transaction %s failed: %v", sig, st.Err)
	}
	return reached(st.ConfirmationStatus, c.opts.Commitment), nil
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	}
	return false
}

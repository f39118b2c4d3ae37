// Package estimator budgets compute units and priority fees for locally
// built transactions by simulating them and asking the fee oracle.
package estimator

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/tradebot/core/logger"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/ledger"
)

const (
	// MaxComputeUnits is the per-transaction compute ceiling.
	MaxComputeUnits uint32 = 1_400_000
	// MinMicroLamports and MaxMicroLamports bound the priority fee per unit.
	MinMicroLamports uint64 = 10_000
	MaxMicroLamports uint64 = 70_000
)

// Simulator runs a transaction against the ledger.
type Simulator interface {
	Simulate(ctx context.Context, tx *solana.Transaction) (ledger.Simulation, error)
}

// FeeOracle recommends micro-lamports per compute unit.
type FeeOracle interface {
	PriorityFee(ctx context.Context, txBase64 string) (float64, error)
}

// Recorder observes estimates; nil is allowed.
type Recorder interface {
	Estimate(outcome string, units uint32, microLamports uint64)
}

// Request is a draft transaction.
type Request struct {
	Instructions  []solana.Instruction
	Payer         solana.PublicKey
	Blockhash     solana.Hash
	AddressTables map[solana.PublicKey]solana.PublicKeySlice
}

// Estimate is a budgeted, unsigned transaction.
type Estimate struct {
	Units         uint32
	MicroLamports uint64
	Transaction   *solana.Transaction
	// Base64 is the wire form with empty signature slots.
	Base64 string
}

type Estimator struct {
	sim    Simulator
	oracle FeeOracle
	rec    Recorder
}

func New(sim Simulator, oracle FeeOracle, rec Recorder) *Estimator {
	return &Estimator{sim: sim, oracle: oracle, rec: rec}
}

// Prepare simulates req with a maximal budget, sizes the limit from the
// consumed units and prefixes the final price and limit instructions.
// Simulation failure is fatal; an oracle failure falls back to the floor fee.
func (e *Estimator) Prepare(ctx context.Context, req Request) (Estimate, error) {
	if len(req.Instructions) == 0 {
		return Estimate{}, errs.New(errs.CodeInternal, "no instructions to estimate")
	}
	start := time.Now()

	testTx, err := compile(withBudget(req.Instructions, MaxComputeUnits, MinMicroLamports), req)
	if err != nil {
		return Estimate{}, err
	}
	testB64, err := encode(testTx)
	if err != nil {
		return Estimate{}, err
	}

	var (
		sim ledger.Simulation
		fee = MinMicroLamports
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.sim.Simulate(gctx, testTx)
		if err != nil {
			return err
		}
		sim = s
		return nil
	})
	g.Go(func() error {
		fee = e.priorityFee(gctx, testB64)
		return nil
	})
	if err := g.Wait(); err != nil {
		e.record("fail", 0, 0)
		return Estimate{}, errs.Wrap(errs.CodeSimulation, "Transaction simulation error", err)
	}

	if err := Classify(sim); err != nil {
		logger.Warn(ctx, "estimator", "simulate",
			slog.String("status", "fail"),
			slog.String("err_code", errs.CodeOf(err).String()),
			slog.Any("logs", tail(sim.Logs, 10)),
		)
		e.record("rejected", 0, 0)
		return Estimate{}, err
	}

	units, err := ComputeLimit(sim.UnitsConsumed)
	if err != nil {
		e.record("fail", 0, 0)
		return Estimate{}, err
	}

	tx, err := compile(withBudget(req.Instructions, units, fee), req)
	if err != nil {
		return Estimate{}, err
	}
	b64, err := encode(tx)
	if err != nil {
		return Estimate{}, err
	}

	logger.Info(ctx, "estimator", "estimate",
		slog.String("status", "ok"),
		slog.Uint64("units", uint64(units)),
		slog.Uint64("cu_price", fee),
		slog.Duration("duration", logger.Took(start)),
	)
	e.record("ok", units, fee)
	return Estimate{Units: units, MicroLamports: fee, Transaction: tx, Base64: b64}, nil
}

func (e *Estimator) priorityFee(ctx context.Context, txB64 string) uint64 {
	if e.oracle == nil {
		return MinMicroLamports
	}
	raw, err := e.oracle.PriorityFee(ctx, txB64)
	if err != nil {
		logger.Warn(ctx, "estimator", "priority_fee",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return MinMicroLamports
	}
	return ClampFee(raw)
}

func (e *Estimator) record(outcome string, units uint32, fee uint64) {
	if e.rec != nil {
		e.rec.Estimate(outcome, units, fee)
	}
}

// ComputeLimit applies a 20% margin to consumed units, rounding up. Zero
// consumption means the simulator did not report and the ceiling is used.
func ComputeLimit(consumed uint64) (uint32, error) {
	if consumed == 0 {
		consumed = uint64(MaxComputeUnits)
	}
	units := (consumed*12 + 9) / 10
	if units > uint64(MaxComputeUnits) {
		units = uint64(MaxComputeUnits)
	}
	if units == 0 {
		return 0, errs.New(errs.CodeSimulation, "Failed to estimate compute units")
	}
	return uint32(units), nil
}

// ClampFee bounds an oracle estimate to [MinMicroLamports, MaxMicroLamports].
func ClampFee(estimate float64) uint64 {
	if estimate <= float64(MinMicroLamports) {
		return MinMicroLamports
	}
	if estimate >= float64(MaxMicroLamports) {
		return MaxMicroLamports
	}
	return uint64(estimate)
}

// withBudget prefixes the price instruction then the limit instruction.
func withBudget(ixs []solana.Instruction, units uint32, microLamports uint64) []solana.Instruction {
	out := make([]solana.Instruction, 0, len(ixs)+2)
	out = append(out,
		computebudget.NewSetComputeUnitPriceInstruction(microLamports).Build(),
		computebudget.NewSetComputeUnitLimitInstruction(units).Build(),
	)
	return append(out, ixs...)
}

// compile builds a v0 transaction with empty signature slots.
func compile(ixs []solana.Instruction, req Request) (*solana.Transaction, error) {
	opts := []solana.TransactionOption{solana.TransactionPayer(req.Payer)}
	if len(req.AddressTables) > 0 {
		opts = append(opts, solana.TransactionAddressTables(req.AddressTables))
	}
	tx, err := solana.NewTransaction(ixs, req.Blockhash, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "compile transaction", err)
	}
	tx.Message.SetVersion(solana.MessageVersionV0)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	return tx, nil
}

func encode(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, "encode transaction", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func tail(logs []string, n int) []string {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}

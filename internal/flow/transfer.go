package flow

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/session"
)

const (
	tokenIxTransferChecked   = 12
	ataIxCreateIdempotent    = 1
	transferCheckedDataBytes = 10
)

// transferInstructions builds a native transfer, or for SPL tokens an
// idempotent create of the recipient's associated account followed by a
// checked transfer under the mint's owning token program.
func (e *Engine) transferInstructions(ctx context.Context, from, to solana.PublicKey, tok session.TokenRef, base *big.Int) ([]solana.Instruction, error) {
	if !base.IsUint64() || base.Sign() <= 0 {
		return nil, errs.New(errs.CodeValidation, "amount out of range")
	}
	lamports := base.Uint64()
	if tok.IsNative() {
		return []solana.Instruction{system.NewTransferInstruction(lamports, from, to).Build()}, nil
	}

	mint, err := solana.PublicKeyFromBase58(tok.Mint)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, "invalid mint", err)
	}
	program, err := e.ledger.AccountOwner(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !program.Equals(solana.TokenProgramID) && !program.Equals(solana.Token2022ProgramID) {
		return nil, errs.Newf(errs.CodeValidation, "mint %s is not owned by a token program", tok.Mint)
	}
	source, err := associatedAddress(from, program, mint)
	if err != nil {
		return nil, err
	}
	dest, err := associatedAddress(to, program, mint)
	if err != nil {
		return nil, err
	}
	return []solana.Instruction{
		createAssociatedIdempotent(from, dest, to, mint, program),
		transferChecked(program, source, mint, dest, from, lamports, tok.Decimals),
	}, nil
}

// associatedAddress derives the associated token account for any token program.
func associatedAddress(wallet, program, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{wallet[:], program[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, errs.Wrap(errs.CodeInternal, "derive associated account", err)
	}
	return addr, nil
}

func createAssociatedIdempotent(payer, account, owner, mint, program solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(account).WRITE(),
			solana.Meta(owner),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(program),
		},
		[]byte{ataIxCreateIdempotent},
	)
}

func transferChecked(program, source, mint, dest, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, transferCheckedDataBytes)
	data[0] = tokenIxTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return solana.NewInstruction(
		program,
		solana.AccountMetaSlice{
			solana.Meta(source).WRITE(),
			solana.Meta(mint),
			solana.Meta(dest).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		data,
	)
}

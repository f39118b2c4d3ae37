package estimator

import (
	"fmt"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/ledger"
)

const (
	msgInsufficient = "You need more SOL to pay for transaction fees"
	msgSlippage     = "Maximum slippage reached"
	msgSimulation   = "Transaction simulation error"
)

type logRule struct {
	substr string
	code   errs.Code
	msg    string
}

// logRules are scanned line by line, in order; the first hit wins.
var logRules = []logRule{
	{"0x1771", errs.CodeSlippage, msgSlippage},
	{"0x178c", errs.CodeSlippage, msgSlippage},
	{"Program 11111111111111111111111111111111 failed: custom program error: 0x1", errs.CodeInsufficientFunds, msgInsufficient},
	{"insufficient lamports", errs.CodeInsufficientFunds, msgInsufficient},
}

// Classify maps a failed simulation to a user-facing error. It returns nil
// for successful simulations.
func Classify(sim ledger.Simulation) error {
	if !sim.Failed() {
		return nil
	}
	if strings.Contains(fmt.Sprint(sim.Err), "InsufficientFundsForRent") {
		return errs.New(errs.CodeInsufficientFunds, msgInsufficient)
	}
	if sim.Logs == nil {
		// Failed before execution: nothing to inspect.
		return errs.Newf(errs.CodeSimulation, "%s: %v", msgSimulation, sim.Err)
	}
	if len(sim.Logs) == 0 {
		return errs.New(errs.CodeInsufficientFunds, msgInsufficient)
	}
	for _, line := range sim.Logs {
		for _, r := range logRules {
			if strings.Contains(line, r.substr) {
				return errs.New(r.code, r.msg)
			}
		}
	}
	return errs.New(errs.CodeSimulation, msgSimulation)
}

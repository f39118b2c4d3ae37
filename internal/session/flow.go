package session

import (
	"github.com/m3rciful/tradebot/internal/pricing"
)

// Kind names a flow variant.
type Kind string

const (
	KindSwap       Kind = "swap"
	KindLimitOrder Kind = "limit_order"
	KindWithdraw   Kind = "withdraw"
)

// Step is a position inside a flow.
type Step string

const (
	StepSelectDirection Step = "select_direction"
	StepSelectInput     Step = "select_input"
	StepEnterOutput     Step = "enter_output"
	StepSelectAmount    Step = "select_amount"
	StepEnterPrice      Step = "enter_price"
	StepEnterAmount     Step = "enter_amount"
	StepEnterAddress    Step = "enter_address"
	StepSelectToken     Step = "select_token"
	// StepSubmitting marks a flow whose submission is in flight; further
	// input is ignored until the flow is cleared.
	StepSubmitting Step = "submitting"
)

var stepOrder = map[Kind][]Step{
	KindSwap:       {StepSelectInput, StepEnterOutput, StepSelectAmount, StepSubmitting},
	KindLimitOrder: {StepSelectDirection, StepSelectInput, StepEnterOutput, StepEnterPrice, StepEnterAmount, StepSubmitting},
	KindWithdraw:   {StepEnterAddress, StepSelectToken, StepSelectAmount, StepSubmitting},
}

// Steps lists the steps of a flow kind in order.
func Steps(k Kind) []Step {
	return append([]Step(nil), stepOrder[k]...)
}

// Rank returns the position of step within kind, or -1.
func Rank(k Kind, step Step) int {
	for i, s := range stepOrder[k] {
		if s == step {
			return i
		}
	}
	return -1
}

// Flow is the active operation of a session. The set of implementations is
// closed: SwapFlow, LimitOrderFlow and WithdrawFlow.
type Flow interface {
	Kind() Kind
	Current() Step
	Prompt() MessageRef
	isFlow()
}

// SwapFlow is select_input -> enter_output -> select_amount.
type SwapFlow struct {
	Step    Step       `json:"step"`
	Message MessageRef `json:"message"`
	Input   *TokenRef  `json:"input,omitempty"`
	Output  *TokenRef  `json:"output,omitempty"`
	// Amount is the selected UI amount; BaseAmount the same in base units.
	Amount     string `json:"amount,omitempty"`
	BaseAmount string `json:"base_amount,omitempty"`
}

func (f *SwapFlow) Kind() Kind         { return KindSwap }
func (f *SwapFlow) Current() Step      { return f.Step }
func (f *SwapFlow) Prompt() MessageRef { return f.Message }
func (*SwapFlow) isFlow()              {}

// LimitOrderFlow is select_direction -> select_input -> enter_output ->
// enter_price -> enter_amount.
type LimitOrderFlow struct {
	Step      Step              `json:"step"`
	Message   MessageRef        `json:"message"`
	Direction pricing.Direction `json:"direction,omitempty"`
	Input     *TokenRef         `json:"input,omitempty"`
	Output    *TokenRef         `json:"output,omitempty"`
	// PriceText is the raw price input; TriggerPrice its resolved value.
	PriceText    string       `json:"price_text,omitempty"`
	PriceKind    pricing.Kind `json:"price_kind,omitempty"`
	TriggerPrice string       `json:"trigger_price,omitempty"`
	// SnapshotPrice is the market price percentage input was resolved against.
	SnapshotPrice string `json:"snapshot_price,omitempty"`
	Amount        string `json:"amount,omitempty"`
}

func (f *LimitOrderFlow) Kind() Kind         { return KindLimitOrder }
func (f *LimitOrderFlow) Current() Step      { return f.Step }
func (f *LimitOrderFlow) Prompt() MessageRef { return f.Message }
func (*LimitOrderFlow) isFlow()              {}

// WithdrawFlow is enter_address -> select_token -> select_amount.
type WithdrawFlow struct {
	Step       Step       `json:"step"`
	Message    MessageRef `json:"message"`
	Recipient  string     `json:"recipient,omitempty"`
	Token      *TokenRef  `json:"token,omitempty"`
	Amount     string     `json:"amount,omitempty"`
	BaseAmount string     `json:"base_amount,omitempty"`
}

func (f *WithdrawFlow) Kind() Kind         { return KindWithdraw }
func (f *WithdrawFlow) Current() Step      { return f.Step }
func (f *WithdrawFlow) Prompt() MessageRef { return f.Message }
func (*WithdrawFlow) isFlow()              {}

// Swap returns the active swap flow, if any.
func (s State) Swap() (*SwapFlow, bool) {
	f, ok := s.Active.(*SwapFlow)
	return f, ok
}

// LimitOrder returns the active limit order flow, if any.
func (s State) LimitOrder() (*LimitOrderFlow, bool) {
	f, ok := s.Active.(*LimitOrderFlow)
	return f, ok
}

// Withdraw returns the active withdraw flow, if any.
func (s State) Withdraw() (*WithdrawFlow, bool) {
	f, ok := s.Active.(*WithdrawFlow)
	return f, ok
}

// Package session defines the persisted conversation state of one chat: at
// most one active flow, each carrying its step and the message it edits.
package session

import (
	"errors"
	"math/big"
	"time"

	"github.com/m3rciful/tradebot/core/telegram/state"
	"github.com/m3rciful/tradebot/internal/amount"
)

// NativeMint is the wrapped SOL mint used to address the native asset.
const NativeMint = "So11111111111111111111111111111111111111112"

// NativeDecimals is the lamport precision of SOL.
const NativeDecimals uint8 = 9

// Store persists State keyed by chat id.
type Store = state.Store[State]

// StoreOptions returns store options that drop sessions without an active flow.
func StoreOptions(ttl time.Duration, now func() time.Time) state.Options[State] {
	return state.Options[State]{
		Namespace: "user",
		TTL:       ttl,
		IsZero:    func(s State) bool { return s.Active == nil },
		Now:       now,
	}
}

// State is the conversation context of one chat.
type State struct {
	ChatID int64
	Active Flow
}

// ErrSubmitting is returned when an operation would disturb a flow whose
// submission is already in flight.
var ErrSubmitting = errors.New("session: submission in flight")

// Submitting reports whether the active flow has started its submission.
func (s State) Submitting() bool {
	return s.Active != nil && s.Active.Current() == StepSubmitting
}

// Clear abandons whatever flow is active.
func (s *State) Clear() { s.Active = nil }

// Start replaces any active flow with f.
func (s *State) Start(f Flow) { s.Active = f }

// MessageRef points at the single message a flow edits in place.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether the flow has no message yet.
func (m MessageRef) IsZero() bool { return m.MessageID == 0 }

// TokenRef identifies a token. Mint and Decimals drive every conversion;
// Symbol is for display only.
type TokenRef struct {
	Mint     string `json:"mint"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	// UIAmount is the balance held when the token was picked from holdings.
	UIAmount string `json:"ui_amount,omitempty"`
	// RawAmount is the same balance in base units when the provider reported it.
	RawAmount string `json:"raw_amount,omitempty"`
}

// IsNative reports whether the token is SOL.
func (t TokenRef) IsNative() bool { return t.Mint == NativeMint }

// Balance returns the held UI amount, zero when unknown.
func (t TokenRef) Balance() *big.Rat { return amount.ParseBalance(t.UIAmount) }

// Same compares tokens by mint.
func (t TokenRef) Same(o TokenRef) bool { return t.Mint == o.Mint }

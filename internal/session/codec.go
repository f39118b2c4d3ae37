package session

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	ChatID int64           `json:"chat_id"`
	Kind   Kind            `json:"kind,omitempty"`
	Flow   json.RawMessage `json:"flow,omitempty"`
}

// MarshalJSON stores the active flow under a kind tag.
func (s State) MarshalJSON() ([]byte, error) {
	env := envelope{ChatID: s.ChatID}
	if s.Active != nil {
		data, err := json.Marshal(s.Active)
		if err != nil {
			return nil, fmt.Errorf("session: encode %s: %w", s.Active.Kind(), err)
		}
		env.Kind = s.Active.Kind()
		env.Flow = data
	}
	return json.Marshal(env)
}

// UnmarshalJSON restores the flow variant named by the kind tag.
func (s *State) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("session: decode: %w", err)
	}
	s.ChatID = env.ChatID
	s.Active = nil
	if env.Kind == "" {
		return nil
	}
	var f Flow
	switch env.Kind {
	case KindSwap:
		f = &SwapFlow{}
	case KindLimitOrder:
		f = &LimitOrderFlow{}
	case KindWithdraw:
		f = &WithdrawFlow{}
	default:
		return fmt.Errorf("session: unknown flow kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Flow, f); err != nil {
		return fmt.Errorf("session: decode %s: %w", env.Kind, err)
	}
	s.Active = f
	return nil
}

package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const countersKey = "counters"

// Counters tracks the responses produced while handling one update.
// Sends and edits both count as messages.
type Counters struct {
	messages atomic.Int32
	kb       atomic.Bool
}

// Add records one outbound message.
func (c *Counters) Add(hasKB bool) {
	if c == nil {
		return
	}
	c.messages.Add(1)
	if hasKB {
		c.kb.Store(true)
	}
}

type countersCtxKey struct{}

// WithCounters carries the update's counters into service code that sends
// through the bot API rather than tele.Context.
func WithCounters(ctx context.Context, c *Counters) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, countersCtxKey{}, c)
}

// CountMessage records a message against the counters carried by ctx, if any.
func CountMessage(ctx context.Context, hasKB bool) {
	if c, ok := ctx.Value(countersCtxKey{}).(*Counters); ok {
		c.Add(hasKB)
	}
}

// CountersOf returns the counters attached by MessageMetricsMiddleware.
func CountersOf(c tele.Context) *Counters {
	if v, ok := c.Get(countersKey).(*Counters); ok {
		return v
	}
	return nil
}

// metricsContext wraps tele.Context to count sent messages and detect keyboard usage.
type metricsContext struct {
	tele.Context
	counters *Counters
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

func (m metricsContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.counters.Add(hasKeyboard(opts))
	}
	return err
}

func (m metricsContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.counters.Add(hasKeyboard(opts))
	}
	return err
}

func (m metricsContext) Edit(what interface{}, opts ...interface{}) error {
	err := m.Context.Edit(what, opts...)
	if err == nil {
		m.counters.Add(hasKeyboard(opts))
	}
	return err
}

// MessageMetricsMiddleware attaches fresh counters to every update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		counters := CountersOf(c)
		if counters == nil {
			counters = &Counters{}
			c.Set(countersKey, counters)
		}
		return next(metricsContext{Context: c, counters: counters})
	}
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	counters := CountersOf(c)
	if counters == nil {
		return 0, false
	}
	return int(counters.messages.Load()), counters.kb.Load()
}

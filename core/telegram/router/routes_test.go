package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	tg "github.com/m3rciful/tradebot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	text      string
	callback  *tele.Callback
	sender    *tele.User
	store     map[string]any
	responded int
}

func newFake(text string) *fakeContext {
	return &fakeContext{text: text, sender: &tele.User{ID: 11}}
}

func (c *fakeContext) Text() string             { return c.text }
func (c *fakeContext) Sender() *tele.User       { return c.sender }
func (c *fakeContext) Chat() *tele.Chat         { return &tele.Chat{ID: c.sender.ID} }
func (c *fakeContext) Callback() *tele.Callback { return c.callback }
func (c *fakeContext) Update() tele.Update {
	return tele.Update{ID: 3, Callback: c.callback}
}
func (c *fakeContext) Get(key string) any { return c.store[key] }
func (c *fakeContext) Set(key string, v any) {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
}
func (c *fakeContext) Respond(...*tele.CallbackResponse) error {
	c.responded++
	return nil
}

type fakeConversations struct {
	active  bool
	handled int
}

func (f *fakeConversations) Active(tele.Context) bool { return f.active }
func (f *fakeConversations) Handle(tele.Context) error {
	f.handled++
	return nil
}

func TestCommandRoutesGateAdminCommands(t *testing.T) {
	reg := tg.NewRegistry()
	var calls []string
	record := func(name string) tele.HandlerFunc {
		return func(tele.Context) error { calls = append(calls, name); return nil }
	}
	_ = reg.RegisterCommand("/swap", tg.Command{Handler: record("swap"), Description: "Swap"})
	_ = reg.RegisterCommand("/stats", tg.Command{Handler: record("stats"), Description: "Stats", AdminOnly: true})

	rejected := 0
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       99,
		OnAdminReject: func(tele.Context) error { rejected++; return nil },
	})
	if len(routes) != 2 || routes[0].Endpoint != "/stats" || routes[1].Endpoint != "/swap" {
		t.Fatalf("routes = %+v", routes)
	}
	for _, r := range routes {
		if err := r.Handler(newFake("")); err != nil {
			t.Fatal(err)
		}
	}
	if fmt.Sprint(calls) != "[swap]" || rejected != 1 {
		t.Fatalf("calls = %v rejected = %d", calls, rejected)
	}
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	reg := tg.NewRegistry()
	hits := map[string]int{}
	_ = reg.RegisterCallback("nav:home", func(tele.Context) error { hits["home"]++; return nil })
	reg.SetCallbackNotFound(func(tele.Context) error { hits["dynamic"]++; return nil })
	route := CallbackRoute(reg, CallbackOptions{})

	known := newFake("")
	known.callback = &tele.Callback{Data: "\fnav:home|x"}
	unknown := newFake("")
	unknown.callback = &tele.Callback{Data: "mint:So111"}

	for _, c := range []*fakeContext{known, unknown} {
		if err := route.Handler(c); err != nil {
			t.Fatal(err)
		}
		if c.responded != 1 {
			t.Fatalf("callback answered %d times", c.responded)
		}
	}
	if hits["home"] != 1 || hits["dynamic"] != 1 {
		t.Fatalf("hits = %v", hits)
	}
	if err := route.Handler(newFake("")); err != nil {
		t.Fatalf("update without callback: %v", err)
	}
}

func TestTextRoutesPreferActiveFlow(t *testing.T) {
	reg := tg.NewRegistry()
	var cmd, fallback int
	_ = reg.RegisterCommand("/balance", tg.Command{
		Handler:     func(tele.Context) error { cmd++; return nil },
		Description: "Balance",
		Aliases:     []string{"bal"},
	})
	reg.SetTextFallback(func(tele.Context) error { fallback++; return nil })

	conv := &fakeConversations{active: true}
	h := TextRoutes(conv, reg, TextOptions{})[0].Handler

	_ = h(newFake("bal"))
	if conv.handled != 1 || cmd != 0 {
		t.Fatalf("active flow: handled=%d cmd=%d", conv.handled, cmd)
	}

	conv.active = false
	_ = h(newFake("bal"))
	_ = h(newFake("0.5 SOL"))
	if cmd != 1 || fallback != 1 {
		t.Fatalf("idle: cmd=%d fallback=%d", cmd, fallback)
	}
}

type codedErr struct{ code string }

func (e codedErr) Error() string { return "coded" }
func (e codedErr) Code() string  { return e.code }

func TestErrorCode(t *testing.T) {
	cases := map[string]error{
		"slippage": fmt.Errorf("swap: %w", codedErr{code: "slippage"}),
		"dial":     &net.OpError{Op: "dial", Err: errors.New("refused")},
		"timeout":  fmt.Errorf("quote: %w", context.DeadlineExceeded),
		"internal": errors.New("boom"),
	}
	for want, err := range cases {
		if got := errorCode(err); got != want {
			t.Errorf("errorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestHandlerName(t *testing.T) {
	if got := handlerName("", "/Swap"); got != "swap" {
		t.Fatalf("got %q", got)
	}
	if got := handlerName("callback", " nav home "); got != "callback.nav_home" {
		t.Fatalf("got %q", got)
	}
	if got := handlerName("callback", ""); got != "callback.unknown" {
		t.Fatalf("got %q", got)
	}
}

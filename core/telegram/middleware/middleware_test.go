package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/m3rciful/tradebot/core/logger"
	tghelpers "github.com/m3rciful/tradebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type testContext struct {
	tele.Context
	sender   *tele.User
	callback *tele.Callback
	store    map[string]interface{}
	sent     int
}

func (c *testContext) Sender() *tele.User { return c.sender }
func (c *testContext) Chat() *tele.Chat   { return &tele.Chat{ID: c.sender.ID} }

func (c *testContext) Update() tele.Update {
	if c.callback != nil {
		return tele.Update{ID: 1, Callback: c.callback}
	}
	return tele.Update{ID: 1, Message: &tele.Message{Text: "hi"}}
}

func (c *testContext) Text() string {
	if c.callback != nil {
		return ""
	}
	return "hi"
}

func (c *testContext) Get(key string) interface{} { return c.store[key] }

func (c *testContext) Set(key string, v interface{}) {
	if c.store == nil {
		c.store = map[string]interface{}{}
	}
	c.store[key] = v
}

func (c *testContext) Send(interface{}, ...interface{}) error {
	c.sent++
	return nil
}

func TestRateLimitPerUser(t *testing.T) {
	now := time.Unix(1000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Now:       func() time.Time { return now },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	alice := &testContext{sender: &tele.User{ID: 1}}
	bob := &testContext{sender: &tele.User{ID: 2}}

	_ = h(alice)
	_ = h(alice)
	_ = h(bob)
	if calls != 2 || limited != 1 {
		t.Fatalf("calls=%d limited=%d, want 2 and 1", calls, limited)
	}

	now = now.Add(time.Second)
	_ = h(alice)
	if calls != 3 {
		t.Fatalf("calls=%d after interval, want 3", calls)
	}
}

func TestRateLimitExcludesKinds(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"callback": {}},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	c := &testContext{sender: &tele.User{ID: 1}, callback: &tele.Callback{Data: "x"}}
	for i := 0; i < 3; i++ {
		_ = h(c)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRecoverReturnsError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(&testContext{sender: &tele.User{ID: 1}}); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestMetricsCountSends(t *testing.T) {
	c := &testContext{sender: &tele.User{ID: 1}}
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		_ = c.Send("one")
		_ = c.Send("two", &tele.ReplyMarkup{})
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	n, kb := GetCounters(c)
	if n != 2 || !kb {
		t.Fatalf("counters = %d/%t, want 2/true", n, kb)
	}
}

func TestCountMessageThroughContext(t *testing.T) {
	counters := &Counters{}
	ctx := WithCounters(context.Background(), counters)
	CountMessage(ctx, false)
	CountMessage(context.Background(), true)
	if got := counters.messages.Load(); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
	if counters.kb.Load() {
		t.Fatal("keyboard flag set by uncounted context")
	}
}

func TestAdminOnly(t *testing.T) {
	calls := 0
	next := func(tele.Context) error { calls++; return nil }

	_ = AdminOnlyMiddleware(AdminOptions{AdminID: 5})(next)(&testContext{sender: &tele.User{ID: 5}})
	_ = AdminOnlyMiddleware(AdminOptions{AdminID: 5})(next)(&testContext{sender: &tele.User{ID: 6}})
	_ = AdminOnlyMiddleware(AdminOptions{})(next)(&testContext{sender: &tele.User{ID: 0}})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestLoggerSetsRIDOnce(t *testing.T) {
	c := &testContext{sender: &tele.User{ID: 9}}
	var seen string
	h := LoggerMiddleware(func(c tele.Context) error {
		seen = logger.RIDFrom(tghelpers.BuildContext(c))
		return nil
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	want := logger.BuildRID(1, 9, 9)
	if seen != want || c.Get("rid") != want {
		t.Fatalf("rid = %q / %v, want %q", seen, c.Get("rid"), want)
	}
	if _, ok := c.Get("update_start").(time.Time); !ok {
		t.Fatal("update_start not set")
	}
}

func TestSplitCallback(t *testing.T) {
	cases := []struct {
		cb           tele.Callback
		key, payload string
	}{
		{tele.Callback{Data: "\fswap:confirm|abc"}, "swap:confirm", "abc"},
		{tele.Callback{Data: "nav:home"}, "nav:home", ""},
		{tele.Callback{Unique: "limit", Data: "x|y"}, "limit", "x|y"},
		{tele.Callback{Data: "\f|only"}, "", "only"},
	}
	for _, tc := range cases {
		key, payload := SplitCallback(&tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Errorf("SplitCallback(%q) = %q, %q; want %q, %q", tc.cb.Data, key, payload, tc.key, tc.payload)
		}
	}
}

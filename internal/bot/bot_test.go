package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/tradebot/core/telegram/sender"
	"github.com/m3rciful/tradebot/core/telegram/state"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/session"

	tele "gopkg.in/telebot.v4"
)

type call struct {
	to   tele.Recipient
	msg  tele.Editable
	text string
	opts *tele.SendOptions
}

type fakeAPI struct {
	calls   []call
	editErr []error
	sendErr []error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.calls = append(f.calls, call{to: to, text: what.(string), opts: opts[0].(*tele.SendOptions)})
	return &tele.Message{ID: 1}, pop(&f.sendErr)
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.calls = append(f.calls, call{msg: msg, text: what.(string), opts: opts[0].(*tele.SendOptions)})
	return &tele.Message{ID: 1}, pop(&f.editErr)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func TestMessengerRequiresBind(t *testing.T) {
	m := NewMessenger()
	if err := m.Send(context.Background(), 1, "hi", nil); !errors.Is(err, errNotBound) {
		t.Fatalf("err = %v, want errNotBound", err)
	}
}

func TestMessengerSendUsesMarkdownAndRawData(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger()
	m.Bind(api, nil)

	kb := chat.Rows(chat.Btn("Swap", chat.DataTradeSwap))
	if err := m.Send(context.Background(), 42, "*hi*", kb); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls = %d", len(api.calls))
	}
	got := api.calls[0]
	if got.to.Recipient() != "42" {
		t.Fatalf("recipient = %q", got.to.Recipient())
	}
	if got.opts.ParseMode != tele.ModeMarkdown {
		t.Fatalf("parse mode = %q", got.opts.ParseMode)
	}
	btn := got.opts.ReplyMarkup.InlineKeyboard[0][0]
	if btn.Data != chat.DataTradeSwap || btn.Unique != "" {
		t.Fatalf("button = %+v", btn)
	}
}

func TestMessengerEditTargetsStoredMessage(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger()
	m.Bind(api, nil)

	ref := session.MessageRef{ChatID: 42, MessageID: 100}
	if err := m.Edit(context.Background(), ref, "text", nil); err != nil {
		t.Fatalf("edit: %v", err)
	}
	id, chatID := api.calls[0].msg.MessageSig()
	if id != "100" || chatID != 42 {
		t.Fatalf("edited %s/%d", id, chatID)
	}
	if api.calls[0].opts.ReplyMarkup != nil {
		t.Fatal("empty keyboard should clear the markup")
	}
}

func TestMessengerEditIgnoresNotModified(t *testing.T) {
	api := &fakeAPI{editErr: []error{errors.New("telegram: Bad Request: message is not modified (400)")}}
	m := NewMessenger()
	m.Bind(api, nil)

	if err := m.Edit(context.Background(), session.MessageRef{ChatID: 1, MessageID: 2}, "same", nil); err != nil {
		t.Fatalf("edit: %v", err)
	}
}

func TestMessengerFallsBackToPlainText(t *testing.T) {
	api := &fakeAPI{editErr: []error{errors.New("telegram: Bad Request: can't parse entities (400)")}}
	m := NewMessenger()
	m.Bind(api, nil)

	if err := m.Edit(context.Background(), session.MessageRef{ChatID: 1, MessageID: 2}, "a_b", nil); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(api.calls) != 2 || api.calls[1].opts.ParseMode != tele.ModeDefault {
		t.Fatalf("calls = %+v", api.calls)
	}
}

func TestMessengerEditWaitsForQueuedSend(t *testing.T) {
	api := &fakeAPI{}
	disp := sender.NewDispatcher(sender.Options{Workers: 2})
	defer disp.Close()
	m := NewMessenger()
	m.Bind(api, disp)

	ctx := context.Background()
	if err := m.Send(ctx, 42, "quote", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := m.Edit(ctx, session.MessageRef{ChatID: 42, MessageID: 7}, "confirmed", nil); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(api.calls) != 2 || api.calls[0].text != "quote" || api.calls[1].text != "confirmed" {
		t.Fatalf("calls = %+v", api.calls)
	}
}

// fakeContext overrides the accessors Event reads.
type fakeContext struct {
	tele.Context
	chat     *tele.Chat
	sender   *tele.User
	message  *tele.Message
	callback *tele.Callback
	store    map[string]interface{}
}

func (f *fakeContext) Chat() *tele.Chat         { return f.chat }
func (f *fakeContext) Sender() *tele.User       { return f.sender }
func (f *fakeContext) Message() *tele.Message   { return f.message }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }
func (f *fakeContext) Update() tele.Update      { return tele.Update{ID: 9} }

func (f *fakeContext) Get(key string) interface{} { return f.store[key] }

func (f *fakeContext) Set(key string, v interface{}) {
	if f.store == nil {
		f.store = map[string]interface{}{}
	}
	f.store[key] = v
}

func TestEventFromCallback(t *testing.T) {
	c := &fakeContext{
		chat:   &tele.Chat{ID: 42},
		sender: &tele.User{ID: 7},
		callback: &tele.Callback{
			ID:      "cb-1",
			Data:    "swap_percent_50",
			Message: &tele.Message{ID: 100, Chat: &tele.Chat{ID: 42}},
		},
	}
	ev, ok := Event(c)
	if !ok {
		t.Fatal("callback dropped")
	}
	want := chat.Event{ChatID: 42, UserID: 7, CallbackID: "cb-1", Data: "swap_percent_50",
		Message: session.MessageRef{ChatID: 42, MessageID: 100}}
	if ev != want {
		t.Fatalf("event = %+v, want %+v", ev, want)
	}
}

func TestEventFromText(t *testing.T) {
	c := &fakeContext{
		chat:    &tele.Chat{ID: 42},
		sender:  &tele.User{ID: 42},
		message: &tele.Message{ID: 5, Text: "  JUP \n"},
	}
	ev, ok := Event(c)
	if !ok || ev.IsCallback() || ev.Text != "JUP" || ev.Message.MessageID != 5 || ev.Message.ChatID != 42 {
		t.Fatalf("event = %+v ok=%v", ev, ok)
	}

	if _, ok := Event(&fakeContext{}); ok {
		t.Fatal("update without chat accepted")
	}
}

type recordingRouter struct {
	events []chat.Event
	states []session.State
}

func (r *recordingRouter) Dispatch(_ context.Context, ev chat.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingRouter) DispatchState(_ context.Context, ev chat.Event, st session.State) error {
	r.events = append(r.events, ev)
	r.states = append(r.states, st)
	return nil
}

type countingStore struct {
	session.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, id int64) (session.State, bool, error) {
	s.gets++
	return s.Store.Get(ctx, id)
}

func TestHandleDispatchesEvent(t *testing.T) {
	rr := &recordingRouter{}
	a := NewAdapter(rr, nil, NewMessenger())
	c := &fakeContext{
		chat:    &tele.Chat{ID: 42},
		sender:  &tele.User{ID: 42},
		message: &tele.Message{ID: 5, Text: "/start"},
	}
	if err := a.Handle(c); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rr.events) != 1 || rr.events[0].Text != "/start" {
		t.Fatalf("events = %+v", rr.events)
	}
}

func TestHandleReusesSessionLoadedByActive(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: state.NewMemoryStore[session.State](session.StoreOptions(time.Hour, nil))}
	_, err := store.Update(ctx, 42, func(s *session.State) error {
		s.Start(&session.SwapFlow{Step: session.StepEnterOutput})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	rr := &recordingRouter{}
	a := NewAdapter(rr, store, NewMessenger())
	c := &fakeContext{
		chat:    &tele.Chat{ID: 42},
		sender:  &tele.User{ID: 42},
		message: &tele.Message{ID: 5, Text: "JUP"},
	}

	if !a.Active(c) {
		t.Fatal("seeded flow not reported active")
	}
	if err := a.Handle(c); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.gets != 1 {
		t.Fatalf("session loaded %d times, want 1", store.gets)
	}
	if len(rr.states) != 1 || rr.states[0].Active == nil {
		t.Fatalf("loaded session not passed on: %+v", rr.states)
	}
}

func TestRegistryDeclaresCommands(t *testing.T) {
	a := NewAdapter(&recordingRouter{}, nil, NewMessenger())
	reg, err := a.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	visible := reg.ListCommands(true)
	if len(visible) != 3 {
		t.Fatalf("visible commands = %+v", visible)
	}
	if _, cmd, ok := reg.LookupCommand("/status"); !ok || !cmd.AdminOnly {
		t.Fatal("/status must be admin only")
	}
	if _, ok := reg.GetCallback(chat.DataHoldings); !ok {
		t.Fatal("holdings callback not registered")
	}
	if reg.CallbackNotFound() == nil {
		t.Fatal("dynamic callbacks need a fallback")
	}
}

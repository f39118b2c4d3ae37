package flow

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/m3rciful/tradebot/core/telegram/state"
	"github.com/m3rciful/tradebot/internal/chat"
	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/estimator"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/gateway/privy"
	"github.com/m3rciful/tradebot/internal/session"
)

const (
	testChat  int64 = 42
	usdcMint        = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	jupMint         = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	bonkMint        = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	signedB64       = "c2lnbmVk"
)

var (
	walletKey    = solana.PublicKey{9, 9, 9}
	recipientKey = solana.PublicKey{7, 7, 7}
)

type message struct {
	chatID int64
	ref    session.MessageRef
	text   string
	kb     chat.Keyboard
}

type fakeChat struct {
	mu   sync.Mutex
	msgs []message
}

func (f *fakeChat) Send(_ context.Context, chatID int64, text string, kb chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{chatID: chatID, text: text, kb: kb})
	return nil
}

func (f *fakeChat) Edit(_ context.Context, ref session.MessageRef, text string, kb chat.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{chatID: ref.ChatID, ref: ref, text: text, kb: kb})
	return nil
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakeChat) last(t *testing.T) message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		t.Fatal("no messages rendered")
	}
	return f.msgs[len(f.msgs)-1]
}

type fakeCustody struct {
	mu      sync.Mutex
	signed  []string
	signErr error
}

func (f *fakeCustody) GetOrCreateWallet(context.Context, int64) (privy.Wallet, error) {
	return privy.Wallet{ID: "wallet-1", Address: walletKey.String()}, nil
}

func (f *fakeCustody) SignTransaction(_ context.Context, walletID, tx string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return "", f.signErr
	}
	f.signed = append(f.signed, tx)
	return signedB64, nil
}

type fakeTrading struct {
	mu       sync.Mutex
	holdings jupiter.Holdings
	prices   map[string]*big.Rat

	orderReqs []jupiter.OrderRequest
	execErr   error
	created   []jupiter.CreateOrderRequest
	orders    []jupiter.TriggerOrder
	cancelled []string
}

func (f *fakeTrading) Holdings(context.Context, string) (jupiter.Holdings, error) {
	return f.holdings, nil
}

func (f *fakeTrading) Order(_ context.Context, req jupiter.OrderRequest) (jupiter.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderReqs = append(f.orderReqs, req)
	return jupiter.Order{RequestID: "req-1", Transaction: "dW5zaWduZWQ=", OutAmount: "250000"}, nil
}

func (f *fakeTrading) Execute(context.Context, string, string) (jupiter.Execution, error) {
	if f.execErr != nil {
		return jupiter.Execution{}, f.execErr
	}
	return jupiter.Execution{Status: "Success", Signature: "swapsig"}, nil
}

func (f *fakeTrading) CreateOrder(_ context.Context, req jupiter.CreateOrderRequest) (jupiter.Prepared, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return jupiter.Prepared{RequestID: "req-2", Transaction: "dW5zaWduZWQ=", Order: "order-1"}, nil
}

func (f *fakeTrading) ExecuteTrigger(context.Context, string, string) (jupiter.Execution, error) {
	if f.execErr != nil {
		return jupiter.Execution{}, f.execErr
	}
	return jupiter.Execution{Status: "Success", Signature: "triggersig"}, nil
}

func (f *fakeTrading) CancelOrder(_ context.Context, _, orderKey string) (jupiter.Prepared, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderKey)
	return jupiter.Prepared{RequestID: "req-3", Transaction: "dW5zaWduZWQ="}, nil
}

func (f *fakeTrading) ActiveOrders(context.Context, string) ([]jupiter.TriggerOrder, error) {
	return f.orders, nil
}

func (f *fakeTrading) Price(_ context.Context, mint string) (*big.Rat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.prices[mint]; ok {
		return p, nil
	}
	return nil, errs.New(errs.CodeNotFound, "no price")
}

func (f *fakeTrading) Prices(_ context.Context, mints []string) (map[string]*big.Rat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*big.Rat)
	for _, m := range mints {
		if p, ok := f.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

func (f *fakeTrading) setPrice(mint string, p *big.Rat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = make(map[string]*big.Rat)
	}
	if p == nil {
		delete(f.prices, mint)
		return
	}
	f.prices[mint] = p
}

type fakeDirectory map[string]jupiter.Token

func (d fakeDirectory) Resolve(_ context.Context, q string) (jupiter.Token, bool, error) {
	for _, tok := range d {
		if tok.ID == q || strings.EqualFold(tok.Symbol, q) {
			return tok, true, nil
		}
	}
	return jupiter.Token{}, false, nil
}

type fakeLedger struct {
	mu         sync.Mutex
	owner      solana.PublicKey
	sent       [][]byte
	confirmed  []solana.Signature
	sendErr    error
	confirmErr error
	// onConfirm runs while the withdrawal waits for confirmation.
	onConfirm func()
}

func (f *fakeLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeLedger) AccountOwner(context.Context, solana.PublicKey) (solana.PublicKey, error) {
	return f.owner, nil
}

func (f *fakeLedger) SendRaw(_ context.Context, raw []byte) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, raw)
	return solana.Signature{5}, nil
}

func (f *fakeLedger) Confirm(_ context.Context, sig solana.Signature) error {
	if f.onConfirm != nil {
		f.onConfirm()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, sig)
	return f.confirmErr
}

type fakeEstimator struct {
	mu   sync.Mutex
	reqs []estimator.Request
	err  error
}

func (f *fakeEstimator) Prepare(_ context.Context, req estimator.Request) (estimator.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return estimator.Estimate{}, f.err
	}
	return estimator.Estimate{Units: 1200, MicroLamports: 10_000, Base64: "dW5zaWduZWQ="}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeRecorder) FlowOutcome(flow, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, flow+":"+outcome)
}

type harness struct {
	eng     *Engine
	store   session.Store
	chat    *fakeChat
	custody *fakeCustody
	trading *fakeTrading
	ledger  *fakeLedger
	est     *fakeEstimator
	rec     *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   state.NewMemoryStore[session.State](session.StoreOptions(time.Hour, nil)),
		chat:    &fakeChat{},
		custody: &fakeCustody{},
		trading: &fakeTrading{
			holdings: jupiter.Holdings{
				Amount:         "1500000000",
				UIAmountString: "1.5",
				Tokens: map[string][]jupiter.TokenAccount{
					usdcMint: {{Amount: "100000000", UIAmountString: "100", Decimals: 6}},
					bonkMint: {{Amount: "0", UIAmountString: "0", Decimals: 5}},
				},
			},
		},
		ledger: &fakeLedger{owner: solana.TokenProgramID},
		est:    &fakeEstimator{},
		rec:    &fakeRecorder{},
	}
	dir := fakeDirectory{
		usdcMint: {ID: usdcMint, Symbol: "USDC", Decimals: 6},
		jupMint:  {ID: jupMint, Symbol: "JUP", Decimals: 6},
		"sol":    {ID: session.NativeMint, Symbol: "SOL", Decimals: 9},
	}
	h.eng = New(Deps{
		Store:     h.store,
		Chat:      h.chat,
		Custody:   h.custody,
		Trading:   h.trading,
		Directory: dir,
		Ledger:    h.ledger,
		Estimator: h.est,
		Metrics:   h.rec,
	})
	return h
}

var promptRef = session.MessageRef{ChatID: testChat, MessageID: 100}

func callback(data string) chat.Event {
	return chat.Event{ChatID: testChat, UserID: testChat, CallbackID: "cb", Data: data, Message: promptRef}
}

func text(s string) chat.Event {
	return chat.Event{ChatID: testChat, UserID: testChat, Text: s, Message: session.MessageRef{ChatID: testChat, MessageID: 555}}
}

// send routes ev to the active flow the way the router does.
func (h *harness) send(t *testing.T, ev chat.Event) {
	t.Helper()
	st, _, err := h.store.Get(context.Background(), testChat)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if _, err := h.eng.Handle(context.Background(), ev, st); err != nil {
		t.Fatalf("handle %+v: %v", ev, err)
	}
}

func (h *harness) state(t *testing.T) (session.State, bool) {
	t.Helper()
	st, ok, err := h.store.Get(context.Background(), testChat)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return st, ok
}

func (h *harness) step(t *testing.T) session.Step {
	t.Helper()
	st, ok := h.state(t)
	if !ok || st.Active == nil {
		t.Fatal("expected an active flow")
	}
	return st.Active.Current()
}

func (h *harness) requireCleared(t *testing.T) {
	t.Helper()
	if st, ok := h.state(t); ok {
		t.Fatalf("expected cleared session, got %+v", st.Active)
	}
}

func requireText(t *testing.T, m message, want string) {
	t.Helper()
	if !strings.Contains(m.text, want) {
		t.Fatalf("message %q does not contain %q", m.text, want)
	}
}

func rat(t *testing.T, s string) *big.Rat {
	t.Helper()
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		t.Fatalf("bad rat %q", s)
	}
	return r
}

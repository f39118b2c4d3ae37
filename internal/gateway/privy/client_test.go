package privy

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m3rciful/tradebot/internal/httpx"
)

type fakePrivy struct {
	users       map[string]user
	createdUser int
	wallets     int
	signed      int
	lastSig     string
}

func (f *fakePrivy) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/telegram/telegram_user_id", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("privy-app-id") != "app" {
			t.Fatalf("missing app id header")
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "app" || pass != "secret" {
			t.Fatalf("bad basic auth")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		u, ok := f.users[body["telegram_user_id"]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"User not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		f.createdUser++
		_, _ = w.Write([]byte(`{"id":"did:privy:new","linked_accounts":[{"type":"telegram","telegram_user_id":"77"}]}`))
	})
	mux.HandleFunc("/v1/wallets", func(w http.ResponseWriter, r *http.Request) {
		f.wallets++
		if r.Header.Get("privy-idempotency-key") == "" {
			t.Fatalf("wallet creation without idempotency key")
		}
		var body createWalletBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.ChainType != "solana" || body.Owner["user_id"] == "" {
			t.Fatalf("unexpected wallet body %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":"wallet-new","address":"NewAddr111"}`))
	})
	mux.HandleFunc("/v1/wallets/wallet-1/rpc", func(w http.ResponseWriter, r *http.Request) {
		f.signed++
		f.lastSig = r.Header.Get("privy-authorization-signature")
		var body rpcBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Method != "signTransaction" || body.Params["encoding"] != "base64" {
			t.Fatalf("unexpected rpc body %+v", body)
		}
		_, _ = w.Write([]byte(`{"method":"signTransaction","data":{"signed_transaction":"SIGNED-` + body.Params["transaction"] + `","encoding":"base64"}}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakePrivy, authKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(httpx.New(2*time.Second, 0, "gw.privy"), Config{
		AppID:            "app",
		AppSecret:        "secret",
		AuthorizationKey: authKey,
		SignerID:         "signer",
		AuthURL:          srv.URL,
		APIURL:           srv.URL,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestResolveWalletReusesLinkedWallet(t *testing.T) {
	f := &fakePrivy{users: map[string]user{
		"42": {ID: "did:privy:1", LinkedAccounts: []linkedAccount{
			{Type: "telegram", TelegramUserID: "42"},
			{Type: "wallet", ID: "wallet-1", Address: "Addr111", ChainType: "solana", WalletClientType: "privy"},
		}},
	}}
	c := newTestClient(t, f, "")

	w, err := c.ResolveWallet(context.Background(), 42)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.ID != "wallet-1" || w.Address != "Addr111" {
		t.Fatalf("unexpected wallet %+v", w)
	}
	if f.createdUser != 0 || f.wallets != 0 {
		t.Fatalf("should not create anything: users=%d wallets=%d", f.createdUser, f.wallets)
	}
}

func TestResolveWalletCreatesUserAndWallet(t *testing.T) {
	f := &fakePrivy{users: map[string]user{}}
	c := newTestClient(t, f, "")

	w, err := c.ResolveWallet(context.Background(), 77)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.ID != "wallet-new" || f.createdUser != 1 || f.wallets != 1 {
		t.Fatalf("wallet=%+v users=%d wallets=%d", w, f.createdUser, f.wallets)
	}
}

func TestCustodyCachesInRegistry(t *testing.T) {
	f := &fakePrivy{users: map[string]user{}}
	custody := NewCustody(newTestClient(t, f, ""), NewMemoryRegistry())
	ctx := context.Background()

	first, err := custody.GetOrCreateWallet(ctx, 77)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := custody.GetOrCreateWallet(ctx, 77)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second || f.wallets != 1 {
		t.Fatalf("registry not used: %+v %+v wallets=%d", first, second, f.wallets)
	}
}

func TestSignTransactionWithAuthorizationSignature(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f := &fakePrivy{}
	c := newTestClient(t, f, authKeyPrefix+base64.StdEncoding.EncodeToString(der))

	signed, err := c.SignTransaction(context.Background(), "wallet-1", "AAAA")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed != "SIGNED-AAAA" {
		t.Fatalf("unexpected signed tx %q", signed)
	}
	sig, err := base64.StdEncoding.DecodeString(f.lastSig)
	if err != nil || len(sig) == 0 {
		t.Fatalf("missing authorization signature: %q", f.lastSig)
	}
	payload, err := signaturePayload(http.MethodPost, c.cfg.APIURL+"/v1/wallets/wallet-1/rpc", rpcBody{
		Method: "signTransaction",
		Params: map[string]string{"transaction": "AAAA", "encoding": "base64"},
	}, "app")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	digest := sha256.Sum256(payload)
	if !ecdsa.VerifyASN1(&key.PublicKey, digest[:], sig) {
		t.Fatal("signature does not verify")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(httpx.New(time.Second, 0, "gw.privy"), Config{AppID: "app"}); err == nil {
		t.Fatal("expected error without secret")
	}
}

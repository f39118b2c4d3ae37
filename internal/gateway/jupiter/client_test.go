package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/tradebot/internal/errs"
	"github.com/m3rciful/tradebot/internal/httpx"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(httpx.New(2*time.Second, 0, "gw.jupiter"), "test-key", Endpoints{
		Ultra:   srv.URL + "/ultra/v1",
		Trigger: srv.URL + "/trigger/v1",
		Tokens:  srv.URL + "/tokens/v2",
		Price:   srv.URL + "/price/v3",
	})
}

func TestOrderSendsQueryAndKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ultra/v1/order", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Fatalf("expected x-api-key header, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("inputMint") != "in" || q.Get("outputMint") != "out" || q.Get("amount") != "2350740" || q.Get("taker") != "wallet" {
			t.Fatalf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`{"requestId":"req-1","transaction":"AQID","inAmount":"2350740","outAmount":"99"}`))
	})
	c := newTestClient(t, mux)

	order, err := c.Order(context.Background(), OrderRequest{InputMint: "in", OutputMint: "out", Amount: "2350740", Taker: "wallet"})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.RequestID != "req-1" || order.Transaction != "AQID" || order.OutAmount != "99" {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestOrderWithoutTransactionSurfacesProviderMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ultra/v1/order", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requestId":"req-2","transaction":null,"errorCode":1,"errorMessage":"Insufficient funds"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.Order(context.Background(), OrderRequest{InputMint: "a", OutputMint: "b", Amount: "1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.Is(err, errs.CodeUpstream) || !strings.Contains(err.Error(), "Insufficient funds") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestExecuteFailedStatusIsError(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/ultra/v1/execute", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["signedTransaction"] != "signed" || body["requestId"] != "req-1" {
			t.Fatalf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`{"status":"Failed","code":-1005,"error":"Transaction expired"}`))
	})
	c := newTestClient(t, mux)

	exec, err := c.Execute(context.Background(), "signed", "req-1")
	if err == nil || !strings.Contains(err.Error(), "Transaction expired") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if exec.Status != "Failed" || calls != 1 {
		t.Fatalf("status=%q calls=%d", exec.Status, calls)
	}
}

func TestExecuteIsNotRetried(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger/v1/execute", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := New(httpx.New(2*time.Second, 3, "gw.jupiter"), "", Endpoints{Trigger: srv.URL + "/trigger/v1"})

	if _, err := c.ExecuteTrigger(context.Background(), "signed", "req"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("submission retried %d times", calls)
	}
}

func TestCreateOrderBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger/v1/createOrder", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			InputMint string            `json:"inputMint"`
			Maker     string            `json:"maker"`
			Payer     string            `json:"payer"`
			Params    map[string]string `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Maker != "wallet" || body.Payer != "wallet" {
			t.Fatalf("maker/payer mismatch: %+v", body)
		}
		if body.Params["makingAmount"] != "10000000" || body.Params["takingAmount"] != "5263157" {
			t.Fatalf("unexpected params %v", body.Params)
		}
		_, _ = w.Write([]byte(`{"requestId":"r","transaction":"tx","order":"ord"}`))
	})
	c := newTestClient(t, mux)

	prep, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		InputMint: "in", OutputMint: "out", Maker: "wallet",
		MakingAmount: "10000000", TakingAmount: "5263157",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if prep.Order != "ord" || prep.RequestID != "r" {
		t.Fatalf("unexpected %+v", prep)
	}
}

func TestActiveOrdersQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger/v1/getTriggerOrders", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("orderStatus") != "active" || r.URL.Query().Get("user") != "wallet" {
			t.Fatalf("unexpected query %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{"orders":[{"orderKey":"k1","inputMint":"a","outputMint":"b","makingAmount":"1.5","takingAmount":"3"}],"totalPages":1,"page":1}`))
	})
	c := newTestClient(t, mux)

	orders, err := c.ActiveOrders(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderKey != "k1" {
		t.Fatalf("unexpected %+v", orders)
	}
}

func TestPricesParsesUSD(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/price/v3", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "a,b" {
			t.Fatalf("unexpected ids %q", r.URL.Query().Get("ids"))
		}
		_, _ = w.Write([]byte(`{"a":{"usdPrice":150.25,"decimals":9},"b":null}`))
	})
	c := newTestClient(t, mux)

	prices, err := c.Prices(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if got := prices["a"].FloatString(2); got != "150.25" {
		t.Fatalf("price a = %s", got)
	}
	if _, ok := prices["b"]; ok {
		t.Fatal("null price should be absent")
	}
	if _, err := c.Price(context.Background(), "b"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestHoldingsDecodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ultra/v1/holdings/wallet", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"amount":"1500000000","uiAmountString":"1.5","tokens":{"mintA":[{"account":"acc","amount":"7123456","uiAmountString":"7.123456","decimals":6}]}}`))
	})
	c := newTestClient(t, mux)

	h, err := c.Holdings(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if h.UIAmountString != "1.5" || h.Tokens["mintA"][0].Amount != "7123456" {
		t.Fatalf("unexpected %+v", h)
	}
}

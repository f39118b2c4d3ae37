package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFlowOutcomeCounts(t *testing.T) {
	m := New()
	m.FlowOutcome("swap", "success")
	m.FlowOutcome("swap", "success")
	m.FlowOutcome("withdraw", "failure")

	if got := testutil.ToFloat64(m.flows.WithLabelValues("swap", "success")); got != 2 {
		t.Fatalf("swap success = %v", got)
	}
	if got := testutil.ToFloat64(m.flows.WithLabelValues("withdraw", "failure")); got != 1 {
		t.Fatalf("withdraw failure = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FlowOutcome("swap", "success")
	m.Estimate("ok", 1, 1)
	m.Update("text")
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	m := New()
	m.Estimate("ok", 120_000, 25_000)
	srv := httptest.NewServer(Router(m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `tradebot_estimates_total{outcome="ok"} 1`) {
		t.Fatalf("metrics body missing estimate counter:\n%s", body)
	}
}

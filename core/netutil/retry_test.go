package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	cases := []struct {
		name      string
		err       error
		kind      Kind
		notSent   bool
		retryable bool
	}{
		{"nil", nil, KindNone, false, false},
		{"plain", errors.New("boom"), KindOther, false, false},
		{"cancelled", context.Canceled, KindOther, false, false},
		{"deadline", context.DeadlineExceeded, KindTimeout, false, true},
		{"timeout", timeoutErr{}, KindTimeout, false, true},
		{"dial", dial, KindDial, true, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, KindDNS, true, true},
		{"read reset", &net.OpError{Op: "read", Err: errors.New("reset")}, KindOther, false, false},
		{"url wrapping dial", &url.Error{Op: "Post", URL: "https://x", Err: dial}, KindDial, true, true},
		{"url wrapping timeout", &url.Error{Op: "Post", URL: "https://x", Err: timeoutErr{}}, KindTimeout, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.kind {
				t.Fatalf("Classify = %q, want %q", got, tc.kind)
			}
			if got := NotSent(tc.err); got != tc.notSent {
				t.Fatalf("NotSent = %v, want %v", got, tc.notSent)
			}
			if got := ShouldRetry(tc.err); got != tc.retryable {
				t.Fatalf("ShouldRetry = %v, want %v", got, tc.retryable)
			}
		})
	}
}

// Package netutil classifies transport errors for the Telegram client and
// the provider gateways.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
)

// Kind labels a transport failure for logs and retry decisions.
type Kind string

const (
	KindNone    Kind = ""
	KindDNS     Kind = "dns"
	KindDial    Kind = "dial"
	KindTimeout Kind = "timeout"
	KindTLS     Kind = "tls"
	KindOther   Kind = "other"
)

// Classify walks the error chain and reports the first transport failure
// it recognises.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if opErr.Timeout() {
			return KindTimeout
		}
		return KindDial
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var alert tls.AlertError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &alert) || errors.As(err, &certErr) {
		return KindTLS
	}
	return KindOther
}

// NotSent reports whether the request never left this host: the
// connection could not be resolved or dialed. Retrying such a request
// cannot duplicate it.
func NotSent(err error) bool {
	switch Classify(err) {
	case KindDNS, KindDial:
		return true
	}
	return false
}

// ShouldRetry reports whether a transport error is transient: NotSent
// failures plus timeouts. A timed-out request may have been processed, so
// callers retrying it must be idempotent.
func ShouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return NotSent(err) || Classify(err) == KindTimeout
}

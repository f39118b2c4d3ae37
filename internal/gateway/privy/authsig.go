package privy

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/m3rciful/tradebot/internal/errs"
)

const authKeyPrefix = "wallet-auth:"

// requestSigner produces privy-authorization-signature headers.
type requestSigner struct {
	key *ecdsa.PrivateKey
}

func newRequestSigner(encoded string) (*requestSigner, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(encoded), authKeyPrefix)
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errs.Wrap(errs.CodeAuth, "decode privy authorization key", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errs.Wrap(errs.CodeAuth, "parse privy authorization key", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errs.New(errs.CodeAuth, "privy authorization key is not an ECDSA key")
	}
	return &requestSigner{key: key}, nil
}

// payload is the canonical message: keys sorted, no HTML escaping.
func signaturePayload(method, url string, body any, appID string) ([]byte, error) {
	// Round-trip the body through a generic value so nested keys sort too.
	var generic any
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	msg := map[string]any{
		"version": 1,
		"method":  method,
		"url":     url,
		"body":    generic,
		"headers": map[string]string{"privy-app-id": appID},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (s *requestSigner) sign(method, url string, body any, appID string) (string, error) {
	payload, err := signaturePayload(method, url, body, appID)
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, "build authorization payload", err)
	}
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, "sign authorization payload", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

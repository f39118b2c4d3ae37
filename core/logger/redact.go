package logger

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	botTokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
	bearerRe   = regexp.MustCompile(`(?i)(bearer|basic)\s+[A-Za-z0-9._~+/=-]+`)
)

// secretKeys never reach a log line with their value.
var secretKeys = map[string]struct{}{
	"authorization":     {},
	"api_key":           {},
	"app_secret":        {},
	"authorization_key": {},
	"private_key":       {},
	"secret_token":      {},
	"token":             {},
	"transaction":       {},
	"signed_tx":         {},
}

const redacted = "[redacted]"

// Redact masks bot tokens and HTTP credentials embedded in s.
func Redact(s string) string {
	s = botTokenRe.ReplaceAllString(s, "bot"+redacted)
	return bearerRe.ReplaceAllString(s, "$1 "+redacted)
}

// Clip strips control characters from s, masks credentials and cuts the
// result to limit runes.
func Clip(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
	s = Redact(s)
	if r := []rune(s); len(r) > limit {
		return string(r[:limit])
	}
	return s
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

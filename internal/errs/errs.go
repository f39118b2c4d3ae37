// Package errs defines the error taxonomy shared by gateways and flows.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error class.
type Code int

const (
	CodeInternal Code = iota + 1
	CodeValidation
	CodeGuard
	CodeUpstream
	CodeAuth
	CodeRateLimited
	CodeUnavailable
	CodeSimulation
	CodeInsufficientFunds
	CodeSlippage
	CodeNotFound
)

var codeNames = map[Code]string{
	CodeInternal:          "INTERNAL",
	CodeValidation:        "VALIDATION",
	CodeGuard:             "GUARD",
	CodeUpstream:          "UPSTREAM",
	CodeAuth:              "AUTH",
	CodeRateLimited:       "RATE_LIMITED",
	CodeUnavailable:       "UNAVAILABLE",
	CodeSimulation:        "SIMULATION",
	CodeInsufficientFunds: "INSUFFICIENT_FUNDS",
	CodeSlippage:          "SLIPPAGE",
	CodeNotFound:          "NOT_FOUND",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Error carries a Code alongside a user-presentable message.
type Error struct {
	Kind    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code satisfies the handler summary coder so logs carry err_code.
func (e *Error) Code() string { return e.Kind.String() }

func New(code Code, message string) *Error {
	return &Error{Kind: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Kind: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Kind: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the user may retry the same step: input
// validation failures and guard rejections leave the session untouched.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeGuard:
		return true
	}
	return false
}

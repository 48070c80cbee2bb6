package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type. The agent command maps it
// to a process exit code; the orchestrator maps it to a user-facing message.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2

	// Model output.
	CodeExtraction Code = 20

	// Pool / asset resolution.
	CodeMissingTarget  Code = 30
	CodePoolNotFound   Code = 31
	CodeSymbolMismatch Code = 32

	// Amount conversion.
	CodeInvalidAmount    Code = 40
	CodeUnknownAsset     Code = 41
	CodePriceUnavailable Code = 42
	CodePercentBase      Code = 43
	CodeAmountOverflow   Code = 44

	// Coin ledger.
	CodeInsufficientBalance Code = 50
	CodeNothingToSettle     Code = 51

	// External boundaries.
	CodeSignerDeclined Code = 60
	CodeSigner         Code = 61
	CodeRPC            Code = 62
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
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

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	if typed, ok := As(err); ok {
		return typed.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

// Recoverable reports whether the error is a local validation or conversion
// failure that should turn into an explanatory reply instead of aborting the
// whole turn. Boundary failures (RPC, signer, model transport) are not
// recoverable and surface as a generic retry suggestion.
func Recoverable(err error) bool {
	switch CodeOf(err) {
	case CodeUsage, CodeExtraction,
		CodeMissingTarget, CodePoolNotFound, CodeSymbolMismatch,
		CodeInvalidAmount, CodeUnknownAsset, CodePriceUnavailable,
		CodePercentBase, CodeAmountOverflow,
		CodeInsufficientBalance, CodeNothingToSettle:
		return true
	}
	return false
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

package entities

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of settlement failure
type ErrorCode string

const (
	ErrCodeValidation        ErrorCode = "VALIDATION"
	ErrCodeStateConflict     ErrorCode = "STATE_CONFLICT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeLedgerFailure     ErrorCode = "LEDGER_FAILURE"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeNoBalance         ErrorCode = "NO_BALANCE"
)

// ErrCommitmentExists is returned by the ledger when a commitment was already
// submitted. Retried steps treat it as success.
var ErrCommitmentExists = errors.New("commitment already exists")

// ErrLedgerUnavailable marks a ledger call that timed out or found no responder.
// Only these failures are retried.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// SettlementError is a coded error surfaced to API callers verbatim
type SettlementError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *SettlementError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) *SettlementError {
	return &SettlementError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewStateConflictError(format string, args ...any) *SettlementError {
	return &SettlementError{Code: ErrCodeStateConflict, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *SettlementError {
	return &SettlementError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInsufficientFundsError(format string, args ...any) *SettlementError {
	return &SettlementError{Code: ErrCodeInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func NewNoBalanceError(format string, args ...any) *SettlementError {
	return &SettlementError{Code: ErrCodeNoBalance, Message: fmt.Sprintf(format, args...)}
}

// WrapLedgerFailure marks err as a rejected or timed out ledger commitment
func WrapLedgerFailure(message string, err error) *SettlementError {
	return &SettlementError{Code: ErrCodeLedgerFailure, Message: message, Err: err}
}

// WrapInvalidAmount marks err as an unparseable amount
func WrapInvalidAmount(message string, err error) *SettlementError {
	return &SettlementError{Code: ErrCodeInvalidAmount, Message: message, Err: err}
}

// IsCode reports whether any error in err's chain is a SettlementError with the given code
func IsCode(err error, code ErrorCode) bool {
	var settlementErr *SettlementError
	if !errors.As(err, &settlementErr) {
		return false
	}
	return settlementErr.Code == code
}

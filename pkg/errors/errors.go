package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a business error so callers can decide whether to retry,
// correct their input or surface the message to the borrower.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindInvalidState          Kind = "INVALID_STATE"
	KindInsufficientFunds     Kind = "INSUFFICIENT_FUNDS"
	KindAlreadyPaid           Kind = "ALREADY_PAID"
	KindProfileNotFound       Kind = "PROFILE_NOT_FOUND"
	KindDependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	KindNotFound              Kind = "NOT_FOUND"
	KindInternal              Kind = "INTERNAL"
)

// Kind sentinels, matched with errors.Is against any *BusinessError.
var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAlreadyPaid           = errors.New("installment already paid")
	ErrProfileNotFound       = errors.New("credit profile not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrNotFound              = errors.New("not found")
	ErrInternal              = errors.New("internal error")
)

var kindSentinels = map[Kind]error{
	KindValidation:            ErrValidation,
	KindInvalidState:          ErrInvalidState,
	KindInsufficientFunds:     ErrInsufficientFunds,
	KindAlreadyPaid:           ErrAlreadyPaid,
	KindProfileNotFound:       ErrProfileNotFound,
	KindDependencyUnavailable: ErrDependencyUnavailable,
	KindNotFound:              ErrNotFound,
	KindInternal:              ErrInternal,
}

// Store-level errors returned by repositories and adapters.
var (
	ErrLoanNotFound      = errors.New("loan not found")
	ErrEntryNotFound     = errors.New("schedule entry not found")
	ErrConcurrentUpdate  = errors.New("record was modified concurrently")
	ErrLedgerNoFunds     = errors.New("ledger: balance too low")
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrCreditRecordEmpty = errors.New("bureau: no credit record")
	ErrRateUnavailable   = errors.New("pricing: rate per gram unavailable")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInsufficientFunds) match any error of that kind.
func (e *BusinessError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// NewBusinessError creates a new business error
func NewBusinessError(kind Kind, code, message string, err error) *BusinessError {
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeMissingDocument       = "MISSING_DOCUMENT"
	ErrCodeCreditDeclined        = "CREDIT_DECLINED"
	ErrCodeCreditLimitExceeded   = "CREDIT_LIMIT_EXCEEDED"
	ErrCodeCollateralMismatch    = "COLLATERAL_WEIGHT_MISMATCH"
	ErrCodeInvalidState          = "INVALID_STATE"
	ErrCodeConcurrentUpdate      = "CONCURRENT_UPDATE"
	ErrCodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	ErrCodeAlreadyPaid           = "ALREADY_PAID"
	ErrCodeProfileNotFound       = "PROFILE_NOT_FOUND"
	ErrCodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	ErrCodeLoanNotFound          = "LOAN_NOT_FOUND"
	ErrCodeEntryNotFound         = "ENTRY_NOT_FOUND"
	ErrCodeDatabaseError         = "DATABASE_ERROR"
	ErrCodeLedgerError           = "LEDGER_ERROR"
)

func WrapValidation(message string) *BusinessError {
	return NewBusinessError(KindValidation, ErrCodeValidation, message, nil)
}

func WrapMissingDocument(document string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeMissingDocument,
		fmt.Sprintf("required document %s is missing", document),
		nil,
	)
}

func WrapCreditDeclined(score int) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeCreditDeclined,
		fmt.Sprintf("credit score %d is below the minimum lending tier", score),
		nil,
	)
}

func WrapCreditLimitExceeded(requested, limit string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeCreditLimitExceeded,
		fmt.Sprintf("requested principal %s exceeds credit limit %s", requested, limit),
		nil,
	)
}

func WrapCollateralMismatch(declared, verified string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeCollateralMismatch,
		fmt.Sprintf("verified weight %sg is materially below declared weight %sg; manual review required", verified, declared),
		nil,
	)
}

func WrapInvalidState(loanID, status, operation string) *BusinessError {
	return NewBusinessError(
		KindInvalidState,
		ErrCodeInvalidState,
		fmt.Sprintf("cannot %s loan %s in status %s", operation, loanID, status),
		nil,
	)
}

func WrapConcurrentUpdate(loanID string) *BusinessError {
	return NewBusinessError(
		KindInvalidState,
		ErrCodeConcurrentUpdate,
		fmt.Sprintf("loan %s was modified concurrently", loanID),
		ErrConcurrentUpdate,
	)
}

func WrapInsufficientFunds(accountNumber, balance, required string) *BusinessError {
	return NewBusinessError(
		KindInsufficientFunds,
		ErrCodeInsufficientFunds,
		fmt.Sprintf("account %s balance %s is below required %s", accountNumber, balance, required),
		nil,
	)
}

func WrapAlreadyPaid(entryID string) *BusinessError {
	return NewBusinessError(
		KindAlreadyPaid,
		ErrCodeAlreadyPaid,
		fmt.Sprintf("installment %s is already paid", entryID),
		nil,
	)
}

func WrapProfileNotFound(pan string) *BusinessError {
	return NewBusinessError(
		KindProfileNotFound,
		ErrCodeProfileNotFound,
		fmt.Sprintf("no credit record for %s", pan),
		ErrCreditRecordEmpty,
	)
}

func WrapDependencyUnavailable(dependency string, err error) *BusinessError {
	return NewBusinessError(
		KindDependencyUnavailable,
		ErrCodeDependencyUnavailable,
		fmt.Sprintf("%s did not respond", dependency),
		err,
	)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapEntryNotFound(entryID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeEntryNotFound,
		fmt.Sprintf("Schedule entry %s not found", entryID),
		ErrEntryNotFound,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		KindInternal,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

// WrapLedgerError classifies a raw ledger failure. Timeouts and transport
// errors become DependencyUnavailable, never InsufficientFunds.
func WrapLedgerError(accountNumber string, err error) *BusinessError {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return WrapDependencyUnavailable("ledger", err)
	case errors.Is(err, ErrLedgerNoFunds):
		return NewBusinessError(
			KindInsufficientFunds,
			ErrCodeInsufficientFunds,
			fmt.Sprintf("account %s cannot cover the debit", accountNumber),
			err,
		)
	case errors.Is(err, ErrAccountNotFound):
		return NewBusinessError(
			KindValidation,
			ErrCodeLedgerError,
			fmt.Sprintf("account %s does not exist", accountNumber),
			err,
		)
	default:
		return WrapDependencyUnavailable("ledger", err)
	}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to the status code surfaced by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidState, KindAlreadyPaid:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindProfileNotFound, KindNotFound:
		return http.StatusNotFound
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

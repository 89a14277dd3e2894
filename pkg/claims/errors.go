package claims

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by claim and dispute operations.
var (
	ErrAlreadyClaimed        = errors.New("turnover already claimed")
	ErrAlreadyDisputed       = errors.New("claim already disputed")
	ErrAlreadyResolved       = errors.New("dispute already resolved")
	ErrSelfDisputeForbidden  = errors.New("self dispute forbidden")
	ErrTenantScopeViolation  = errors.New("tenant scope violation")
	ErrStaleWindow           = errors.New("turnover before launch threshold")
	ErrBonusSyncDegraded     = errors.New("claimed, bonus sync degraded")
	ErrDisputeForeclosed     = errors.New("claim foreclosed to further disputes")
	ErrDisputeNotCancellable = errors.New("dispute not cancellable by caller")

	ErrUnknownTurnover     = errors.New("unknown turnover")
	ErrUnknownClaim        = errors.New("unknown claim")
	ErrUnknownDispute      = errors.New("unknown dispute")
	ErrUnknownRegistration = errors.New("unknown registration")
	ErrUnknownGroup        = errors.New("unknown company group")

	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidTaxID           = errors.New("invalid tax id")
	ErrInvalidTurnoverID      = errors.New("invalid turnover id")
	ErrInvalidClaimID         = errors.New("invalid claim id")
	ErrInvalidDisputeID       = errors.New("invalid dispute id")
	ErrInvalidGroupID         = errors.New("invalid group id")
	ErrInvalidSourceRowKey    = errors.New("invalid source row key")
	ErrInvalidPeriodDate      = errors.New("invalid period date")
	ErrInvalidVolume          = errors.New("invalid volume")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidDisputeStatus   = errors.New("invalid dispute status")
	ErrInvalidDisputeState    = errors.New("invalid dispute state")
	ErrInvalidDisputeDecision = errors.New("invalid dispute decision")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
)

// isDegraded reports whether the operation committed but the accrual
// follow-up failed.
func isDegraded(err error) bool {
	return errors.Is(err, ErrBonusSyncDegraded)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

package finance

import "errors"

// Domain-level error values returned by finance operations.
var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrWithdrawalClosed    = errors.New("withdrawal request already closed")
	ErrSupertaskClosed     = errors.New("supertask already closed")

	ErrUnknownWithdrawal = errors.New("unknown withdrawal request")
	ErrUnknownStageAward = errors.New("unknown stage award")
	ErrUnknownClaimFacts = errors.New("unknown claim facts")
	ErrUnknownSupertask  = errors.New("unknown supertask")

	ErrInvalidAmountCents      = errors.New("invalid amount cents")
	ErrInvalidEntryKind        = errors.New("invalid entry kind")
	ErrInvalidEntryID          = errors.New("invalid entry id")
	ErrInvalidStageCode        = errors.New("invalid stage code")
	ErrInvalidWithdrawalID     = errors.New("invalid withdrawal id")
	ErrInvalidRequisitesRef    = errors.New("invalid requisites reference")
	ErrInvalidWithdrawalStatus = errors.New("invalid withdrawal status")
	ErrInvalidSupertaskID      = errors.New("invalid supertask id")
	ErrInvalidSupertaskStatus  = errors.New("invalid supertask status")
	ErrInvalidLevelCode        = errors.New("invalid level code")
	ErrInvalidPeriodKey        = errors.New("invalid period key")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

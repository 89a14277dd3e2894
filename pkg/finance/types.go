package finance

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

// AmountCents is a signed bonus amount in coin cents.
type AmountCents int64

// NewAmountCents validates a signed amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	return AmountCents(raw), nil
}

// Int64 returns the raw cent count.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Negated returns the amount with the opposite sign.
func (amount AmountCents) Negated() AmountCents {
	return -amount
}

// PositiveAmountCents is an amount known to be strictly positive.
type PositiveAmountCents int64

// NewPositiveAmountCents validates a strictly positive amount.
func NewPositiveAmountCents(raw int64) (PositiveAmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return PositiveAmountCents(raw), nil
}

// Int64 returns the raw cent count.
func (amount PositiveAmountCents) Int64() int64 {
	return int64(amount)
}

// ToAmountCents widens to a signed amount.
func (amount PositiveAmountCents) ToAmountCents() AmountCents {
	return AmountCents(amount)
}

// PoolBonusCents converts a milliliter volume at a per-liter cent rate,
// rounding half up.
func PoolBonusCents(volumeML int64, rateCentsPerLiter int64) AmountCents {
	return AmountCents((volumeML*rateCentsPerLiter + 500) / 1000)
}

// EntryKind classifies a ledger entry by its bonus source.
type EntryKind string

const (
	EntryPool       EntryKind = "pool"
	EntryNewBuyer   EntryKind = "new_buyer"
	EntryAvgLevel   EntryKind = "avg_level"
	EntrySupertask  EntryKind = "supertask"
	EntryAdjustment EntryKind = "adjustment"
)

// ParseEntryKind validates a stored entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(raw) {
	case EntryPool, EntryNewBuyer, EntryAvgLevel, EntrySupertask, EntryAdjustment:
		return EntryKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
}

// String returns the kind name.
func (kind EntryKind) String() string {
	return string(kind)
}

// StageCode identifies an award stage within a claim.
type StageCode string

const (
	StagePool      StageCode = "pool"
	StageNewBuyer  StageCode = "new_buyer"
	StageSupertask StageCode = "supertask"
)

// ParseStageCode validates a stored stage code.
func ParseStageCode(raw string) (StageCode, error) {
	switch StageCode(raw) {
	case StagePool, StageNewBuyer, StageSupertask:
		return StageCode(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStageCode, raw)
}

// String returns the stage name.
func (code StageCode) String() string {
	return string(code)
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// NewEntryID validates and normalizes an entry id.
func NewEntryID(raw string) (EntryID, error) {
	if raw == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: raw}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// WithdrawalID identifies a withdrawal request.
type WithdrawalID struct {
	value string
}

// NewWithdrawalID validates and normalizes a withdrawal id.
func NewWithdrawalID(raw string) (WithdrawalID, error) {
	if raw == "" {
		return WithdrawalID{}, fmt.Errorf("%w: empty value", ErrInvalidWithdrawalID)
	}
	return WithdrawalID{value: raw}, nil
}

// String returns the normalized identifier.
func (id WithdrawalID) String() string {
	return id.value
}

// EntryInput is a ledger entry before the store assigns its identifier.
// ClaimID is zero for entries not tied to a claim.
type EntryInput struct {
	UserID         claims.UserID
	ClaimID        claims.ClaimID
	Kind           EntryKind
	AmountCents    AmountCents
	Comment        string
	CreatedUnixUTC int64
}

// LedgerEntry is a persisted, append-only bonus movement.
type LedgerEntry struct {
	ID             EntryID
	UserID         claims.UserID
	ClaimID        claims.ClaimID
	Kind           EntryKind
	AmountCents    AmountCents
	Comment        string
	CreatedUnixUTC int64
}

// StageAward is the accrual registry row for one claim stage. It records
// who currently holds the award and for how much, so recomputation can
// detect drift without rescanning the ledger.
type StageAward struct {
	ClaimID     claims.ClaimID
	Stage       StageCode
	Holder      claims.UserID
	AmountCents AmountCents
}

// WithdrawalStatus is the withdrawal request lifecycle.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalPaid     WithdrawalStatus = "paid"
)

// ParseWithdrawalStatus validates a stored withdrawal status.
func ParseWithdrawalStatus(raw string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(raw) {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalPaid:
		return WithdrawalStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
}

// String returns the status name.
func (status WithdrawalStatus) String() string {
	return string(status)
}

// WithdrawalRequest is a user's request to pay out available balance.
// RequisitesRef points at the payout destination kept by the bot layer.
type WithdrawalRequest struct {
	ID               WithdrawalID
	UserID           claims.UserID
	AmountCents      PositiveAmountCents
	RequisitesRef    string
	Status           WithdrawalStatus
	RequestedUnixUTC int64
	ResolvedUnixUTC  int64
}

// Balance is a user's derived bonus position. Available never goes
// negative even when frozen amounts exceed earnings.
type Balance struct {
	EarnedCents    int64
	FrozenCents    int64
	WithdrawnCents int64
	AvailableCents int64
}

// ClaimFacts is the joined view the accrual pass needs for one claim.
// The store resolves window boundaries and buyer ordering so the accrual
// arithmetic stays pure.
type ClaimFacts struct {
	ClaimID         claims.ClaimID
	Claimant        claims.UserID
	GroupID         claims.GroupID
	DisputeOpen     bool
	Period          claims.PeriodDate
	BuyerINN        claims.TaxID
	VolumeML        int64
	PoolWindowEnd   claims.PeriodDate
	FirstBuyerClaim bool
}

// BonusConfig carries the accrual tariffs.
type BonusConfig struct {
	LaunchDate            claims.PeriodDate
	PoolRateCentsPerLiter int64
	NewBuyerBonusCents    int64
}

// Validate checks the tariff set for completeness.
func (config BonusConfig) Validate() error {
	if config.LaunchDate.IsZero() {
		return fmt.Errorf("%w: launch date is required", ErrInvalidServiceConfig)
	}
	if config.PoolRateCentsPerLiter < 0 {
		return fmt.Errorf("%w: pool rate must not be negative", ErrInvalidServiceConfig)
	}
	if config.NewBuyerBonusCents < 0 {
		return fmt.Errorf("%w: new buyer bonus must not be negative", ErrInvalidServiceConfig)
	}
	return nil
}

// Store is the persistence contract shared by the balance service and the
// accrual pass.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// LockUserLedger serializes balance-affecting writes for one user
	// until the enclosing transaction ends.
	LockUserLedger(ctx context.Context, userID claims.UserID) error
	InsertEntry(ctx context.Context, entry EntryInput) (LedgerEntry, error)
	ListEntries(ctx context.Context, userID claims.UserID, beforeUnixUTC int64, limit int) ([]LedgerEntry, error)
	SumEarned(ctx context.Context, userID claims.UserID) (int64, error)
	// SumFrozen totals entries attached to claims whose dispute is open.
	SumFrozen(ctx context.Context, userID claims.UserID) (int64, error)
	// SumWithdrawalHolds totals requests in any non-rejected status.
	SumWithdrawalHolds(ctx context.Context, userID claims.UserID) (int64, error)
	InsertWithdrawal(ctx context.Context, request WithdrawalRequest) (WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, withdrawalID WithdrawalID) (WithdrawalRequest, error)
	// TransitionWithdrawal conditionally moves a request between statuses;
	// zero rows affected surfaces as ErrWithdrawalClosed.
	TransitionWithdrawal(ctx context.Context, withdrawalID WithdrawalID, from, to WithdrawalStatus, resolvedUnixUTC int64) error
	GetClaimFacts(ctx context.Context, claimID claims.ClaimID) (ClaimFacts, error)
	GetStageAward(ctx context.Context, claimID claims.ClaimID, stage StageCode) (StageAward, error)
	// InsertStageAward creates the registry row for a stage not yet
	// awarded; false reports another pass already claimed it.
	InsertStageAward(ctx context.Context, award StageAward) (bool, error)
	UpsertStageAward(ctx context.Context, award StageAward) error
	DeleteStageAward(ctx context.Context, claimID claims.ClaimID, stage StageCode) error
}

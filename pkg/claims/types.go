package claims

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UserID identifies a registered participant.
type UserID struct {
	value string
}

// TaxID is a seller or buyer tax identifier (10 or 12 digits).
type TaxID struct {
	value string
}

// TurnoverID identifies a synced turnover row.
type TurnoverID struct {
	value string
}

// ClaimID identifies a claim.
type ClaimID struct {
	value string
}

// DisputeID identifies a dispute.
type DisputeID struct {
	value string
}

// GroupID identifies a company group, the tenant-isolation boundary.
type GroupID struct {
	value string
}

// SourceRowKey is the natural key of a turnover row in the external feed.
type SourceRowKey struct {
	value string
}

// PeriodDate is a calendar date in ISO form (YYYY-MM-DD). ISO strings
// compare lexicographically, which keeps window checks trivial.
type PeriodDate struct {
	value string
}

// VolumeML is a sale volume in milliliters.
type VolumeML int64

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewTaxID validates a tax identifier: digits only, length 10 or 12.
func NewTaxID(raw string) (TaxID, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 10 && len(trimmed) != 12 {
		return TaxID{}, fmt.Errorf("%w: must be 10 or 12 digits", ErrInvalidTaxID)
	}
	for _, char := range trimmed {
		if char < '0' || char > '9' {
			return TaxID{}, fmt.Errorf("%w: non-digit character", ErrInvalidTaxID)
		}
	}
	return TaxID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TaxID) String() string {
	return id.value
}

// NewTurnoverID validates and normalizes a turnover id.
func NewTurnoverID(raw string) (TurnoverID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TurnoverID{}, fmt.Errorf("%w: empty value", ErrInvalidTurnoverID)
	}
	return TurnoverID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TurnoverID) String() string {
	return id.value
}

// NewClaimID validates and normalizes a claim id.
func NewClaimID(raw string) (ClaimID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ClaimID{}, fmt.Errorf("%w: empty value", ErrInvalidClaimID)
	}
	return ClaimID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ClaimID) String() string {
	return id.value
}

// NewDisputeID validates and normalizes a dispute id.
func NewDisputeID(raw string) (DisputeID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DisputeID{}, fmt.Errorf("%w: empty value", ErrInvalidDisputeID)
	}
	return DisputeID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id DisputeID) String() string {
	return id.value
}

// NewGroupID validates and normalizes a company group id.
func NewGroupID(raw string) (GroupID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return GroupID{}, fmt.Errorf("%w: empty value", ErrInvalidGroupID)
	}
	return GroupID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id GroupID) String() string {
	return id.value
}

// NewSourceRowKey validates and normalizes a feed natural key.
func NewSourceRowKey(raw string) (SourceRowKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SourceRowKey{}, fmt.Errorf("%w: empty value", ErrInvalidSourceRowKey)
	}
	return SourceRowKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key SourceRowKey) String() string {
	return key.value
}

const periodDateLayout = "2006-01-02"

// NewPeriodDate validates an ISO calendar date.
func NewPeriodDate(raw string) (PeriodDate, error) {
	trimmed := strings.TrimSpace(raw)
	if _, err := time.Parse(periodDateLayout, trimmed); err != nil {
		return PeriodDate{}, fmt.Errorf("%w: %q", ErrInvalidPeriodDate, raw)
	}
	return PeriodDate{value: trimmed}, nil
}

// PeriodDateFromTime converts a timestamp to its UTC calendar date.
func PeriodDateFromTime(at time.Time) PeriodDate {
	return PeriodDate{value: at.UTC().Format(periodDateLayout)}
}

// String returns the ISO date.
func (date PeriodDate) String() string {
	return date.value
}

// Before reports whether date precedes other.
func (date PeriodDate) Before(other PeriodDate) bool {
	return date.value < other.value
}

// After reports whether date follows other.
func (date PeriodDate) After(other PeriodDate) bool {
	return date.value > other.value
}

// IsZero reports whether the date is unset.
func (date PeriodDate) IsZero() bool {
	return date.value == ""
}

// NewVolumeML validates a sale volume and ensures it is strictly positive.
func NewVolumeML(raw int64) (VolumeML, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidVolume)
	}
	return VolumeML(raw), nil
}

// Int64 returns the raw milliliter count.
func (volume VolumeML) Int64() int64 {
	return int64(volume)
}

// Role defines what a registration is allowed to do.
type Role string

const (
	RoleSeller    Role = "seller"
	RoleModerator Role = "moderator"
	RoleManager   Role = "manager"
)

// ParseRole validates a stored role value.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleSeller, RoleModerator, RoleManager:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

// DisputeStatus defines the dispute lifecycle.
type DisputeStatus string

const (
	DisputeStatusOpen      DisputeStatus = "open"
	DisputeStatusApproved  DisputeStatus = "approved"
	DisputeStatusRejected  DisputeStatus = "rejected"
	DisputeStatusCancelled DisputeStatus = "cancelled"
)

// ParseDisputeStatus validates a stored dispute status.
func ParseDisputeStatus(raw string) (DisputeStatus, error) {
	switch DisputeStatus(raw) {
	case DisputeStatusOpen, DisputeStatusApproved, DisputeStatusRejected, DisputeStatusCancelled:
		return DisputeStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDisputeStatus, raw)
}

// IsTerminal reports whether the status is final.
func (status DisputeStatus) IsTerminal() bool {
	return status != DisputeStatusOpen
}

// String returns the status name.
func (status DisputeStatus) String() string {
	return string(status)
}

// DisputeDecision is a moderator's verdict on an open dispute.
type DisputeDecision string

const (
	DecisionApprove DisputeDecision = "approve"
	DecisionReject  DisputeDecision = "reject"
)

// ParseDisputeDecision validates a verdict value.
func ParseDisputeDecision(raw string) (DisputeDecision, error) {
	switch DisputeDecision(raw) {
	case DecisionApprove, DecisionReject:
		return DisputeDecision(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDisputeDecision, raw)
}

// DisputeState is the claim-side view of its dispute chain.
type DisputeState string

const (
	DisputeStateNone     DisputeState = "none"
	DisputeStateOpen     DisputeState = "open"
	DisputeStateResolved DisputeState = "resolved"
)

// ParseDisputeState validates a stored claim dispute state.
func ParseDisputeState(raw string) (DisputeState, error) {
	switch DisputeState(raw) {
	case DisputeStateNone, DisputeStateOpen, DisputeStateResolved:
		return DisputeState(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDisputeState, raw)
}

// String returns the state name.
func (state DisputeState) String() string {
	return string(state)
}

// TurnoverRecord is a synced external sale, immutable once inserted.
type TurnoverRecord struct {
	ID           TurnoverID
	SourceRowKey SourceRowKey
	Period       PeriodDate
	SellerINN    TaxID
	BuyerINN     TaxID
	BuyerName    string
	Product      string
	Volume       VolumeML
}

// TurnoverInput is a turnover row as delivered by the ingestion boundary.
type TurnoverInput struct {
	SourceRowKey SourceRowKey
	Period       PeriodDate
	SellerINN    TaxID
	BuyerINN     TaxID
	BuyerName    string
	Product      string
	Volume       VolumeML
}

// Claim records that a user confirmed a turnover row.
type Claim struct {
	ID             ClaimID
	TurnoverID     TurnoverID
	Claimant       UserID
	GroupAtClaim   GroupID
	DisputeState   DisputeState
	ClaimedUnixUTC int64
}

// Dispute is a contest over claim ownership.
type Dispute struct {
	ID              DisputeID
	ClaimID         ClaimID
	Opener          UserID
	Moderator       UserID
	Status          DisputeStatus
	OpenedUnixUTC   int64
	ResolvedUnixUTC int64
}

// Registration binds a user to a company group with a role.
type Registration struct {
	UserID  UserID
	GroupID GroupID
	Role    Role
}

// Accruer recomputes bonus accrual for a claim after ownership-affecting
// events. Implemented by the finance package.
type Accruer interface {
	SyncClaim(ctx context.Context, claimID ClaimID) error
}

// Store is the persistence contract used by Service. Conditional updates
// report zero affected rows through the typed sentinel noted per method.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetRegistration(ctx context.Context, userID UserID) (Registration, error)
	GetTurnover(ctx context.Context, turnoverID TurnoverID) (TurnoverRecord, error)
	GroupForSeller(ctx context.Context, sellerINN TaxID) (GroupID, error)
	// InsertClaim surfaces a turnover uniqueness race as ErrAlreadyClaimed.
	InsertClaim(ctx context.Context, claim Claim) (Claim, error)
	GetClaim(ctx context.Context, claimID ClaimID) (Claim, error)
	// MarkClaimDisputed conditionally flips dispute state to open;
	// zero rows affected surfaces as ErrAlreadyDisputed.
	MarkClaimDisputed(ctx context.Context, claimID ClaimID) error
	SetClaimDisputeState(ctx context.Context, claimID ClaimID, state DisputeState) error
	ReassignClaim(ctx context.Context, claimID ClaimID, claimant UserID, group GroupID) error
	InsertDispute(ctx context.Context, dispute Dispute) (Dispute, error)
	GetDispute(ctx context.Context, disputeID DisputeID) (Dispute, error)
	HasRejectedDispute(ctx context.Context, claimID ClaimID) (bool, error)
	// TransitionDispute conditionally moves a dispute between statuses;
	// zero rows affected surfaces as ErrAlreadyResolved.
	TransitionDispute(ctx context.Context, disputeID DisputeID, from, to DisputeStatus, resolvedUnixUTC int64) error
	ModeratorForGroup(ctx context.Context, groupID GroupID) (UserID, error)
}

package finance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

// SupertaskID identifies a group supertask.
type SupertaskID struct {
	value string
}

// NewSupertaskID validates and normalizes a supertask id.
func NewSupertaskID(raw string) (SupertaskID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SupertaskID{}, fmt.Errorf("%w: empty value", ErrInvalidSupertaskID)
	}
	return SupertaskID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SupertaskID) String() string {
	return id.value
}

// SupertaskStatus is the supertask lifecycle.
type SupertaskStatus string

const (
	SupertaskActive SupertaskStatus = "active"
	SupertaskClosed SupertaskStatus = "closed"
)

// ParseSupertaskStatus validates a stored supertask status.
func ParseSupertaskStatus(raw string) (SupertaskStatus, error) {
	switch SupertaskStatus(raw) {
	case SupertaskActive, SupertaskClosed:
		return SupertaskStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSupertaskStatus, raw)
}

// Supertask is a one-off group challenge closed with a single winner.
// A task targeting a buyer tax id is landed by the claim that first
// covers that buyer; WinnerClaimID records the landing claim.
type Supertask struct {
	ID             SupertaskID
	GroupID        claims.GroupID
	Title          string
	TargetBuyerINN claims.TaxID
	RewardCents    PositiveAmountCents
	Status         SupertaskStatus
	Winner         claims.UserID
	WinnerClaimID  claims.ClaimID
	ClosedUnixUTC  int64
}

// LevelCode identifies a monthly average-volume level.
type LevelCode struct {
	value string
}

// NewLevelCode validates and normalizes a level code.
func NewLevelCode(raw string) (LevelCode, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LevelCode{}, fmt.Errorf("%w: empty value", ErrInvalidLevelCode)
	}
	return LevelCode{value: trimmed}, nil
}

// String returns the normalized code.
func (code LevelCode) String() string {
	return code.value
}

const periodKeyLayout = "2006-01"

// PeriodKey is a calendar month in YYYY-MM form.
type PeriodKey struct {
	value string
}

// NewPeriodKey validates a month key.
func NewPeriodKey(raw string) (PeriodKey, error) {
	trimmed := strings.TrimSpace(raw)
	if _, err := time.Parse(periodKeyLayout, trimmed); err != nil {
		return PeriodKey{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, raw)
	}
	return PeriodKey{value: trimmed}, nil
}

// PeriodKeyFromTime converts a timestamp to its UTC calendar month.
func PeriodKeyFromTime(at time.Time) PeriodKey {
	return PeriodKey{value: at.UTC().Format(periodKeyLayout)}
}

// String returns the month key.
func (key PeriodKey) String() string {
	return key.value
}

// IsZero reports whether the key is unset.
func (key PeriodKey) IsZero() bool {
	return key.value == ""
}

// AvgLevel is a monthly volume tier with a fixed reward.
type AvgLevel struct {
	Code        LevelCode
	ThresholdML int64
	RewardCents PositiveAmountCents
}

// AvgLevelAward marks a tier as paid to a user for one month.
type AvgLevelAward struct {
	Level     LevelCode
	UserID    claims.UserID
	PeriodKey PeriodKey
}

// GoalStore extends Store with supertask and level persistence.
type GoalStore interface {
	Store
	GetSupertask(ctx context.Context, supertaskID SupertaskID) (Supertask, error)
	// ActiveSupertaskForBuyer finds the open task targeting the buyer
	// within the group; no match surfaces as ErrUnknownSupertask.
	ActiveSupertaskForBuyer(ctx context.Context, groupID claims.GroupID, buyerINN claims.TaxID) (Supertask, error)
	// SupertaskForClaim finds the task this claim landed, if any.
	SupertaskForClaim(ctx context.Context, claimID claims.ClaimID) (Supertask, error)
	// CloseSupertask conditionally moves the task to closed; zero rows
	// affected surfaces as ErrSupertaskClosed. winnerClaim is zero when a
	// manager closes the task by hand.
	CloseSupertask(ctx context.Context, supertaskID SupertaskID, winner claims.UserID, winnerClaim claims.ClaimID, closedUnixUTC int64) error
	ListAvgLevels(ctx context.Context) ([]AvgLevel, error)
	// SaveAvgLevels replaces tier definitions by code.
	SaveAvgLevels(ctx context.Context, levels []AvgLevel) error
	// ActiveClaimants lists users holding at least one undisputed claim
	// in the month.
	ActiveClaimants(ctx context.Context, period PeriodKey) ([]claims.UserID, error)
	HasAvgLevelAward(ctx context.Context, level LevelCode, userID claims.UserID, period PeriodKey) (bool, error)
	InsertAvgLevelAward(ctx context.Context, award AvgLevelAward) error
	// MonthlyClaimedVolumeML totals volume across the user's undisputed
	// claims for one month.
	MonthlyClaimedVolumeML(ctx context.Context, userID claims.UserID, period PeriodKey) (int64, error)
}

// Goals pays out supertask wins and monthly average-level rewards.
type Goals struct {
	store GoalStore
	nowFn func() int64
}

// NewGoals wires a Goals service.
func NewGoals(store GoalStore, now func() int64) (*Goals, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Goals{store: store, nowFn: now}, nil
}

// CloseSupertask declares a winner and pays the reward in one transaction.
// A second close attempt fails on the conditional transition, so the
// reward cannot double-pay.
func (goals *Goals) CloseSupertask(ctx context.Context, supertaskID SupertaskID, winner claims.UserID) error {
	return goals.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		goalStore, ok := transactionStore.(GoalStore)
		if !ok {
			return fmt.Errorf("%w: store lacks goal support", ErrInvalidServiceConfig)
		}
		supertask, err := goalStore.GetSupertask(ctx, supertaskID)
		if err != nil {
			return err
		}
		now := goals.nowFn()
		if err := goalStore.CloseSupertask(ctx, supertaskID, winner, claims.ClaimID{}, now); err != nil {
			return err
		}
		_, err = goalStore.InsertEntry(ctx, EntryInput{
			UserID:         winner,
			Kind:           EntrySupertask,
			AmountCents:    supertask.RewardCents.ToAmountCents(),
			Comment:        fmt.Sprintf("supertask %s", supertask.Title),
			CreatedUnixUTC: now,
		})
		return err
	})
}

// SaveAvgLevels stores the tier table the monthly pass pays from.
func (goals *Goals) SaveAvgLevels(ctx context.Context, levels []AvgLevel) error {
	return goals.store.SaveAvgLevels(ctx, levels)
}

// AwardLevelsForMonth runs the level pass for every user with an
// undisputed claim in the month. Each user is processed in its own
// transaction so one failure does not roll back the rest.
func (goals *Goals) AwardLevelsForMonth(ctx context.Context, period PeriodKey) (int, error) {
	claimants, err := goals.store.ActiveClaimants(ctx, period)
	if err != nil {
		return 0, err
	}
	paid := 0
	for _, userID := range claimants {
		entries, err := goals.AwardMonthlyLevels(ctx, userID, period)
		if err != nil {
			return paid, err
		}
		paid += len(entries)
	}
	return paid, nil
}

// AwardMonthlyLevels pays every tier the user's monthly volume reaches
// and has not been paid for yet. Awards are keyed per (level, user,
// month), so reruns for the same month write nothing new.
func (goals *Goals) AwardMonthlyLevels(ctx context.Context, userID claims.UserID, period PeriodKey) ([]LedgerEntry, error) {
	var awarded []LedgerEntry
	err := goals.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		goalStore, ok := transactionStore.(GoalStore)
		if !ok {
			return fmt.Errorf("%w: store lacks goal support", ErrInvalidServiceConfig)
		}
		volume, err := goalStore.MonthlyClaimedVolumeML(ctx, userID, period)
		if err != nil {
			return err
		}
		levels, err := goalStore.ListAvgLevels(ctx)
		if err != nil {
			return err
		}
		for _, level := range levels {
			if volume < level.ThresholdML {
				continue
			}
			exists, err := goalStore.HasAvgLevelAward(ctx, level.Code, userID, period)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			entry, err := goalStore.InsertEntry(ctx, EntryInput{
				UserID:         userID,
				Kind:           EntryAvgLevel,
				AmountCents:    level.RewardCents.ToAmountCents(),
				Comment:        fmt.Sprintf("level %s for %s", level.Code, period),
				CreatedUnixUTC: goals.nowFn(),
			})
			if err != nil {
				return err
			}
			if err := goalStore.InsertAvgLevelAward(ctx, AvgLevelAward{Level: level.Code, UserID: userID, PeriodKey: period}); err != nil {
				return err
			}
			awarded = append(awarded, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

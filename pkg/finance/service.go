package finance

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

const defaultEntryPageSize = 20

// Service exposes balances, statements, and the withdrawal lifecycle.
type Service struct {
	store Store
	nowFn func() int64
}

// NewService wires a Service.
func NewService(store Store, now func() int64) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{store: store, nowFn: now}, nil
}

// Balance derives a user's position from the ledger. Frozen amounts stay
// visible in earned totals while being excluded from availability.
func (service *Service) Balance(ctx context.Context, userID claims.UserID) (Balance, error) {
	var balance Balance
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		derived, err := deriveBalance(ctx, transactionStore, userID)
		if err != nil {
			return err
		}
		balance = derived
		return nil
	})
	return balance, err
}

// ListEntries returns the user's statement, newest first.
func (service *Service) ListEntries(ctx context.Context, userID claims.UserID, beforeUnixUTC int64, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntryPageSize
	}
	return service.store.ListEntries(ctx, userID, beforeUnixUTC, limit)
}

// RequestWithdrawal creates a pending payout. The user's ledger is
// locked before the balance check so concurrent requests serialize and
// cannot overdraw.
func (service *Service) RequestWithdrawal(ctx context.Context, userID claims.UserID, amount PositiveAmountCents, requisitesRef string) (WithdrawalRequest, error) {
	requisitesRef = strings.TrimSpace(requisitesRef)
	if requisitesRef == "" {
		return WithdrawalRequest{}, fmt.Errorf("%w: empty value", ErrInvalidRequisitesRef)
	}
	var request WithdrawalRequest
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.LockUserLedger(ctx, userID); err != nil {
			return err
		}
		balance, err := deriveBalance(ctx, transactionStore, userID)
		if err != nil {
			return err
		}
		if amount.Int64() > balance.AvailableCents {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amount.Int64(), balance.AvailableCents)
		}
		request, err = transactionStore.InsertWithdrawal(ctx, WithdrawalRequest{
			UserID:           userID,
			AmountCents:      amount,
			RequisitesRef:    requisitesRef,
			Status:           WithdrawalPending,
			RequestedUnixUTC: service.nowFn(),
		})
		return err
	})
	return request, err
}

// ApproveWithdrawal moves a pending request to approved.
func (service *Service) ApproveWithdrawal(ctx context.Context, withdrawalID WithdrawalID) error {
	return service.store.TransitionWithdrawal(ctx, withdrawalID, WithdrawalPending, WithdrawalApproved, service.nowFn())
}

// RejectWithdrawal moves a pending request to rejected, releasing the hold.
func (service *Service) RejectWithdrawal(ctx context.Context, withdrawalID WithdrawalID) error {
	return service.store.TransitionWithdrawal(ctx, withdrawalID, WithdrawalPending, WithdrawalRejected, service.nowFn())
}

// MarkWithdrawalPaid finalizes an approved request after the payout lands.
func (service *Service) MarkWithdrawalPaid(ctx context.Context, withdrawalID WithdrawalID) error {
	return service.store.TransitionWithdrawal(ctx, withdrawalID, WithdrawalApproved, WithdrawalPaid, service.nowFn())
}

// Withdrawal returns a single request.
func (service *Service) Withdrawal(ctx context.Context, withdrawalID WithdrawalID) (WithdrawalRequest, error) {
	return service.store.GetWithdrawal(ctx, withdrawalID)
}

// Adjust appends a manual correction entry.
func (service *Service) Adjust(ctx context.Context, userID claims.UserID, amount AmountCents, comment string) (LedgerEntry, error) {
	return service.store.InsertEntry(ctx, EntryInput{
		UserID:         userID,
		Kind:           EntryAdjustment,
		AmountCents:    amount,
		Comment:        comment,
		CreatedUnixUTC: service.nowFn(),
	})
}

func deriveBalance(ctx context.Context, store Store, userID claims.UserID) (Balance, error) {
	earned, err := store.SumEarned(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	frozen, err := store.SumFrozen(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	withdrawn, err := store.SumWithdrawalHolds(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	available := earned - frozen - withdrawn
	if available < 0 {
		available = 0
	}
	return Balance{
		EarnedCents:    earned,
		FrozenCents:    frozen,
		WithdrawnCents: withdrawn,
		AvailableCents: available,
	}, nil
}

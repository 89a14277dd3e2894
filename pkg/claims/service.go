package claims

import (
	"context"
	"fmt"
)

// Service contains the claim and dispute domain logic over a Store.
type Service struct {
	store   Store
	accruer Accruer
	policy  Policy
	nowFn   func() int64
	logger  OperationLogger
}

// NewService wires a Service.
func NewService(store Store, policy Policy, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if policy.LaunchDate.IsZero() {
		return nil, fmt.Errorf("%w: launch date is required", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, policy: policy, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Registration resolves the caller's registration (group and role).
func (service *Service) Registration(ctx context.Context, userID UserID) (Registration, error) {
	return service.store.GetRegistration(ctx, userID)
}

// Turnover returns a synced turnover row.
func (service *Service) Turnover(ctx context.Context, turnoverID TurnoverID) (TurnoverRecord, error) {
	return service.store.GetTurnover(ctx, turnoverID)
}

// Claim confirms a turnover row for a user. The claim insert and the bonus
// recomputation are deliberately separate steps: a committed claim survives
// accrual failures, which surface as ErrBonusSyncDegraded alongside the
// committed claim.
func (service *Service) Claim(ctx context.Context, turnoverID TurnoverID, userID UserID) (Claim, error) {
	var claim Claim
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		registration, err := transactionStore.GetRegistration(ctx, userID)
		if err != nil {
			return err
		}
		turnover, err := transactionStore.GetTurnover(ctx, turnoverID)
		if err != nil {
			return err
		}
		if turnover.Period.Before(service.policy.LaunchDate) {
			return fmt.Errorf("%w: period %s", ErrStaleWindow, turnover.Period)
		}
		sellerGroup, err := transactionStore.GroupForSeller(ctx, turnover.SellerINN)
		if err != nil {
			return err
		}
		if sellerGroup != registration.GroupID {
			return fmt.Errorf("%w: turnover outside caller group", ErrTenantScopeViolation)
		}
		claim, err = transactionStore.InsertClaim(ctx, Claim{
			TurnoverID:     turnoverID,
			Claimant:       userID,
			GroupAtClaim:   registration.GroupID,
			DisputeState:   DisputeStateNone,
			ClaimedUnixUTC: service.nowFn(),
		})
		return err
	})
	if operationError == nil {
		operationError = service.syncAccrual(ctx, claim.ID)
	}
	service.logOperation(ctx, OperationLog{
		Operation:  operationClaim,
		UserID:     userID,
		TurnoverID: turnoverID,
		ClaimID:    claim.ID,
		Error:      operationError,
	})
	return claim, operationError
}

// OpenDispute contests ownership of a claim. Self-dispute is forbidden for
// regular sellers; a moderator reviewing their own team's claim is the one
// allowed exception.
func (service *Service) OpenDispute(ctx context.Context, claimID ClaimID, openerID UserID) (Dispute, error) {
	var dispute Dispute
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		registration, err := transactionStore.GetRegistration(ctx, openerID)
		if err != nil {
			return err
		}
		claim, err := transactionStore.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		// Scope is re-checked inside the transaction: the claim's group may
		// have changed between the caller's read and this write.
		if claim.GroupAtClaim != registration.GroupID {
			return fmt.Errorf("%w: claim outside caller group", ErrTenantScopeViolation)
		}
		if claim.Claimant == openerID && registration.Role != RoleModerator {
			return ErrSelfDisputeForbidden
		}
		if claim.DisputeState == DisputeStateOpen {
			return ErrAlreadyDisputed
		}
		if !service.policy.AllowRedispute {
			rejected, err := transactionStore.HasRejectedDispute(ctx, claimID)
			if err != nil {
				return err
			}
			if rejected {
				return ErrDisputeForeclosed
			}
		}
		moderator, err := transactionStore.ModeratorForGroup(ctx, registration.GroupID)
		if err != nil {
			return err
		}
		dispute, err = transactionStore.InsertDispute(ctx, Dispute{
			ClaimID:       claimID,
			Opener:        openerID,
			Moderator:     moderator,
			Status:        DisputeStatusOpen,
			OpenedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		return transactionStore.MarkClaimDisputed(ctx, claimID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationOpenDispute,
		UserID:    openerID,
		ClaimID:   claimID,
		DisputeID: dispute.ID,
		Error:     operationError,
	})
	return dispute, operationError
}

// CancelDispute lets the opener withdraw an open dispute.
func (service *Service) CancelDispute(ctx context.Context, disputeID DisputeID, openerID UserID) error {
	var claimID ClaimID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		dispute, err := transactionStore.GetDispute(ctx, disputeID)
		if err != nil {
			return err
		}
		if dispute.Opener != openerID {
			return ErrDisputeNotCancellable
		}
		claimID = dispute.ClaimID
		if err := transactionStore.TransitionDispute(ctx, disputeID, DisputeStatusOpen, DisputeStatusCancelled, service.nowFn()); err != nil {
			return err
		}
		return transactionStore.SetClaimDisputeState(ctx, dispute.ClaimID, DisputeStateNone)
	})
	if operationError == nil {
		operationError = service.syncAccrual(ctx, claimID)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelDispute,
		UserID:    openerID,
		ClaimID:   claimID,
		DisputeID: disputeID,
		Error:     operationError,
	})
	return operationError
}

// ResolveDispute applies a moderator verdict. Approval reassigns the claim
// to the opener inside the same transaction as the dispute transition;
// rejection leaves the original claimant untouched. Either way the frozen
// bonus amount is released by the follow-up accrual pass.
func (service *Service) ResolveDispute(ctx context.Context, disputeID DisputeID, moderatorID UserID, decision DisputeDecision) error {
	var claimID ClaimID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		dispute, err := transactionStore.GetDispute(ctx, disputeID)
		if err != nil {
			return err
		}
		if dispute.Moderator != moderatorID {
			return fmt.Errorf("%w: caller is not the assigned moderator", ErrTenantScopeViolation)
		}
		claimID = dispute.ClaimID
		target := DisputeStatusRejected
		if decision == DecisionApprove {
			target = DisputeStatusApproved
		}
		if err := transactionStore.TransitionDispute(ctx, disputeID, DisputeStatusOpen, target, service.nowFn()); err != nil {
			return err
		}
		if decision == DecisionApprove {
			openerRegistration, err := transactionStore.GetRegistration(ctx, dispute.Opener)
			if err != nil {
				return err
			}
			if err := transactionStore.ReassignClaim(ctx, dispute.ClaimID, dispute.Opener, openerRegistration.GroupID); err != nil {
				return err
			}
		}
		return transactionStore.SetClaimDisputeState(ctx, dispute.ClaimID, DisputeStateResolved)
	})
	if operationError == nil {
		operationError = service.syncAccrual(ctx, claimID)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationResolveDispute,
		UserID:    moderatorID,
		ClaimID:   claimID,
		DisputeID: disputeID,
		Decision:  decision,
		Error:     operationError,
	})
	return operationError
}

// syncAccrual runs the bonus recomputation hook. Failures degrade the
// operation instead of rolling it back: the ownership fact is committed.
func (service *Service) syncAccrual(ctx context.Context, claimID ClaimID) error {
	if service.accruer == nil {
		return nil
	}
	if err := service.accruer.SyncClaim(ctx, claimID); err != nil {
		return fmt.Errorf("%w: claim %s: %v", ErrBonusSyncDegraded, claimID, err)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		switch {
		case entry.Error == nil:
			entry.Status = operationStatusOK
		case isDegraded(entry.Error):
			entry.Status = operationStatusDegraded
		default:
			entry.Status = operationStatusError
		}
	}
	service.logger.LogOperation(ctx, entry)
}

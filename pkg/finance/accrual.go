package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

// Accruer recomputes per-claim bonus awards. It is idempotent per
// (claim, stage): repeated syncs of an unchanged claim write nothing,
// ownership changes produce a reverse adjustment for the previous holder
// and a fresh earn entry for the current one.
type Accruer struct {
	store  Store
	config BonusConfig
	nowFn  func() int64
}

// NewAccruer wires an Accruer.
func NewAccruer(store Store, config BonusConfig, now func() int64) (*Accruer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Accruer{store: store, config: config, nowFn: now}, nil
}

// SyncClaim brings the award registry for one claim in line with its
// current owner. While a dispute is open the pass is a no-op: existing
// entries stay frozen in place and nothing new accrues until resolution.
func (accruer *Accruer) SyncClaim(ctx context.Context, claimID claims.ClaimID) error {
	return accruer.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		facts, err := transactionStore.GetClaimFacts(ctx, claimID)
		if err != nil {
			return err
		}
		if facts.DisputeOpen {
			return nil
		}
		if err := accruer.syncStage(ctx, transactionStore, facts, StagePool, accruer.poolAmount(facts)); err != nil {
			return err
		}
		if err := accruer.syncStage(ctx, transactionStore, facts, StageNewBuyer, accruer.newBuyerAmount(facts)); err != nil {
			return err
		}
		supertaskTarget, err := accruer.supertaskAmount(ctx, transactionStore, facts)
		if err != nil {
			return err
		}
		return accruer.syncStage(ctx, transactionStore, facts, StageSupertask, supertaskTarget)
	})
}

// poolAmount prices the claim's volume inside the group pool window.
func (accruer *Accruer) poolAmount(facts ClaimFacts) AmountCents {
	if facts.Period.Before(accruer.config.LaunchDate) {
		return 0
	}
	if !facts.PoolWindowEnd.IsZero() && facts.Period.After(facts.PoolWindowEnd) {
		return 0
	}
	return PoolBonusCents(facts.VolumeML, accruer.config.PoolRateCentsPerLiter)
}

// newBuyerAmount pays the fixed bounty only on the group's first claim
// for this buyer.
func (accruer *Accruer) newBuyerAmount(facts ClaimFacts) AmountCents {
	if !facts.FirstBuyerClaim {
		return 0
	}
	return AmountCents(accruer.config.NewBuyerBonusCents)
}

// supertaskAmount lands an active supertask targeting the claim's buyer,
// or re-prices a task this claim already landed so an approved dispute
// moves the reward with the claim. Stores without goal support skip the
// stage entirely.
func (accruer *Accruer) supertaskAmount(ctx context.Context, store Store, facts ClaimFacts) (AmountCents, error) {
	goalStore, ok := store.(GoalStore)
	if !ok {
		return 0, nil
	}
	task, err := goalStore.SupertaskForClaim(ctx, facts.ClaimID)
	if err == nil {
		return task.RewardCents.ToAmountCents(), nil
	}
	if !errors.Is(err, ErrUnknownSupertask) {
		return 0, err
	}
	task, err = goalStore.ActiveSupertaskForBuyer(ctx, facts.GroupID, facts.BuyerINN)
	if errors.Is(err, ErrUnknownSupertask) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := goalStore.CloseSupertask(ctx, task.ID, facts.Claimant, facts.ClaimID, accruer.nowFn()); err != nil {
		if errors.Is(err, ErrSupertaskClosed) {
			return 0, nil
		}
		return 0, err
	}
	return task.RewardCents.ToAmountCents(), nil
}

func (accruer *Accruer) syncStage(ctx context.Context, store Store, facts ClaimFacts, stage StageCode, target AmountCents) error {
	existing, err := store.GetStageAward(ctx, facts.ClaimID, stage)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownStageAward):
		if target == 0 {
			return nil
		}
		// The registry row goes in first: the ledger entry is written
		// only when this pass actually claimed the stage, so a
		// concurrent first accrual cannot credit the stage twice.
		inserted, err := store.InsertStageAward(ctx, StageAward{
			ClaimID:     facts.ClaimID,
			Stage:       stage,
			Holder:      facts.Claimant,
			AmountCents: target,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		_, err = store.InsertEntry(ctx, accruer.stageEntry(facts, stage, target, facts.Claimant))
		return err
	default:
		return err
	}

	if existing.Holder == facts.Claimant && existing.AmountCents == target {
		return nil
	}

	// Reverse the stale award before writing the replacement so the
	// per-claim ledger sum always matches the registry.
	reversal := EntryInput{
		UserID:         existing.Holder,
		ClaimID:        facts.ClaimID,
		Kind:           EntryAdjustment,
		AmountCents:    existing.AmountCents.Negated(),
		Comment:        fmt.Sprintf("reverse %s award", stage),
		CreatedUnixUTC: accruer.nowFn(),
	}
	if _, err := store.InsertEntry(ctx, reversal); err != nil {
		return err
	}
	if target == 0 {
		return store.DeleteStageAward(ctx, facts.ClaimID, stage)
	}
	if _, err := store.InsertEntry(ctx, accruer.stageEntry(facts, stage, target, facts.Claimant)); err != nil {
		return err
	}
	return store.UpsertStageAward(ctx, StageAward{
		ClaimID:     facts.ClaimID,
		Stage:       stage,
		Holder:      facts.Claimant,
		AmountCents: target,
	})
}

func (accruer *Accruer) stageEntry(facts ClaimFacts, stage StageCode, amount AmountCents, holder claims.UserID) EntryInput {
	kind := EntryPool
	switch stage {
	case StageNewBuyer:
		kind = EntryNewBuyer
	case StageSupertask:
		kind = EntrySupertask
	}
	return EntryInput{
		UserID:         holder,
		ClaimID:        facts.ClaimID,
		Kind:           kind,
		AmountCents:    amount,
		Comment:        fmt.Sprintf("%s award", stage),
		CreatedUnixUTC: accruer.nowFn(),
	}
}

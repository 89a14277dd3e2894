package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

const (
	errorSubjectBalance    = "balance"
	errorSubjectEntry      = "entry"
	errorSubjectFacts      = "claim_facts"
	errorSubjectLevel      = "avg_level"
	errorSubjectStageAward = "stage_award"
	errorSubjectSupertask  = "supertask"
	errorSubjectWithdrawal = "withdrawal"
)

// FinanceStore implements finance.GoalStore using GORM.
type FinanceStore struct {
	db *gorm.DB
}

// NewFinanceStore returns a FinanceStore backed by gorm.DB.
func NewFinanceStore(db *gorm.DB) *FinanceStore {
	return &FinanceStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *FinanceStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore finance.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &FinanceStore{db: transaction})
	})
}

// LockUserLedger takes a row lock on the user's registration so
// concurrent balance-affecting transactions for the same user serialize.
// Users without a registration row have nothing to overdraw.
func (store *FinanceStore) LockUserLedger(ctx context.Context, userID claims.UserID) error {
	var model Registration
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID.String()).
		Take(&model).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(errorSubjectBalance, errorCodeLookup, err)
	}
	return nil
}

func (store *FinanceStore) InsertEntry(ctx context.Context, input finance.EntryInput) (finance.LedgerEntry, error) {
	var claimID *string
	if input.ClaimID.String() != "" {
		value := input.ClaimID.String()
		claimID = &value
	}
	model := LedgerEntry{
		UserID:      input.UserID.String(),
		ClaimID:     claimID,
		Kind:        input.Kind.String(),
		AmountCents: input.AmountCents.Int64(),
		Comment:     input.Comment,
		CreatedAt:   time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return finance.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return mapFinanceEntry(model)
}

func (store *FinanceStore) ListEntries(ctx context.Context, userID claims.UserID, beforeUnixUTC int64, limit int) ([]finance.LedgerEntry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]finance.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapFinanceEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *FinanceStore) SumEarned(ctx context.Context, userID claims.UserID) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("user_id = ?", userID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *FinanceStore) SumFrozen(ctx context.Context, userID claims.UserID) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(ledger_entries.amount_cents),0) as total").
		Joins("join claims on claims.claim_id = ledger_entries.claim_id").
		Where("ledger_entries.user_id = ? AND claims.dispute_state = ?", userID.String(), claims.DisputeStateOpen.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *FinanceStore) SumWithdrawalHolds(ctx context.Context, userID claims.UserID) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&WithdrawalRequest{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("user_id = ? AND status <> ?", userID.String(), finance.WithdrawalRejected.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *FinanceStore) InsertWithdrawal(ctx context.Context, request finance.WithdrawalRequest) (finance.WithdrawalRequest, error) {
	model := WithdrawalRequest{
		UserID:        request.UserID.String(),
		AmountCents:   request.AmountCents.Int64(),
		RequisitesRef: request.RequisitesRef,
		Status:        request.Status.String(),
		CreatedAt:     time.Unix(request.RequestedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeCreate, err)
	}
	return mapWithdrawal(model)
}

func (store *FinanceStore) GetWithdrawal(ctx context.Context, withdrawalID finance.WithdrawalID) (finance.WithdrawalRequest, error) {
	var model WithdrawalRequest
	err := store.db.WithContext(ctx).
		Where("withdrawal_id = ?", withdrawalID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, finance.ErrUnknownWithdrawal)
		}
		return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	return mapWithdrawal(model)
}

func (store *FinanceStore) TransitionWithdrawal(ctx context.Context, withdrawalID finance.WithdrawalID, from, to finance.WithdrawalStatus, resolvedUnixUTC int64) error {
	resolvedAt := time.Unix(resolvedUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&WithdrawalRequest{}).
		Where("withdrawal_id = ? AND status = ?", withdrawalID.String(), from.String()).
		Updates(map[string]interface{}{
			"status":      to.String(),
			"resolved_at": resolvedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdate, finance.ErrWithdrawalClosed)
	}
	return nil
}

func (store *FinanceStore) GetClaimFacts(ctx context.Context, claimID claims.ClaimID) (finance.ClaimFacts, error) {
	var row claimFactsRow
	err := store.db.WithContext(ctx).
		Model(&Claim{}).
		Select("claims.claim_id, claims.claimant, claims.group_at_claim, claims.dispute_state, claims.created_at, turnover_records.period_date, turnover_records.buyer_inn, turnover_records.volume_ml, company_groups.pool_window_end").
		Joins("join turnover_records on turnover_records.turnover_id = claims.turnover_id").
		Joins("join company_groups on company_groups.group_id = claims.group_at_claim").
		Where("claims.claim_id = ?", claimID.String()).
		Scan(&row).Error
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeGet, err)
	}
	if row.ClaimID == "" {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeGet, finance.ErrUnknownClaimFacts)
	}

	// The buyer is new to the group only on the earliest claim touching
	// this buyer INN, ties broken by claim id.
	var earlier int64
	err = store.db.WithContext(ctx).
		Model(&Claim{}).
		Joins("join turnover_records on turnover_records.turnover_id = claims.turnover_id").
		Where("claims.group_at_claim = ? AND turnover_records.buyer_inn = ? AND claims.claim_id <> ?", row.GroupAtClaim, row.BuyerINN, row.ClaimID).
		Where("(claims.created_at < ? OR (claims.created_at = ? AND claims.claim_id < ?))", row.CreatedAt, row.CreatedAt, row.ClaimID).
		Count(&earlier).Error
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeLookup, err)
	}
	return mapClaimFacts(row, earlier == 0)
}

func (store *FinanceStore) GetStageAward(ctx context.Context, claimID claims.ClaimID, stage finance.StageCode) (finance.StageAward, error) {
	var model StageAward
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("claim_id = ? AND stage = ?", claimID.String(), stage.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return finance.StageAward{}, wrapStoreError(errorSubjectStageAward, errorCodeGet, finance.ErrUnknownStageAward)
		}
		return finance.StageAward{}, wrapStoreError(errorSubjectStageAward, errorCodeGet, err)
	}
	return mapStageAward(model)
}

func (store *FinanceStore) InsertStageAward(ctx context.Context, award finance.StageAward) (bool, error) {
	model := StageAward{
		ClaimID:     award.ClaimID.String(),
		Stage:       award.Stage.String(),
		Holder:      award.Holder.String(),
		AmountCents: award.AmountCents.Int64(),
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_id"}, {Name: "stage"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectStageAward, errorCodeCreate, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *FinanceStore) UpsertStageAward(ctx context.Context, award finance.StageAward) error {
	model := StageAward{
		ClaimID:     award.ClaimID.String(),
		Stage:       award.Stage.String(),
		Holder:      award.Holder.String(),
		AmountCents: award.AmountCents.Int64(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "claim_id"}, {Name: "stage"}},
			DoUpdates: clause.AssignmentColumns([]string{"holder", "amount_cents", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectStageAward, errorCodeUpsert, err)
	}
	return nil
}

func (store *FinanceStore) DeleteStageAward(ctx context.Context, claimID claims.ClaimID, stage finance.StageCode) error {
	err := store.db.WithContext(ctx).
		Where("claim_id = ? AND stage = ?", claimID.String(), stage.String()).
		Delete(&StageAward{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectStageAward, errorCodeDelete, err)
	}
	return nil
}

func (store *FinanceStore) GetSupertask(ctx context.Context, supertaskID finance.SupertaskID) (finance.Supertask, error) {
	var model Supertask
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("supertask_id = ?", supertaskID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeGet, finance.ErrUnknownSupertask)
		}
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeGet, err)
	}
	return mapSupertask(model)
}

func (store *FinanceStore) ActiveSupertaskForBuyer(ctx context.Context, groupID claims.GroupID, buyerINN claims.TaxID) (finance.Supertask, error) {
	var model Supertask
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_id = ? AND target_buyer_inn = ? AND status = ?", groupID.String(), buyerINN.String(), string(finance.SupertaskActive)).
		Order("created_at ASC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeGet, finance.ErrUnknownSupertask)
		}
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeGet, err)
	}
	return mapSupertask(model)
}

func (store *FinanceStore) SupertaskForClaim(ctx context.Context, claimID claims.ClaimID) (finance.Supertask, error) {
	var model Supertask
	err := store.db.WithContext(ctx).
		Where("winner_claim_id = ?", claimID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeGet, finance.ErrUnknownSupertask)
		}
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeGet, err)
	}
	return mapSupertask(model)
}

func (store *FinanceStore) CloseSupertask(ctx context.Context, supertaskID finance.SupertaskID, winner claims.UserID, winnerClaim claims.ClaimID, closedUnixUTC int64) error {
	closedAt := time.Unix(closedUnixUTC, 0).UTC()
	updates := map[string]interface{}{
		"status":    string(finance.SupertaskClosed),
		"winner":    winner.String(),
		"closed_at": closedAt,
	}
	if winnerClaim.String() != "" {
		updates["winner_claim_id"] = winnerClaim.String()
	}
	result := store.db.WithContext(ctx).
		Model(&Supertask{}).
		Where("supertask_id = ? AND status = ?", supertaskID.String(), finance.SupertaskActive).
		Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSupertask, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSupertask, errorCodeUpdate, finance.ErrSupertaskClosed)
	}
	return nil
}

func (store *FinanceStore) ListAvgLevels(ctx context.Context) ([]finance.AvgLevel, error) {
	var rows []AvgLevel
	err := store.db.WithContext(ctx).
		Order("threshold_ml ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectLevel, errorCodeList, err)
	}
	levels := make([]finance.AvgLevel, 0, len(rows))
	for _, row := range rows {
		level, err := mapAvgLevel(row)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func (store *FinanceStore) SaveAvgLevels(ctx context.Context, levels []finance.AvgLevel) error {
	models := make([]AvgLevel, 0, len(levels))
	for _, level := range levels {
		models = append(models, AvgLevel{
			Code:        level.Code.String(),
			ThresholdML: level.ThresholdML,
			RewardCents: level.RewardCents.Int64(),
		})
	}
	if len(models) == 0 {
		return nil
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"threshold_ml", "reward_cents"}),
		}).
		Create(&models).Error
	if err != nil {
		return wrapStoreError(errorSubjectLevel, errorCodeUpsert, err)
	}
	return nil
}

func (store *FinanceStore) ActiveClaimants(ctx context.Context, period finance.PeriodKey) ([]claims.UserID, error) {
	var rows []string
	err := store.db.WithContext(ctx).
		Model(&Claim{}).
		Distinct("claims.claimant").
		Joins("join turnover_records on turnover_records.turnover_id = claims.turnover_id").
		Where("claims.dispute_state <> ?", claims.DisputeStateOpen.String()).
		Where("turnover_records.period_date LIKE ?", period.String()+"-%").
		Order("claims.claimant ASC").
		Pluck("claims.claimant", &rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectLevel, errorCodeList, err)
	}
	claimants := make([]claims.UserID, 0, len(rows))
	for _, raw := range rows {
		userID, err := claims.NewUserID(raw)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLevel, errorCodeInvalid, err)
		}
		claimants = append(claimants, userID)
	}
	return claimants, nil
}

func (store *FinanceStore) HasAvgLevelAward(ctx context.Context, level finance.LevelCode, userID claims.UserID, period finance.PeriodKey) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&AvgLevelAward{}).
		Where("level = ? AND user_id = ? AND period_key = ?", level.String(), userID.String(), period.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectLevel, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *FinanceStore) InsertAvgLevelAward(ctx context.Context, award finance.AvgLevelAward) error {
	model := AvgLevelAward{
		Level:     award.Level.String(),
		UserID:    award.UserID.String(),
		PeriodKey: award.PeriodKey.String(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectLevel, errorCodeCreate, err)
	}
	return nil
}

func (store *FinanceStore) MonthlyClaimedVolumeML(ctx context.Context, userID claims.UserID, period finance.PeriodKey) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Claim{}).
		Select("coalesce(sum(turnover_records.volume_ml),0) as total").
		Joins("join turnover_records on turnover_records.turnover_id = claims.turnover_id").
		Where("claims.claimant = ? AND claims.dispute_state <> ?", userID.String(), claims.DisputeStateOpen.String()).
		Where("turnover_records.period_date LIKE ?", period.String()+"-%").
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectLevel, errorCodeSum, err)
	}
	return sum.Total, nil
}

type sqlSum struct {
	Total int64
}

type claimFactsRow struct {
	ClaimID       string
	Claimant      string
	GroupAtClaim  string
	DisputeState  string
	CreatedAt     time.Time
	PeriodDate    string
	BuyerINN      string
	VolumeML      int64
	PoolWindowEnd string
}

func mapClaimFacts(row claimFactsRow, firstBuyerClaim bool) (finance.ClaimFacts, error) {
	claimID, err := claims.NewClaimID(row.ClaimID)
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeInvalid, err)
	}
	claimant, err := claims.NewUserID(row.Claimant)
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeInvalid, err)
	}
	groupID, err := claims.NewGroupID(row.GroupAtClaim)
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeInvalid, err)
	}
	period, err := claims.NewPeriodDate(row.PeriodDate)
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeInvalid, err)
	}
	buyerINN, err := claims.NewTaxID(row.BuyerINN)
	if err != nil {
		return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeInvalid, err)
	}
	// An empty pool_window_end means the group pool has no closing date.
	var windowEnd claims.PeriodDate
	if row.PoolWindowEnd != "" {
		windowEnd, err = claims.NewPeriodDate(row.PoolWindowEnd)
		if err != nil {
			return finance.ClaimFacts{}, wrapStoreError(errorSubjectFacts, errorCodeInvalid, err)
		}
	}
	return finance.ClaimFacts{
		ClaimID:         claimID,
		Claimant:        claimant,
		GroupID:         groupID,
		DisputeOpen:     row.DisputeState == claims.DisputeStateOpen.String(),
		Period:          period,
		BuyerINN:        buyerINN,
		VolumeML:        row.VolumeML,
		PoolWindowEnd:   windowEnd,
		FirstBuyerClaim: firstBuyerClaim,
	}, nil
}

func mapFinanceEntry(model LedgerEntry) (finance.LedgerEntry, error) {
	entryID, err := finance.NewEntryID(model.EntryID)
	if err != nil {
		return finance.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	userID, err := claims.NewUserID(model.UserID)
	if err != nil {
		return finance.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	kind, err := finance.ParseEntryKind(model.Kind)
	if err != nil {
		return finance.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	entry := finance.LedgerEntry{
		ID:             entryID,
		UserID:         userID,
		Kind:           kind,
		AmountCents:    finance.AmountCents(model.AmountCents),
		Comment:        model.Comment,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.ClaimID != nil {
		claimID, err := claims.NewClaimID(*model.ClaimID)
		if err != nil {
			return finance.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entry.ClaimID = claimID
	}
	return entry, nil
}

func mapStageAward(model StageAward) (finance.StageAward, error) {
	claimID, err := claims.NewClaimID(model.ClaimID)
	if err != nil {
		return finance.StageAward{}, wrapStoreError(errorSubjectStageAward, errorCodeInvalid, err)
	}
	stage, err := finance.ParseStageCode(model.Stage)
	if err != nil {
		return finance.StageAward{}, wrapStoreError(errorSubjectStageAward, errorCodeInvalid, err)
	}
	holder, err := claims.NewUserID(model.Holder)
	if err != nil {
		return finance.StageAward{}, wrapStoreError(errorSubjectStageAward, errorCodeInvalid, err)
	}
	return finance.StageAward{
		ClaimID:     claimID,
		Stage:       stage,
		Holder:      holder,
		AmountCents: finance.AmountCents(model.AmountCents),
	}, nil
}

func mapWithdrawal(model WithdrawalRequest) (finance.WithdrawalRequest, error) {
	withdrawalID, err := finance.NewWithdrawalID(model.WithdrawalID)
	if err != nil {
		return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	userID, err := claims.NewUserID(model.UserID)
	if err != nil {
		return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	amount, err := finance.NewPositiveAmountCents(model.AmountCents)
	if err != nil {
		return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	status, err := finance.ParseWithdrawalStatus(model.Status)
	if err != nil {
		return finance.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	request := finance.WithdrawalRequest{
		ID:               withdrawalID,
		UserID:           userID,
		AmountCents:      amount,
		RequisitesRef:    model.RequisitesRef,
		Status:           status,
		RequestedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.ResolvedAt != nil {
		request.ResolvedUnixUTC = model.ResolvedAt.Unix()
	}
	return request, nil
}

func mapSupertask(model Supertask) (finance.Supertask, error) {
	supertaskID, err := finance.NewSupertaskID(model.SupertaskID)
	if err != nil {
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
	}
	groupID, err := claims.NewGroupID(model.GroupID)
	if err != nil {
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
	}
	reward, err := finance.NewPositiveAmountCents(model.RewardCents)
	if err != nil {
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
	}
	status, err := finance.ParseSupertaskStatus(model.Status)
	if err != nil {
		return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
	}
	supertask := finance.Supertask{
		ID:          supertaskID,
		GroupID:     groupID,
		Title:       model.Title,
		RewardCents: reward,
		Status:      status,
	}
	if model.TargetBuyerINN != "" {
		target, err := claims.NewTaxID(model.TargetBuyerINN)
		if err != nil {
			return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
		}
		supertask.TargetBuyerINN = target
	}
	if model.Winner != nil {
		winner, err := claims.NewUserID(*model.Winner)
		if err != nil {
			return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
		}
		supertask.Winner = winner
	}
	if model.WinnerClaimID != nil {
		winnerClaim, err := claims.NewClaimID(*model.WinnerClaimID)
		if err != nil {
			return finance.Supertask{}, wrapStoreError(errorSubjectSupertask, errorCodeInvalid, err)
		}
		supertask.WinnerClaimID = winnerClaim
	}
	if model.ClosedAt != nil {
		supertask.ClosedUnixUTC = model.ClosedAt.Unix()
	}
	return supertask, nil
}

func mapAvgLevel(model AvgLevel) (finance.AvgLevel, error) {
	code, err := finance.NewLevelCode(model.Code)
	if err != nil {
		return finance.AvgLevel{}, wrapStoreError(errorSubjectLevel, errorCodeInvalid, err)
	}
	reward, err := finance.NewPositiveAmountCents(model.RewardCents)
	if err != nil {
		return finance.AvgLevel{}, wrapStoreError(errorSubjectLevel, errorCodeInvalid, err)
	}
	return finance.AvgLevel{Code: code, ThresholdML: model.ThresholdML, RewardCents: reward}, nil
}

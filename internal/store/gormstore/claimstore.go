package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

const (
	errorSubjectClaim        = "claim"
	errorSubjectDispute      = "dispute"
	errorSubjectGroup        = "group"
	errorSubjectRegistration = "registration"
	errorSubjectTurnover     = "turnover"
)

// ClaimStore implements claims.Store using GORM.
type ClaimStore struct {
	db *gorm.DB
}

// NewClaimStore returns a ClaimStore backed by gorm.DB.
func NewClaimStore(db *gorm.DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *ClaimStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore claims.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &ClaimStore{db: transaction})
	})
}

func (store *ClaimStore) GetRegistration(ctx context.Context, userID claims.UserID) (claims.Registration, error) {
	var model Registration
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return claims.Registration{}, wrapStoreError(errorSubjectRegistration, errorCodeGet, claims.ErrUnknownRegistration)
		}
		return claims.Registration{}, wrapStoreError(errorSubjectRegistration, errorCodeGet, err)
	}
	return mapRegistration(model)
}

func (store *ClaimStore) GetTurnover(ctx context.Context, turnoverID claims.TurnoverID) (claims.TurnoverRecord, error) {
	var model TurnoverRecord
	err := store.db.WithContext(ctx).
		Where("turnover_id = ?", turnoverID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeGet, claims.ErrUnknownTurnover)
		}
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeGet, err)
	}
	return mapTurnoverRecord(model)
}

func (store *ClaimStore) GroupForSeller(ctx context.Context, sellerINN claims.TaxID) (claims.GroupID, error) {
	var model CompanyGroup
	err := store.db.WithContext(ctx).
		Where("seller_inn = ?", sellerINN.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return claims.GroupID{}, wrapStoreError(errorSubjectGroup, errorCodeGet, claims.ErrUnknownGroup)
		}
		return claims.GroupID{}, wrapStoreError(errorSubjectGroup, errorCodeGet, err)
	}
	groupID, err := claims.NewGroupID(model.GroupID)
	if err != nil {
		return claims.GroupID{}, wrapStoreError(errorSubjectGroup, errorCodeInvalid, err)
	}
	return groupID, nil
}

func (store *ClaimStore) InsertClaim(ctx context.Context, claim claims.Claim) (claims.Claim, error) {
	model := Claim{
		TurnoverID:   claim.TurnoverID.String(),
		Claimant:     claim.Claimant.String(),
		GroupAtClaim: claim.GroupAtClaim.String(),
		DisputeState: claim.DisputeState.String(),
		CreatedAt:    time.Unix(claim.ClaimedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintClaimsTurnover) {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeCreate, claims.ErrAlreadyClaimed)
	}
	if err != nil {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeCreate, err)
	}
	return mapClaim(model)
}

func (store *ClaimStore) GetClaim(ctx context.Context, claimID claims.ClaimID) (claims.Claim, error) {
	var model Claim
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("claim_id = ?", claimID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeGet, claims.ErrUnknownClaim)
		}
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeGet, err)
	}
	return mapClaim(model)
}

func (store *ClaimStore) MarkClaimDisputed(ctx context.Context, claimID claims.ClaimID) error {
	result := store.db.WithContext(ctx).
		Model(&Claim{}).
		Where("claim_id = ? AND dispute_state <> ?", claimID.String(), claims.DisputeStateOpen.String()).
		Update("dispute_state", claims.DisputeStateOpen.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, claims.ErrAlreadyDisputed)
	}
	return nil
}

func (store *ClaimStore) SetClaimDisputeState(ctx context.Context, claimID claims.ClaimID, state claims.DisputeState) error {
	result := store.db.WithContext(ctx).
		Model(&Claim{}).
		Where("claim_id = ?", claimID.String()).
		Update("dispute_state", state.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, claims.ErrUnknownClaim)
	}
	return nil
}

func (store *ClaimStore) ReassignClaim(ctx context.Context, claimID claims.ClaimID, claimant claims.UserID, group claims.GroupID) error {
	result := store.db.WithContext(ctx).
		Model(&Claim{}).
		Where("claim_id = ?", claimID.String()).
		Updates(map[string]interface{}{
			"claimant":       claimant.String(),
			"group_at_claim": group.String(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectClaim, errorCodeUpdate, claims.ErrUnknownClaim)
	}
	return nil
}

func (store *ClaimStore) InsertDispute(ctx context.Context, dispute claims.Dispute) (claims.Dispute, error) {
	model := Dispute{
		ClaimID:   dispute.ClaimID.String(),
		Opener:    dispute.Opener.String(),
		Moderator: dispute.Moderator.String(),
		Status:    dispute.Status.String(),
		CreatedAt: time.Unix(dispute.OpenedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeCreate, err)
	}
	return mapDispute(model)
}

func (store *ClaimStore) GetDispute(ctx context.Context, disputeID claims.DisputeID) (claims.Dispute, error) {
	var model Dispute
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("dispute_id = ?", disputeID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeGet, claims.ErrUnknownDispute)
		}
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeGet, err)
	}
	return mapDispute(model)
}

func (store *ClaimStore) HasRejectedDispute(ctx context.Context, claimID claims.ClaimID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Dispute{}).
		Where("claim_id = ? AND status = ?", claimID.String(), claims.DisputeStatusRejected.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectDispute, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *ClaimStore) TransitionDispute(ctx context.Context, disputeID claims.DisputeID, from, to claims.DisputeStatus, resolvedUnixUTC int64) error {
	resolvedAt := time.Unix(resolvedUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Dispute{}).
		Where("dispute_id = ? AND status = ?", disputeID.String(), from.String()).
		Updates(map[string]interface{}{
			"status":      to.String(),
			"resolved_at": resolvedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectDispute, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectDispute, errorCodeUpdate, claims.ErrAlreadyResolved)
	}
	return nil
}

func (store *ClaimStore) ModeratorForGroup(ctx context.Context, groupID claims.GroupID) (claims.UserID, error) {
	var model CompanyGroup
	err := store.db.WithContext(ctx).
		Where("group_id = ?", groupID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return claims.UserID{}, wrapStoreError(errorSubjectGroup, errorCodeGet, claims.ErrUnknownGroup)
		}
		return claims.UserID{}, wrapStoreError(errorSubjectGroup, errorCodeGet, err)
	}
	moderator, err := claims.NewUserID(model.ModeratorID)
	if err != nil {
		return claims.UserID{}, wrapStoreError(errorSubjectGroup, errorCodeInvalid, err)
	}
	return moderator, nil
}

func mapRegistration(model Registration) (claims.Registration, error) {
	userID, err := claims.NewUserID(model.UserID)
	if err != nil {
		return claims.Registration{}, wrapStoreError(errorSubjectRegistration, errorCodeInvalid, err)
	}
	groupID, err := claims.NewGroupID(model.GroupID)
	if err != nil {
		return claims.Registration{}, wrapStoreError(errorSubjectRegistration, errorCodeInvalid, err)
	}
	role, err := claims.ParseRole(model.Role)
	if err != nil {
		return claims.Registration{}, wrapStoreError(errorSubjectRegistration, errorCodeInvalid, err)
	}
	return claims.Registration{UserID: userID, GroupID: groupID, Role: role}, nil
}

func mapTurnoverRecord(model TurnoverRecord) (claims.TurnoverRecord, error) {
	turnoverID, err := claims.NewTurnoverID(model.TurnoverID)
	if err != nil {
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeInvalid, err)
	}
	sourceRowKey, err := claims.NewSourceRowKey(model.SourceRowKey)
	if err != nil {
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeInvalid, err)
	}
	period, err := claims.NewPeriodDate(model.PeriodDate)
	if err != nil {
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeInvalid, err)
	}
	sellerINN, err := claims.NewTaxID(model.SellerINN)
	if err != nil {
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeInvalid, err)
	}
	buyerINN, err := claims.NewTaxID(model.BuyerINN)
	if err != nil {
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeInvalid, err)
	}
	volume, err := claims.NewVolumeML(model.VolumeML)
	if err != nil {
		return claims.TurnoverRecord{}, wrapStoreError(errorSubjectTurnover, errorCodeInvalid, err)
	}
	return claims.TurnoverRecord{
		ID:           turnoverID,
		SourceRowKey: sourceRowKey,
		Period:       period,
		SellerINN:    sellerINN,
		BuyerINN:     buyerINN,
		BuyerName:    model.BuyerName,
		Product:      model.Product,
		Volume:       volume,
	}, nil
}

func mapClaim(model Claim) (claims.Claim, error) {
	claimID, err := claims.NewClaimID(model.ClaimID)
	if err != nil {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	turnoverID, err := claims.NewTurnoverID(model.TurnoverID)
	if err != nil {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	claimant, err := claims.NewUserID(model.Claimant)
	if err != nil {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	group, err := claims.NewGroupID(model.GroupAtClaim)
	if err != nil {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	state, err := claims.ParseDisputeState(model.DisputeState)
	if err != nil {
		return claims.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	return claims.Claim{
		ID:             claimID,
		TurnoverID:     turnoverID,
		Claimant:       claimant,
		GroupAtClaim:   group,
		DisputeState:   state,
		ClaimedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapDispute(model Dispute) (claims.Dispute, error) {
	disputeID, err := claims.NewDisputeID(model.DisputeID)
	if err != nil {
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
	}
	claimID, err := claims.NewClaimID(model.ClaimID)
	if err != nil {
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
	}
	opener, err := claims.NewUserID(model.Opener)
	if err != nil {
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
	}
	moderator, err := claims.NewUserID(model.Moderator)
	if err != nil {
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
	}
	status, err := claims.ParseDisputeStatus(model.Status)
	if err != nil {
		return claims.Dispute{}, wrapStoreError(errorSubjectDispute, errorCodeInvalid, err)
	}
	dispute := claims.Dispute{
		ID:            disputeID,
		ClaimID:       claimID,
		Opener:        opener,
		Moderator:     moderator,
		Status:        status,
		OpenedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.ResolvedAt != nil {
		dispute.ResolvedUnixUTC = model.ResolvedAt.Unix()
	}
	return dispute, nil
}

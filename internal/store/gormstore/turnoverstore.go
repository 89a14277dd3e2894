package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/claimledger/internal/notify"
	"github.com/MarkoPoloResearchLab/claimledger/internal/turnover"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

const errorSubjectSync = "sync_status"

// TurnoverStore implements turnover.Store using GORM.
type TurnoverStore struct {
	db *gorm.DB
}

// NewTurnoverStore returns a TurnoverStore backed by gorm.DB.
func NewTurnoverStore(db *gorm.DB) *TurnoverStore {
	return &TurnoverStore{db: db}
}

// IngestBatch upserts every row inside one transaction; a failing row
// rolls the whole batch back. Newly inserted rows feed the result's
// affected sellers and groups, and any insertion also writes the feed
// notification into the outbox within the same transaction.
func (store *TurnoverStore) IngestBatch(ctx context.Context, rows []claims.TurnoverInput) (turnover.IngestResult, error) {
	var result turnover.IngestResult
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		affectedSellers := make(map[string]struct{})
		for _, row := range rows {
			inserted, err := upsertTurnoverRow(ctx, transaction, row)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
				affectedSellers[row.SellerINN.String()] = struct{}{}
			}
		}
		if result.Inserted == 0 {
			return nil
		}
		result.AffectedSellerINNs = sortedKeys(affectedSellers)

		var groupIDs []string
		err := transaction.WithContext(ctx).
			Model(&CompanyGroup{}).
			Where("seller_inn IN ?", result.AffectedSellerINNs).
			Order("group_id ASC").
			Pluck("group_id", &groupIDs).Error
		if err != nil {
			return wrapStoreError(errorSubjectTurnover, errorCodeLookup, err)
		}
		result.AffectedGroupIDs = groupIDs

		return enqueueIngestNotification(ctx, transaction, result)
	})
	if err != nil {
		return turnover.IngestResult{}, err
	}
	return result, nil
}

// UpsertTurnover inserts a row or refreshes the mutable fields of an
// existing one by its source key. The claim linkage survives refreshes
// because the turnover id never changes.
func (store *TurnoverStore) UpsertTurnover(ctx context.Context, input claims.TurnoverInput) (bool, error) {
	return upsertTurnoverRow(ctx, store.db, input)
}

func upsertTurnoverRow(ctx context.Context, db *gorm.DB, input claims.TurnoverInput) (bool, error) {
	var existing int64
	err := db.WithContext(ctx).
		Model(&TurnoverRecord{}).
		Where("source_row_key = ?", input.SourceRowKey.String()).
		Count(&existing).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectTurnover, errorCodeLookup, err)
	}

	model := TurnoverRecord{
		SourceRowKey: input.SourceRowKey.String(),
		PeriodDate:   input.Period.String(),
		SellerINN:    input.SellerINN.String(),
		BuyerINN:     input.BuyerINN.String(),
		BuyerName:    input.BuyerName,
		Product:      input.Product,
		VolumeML:     input.Volume.Int64(),
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_row_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"period_date", "buyer_name", "product", "volume_ml", "updated_at"}),
		}).
		Create(&model)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectTurnover, errorCodeUpsert, result.Error)
	}
	return existing == 0, nil
}

// ingestNotification is the outbox payload announcing new feed rows.
type ingestNotification struct {
	Event              string   `json:"event"`
	Inserted           int      `json:"inserted"`
	AffectedSellerINNs []string `json:"affected_seller_inns"`
	AffectedGroupIDs   []string `json:"affected_group_ids"`
}

func enqueueIngestNotification(ctx context.Context, db *gorm.DB, result turnover.IngestResult) error {
	payload, err := json.Marshal(ingestNotification{
		Event:              notify.EventTurnoverSynced,
		Inserted:           result.Inserted,
		AffectedSellerINNs: result.AffectedSellerINNs,
		AffectedGroupIDs:   result.AffectedGroupIDs,
	})
	if err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeCreate, err)
	}
	message := OutboxMessage{
		Topic:   notify.TopicTurnover,
		Key:     turnover.FeedName,
		Payload: datatypes.JSON(payload),
		Status:  outboxStatusPending,
	}
	if err := db.WithContext(ctx).Create(&message).Error; err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeCreate, err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RecordSyncRun upserts the bookkeeping row for one feed.
func (store *TurnoverStore) RecordSyncRun(ctx context.Context, name string, run turnover.SyncRun) error {
	model := SyncStatus{
		Name:         name,
		LastError:    run.LastError,
		RowsUpserted: run.RowsUpserted,
	}
	if run.LastRunUnixUTC != 0 {
		at := time.Unix(run.LastRunUnixUTC, 0).UTC()
		model.LastRunAt = &at
	}
	if run.LastSuccessUnixUTC != 0 {
		at := time.Unix(run.LastSuccessUnixUTC, 0).UTC()
		model.LastSuccessAt = &at
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_run_at", "last_success_at", "last_error", "rows_upserted"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectSync, errorCodeUpsert, err)
	}
	return nil
}

// GetSyncRun returns the bookkeeping row for one feed. An unknown feed
// reads as a zero run.
func (store *TurnoverStore) GetSyncRun(ctx context.Context, name string) (turnover.SyncRun, error) {
	var model SyncStatus
	err := store.db.WithContext(ctx).
		Where("name = ?", name).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return turnover.SyncRun{}, nil
		}
		return turnover.SyncRun{}, wrapStoreError(errorSubjectSync, errorCodeGet, err)
	}
	run := turnover.SyncRun{
		LastError:    model.LastError,
		RowsUpserted: model.RowsUpserted,
	}
	if model.LastRunAt != nil {
		run.LastRunUnixUTC = model.LastRunAt.Unix()
	}
	if model.LastSuccessAt != nil {
		run.LastSuccessUnixUTC = model.LastSuccessAt.Unix()
	}
	return run, nil
}

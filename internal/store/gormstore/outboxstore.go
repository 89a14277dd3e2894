package gormstore

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/claimledger/internal/notify"
)

const (
	errorSubjectOutbox = "outbox"

	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// OutboxStore implements notify.Outbox using GORM.
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore returns an OutboxStore backed by gorm.DB.
func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Enqueue persists a pending message.
func (store *OutboxStore) Enqueue(ctx context.Context, message notify.Message) error {
	model := OutboxMessage{
		MessageID: message.ID,
		Topic:     message.Topic,
		Key:       message.Key,
		Payload:   datatypes.JSON(message.Payload),
		Status:    outboxStatusPending,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeCreate, err)
	}
	return nil
}

// ListPending returns undelivered messages, oldest first.
func (store *OutboxStore) ListPending(ctx context.Context, limit int) ([]notify.Message, error) {
	var rows []OutboxMessage
	err := store.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectOutbox, errorCodeList, err)
	}
	messages := make([]notify.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, notify.Message{
			ID:             row.MessageID,
			Topic:          row.Topic,
			Key:            row.Key,
			Payload:        row.Payload,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return messages, nil
}

// RecordFailure bumps the retry counter and parks the message as failed
// once the counter reaches maxAttempts.
func (store *OutboxStore) RecordFailure(ctx context.Context, messageID string, maxAttempts int) error {
	result := store.db.WithContext(ctx).
		Model(&OutboxMessage{}).
		Where("message_id = ? AND status = ?", messageID, outboxStatusPending).
		Update("retry_count", gorm.Expr("retry_count + 1"))
	if result.Error != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdate, result.Error)
	}
	err := store.db.WithContext(ctx).
		Model(&OutboxMessage{}).
		Where("message_id = ? AND status = ? AND retry_count >= ?", messageID, outboxStatusPending, maxAttempts).
		Update("status", outboxStatusFailed).Error
	if err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdate, err)
	}
	return nil
}

// MarkSent flips a delivered message out of the pending set.
func (store *OutboxStore) MarkSent(ctx context.Context, messageID string, sentUnixUTC int64) error {
	sentAt := time.Unix(sentUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&OutboxMessage{}).
		Where("message_id = ? AND status = ?", messageID, outboxStatusPending).
		Updates(map[string]interface{}{
			"status":  outboxStatusSent,
			"sent_at": sentAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdate, result.Error)
	}
	return nil
}

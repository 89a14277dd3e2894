package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Topics carrying push notifications toward the bot frontend.
const (
	TopicClaims      = "claims.events"
	TopicDisputes    = "disputes.events"
	TopicFinance     = "finance.events"
	TopicWithdrawals = "withdrawals.events"
	TopicTurnover    = "turnover.events"
)

// Event names embedded in message payloads.
const (
	EventClaimConfirmed      = "claim_confirmed"
	EventDisputeOpened       = "dispute_opened"
	EventDisputeResolved     = "dispute_resolved"
	EventDisputeCancelled    = "dispute_cancelled"
	EventBonusAccrued        = "bonus_accrued"
	EventWithdrawalRequested = "withdrawal_requested"
	EventWithdrawalResolved  = "withdrawal_resolved"
	EventTurnoverSynced      = "turnover_synced"
)

// ErrNotifyConfig reports invalid sender wiring.
var ErrNotifyConfig = errors.New("invalid notify config")

// Message is one pending push in the outbox.
type Message struct {
	ID             string
	Topic          string
	Key            string
	Payload        []byte
	CreatedUnixUTC int64
}

// Envelope is the wire shape of every event payload.
type Envelope struct {
	Event  string            `json:"event"`
	UserID string            `json:"user_id"`
	Data   map[string]string `json:"data,omitempty"`
}

// NewMessage builds an outbox message keyed by the recipient, so one
// user's pushes stay ordered within a topic partition.
func NewMessage(topic string, envelope Envelope) (Message, error) {
	if topic == "" || envelope.Event == "" || envelope.UserID == "" {
		return Message{}, fmt.Errorf("%w: topic, event, and user are required", ErrNotifyConfig)
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return Message{}, fmt.Errorf("%w: encode payload: %v", ErrNotifyConfig, err)
	}
	return Message{Topic: topic, Key: envelope.UserID, Payload: payload}, nil
}

// Outbox persists messages until a sender delivers them. Enqueue is meant
// to run inside the same transaction as the state change it announces.
type Outbox interface {
	Enqueue(ctx context.Context, message Message) error
	ListPending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, messageID string, sentUnixUTC int64) error
	// RecordFailure bumps the message's retry count and parks it as
	// failed once the count reaches maxAttempts.
	RecordFailure(ctx context.Context, messageID string, maxAttempts int) error
}

// Producer delivers a message to the transport.
type Producer interface {
	Send(ctx context.Context, message Message) error
}

const (
	defaultDrainBatch  = 100
	defaultMaxAttempts = 10
)

// Sender drains the outbox toward a Producer on a fixed cadence.
type Sender struct {
	outbox      Outbox
	producer    Producer
	batch       int
	maxAttempts int
	nowFn       func() int64
	logger      *zap.Logger
}

// NewSender wires a Sender.
func NewSender(outbox Outbox, producer Producer, now func() int64, logger *zap.Logger) (*Sender, error) {
	if outbox == nil || producer == nil {
		return nil, fmt.Errorf("%w: outbox and producer are required", ErrNotifyConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrNotifyConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{outbox: outbox, producer: producer, batch: defaultDrainBatch, maxAttempts: defaultMaxAttempts, nowFn: now, logger: logger}, nil
}

// Drain delivers one batch of pending messages. A send failure stops the
// batch; undelivered messages stay pending for the next pass.
func (sender *Sender) Drain(ctx context.Context) (int, error) {
	pending, err := sender.outbox.ListPending(ctx, sender.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, message := range pending {
		if err := sender.producer.Send(ctx, message); err != nil {
			sender.logger.Warn("push delivery failed",
				zap.String("message_id", message.ID),
				zap.String("topic", message.Topic),
				zap.Error(err))
			if failErr := sender.outbox.RecordFailure(ctx, message.ID, sender.maxAttempts); failErr != nil {
				sender.logger.Warn("record push failure failed",
					zap.String("message_id", message.ID),
					zap.Error(failErr))
			}
			return sent, err
		}
		if err := sender.outbox.MarkSent(ctx, message.ID, sender.nowFn()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Run loops Drain on the given interval until the context ends.
func (sender *Sender) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sender.Drain(ctx); err != nil {
				sender.logger.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

type memoryOutbox struct {
	messages []Message
	sent     map[string]int64
	retries  map[string]int
	failed   map[string]bool
	sequence int
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{sent: make(map[string]int64), retries: make(map[string]int), failed: make(map[string]bool)}
}

func (outbox *memoryOutbox) Enqueue(ctx context.Context, message Message) error {
	outbox.sequence++
	message.ID = fmt.Sprintf("message-%d", outbox.sequence)
	outbox.messages = append(outbox.messages, message)
	return nil
}

func (outbox *memoryOutbox) ListPending(ctx context.Context, limit int) ([]Message, error) {
	var pending []Message
	for _, message := range outbox.messages {
		if _, delivered := outbox.sent[message.ID]; delivered {
			continue
		}
		if outbox.failed[message.ID] {
			continue
		}
		pending = append(pending, message)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (outbox *memoryOutbox) MarkSent(ctx context.Context, messageID string, sentUnixUTC int64) error {
	outbox.sent[messageID] = sentUnixUTC
	return nil
}

func (outbox *memoryOutbox) RecordFailure(ctx context.Context, messageID string, maxAttempts int) error {
	outbox.retries[messageID]++
	if outbox.retries[messageID] >= maxAttempts {
		outbox.failed[messageID] = true
	}
	return nil
}

type recordingProducer struct {
	sent    []Message
	failOn  string
	failErr error
}

func (producer *recordingProducer) Send(ctx context.Context, message Message) error {
	if producer.failOn != "" && message.ID == producer.failOn {
		return producer.failErr
	}
	producer.sent = append(producer.sent, message)
	return nil
}

func mustNewSender(test *testing.T, outbox Outbox, producer Producer) *Sender {
	test.Helper()
	sender, err := NewSender(outbox, producer, func() int64 { return 1_750_000_000 }, zap.NewNop())
	if err != nil {
		test.Fatalf("new sender: %v", err)
	}
	return sender
}

func enqueueEvent(test *testing.T, outbox Outbox, topic, event, userID string) {
	test.Helper()
	message, err := NewMessage(topic, Envelope{Event: event, UserID: userID})
	if err != nil {
		test.Fatalf("new message: %v", err)
	}
	if err := outbox.Enqueue(context.Background(), message); err != nil {
		test.Fatalf("enqueue: %v", err)
	}
}

func TestDrainDeliversAndMarksSent(test *testing.T) {
	test.Parallel()
	outbox := newMemoryOutbox()
	producer := &recordingProducer{}
	sender := mustNewSender(test, outbox, producer)
	enqueueEvent(test, outbox, TopicClaims, EventClaimConfirmed, "seller-1")
	enqueueEvent(test, outbox, TopicDisputes, EventDisputeOpened, "seller-2")

	sent, err := sender.Drain(context.Background())
	if err != nil {
		test.Fatalf("drain: %v", err)
	}
	if sent != 2 {
		test.Fatalf("expected 2 sent, got %d", sent)
	}
	if len(outbox.sent) != 2 {
		test.Fatalf("expected both marked sent, got %d", len(outbox.sent))
	}

	again, err := sender.Drain(context.Background())
	if err != nil {
		test.Fatalf("second drain: %v", err)
	}
	if again != 0 {
		test.Fatalf("expected drained outbox, got %d", again)
	}
}

func TestDrainKeepsFailedMessagePending(test *testing.T) {
	test.Parallel()
	outbox := newMemoryOutbox()
	producer := &recordingProducer{failOn: "message-2", failErr: errors.New("broker down")}
	sender := mustNewSender(test, outbox, producer)
	enqueueEvent(test, outbox, TopicClaims, EventClaimConfirmed, "seller-1")
	enqueueEvent(test, outbox, TopicClaims, EventClaimConfirmed, "seller-2")
	enqueueEvent(test, outbox, TopicClaims, EventClaimConfirmed, "seller-3")

	sent, err := sender.Drain(context.Background())
	if err == nil {
		test.Fatalf("expected drain failure")
	}
	if sent != 1 {
		test.Fatalf("expected 1 delivered before failure, got %d", sent)
	}

	producer.failOn = ""
	retried, err := sender.Drain(context.Background())
	if err != nil {
		test.Fatalf("retry drain: %v", err)
	}
	if retried != 2 {
		test.Fatalf("expected 2 retried, got %d", retried)
	}
}

func TestDrainParksMessageAfterMaxAttempts(test *testing.T) {
	test.Parallel()
	outbox := newMemoryOutbox()
	producer := &recordingProducer{failOn: "message-1", failErr: errors.New("broker down")}
	sender := mustNewSender(test, outbox, producer)
	sender.maxAttempts = 2
	enqueueEvent(test, outbox, TopicClaims, EventClaimConfirmed, "seller-1")

	for attempt := 0; attempt < 2; attempt++ {
		if _, err := sender.Drain(context.Background()); err == nil {
			test.Fatalf("expected drain failure on attempt %d", attempt)
		}
	}
	if !outbox.failed["message-1"] {
		test.Fatalf("expected message parked as failed after max attempts")
	}
	pending, err := outbox.ListPending(context.Background(), 10)
	if err != nil {
		test.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		test.Fatalf("expected failed message out of the pending set, got %d", len(pending))
	}
}

func TestNewMessageKeysByRecipient(test *testing.T) {
	test.Parallel()
	message, err := NewMessage(TopicFinance, Envelope{
		Event:  EventBonusAccrued,
		UserID: "seller-9",
		Data:   map[string]string{"amount_cents": "1500"},
	})
	if err != nil {
		test.Fatalf("new message: %v", err)
	}
	if message.Key != "seller-9" {
		test.Fatalf("expected recipient key, got %q", message.Key)
	}
	var envelope Envelope
	if err := json.Unmarshal(message.Payload, &envelope); err != nil {
		test.Fatalf("decode payload: %v", err)
	}
	if envelope.Event != EventBonusAccrued || envelope.Data["amount_cents"] != "1500" {
		test.Fatalf("unexpected payload: %+v", envelope)
	}
}

func TestNewMessageRequiresFields(test *testing.T) {
	test.Parallel()
	if _, err := NewMessage("", Envelope{Event: EventClaimConfirmed, UserID: "u"}); !errors.Is(err, ErrNotifyConfig) {
		test.Fatalf("expected ErrNotifyConfig, got %v", err)
	}
	if _, err := NewMessage(TopicClaims, Envelope{UserID: "u"}); !errors.Is(err, ErrNotifyConfig) {
		test.Fatalf("expected ErrNotifyConfig, got %v", err)
	}
	if _, err := NewMessage(TopicClaims, Envelope{Event: EventClaimConfirmed}); !errors.Is(err, ErrNotifyConfig) {
		test.Fatalf("expected ErrNotifyConfig, got %v", err)
	}
}

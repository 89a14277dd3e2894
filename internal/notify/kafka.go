package notify

import (
	"context"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaProducer delivers outbox messages to a Kafka cluster.
type KafkaProducer struct {
	producer sarama.SyncProducer
}

// NewKafkaProducer connects a synchronous producer. Acks from all
// in-sync replicas keep push delivery at-least-once together with the
// outbox retry.
func NewKafkaProducer(brokers []string) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &KafkaProducer{producer: producer}, nil
}

// Send publishes one message.
func (kafka *KafkaProducer) Send(ctx context.Context, message Message) error {
	_, _, err := kafka.producer.SendMessage(&sarama.ProducerMessage{
		Topic: message.Topic,
		Key:   sarama.StringEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Payload),
	})
	return err
}

// Close releases the underlying producer.
func (kafka *KafkaProducer) Close() error {
	return kafka.producer.Close()
}

// LogProducer writes pushes to the log instead of a broker. Used when no
// Kafka cluster is configured.
type LogProducer struct {
	logger *zap.Logger
}

// NewLogProducer wires a LogProducer.
func NewLogProducer(logger *zap.Logger) *LogProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogProducer{logger: logger}
}

// Send logs the message.
func (producer *LogProducer) Send(ctx context.Context, message Message) error {
	producer.logger.Info("push",
		zap.String("topic", message.Topic),
		zap.String("key", message.Key),
		zap.ByteString("payload", message.Payload))
	return nil
}

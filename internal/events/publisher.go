// Package events publishes logged predictions to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"triage-service/internal/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends prediction records to the incident-response pipeline.
type Publisher interface {
	Publish(ctx context.Context, rec models.PredictionRecord) error
	Close() error
}

// NopPublisher drops every record. Used when no sink is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.PredictionRecord) error { return nil }

func (NopPublisher) Close() error { return nil }

// Config holds the Kafka sink settings.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher produces one message per prediction.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher creates a Kafka producer for the configured topic.
func NewKafkaPublisher(cfg Config, logger *zap.Logger) *KafkaPublisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
	}
	logger.Info("Kafka publisher initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return &KafkaPublisher{writer: w, logger: logger}
}

// Publish writes a single record. Records are keyed by id so a consumer
// sees them in log order per partition.
func (p *KafkaPublisher) Publish(ctx context.Context, rec models.PredictionRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish prediction %d: %w", rec.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a PredictionRecord into a Kafka message.
func serializeToMessage(rec models.PredictionRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(rec.ID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "input_type", Value: []byte(rec.InputType)},
			{Key: "disaster_type", Value: []byte(rec.Category.String())},
			{Key: "timestamp", Value: []byte(rec.Timestamp.UTC().Format(time.RFC3339Nano))},
		},
	}, nil
}

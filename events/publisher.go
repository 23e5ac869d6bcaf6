// Package events publishes the location fixes recorded during driver trips.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"fleet-tracking-system/config"
	"fleet-tracking-system/models"
)

type Publisher interface {
	Publish(ctx context.Context, ev models.LocationEvent) error
	Close() error
}

// KafkaPublisher sends each event as JSON keyed by vehicle id, so all fixes
// of one vehicle land on the same partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true // required by SyncProducer
	cfg.Net.DialTimeout = 30 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}
	logger.Info("kafka producer created", slog.Any("brokers", cfg.Brokers), slog.String("topic", cfg.Topic))
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (k *KafkaPublisher) Publish(_ context.Context, ev models.LocationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.VehicleID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("send to topic %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}

// LogPublisher writes events to the structured log. It is used when Kafka
// is disabled.
type LogPublisher struct {
	Logger *slog.Logger
}

func (l LogPublisher) Publish(_ context.Context, ev models.LocationEvent) error {
	l.Logger.Info("location update",
		slog.String("vehicle_id", ev.VehicleID),
		slog.Float64("latitude", ev.Latitude),
		slog.Float64("longitude", ev.Longitude),
		slog.Float64("accuracy", ev.Accuracy),
		slog.Time("timestamp", ev.Timestamp),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }

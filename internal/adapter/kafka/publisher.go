// Package kafka publishes successful weather snapshots to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/weather-dashboard-service/internal/config"
	"github.com/couchcryptid/weather-dashboard-service/internal/domain"
	"github.com/couchcryptid/weather-dashboard-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// SnapshotEvent is the message value written for every successful run.
type SnapshotEvent struct {
	RunID       string                 `json:"runId"`
	Query       string                 `json:"query"`
	DisplayName string                 `json:"displayName"`
	Lat         float64                `json:"lat"`
	Lon         float64                `json:"lon"`
	FetchedAt   time.Time              `json:"fetchedAt"`
	Snapshot    domain.WeatherSnapshot `json:"snapshot"`
}

// Publisher produces snapshot events. It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured snapshot topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaSnapshotTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one snapshot event keyed by the place's display name, so
// all snapshots for a place land on the same partition.
func (p *Publisher) Publish(ctx context.Context, result pipeline.Result) error {
	msg, err := serializeToMessage(result)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot to %s: %w", p.writer.Topic, err)
	}
	p.logger.Debug("snapshot published", "topic", p.writer.Topic, "place", result.Place.DisplayName)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a pipeline result into a Kafka message.
func serializeToMessage(result pipeline.Result) (kafkago.Message, error) {
	data, err := json.Marshal(SnapshotEvent{
		RunID:       result.RunID,
		Query:       result.Query.String(),
		DisplayName: result.Place.DisplayName,
		Lat:         result.Place.Lat,
		Lon:         result.Place.Lon,
		FetchedAt:   result.FetchedAt,
		Snapshot:    result.Snapshot,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(result.Place.DisplayName),
		Value: data,
		Time:  result.FetchedAt,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(result.RunID)},
			{Key: "fetched_at", Value: []byte(result.FetchedAt.Format(time.RFC3339))},
			{Key: "aqi_available", Value: []byte(strconv.FormatBool(result.Snapshot.Aqi != nil))},
		},
	}, nil
}

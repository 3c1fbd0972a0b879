package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// EventCompleted is the type field of published outcome events.
const EventCompleted = "submission.completed"

// CompletedEvent is the message published once per finished submission.
type CompletedEvent struct {
	Type            string    `json:"type"`
	SubmissionID    string    `json:"submission_id"`
	Course          string    `json:"course"`
	Assignment      string    `json:"assignment"`
	Filename        string    `json:"filename"`
	OriginalPath    string    `json:"original_path"`
	ReportPath      string    `json:"report_path,omitempty"`
	WordCount       int       `json:"word_count"`
	Score           float64   `json:"score"`
	Status          string    `json:"status"`
	Provider        string    `json:"provider"`
	Fallback        bool      `json:"fallback"`
	ScanID          string    `json:"scan_id,omitempty"`
	ExtractionError string    `json:"extraction_error,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	CompletedAt     time.Time `json:"completed_at"`
}

func newCompletedEvent(up Upload, out *Outcome, at time.Time) CompletedEvent {
	ev := CompletedEvent{
		Type:            EventCompleted,
		SubmissionID:    out.ID,
		Course:          up.CourseName,
		Assignment:      up.AssignmentTitle,
		Filename:        up.OriginalFilename,
		OriginalPath:    out.OriginalPath,
		ReportPath:      out.ReportPath,
		WordCount:       out.WordCount,
		ExtractionError: out.ExtractionError,
		DurationMs:      out.Duration.Milliseconds(),
		CompletedAt:     at.UTC(),
	}
	if r := out.Result; r != nil {
		ev.Score = r.Score
		ev.Status = r.Status
		ev.Provider = r.Provider
		ev.Fallback = r.Fallback
		ev.ScanID = r.ScanID
	}
	return ev
}

// Publisher announces finished submissions to downstream consumers
// (grade books, dashboards).
type Publisher interface {
	Publish(ctx context.Context, ev CompletedEvent) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by
// submission ID.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.ClientID = "originality"
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends one event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, ev CompletedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.SubmissionID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(ev.Type)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.SubmissionID, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// SubmissionMessage is the queue payload; the submission itself stays in Postgres.
type SubmissionMessage struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	RequestID    string    `json:"request_id,omitempty"`
	QueuedAt     time.Time `json:"queued_at"`
}

type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokersSTR, topic string) *Producer {
	brokers := strings.Split(brokersSTR, ",")

	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// PublishSubmission queues a submission id, keyed by id so redeliveries of
// one submission stay on one partition.
func (p *Producer) PublishSubmission(ctx context.Context, id uuid.UUID, requestID string) error {
	b, err := json.Marshal(SubmissionMessage{SubmissionID: id, RequestID: requestID, QueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(id.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "request-id", Value: []byte(requestID)},
		},
	})
}

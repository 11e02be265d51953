package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/fanout"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers string
	Topic   string
	GroupID string
}

// Processor delivers one stored submission.
type Processor interface {
	ProcessByID(ctx context.Context, id uuid.UUID) (fanout.Report, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer reads submission ids and runs the fan-out for each. The
// returned channel closes once the loop has exited and the reader is closed.
func StartConsumer(ctx context.Context, svc Processor, cfg ConsumerConfig) <-chan struct{} {
	brokers := strings.Split(cfg.Brokers, ",")

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})

	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, r, svc, 300*time.Millisecond)
	}()
	return done
}

func consume(ctx context.Context, r messageReader, svc Processor, backoff time.Duration) {
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka fetch error", "err", err)
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}

		var msg SubmissionMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil || msg.SubmissionID == uuid.Nil {
			logger.Warn("kafka invalid message, skip and commit", "partition", m.Partition, "offset", m.Offset, "err", err)
			commit(ctx, r, m)
			continue
		}
		if !process(ctx, svc, msg, backoff) {
			return
		}
		commit(ctx, r, m)
	}
}

// process retries one message until it is handled or ctx ends. Fetching
// again would move past it, so a failing message blocks its partition.
func process(ctx context.Context, svc Processor, msg SubmissionMessage, backoff time.Duration) bool {
	log := logger.With("submission_id", msg.SubmissionID, "request_id", msg.RequestID)
	for {
		rep, err := svc.ProcessByID(ctx, msg.SubmissionID)
		switch {
		case err == nil:
			log.Infow("submission processed", "outcome", rep.Outcome())
			return true
		case errors.Is(err, repository.ErrNotClaimable), errors.Is(err, repository.ErrNotFound):
			// finished, dead or held by another worker
			log.Infow("submission not claimable, skipping", "err", err)
			return true
		}
		log.Warnw("process failed, will retry", "err", err)
		if !sleep(ctx, backoff) {
			return false
		}
	}
}

func commit(ctx context.Context, r messageReader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		logger.Warn("kafka commit failed", "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

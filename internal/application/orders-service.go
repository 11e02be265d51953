package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/config"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/fanout"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrFormDisabled         = errors.New("order form is disabled")
	ErrProviderNotAvailable = errors.New("provider not available for zip")
	ErrNotFound             = repository.ErrNotFound
)

// FormDisabledError carries the admin's custom message.
type FormDisabledError struct {
	Message string
}

func (e *FormDisabledError) Error() string {
	if e.Message == "" {
		return ErrFormDisabled.Error()
	}
	return ErrFormDisabled.Error() + ": " + e.Message
}

func (e *FormDisabledError) Is(target error) bool { return target == ErrFormDisabled }

type FormGate interface {
	FormConfig(ctx context.Context) domain.FormConfig
}

// AvailabilityChecker lists the enabled providers serving a ZIP.
type AvailabilityChecker interface {
	Providers(ctx context.Context, zip string) ([]string, error)
}

// Publisher hands a submission id to the queue.
type Publisher interface {
	PublishSubmission(ctx context.Context, id uuid.UUID, requestID string) error
}

// Processor runs the fanout pipeline.
type Processor interface {
	Run(ctx context.Context, sub *domain.Submission) fanout.Report
}

type Meta struct {
	IdempotencyKey string
	IPAddress      string
	RequestID      string
}

type Receipt struct {
	ID             uuid.UUID       `json:"id"`
	Status         string          `json:"status"`
	Duplicate      bool            `json:"duplicate,omitempty"`
	SubmissionDate time.Time       `json:"submissionDate"`
	Results        []fanout.Result `json:"results,omitempty"`
}

const StatusQueued = "queued"

type OrdersConfig struct {
	Mode        string
	MaxAttempts int
	Lease       time.Duration
}

type OrdersService struct {
	repo         repository.SubmissionRepo
	pipeline     Processor
	validator    *orderform.Validator
	availability AvailabilityChecker
	gate         FormGate
	publisher    Publisher
	cfg          OrdersConfig
	now          func() time.Time

	// sweeps run one at a time per process; the lease covers other processes
	sweepMu sync.Mutex
}

func NewOrdersService(
	repo repository.SubmissionRepo,
	pipeline Processor,
	validator *orderform.Validator,
	availability AvailabilityChecker,
	gate FormGate,
	publisher Publisher,
	cfg OrdersConfig,
) *OrdersService {
	if cfg.Mode == "" {
		cfg.Mode = config.FanoutSync
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &OrdersService{
		repo:         repo,
		pipeline:     pipeline,
		validator:    validator,
		availability: availability,
		gate:         gate,
		publisher:    publisher,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Submit validates and stores an order, then delivers it (sync mode) or
// queues it. Nothing is stored or sent when validation fails.
func (s *OrdersService) Submit(ctx context.Context, order domain.Order, meta Meta) (Receipt, error) {
	log := logger.With("request_id", meta.RequestID)

	if fc := s.gate.FormConfig(ctx); !fc.Accepting() {
		return Receipt{}, &FormDisabledError{Message: fc.CustomMessage}
	}

	now := s.now()
	if err := s.validator.Validate(order, now); err != nil {
		return Receipt{}, err
	}

	order = s.validator.Canonical(order)

	if !order.ForceProvider {
		matched, err := s.availability.Providers(ctx, order.ZipCode)
		if err != nil {
			return Receipt{}, fmt.Errorf("check availability: %w", err)
		}
		if !offers(matched, order.SelectedProvider) {
			return Receipt{}, fmt.Errorf("%w: %s at %s", ErrProviderNotAvailable, order.SelectedProvider, order.ZipCode)
		}
	}

	sub := domain.Submission{
		ID:             uuid.New(),
		IdempotencyKey: meta.IdempotencyKey,
		Order:          order,
		SubmissionDate: now.UTC(),
		IPAddress:      meta.IPAddress,
		RequestID:      meta.RequestID,
	}

	var lease time.Duration
	if s.cfg.Mode == config.FanoutSync {
		lease = s.cfg.Lease
	}
	stored, created, err := s.repo.Create(ctx, sub, lease)
	if err != nil {
		log.Errorw("submission not stored", "err", err)
		return Receipt{}, err
	}
	if !created {
		return s.replay(ctx, stored)
	}
	log = log.With("submission_id", stored.ID)
	log.Infow("submission accepted", "provider", stored.SelectedProvider, "forced", stored.ForceProvider, "mode", s.cfg.Mode)

	if s.cfg.Mode == config.FanoutQueue {
		if err := s.publisher.PublishSubmission(ctx, stored.ID, meta.RequestID); err != nil {
			// the row stays pending; the sweep delivers it
			log.Warnw("publish failed, left for sweep", "err", err)
		}
		return Receipt{ID: stored.ID, Status: StatusQueued, SubmissionDate: stored.SubmissionDate}, nil
	}

	// the client going away must not abort delivery half way
	rep := s.pipeline.Run(context.WithoutCancel(ctx), &stored)
	status := s.settle(context.WithoutCancel(ctx), stored.ID, 1, rep)
	return Receipt{ID: stored.ID, Status: string(status), SubmissionDate: stored.SubmissionDate, Results: rep.Results}, nil
}

func (s *OrdersService) replay(ctx context.Context, sub domain.Submission) (Receipt, error) {
	rec, err := s.repo.Get(ctx, sub.ID)
	if err != nil {
		return Receipt{}, err
	}
	r := Receipt{ID: rec.Submission.ID, Status: string(rec.Status), Duplicate: true, SubmissionDate: rec.Submission.SubmissionDate}
	for _, st := range rec.Steps {
		r.Results = append(r.Results, fanout.Result{Step: st.Step, Status: fanout.Status(st.Status), Error: st.LastError})
	}
	return r, nil
}

// settle moves the outbox row according to the report and returns the new status.
func (s *OrdersService) settle(ctx context.Context, id uuid.UUID, attempts int, rep fanout.Report) domain.SubmissionStatus {
	log := logger.With("submission_id", id, "attempt", attempts)

	var (
		status = domain.StatusPending
		err    error
	)
	switch rep.Outcome() {
	case fanout.OutcomeDone:
		status, err = domain.StatusDone, s.repo.MarkDone(ctx, id)
	case fanout.OutcomeFailed:
		status, err = domain.StatusDead, s.repo.MarkDead(ctx, id, rep.Failures())
		log.Errorw("submission dead-lettered", "reason", rep.Failures())
	default:
		if attempts >= s.cfg.MaxAttempts {
			status, err = domain.StatusDead, s.repo.MarkDead(ctx, id, rep.Failures())
			log.Errorw("submission out of attempts", "reason", rep.Failures())
		} else {
			delay := fanout.Backoff(attempts)
			err = s.repo.MarkRetry(ctx, id, rep.Failures(), delay)
			log.Warnw("submission scheduled for retry", "in", delay, "reason", rep.Failures())
		}
	}
	if err != nil {
		// the lease expires and the sweep tries again
		log.Errorw("outbox update failed", "status", status, "err", err)
	}
	return status
}

func (s *OrdersService) Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *OrdersService) Stats(ctx context.Context) (map[domain.SubmissionStatus]int, error) {
	return s.repo.Stats(ctx)
}

// ProcessByID delivers one submission if nobody else holds it.
func (s *OrdersService) ProcessByID(ctx context.Context, id uuid.UUID) (fanout.Report, error) {
	rec, err := s.repo.ClaimByID(ctx, id, s.cfg.Lease)
	if err != nil {
		return fanout.Report{}, err
	}
	rep := s.pipeline.Run(ctx, &rec.Submission)
	s.settle(ctx, id, rec.Attempts, rep)
	return rep, nil
}

type SweepResult struct {
	Claimed int `json:"claimed"`
	Done    int `json:"done"`
	Retried int `json:"retried"`
	Dead    int `json:"dead"`
}

// Sweep claims up to limit due submissions and delivers them, four at a time.
func (s *OrdersService) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	recs, err := s.repo.ClaimPending(ctx, limit, s.cfg.Lease)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		mu  sync.Mutex
		res = SweepResult{Claimed: len(recs)}
		g   errgroup.Group
	)
	g.SetLimit(4)
	for i := range recs {
		rec := &recs[i]
		g.Go(func() error {
			rep := s.pipeline.Run(ctx, &rec.Submission)
			status := s.settle(ctx, rec.Submission.ID, rec.Attempts, rep)
			mu.Lock()
			switch status {
			case domain.StatusDone:
				res.Done++
			case domain.StatusDead:
				res.Dead++
			default:
				res.Retried++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if res.Claimed > 0 {
		logger.Info("sweep finished", "claimed", res.Claimed, "done", res.Done, "retried", res.Retried, "dead", res.Dead)
	}
	return res, nil
}

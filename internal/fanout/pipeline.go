// Package fanout runs the delivery steps for an accepted submission and keeps a
// per-step ledger so a retried submission only repeats what failed.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/notify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOK        Status = "ok"
	StatusSkipped   Status = "skipped"
	StatusRetryable Status = "retryable"
	StatusFatal     Status = "fatal"
)

// ErrDisabled is returned by a gated step that is switched off in settings.
var ErrDisabled = errors.New("disabled in notification settings")

type Step interface {
	Name() string
	Run(ctx context.Context, s *domain.Submission) error
}

// Ledger remembers which steps already succeeded for a submission.
type Ledger interface {
	Completed(ctx context.Context, id uuid.UUID) (map[string]bool, error)
	Record(ctx context.Context, id uuid.UUID, step, status, lastErr string) error
}

func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, notify.ErrNotConfigured), errors.Is(err, ErrDisabled):
		return StatusSkipped
	case notify.IsPermanent(err):
		return StatusFatal
	default:
		return StatusRetryable
	}
}

type Result struct {
	Step   string `json:"step"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeRetry  Outcome = "retry"
	OutcomeFailed Outcome = "failed"
)

type Report struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	Results      []Result  `json:"results"`
}

func (r Report) Outcome() Outcome {
	fatal := false
	for _, res := range r.Results {
		switch res.Status {
		case StatusRetryable:
			return OutcomeRetry
		case StatusFatal:
			fatal = true
		}
	}
	if fatal {
		return OutcomeFailed
	}
	return OutcomeDone
}

// Failures joins the errors of every failed step.
func (r Report) Failures() string {
	var parts []string
	for _, res := range r.Results {
		if res.Status == StatusRetryable || res.Status == StatusFatal {
			parts = append(parts, res.Step+": "+res.Error)
		}
	}
	return strings.Join(parts, "; ")
}

type Pipeline struct {
	steps       []Step
	ledger      Ledger
	stepTimeout time.Duration
}

func NewPipeline(ledger Ledger, stepTimeout time.Duration, steps ...Step) *Pipeline {
	if stepTimeout <= 0 {
		stepTimeout = 15 * time.Second
	}
	return &Pipeline{steps: steps, ledger: ledger, stepTimeout: stepTimeout}
}

func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes every step not yet completed, concurrently. Steps never cancel
// each other; each result lands in the ledger.
func (p *Pipeline) Run(ctx context.Context, sub *domain.Submission) Report {
	rep := Report{SubmissionID: sub.ID, Results: make([]Result, len(p.steps))}
	log := logger.With("submission_id", sub.ID, "request_id", sub.RequestID)

	done, err := p.ledger.Completed(ctx, sub.ID)
	if err != nil {
		// without the ledger a rerun could duplicate the sheet row
		log.Warnw("fanout ledger unavailable", "err", err)
		for i, s := range p.steps {
			rep.Results[i] = Result{Step: s.Name(), Status: StatusRetryable, Error: "ledger unavailable: " + err.Error()}
		}
		return rep
	}

	var g errgroup.Group
	for i, step := range p.steps {
		name := step.Name()
		if done[name] {
			rep.Results[i] = Result{Step: name, Status: StatusSkipped, Error: "already delivered"}
			continue
		}
		g.Go(func() error {
			runErr := p.runStep(ctx, step, sub)
			res := Result{Step: name, Status: Classify(runErr)}
			if runErr != nil {
				res.Error = runErr.Error()
			}
			rep.Results[i] = res

			if err := p.ledger.Record(ctx, sub.ID, name, string(res.Status), res.Error); err != nil {
				log.Warnw("fanout ledger write failed", "step", name, "err", err)
			}
			switch res.Status {
			case StatusOK:
				log.Infow("fanout step delivered", "step", name)
			case StatusSkipped:
				log.Debugw("fanout step skipped", "step", name, "reason", res.Error)
			default:
				log.Warnw("fanout step failed", "step", name, "status", res.Status, "err", res.Error)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func (p *Pipeline) runStep(ctx context.Context, step Step, sub *domain.Submission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = notify.Permanent(fmt.Errorf("panic in %s: %v", step.Name(), r))
		}
	}()
	sctx, cancel := context.WithTimeout(ctx, p.stepTimeout)
	defer cancel()
	return step.Run(sctx, sub)
}

type gated struct {
	Step
	enabled func(ctx context.Context) bool
}

// Gate wraps a step so it reports ErrDisabled while enabled returns false.
func Gate(s Step, enabled func(ctx context.Context) bool) Step {
	return &gated{Step: s, enabled: enabled}
}

func (g *gated) Run(ctx context.Context, s *domain.Submission) error {
	if !g.enabled(ctx) {
		return ErrDisabled
	}
	return g.Step.Run(ctx, s)
}

// Backoff is the delay before retry number attempt (1-based): 30s doubling, capped at 1h.
func Backoff(attempt int) time.Duration {
	const (
		base    = 30 * time.Second
		ceiling = time.Hour
	)
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

package application

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/google/uuid"
)

// memRepo is an in-memory outbox and step ledger.
type memRepo struct {
	mu    sync.Mutex
	now   func() time.Time
	rows  map[uuid.UUID]*domain.SubmissionRecord
	keys  map[string]uuid.UUID
	steps map[uuid.UUID]map[string]*domain.StepRecord
	order []uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{
		now:   time.Now,
		rows:  map[uuid.UUID]*domain.SubmissionRecord{},
		keys:  map[string]uuid.UUID{},
		steps: map[uuid.UUID]map[string]*domain.StepRecord{},
	}
}

func (r *memRepo) Create(_ context.Context, sub domain.Submission, lease time.Duration) (domain.Submission, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.IdempotencyKey != "" {
		if id, ok := r.keys[sub.IdempotencyKey]; ok {
			return r.rows[id].Submission, false, nil
		}
		r.keys[sub.IdempotencyKey] = sub.ID
	}
	rec := &domain.SubmissionRecord{Submission: sub, Status: domain.StatusPending, CreatedAt: r.now()}
	if lease > 0 {
		t := r.now().Add(lease)
		rec.ClaimedUntil = &t
		rec.Attempts = 1
	}
	r.rows[sub.ID] = rec
	r.order = append(r.order, sub.ID)
	return sub, true, nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*domain.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	for _, s := range r.steps[id] {
		cp.Steps = append(cp.Steps, *s)
	}
	sort.Slice(cp.Steps, func(i, j int) bool { return cp.Steps[i].Step < cp.Steps[j].Step })
	return &cp, nil
}

func (r *memRepo) claimable(rec *domain.SubmissionRecord) bool {
	return rec.Status == domain.StatusPending && (rec.ClaimedUntil == nil || rec.ClaimedUntil.Before(r.now()))
}

func (r *memRepo) claim(rec *domain.SubmissionRecord, lease time.Duration) domain.SubmissionRecord {
	t := r.now().Add(lease)
	rec.ClaimedUntil = &t
	rec.Attempts++
	return *rec
}

func (r *memRepo) ClaimByID(_ context.Context, id uuid.UUID, lease time.Duration) (*domain.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !r.claimable(rec) {
		return nil, repository.ErrNotClaimable
	}
	c := r.claim(rec, lease)
	return &c, nil
}

func (r *memRepo) ClaimPending(_ context.Context, limit int, lease time.Duration) ([]domain.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SubmissionRecord
	for _, id := range r.order {
		if len(out) == limit {
			break
		}
		if rec := r.rows[id]; r.claimable(rec) {
			out = append(out, r.claim(rec, lease))
		}
	}
	return out, nil
}

func (r *memRepo) set(id uuid.UUID, f func(*domain.SubmissionRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	f(rec)
	return nil
}

func (r *memRepo) MarkDone(_ context.Context, id uuid.UUID) error {
	return r.set(id, func(rec *domain.SubmissionRecord) {
		rec.Status, rec.ClaimedUntil, rec.LastError = domain.StatusDone, nil, ""
	})
}

func (r *memRepo) MarkRetry(_ context.Context, id uuid.UUID, lastErr string, delay time.Duration) error {
	return r.set(id, func(rec *domain.SubmissionRecord) {
		t := r.now().Add(delay)
		rec.Status, rec.ClaimedUntil, rec.LastError = domain.StatusPending, &t, lastErr
	})
}

func (r *memRepo) MarkDead(_ context.Context, id uuid.UUID, lastErr string) error {
	return r.set(id, func(rec *domain.SubmissionRecord) {
		rec.Status, rec.ClaimedUntil, rec.LastError = domain.StatusDead, nil, lastErr
	})
}

func (r *memRepo) Stats(context.Context) (map[domain.SubmissionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[domain.SubmissionStatus]int{}
	for _, rec := range r.rows {
		out[rec.Status]++
	}
	return out, nil
}

func (r *memRepo) Completed(_ context.Context, id uuid.UUID) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]bool{}
	for name, s := range r.steps[id] {
		if s.Status == "ok" {
			out[name] = true
		}
	}
	return out, nil
}

func (r *memRepo) Record(_ context.Context, id uuid.UUID, step, status, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.steps[id] == nil {
		r.steps[id] = map[string]*domain.StepRecord{}
	}
	s := r.steps[id][step]
	if s == nil {
		s = &domain.StepRecord{Step: step}
		r.steps[id][step] = s
	}
	if s.Status == "ok" {
		return nil
	}
	s.Status, s.LastError = status, lastErr
	s.Attempts++
	return nil
}

// expire makes every lease and retry delay due.
func (r *memRepo) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.rows {
		rec.ClaimedUntil = nil
	}
}

// memSettings is a SettingsStore backed by a map.
type memSettings struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	err  error
}

func newMemSettings() *memSettings { return &memSettings{data: map[string][]byte{}} }

func (m *memSettings) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (m *memSettings) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memSettings) put(key string, v any) {
	b, _ := json.Marshal(v)
	m.data[key] = b
}

type stubLookup struct {
	res   domain.ZipLookupResult
	calls int
}

func (s *stubLookup) Lookup(_ context.Context, zip string) domain.ZipLookupResult {
	s.calls++
	r := s.res
	r.ZipCode = zip
	return r
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (p *recordingPublisher) PublishSubmission(_ context.Context, id uuid.UUID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

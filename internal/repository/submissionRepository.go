package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNotClaimable means the submission is finished or leased to another worker.
	ErrNotClaimable = errors.New("submission not claimable")
)

type SubmissionRepo interface {
	// Create stores sub as pending. When sub carries an idempotency key that was
	// already used, the original submission is returned with created=false.
	// A positive lease claims the new row for the caller right away.
	Create(ctx context.Context, sub domain.Submission, lease time.Duration) (stored domain.Submission, created bool, err error)
	Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error)
	ClaimByID(ctx context.Context, id uuid.UUID, lease time.Duration) (*domain.SubmissionRecord, error)
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.SubmissionRecord, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, lastErr string, delay time.Duration) error
	MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error
	Stats(ctx context.Context) (map[domain.SubmissionStatus]int, error)
}

type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(p *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: p}
}

const recordColumns = `s.id, s.payload, s.status, s.attempts, s.last_error, s.claimed_until, s.created_at, s.updated_at`

func (r *SubmissionRepository) Create(ctx context.Context, sub domain.Submission, lease time.Duration) (domain.Submission, bool, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("marshal submission: %w", err)
	}

	attempts := 0
	var claimed *time.Time
	if lease > 0 {
		attempts = 1
		t := time.Now().Add(lease)
		claimed = &t
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO submissions (id, idempotency_key, payload, status, attempts, claimed_until)
		VALUES ($1, NULLIF($2, ''), $3, 'pending', $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, sub.ID, sub.IdempotencyKey, payload, attempts, claimed)
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("insert submission: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return sub, true, nil
	}

	// idempotency key replay
	var raw []byte
	err = r.pool.QueryRow(ctx, `SELECT payload FROM submissions WHERE idempotency_key = $1`, sub.IdempotencyKey).Scan(&raw)
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("load replayed submission: %w", err)
	}
	var existing domain.Submission
	if err := json.Unmarshal(raw, &existing); err != nil {
		return domain.Submission{}, false, fmt.Errorf("decode replayed submission: %w", err)
	}
	logger.Info("idempotent replay", "submission_id", existing.ID, "idempotency_key", sub.IdempotencyKey)
	return existing, false, nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM submissions s WHERE s.id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	steps, err := r.Steps(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Steps = steps
	return rec, nil
}

func (r *SubmissionRepository) ClaimByID(ctx context.Context, id uuid.UUID, lease time.Duration) (*domain.SubmissionRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE submissions s
		SET claimed_until = now() + make_interval(secs => $2),
		    attempts = s.attempts + 1,
		    updated_at = now()
		WHERE s.id = $1
		  AND s.status = 'pending'
		  AND (s.claimed_until IS NULL OR s.claimed_until < now())
		RETURNING `+recordColumns, id, lease.Seconds())
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.Get(ctx, id); errors.Is(gerr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrNotClaimable
	}
	return rec, err
}

// ClaimPending leases up to limit due submissions. SKIP LOCKED keeps concurrent
// sweeps from picking the same rows; the lease keeps them from re-picking
// a row that is still being processed.
func (r *SubmissionRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.SubmissionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		WITH picked AS (
			SELECT id FROM submissions
			WHERE status = 'pending'
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE submissions s
		SET claimed_until = now() + make_interval(secs => $2),
		    attempts = s.attempts + 1,
		    updated_at = now()
		FROM picked
		WHERE s.id = picked.id
		RETURNING `+recordColumns, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()

	var out []domain.SubmissionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *SubmissionRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `
		UPDATE submissions
		SET status = 'done', last_error = '', claimed_until = NULL, updated_at = now()
		WHERE id = $1`, id)
}

func (r *SubmissionRepository) MarkRetry(ctx context.Context, id uuid.UUID, lastErr string, delay time.Duration) error {
	return r.exec(ctx, `
		UPDATE submissions
		SET status = 'pending', last_error = $2,
		    claimed_until = now() + make_interval(secs => $3), updated_at = now()
		WHERE id = $1`, id, lastErr, delay.Seconds())
}

func (r *SubmissionRepository) MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error {
	return r.exec(ctx, `
		UPDATE submissions
		SET status = 'dead', last_error = $2, claimed_until = NULL, updated_at = now()
		WHERE id = $1`, id, lastErr)
}

func (r *SubmissionRepository) Stats(ctx context.Context) (map[domain.SubmissionStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.SubmissionStatus]int{domain.StatusPending: 0, domain.StatusDone: 0, domain.StatusDead: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.SubmissionStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *SubmissionRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*domain.SubmissionRecord, error) {
	var (
		rec     domain.SubmissionRecord
		id      uuid.UUID
		payload []byte
		status  string
	)
	if err := row.Scan(&id, &payload, &status, &rec.Attempts, &rec.LastError, &rec.ClaimedUntil, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Submission); err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", id, err)
	}
	rec.Submission.ID = id
	rec.Status = domain.SubmissionStatus(status)
	return &rec, nil
}

package repository

import (
	"context"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/google/uuid"
)

// Completed returns the steps already recorded as ok for a submission.
func (r *SubmissionRepository) Completed(ctx context.Context, id uuid.UUID) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT step FROM fanout_steps WHERE submission_id = $1 AND status = 'ok'`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := map[string]bool{}
	for rows.Next() {
		var step string
		if err := rows.Scan(&step); err != nil {
			return nil, err
		}
		done[step] = true
	}
	return done, rows.Err()
}

// Record upserts one step outcome. An ok row is never downgraded.
func (r *SubmissionRepository) Record(ctx context.Context, id uuid.UUID, step, status, lastErr string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fanout_steps (submission_id, step, status, attempts, last_error, updated_at)
		VALUES ($1, $2, $3, 1, $4, now())
		ON CONFLICT (submission_id, step) DO UPDATE
		SET status = EXCLUDED.status,
		    attempts = fanout_steps.attempts + 1,
		    last_error = EXCLUDED.last_error,
		    updated_at = now()
		WHERE fanout_steps.status <> 'ok'
	`, id, step, status, lastErr)
	return err
}

func (r *SubmissionRepository) Steps(ctx context.Context, id uuid.UUID) ([]domain.StepRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT step, status, attempts, last_error, updated_at
		FROM fanout_steps WHERE submission_id = $1 ORDER BY step`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StepRecord
	for rows.Next() {
		var s domain.StepRecord
		if err := rows.Scan(&s.Step, &s.Status, &s.Attempts, &s.LastError, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

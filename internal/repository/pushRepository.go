package repository

import (
	"context"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PushRepo interface {
	Save(ctx context.Context, sub domain.PushSubscription) error
	List(ctx context.Context) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
	Count(ctx context.Context) (int, error)
}

type PushRepository struct {
	pool *pgxpool.Pool
}

func NewPushRepository(p *pgxpool.Pool) *PushRepository {
	return &PushRepository{pool: p}
}

// Save is keyed by endpoint; re-subscribing refreshes the keys.
func (r *PushRepository) Save(ctx context.Context, sub domain.PushSubscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth)
		VALUES ($1, $2, $3)
		ON CONFLICT (endpoint) DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
	`, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth)
	return err
}

func (r *PushRepository) List(ctx context.Context) ([]domain.PushSubscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT endpoint, p256dh, auth FROM push_subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PushSubscription
	for rows.Next() {
		var s domain.PushSubscription
		if err := rows.Scan(&s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PushRepository) Delete(ctx context.Context, endpoint string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

func (r *PushRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM push_subscriptions`).Scan(&n)
	return n, err
}

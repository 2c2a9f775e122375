package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"immersia-backend/internal/models"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) Create(ctx context.Context, a *models.Activity) error {
	a.ID = uuid.New()

	query := `INSERT INTO activities (id, user_id, source, activity_type, content_key, url, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		a.ID, a.UserID, a.Source, a.ActivityType, a.ContentKey, a.URL, a.OccurredAt,
	).Scan(&a.CreatedAt)
}

func (r *ActivityRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	a := &models.Activity{}
	query := `SELECT id, user_id, source, activity_type, content_key, url, occurred_at, created_at
		FROM activities WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.Source, &a.ActivityType, &a.ContentKey, &a.URL, &a.OccurredAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

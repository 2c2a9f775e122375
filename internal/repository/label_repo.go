package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"immersia-backend/internal/models"
)

type LabelRepo struct {
	pool *pgxpool.Pool
}

func NewLabelRepo(pool *pgxpool.Pool) *LabelRepo {
	return &LabelRepo{pool: pool}
}

func (r *LabelRepo) Get(ctx context.Context, contentKey string) (*models.ContentLabel, error) {
	label := &models.ContentLabel{}
	var captionsJSON []byte

	query := `SELECT content_key, title, author, duration_seconds, captions_json, fetched_at
		FROM content_labels WHERE content_key = $1`

	err := r.pool.QueryRow(ctx, query, contentKey).Scan(
		&label.ContentKey, &label.Title, &label.Author, &label.DurationSeconds, &captionsJSON, &label.FetchedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(captionsJSON) > 0 {
		json.Unmarshal(captionsJSON, &label.CaptionLangs)
	}
	return label, nil
}

func (r *LabelRepo) Upsert(ctx context.Context, label *models.ContentLabel) error {
	captionsJSON, _ := json.Marshal(label.CaptionLangs)
	if label.CaptionLangs == nil {
		captionsJSON = []byte("[]")
	}

	query := `INSERT INTO content_labels (content_key, title, author, duration_seconds, captions_json, fetched_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (content_key) DO UPDATE
		SET title = EXCLUDED.title,
			author = EXCLUDED.author,
			duration_seconds = EXCLUDED.duration_seconds,
			captions_json = EXCLUDED.captions_json,
			fetched_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		label.ContentKey, label.Title, label.Author, label.DurationSeconds, captionsJSON,
	)
	return err
}

package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adforge/internal/domain"
)

// AdRepositoryPG implements domain.AdRepository backed by PostgreSQL.
type AdRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAdRepository creates a new ad repository backed by PostgreSQL.
func NewAdRepository(pool *pgxpool.Pool) *AdRepositoryPG {
	return &AdRepositoryPG{pool: pool}
}

// Create inserts a new pending ad record.
func (r *AdRepositoryPG) Create(ctx context.Context, ad *domain.Ad) error {
	query := `
INSERT INTO product_ads (id, owner_email, status, video_status, description, requested_size)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		ad.ID,
		ad.OwnerEmail,
		ad.Status,
		ad.VideoStatus,
		ad.Description,
		ad.RequestedSize,
	)
	return err
}

// GetByID fetches an ad by its identifier.
func (r *AdRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Ad, error) {
	row := r.pool.QueryRow(ctx, selectAd+` WHERE id = $1`, id)
	return scanAd(row)
}

// ListByEmail returns the owner's ads, newest first.
func (r *AdRepositoryPG) ListByEmail(ctx context.Context, email string) ([]domain.Ad, error) {
	rows, err := r.pool.Query(ctx, selectAd+` WHERE owner_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ads []domain.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, *ad)
	}
	return ads, rows.Err()
}

// MarkCompleted finalizes a pending ad with its artifacts. Terminal ads are
// left untouched by the status guard.
func (r *AdRepositoryPG) MarkCompleted(ctx context.Context, id string, res domain.AdResult) error {
	query := `
UPDATE product_ads
SET status = 'completed',
    original_image_url = $2,
    generated_image_url = $3,
    image_prompt = $4,
    video_prompt = $5,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`
	_, err := r.pool.Exec(ctx, query, id, res.OriginalImageURL, res.GeneratedImageURL, res.ImagePrompt, res.VideoPrompt)
	return err
}

// MarkFailed records the failure message on a pending ad.
func (r *AdRepositoryPG) MarkFailed(ctx context.Context, id string, message string) error {
	query := `
UPDATE product_ads
SET status = 'failed',
    error_message = $2,
    updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`
	_, err := r.pool.Exec(ctx, query, id, message)
	return err
}

// SetVideoStatus transitions the independent video sub-pipeline state. A
// non-empty message overwrites the last diagnostic.
func (r *AdRepositoryPG) SetVideoStatus(ctx context.Context, id string, status domain.VideoStatus, message string) error {
	query := `
UPDATE product_ads
SET video_status = $2,
    error_message = COALESCE(NULLIF($3, ''), error_message),
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, status, message)
	return err
}

// CompleteVideo records the durable video URL and completes the sub-pipeline.
func (r *AdRepositoryPG) CompleteVideo(ctx context.Context, id string, videoURL string) error {
	query := `
UPDATE product_ads
SET video_status = 'completed',
    video_url = $2,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, videoURL)
	return err
}

const selectAd = `
SELECT id, owner_email, status, video_status, description, requested_size,
       COALESCE(original_image_url, ''), COALESCE(generated_image_url, ''),
       COALESCE(image_prompt, ''), COALESCE(video_prompt, ''), COALESCE(video_url, ''),
       COALESCE(error_message, ''), created_at, updated_at, completed_at
FROM product_ads`

func scanAd(row pgx.Row) (*domain.Ad, error) {
	var ad domain.Ad
	if err := row.Scan(
		&ad.ID,
		&ad.OwnerEmail,
		&ad.Status,
		&ad.VideoStatus,
		&ad.Description,
		&ad.RequestedSize,
		&ad.OriginalImageURL,
		&ad.GeneratedImageURL,
		&ad.ImagePrompt,
		&ad.VideoPrompt,
		&ad.VideoURL,
		&ad.ErrorMessage,
		&ad.CreatedAt,
		&ad.UpdatedAt,
		&ad.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &ad, nil
}

var _ domain.AdRepository = (*AdRepositoryPG)(nil)

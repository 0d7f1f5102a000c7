package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/courseman/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用したAIレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// Create はAI生成レビューを1件保存する。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.CourseReview) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO course_reviews (
		   id, course_url, review_text, rating,
		   key_strengths, recommended_for,
		   tokens_used, model_version, prompt_version, created_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		review.ID, review.CourseURL, review.ReviewText, review.Rating,
		pq.Array(review.KeyStrengths), pq.Array(review.RecommendedFor),
		review.TokensUsed, review.ModelVersion, review.PromptVersion, review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("レビューの保存に失敗しました: %w", err)
	}
	return nil
}

// CountByCourseURL は指定講座のレビュー数を返す。
func (r *PostgresReviewRepo) CountByCourseURL(ctx context.Context, courseURL string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM course_reviews WHERE course_url = $1`,
		courseURL,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("レビュー数の取得に失敗しました: %w", err)
	}
	return count, nil
}

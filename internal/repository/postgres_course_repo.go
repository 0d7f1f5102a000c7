package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/courseman/internal/model"
)

// courseColumns はcoursesテーブルのUPSERT対象カラム。
var courseColumns = []string{
	"url", "course_id", "title", "instructor",
	"original_price", "sale_price", "discount_rate", "is_on_sale",
	"rating", "review_count", "student_count", "thumbnail_url",
	"scraped_at", "source", "is_trending", "updated_at",
}

// PostgresCourseRepo はPostgreSQLを使用した講座リポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

// UpsertBatch は1バッチ分の講座レコードを単一のINSERT文でUPSERTする。
// urlカラムの一意性制約を衝突キーとし、衝突時は既存行を上書き更新する。
// 同一URLでの再実行が重複行を生まないため、バッチ全体の再試行は安全。
func (r *PostgresCourseRepo) UpsertBatch(ctx context.Context, rows []CourseRow) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(courseColumns))

	for i, row := range rows {
		base := i * len(courseColumns)
		ph := make([]string, len(courseColumns))
		for j := range courseColumns {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			row.URL, nullIfEmpty(row.CourseID), row.Title, nullIfEmpty(row.Instructor),
			row.OriginalPrice, row.SalePrice, row.DiscountRate, row.IsOnSale,
			row.Rating, row.ReviewCount, row.StudentCount, nullIfEmpty(row.ThumbnailURL),
			row.ScrapedAt, row.Source, row.IsTrending, row.UpdatedAt,
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO courses (%s)
		 VALUES %s
		 ON CONFLICT (url) DO UPDATE SET
		   course_id = EXCLUDED.course_id,
		   title = EXCLUDED.title,
		   instructor = EXCLUDED.instructor,
		   original_price = EXCLUDED.original_price,
		   sale_price = EXCLUDED.sale_price,
		   discount_rate = EXCLUDED.discount_rate,
		   is_on_sale = EXCLUDED.is_on_sale,
		   rating = EXCLUDED.rating,
		   review_count = EXCLUDED.review_count,
		   student_count = EXCLUDED.student_count,
		   thumbnail_url = EXCLUDED.thumbnail_url,
		   scraped_at = EXCLUDED.scraped_at,
		   source = EXCLUDED.source,
		   updated_at = EXCLUDED.updated_at`,
		strings.Join(courseColumns, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("講座バッチのUPSERTに失敗しました: %w", err)
	}

	return nil
}

// ListAll は保存済みの全講座を取得する。
func (r *PostgresCourseRepo) ListAll(ctx context.Context) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT url, course_id, title, instructor,
		        original_price, sale_price, discount_rate, is_on_sale,
		        rating, review_count, student_count, thumbnail_url,
		        scraped_at, source
		 FROM courses
		 ORDER BY scraped_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("講座一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanCourses(rows)
}

// ListWithoutReviews はAIレビューが未生成の講座を最大limit件取得する。
func (r *PostgresCourseRepo) ListWithoutReviews(ctx context.Context, limit int) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.url, c.course_id, c.title, c.instructor,
		        c.original_price, c.sale_price, c.discount_rate, c.is_on_sale,
		        c.rating, c.review_count, c.student_count, c.thumbnail_url,
		        c.scraped_at, c.source
		 FROM courses c
		 LEFT JOIN course_reviews r ON r.course_url = c.url
		 WHERE r.id IS NULL
		 ORDER BY c.scraped_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("レビュー未生成講座の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanCourses(rows)
}

// scanCourses はクエリ結果を講座モデルのリストへ変換する。
func scanCourses(rows *sql.Rows) ([]model.Course, error) {
	var courses []model.Course

	for rows.Next() {
		var c model.Course
		var courseID, instructor, thumbnailURL sql.NullString
		var originalPrice, salePrice, reviewCount, studentCount sql.NullInt64
		var rating sql.NullFloat64

		if err := rows.Scan(
			&c.URL, &courseID, &c.Title, &instructor,
			&originalPrice, &salePrice, &c.DiscountRate, &c.IsOnSale,
			&rating, &reviewCount, &studentCount, &thumbnailURL,
			&c.ScrapedAt, &c.Source,
		); err != nil {
			return nil, fmt.Errorf("講座行の読み取りに失敗しました: %w", err)
		}

		c.CourseID = courseID.String
		c.Instructor = instructor.String
		c.ThumbnailURL = thumbnailURL.String
		if originalPrice.Valid {
			c.OriginalPrice = &originalPrice.Int64
		}
		if salePrice.Valid {
			c.SalePrice = &salePrice.Int64
		}
		if rating.Valid {
			c.Rating = &rating.Float64
		}
		if reviewCount.Valid {
			c.ReviewCount = &reviewCount.Int64
		}
		if studentCount.Valid {
			c.StudentCount = &studentCount.Int64
		}

		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("講座一覧の走査に失敗しました: %w", err)
	}

	return courses, nil
}

// nullIfEmpty は空文字をNULLとして保存するためのヘルパー。
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/courseman/internal/model"
)

// CourseRow はストレージスキーマへマッピング済みの講座レコード。
// 永続化バッチャーがmodel.Courseからスキーマデフォルト
// （student_count未設定→0、is_trending→false、updated_at→書き込み時刻UTC）
// を適用して生成する。デフォルト適用はこの層への変換時のみ行われ、
// ドメインモデル自体は変更されない。
type CourseRow struct {
	URL           string
	CourseID      string
	Title         string
	Instructor    string
	OriginalPrice *int64
	SalePrice     *int64
	DiscountRate  int
	IsOnSale      bool
	Rating        *float64
	ReviewCount   *int64
	StudentCount  int64
	ThumbnailURL  string
	ScrapedAt     time.Time
	Source        string
	IsTrending    bool
	UpdatedAt     time.Time
}

// CourseRepository は講座データの永続化インターフェース。
// urlカラムの一意性制約を衝突解決キーとするUPSERTを提供する。
type CourseRepository interface {
	// UpsertBatch は1バッチ分のレコードをUPSERTする。
	// 既存のurlに一致する行は上書き更新され、新規の行は挿入される。
	// 呼び出しはバッチ単位でアトミックに成功または失敗する。
	UpsertBatch(ctx context.Context, rows []CourseRow) error

	// ListAll は保存済みの全講座を取得する。
	ListAll(ctx context.Context) ([]model.Course, error)

	// ListWithoutReviews はAIレビューが未生成の講座を最大limit件取得する。
	ListWithoutReviews(ctx context.Context, limit int) ([]model.Course, error)
}

// ReviewRepository はAI生成レビューの永続化インターフェース。
type ReviewRepository interface {
	// Create はレビューを1件保存する。
	Create(ctx context.Context, review *model.CourseReview) error

	// CountByCourseURL は指定講座のレビュー数を返す。
	CountByCourseURL(ctx context.Context, courseURL string) (int, error)
}

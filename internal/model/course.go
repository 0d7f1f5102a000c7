// Package model はドメインモデルを定義する。
package model

import "time"

// SourceInflearn は収集元を示す定数タグ。
const SourceInflearn = "inflearn"

// Course はカタログから抽出した1件の講座レコードを表す。
// URLが正規化済みの一意キーであり、再収集時の同一性判定に使用される。
// 数値系フィールドはポインタで「未取得（null）」と「0」を区別する。
type Course struct {
	URL           string     `json:"url"`
	CourseID      string     `json:"course_id,omitempty"`
	Title         string     `json:"title"`
	Instructor    string     `json:"instructor,omitempty"`
	OriginalPrice *int64     `json:"original_price"`
	SalePrice     *int64     `json:"sale_price"`
	DiscountRate  int        `json:"discount_rate"`
	IsOnSale      bool       `json:"is_on_sale"`
	Rating        *float64   `json:"rating"`
	ReviewCount   *int64     `json:"review_count"`
	StudentCount  *int64     `json:"student_count"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
	ScrapedAt     time.Time  `json:"scraped_at"`
	Source        string     `json:"source"`
}

// IsZero は抽出が完全に失敗した空レコードかどうかを返す。
func (c Course) IsZero() bool {
	return c.URL == "" && c.Title == "" && c.Instructor == "" &&
		c.OriginalPrice == nil && c.SalePrice == nil && c.Rating == nil
}

// PriceInfo は講座エントリから抽出した価格情報のまとまり。
// 抽出途中で失敗した場合はゼロ値（全フィールドnull/0/false）で返される。
type PriceInfo struct {
	OriginalPrice *int64
	SalePrice     *int64
	DiscountRate  int
	IsOnSale      bool
}

// FailureRecord はリトライ枯渇または検証失敗で脱落したエントリの記録。
// 1回の収集で1エントリにつき最大1件生成され、以後変更されない。
type FailureRecord struct {
	Index      int    `json:"index"`
	URL        string `json:"url,omitempty"`
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}

// RunConfig はRunMetadataに埋め込む実行時設定のスナップショット。
type RunConfig struct {
	MaxCourses int    `json:"max_courses"`
	Category   string `json:"category"`
	Method     string `json:"method"`
	BaseURL    string `json:"base_url"`
}

// RunMetadata は1回の収集実行のメタデータ。実行完了時に1回だけ生成され、
// JSON成果物にレコード一覧とともに保存される。
type RunMetadata struct {
	RunID                   string    `json:"run_id"`
	Version                 string    `json:"version"`
	ScraperVersion          string    `json:"scraper_version"`
	TotalCourses            int       `json:"total_courses"`
	FailedCourses           int       `json:"failed_courses"`
	ScrapedAt               time.Time `json:"scraped_at"`
	ScrapingDurationSeconds float64   `json:"scraping_duration_seconds"`
	Config                  RunConfig `json:"config"`
	Error                   string    `json:"error,omitempty"`
}

// CourseReview はAI生成された講座レビューを表す。
type CourseReview struct {
	ID             string    `json:"id"`
	CourseURL      string    `json:"course_url"`
	ReviewText     string    `json:"review_text"`
	Rating         float64   `json:"rating"`
	KeyStrengths   []string  `json:"key_strengths"`
	RecommendedFor []string  `json:"recommended_for"`
	TokensUsed     int       `json:"tokens_used"`
	ModelVersion   string    `json:"model_version"`
	PromptVersion  string    `json:"prompt_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// Int64Ptr はint64のポインタを返すヘルパー。
func Int64Ptr(v int64) *int64 { return &v }

// Float64Ptr はfloat64のポインタを返すヘルパー。
func Float64Ptr(v float64) *float64 { return &v }

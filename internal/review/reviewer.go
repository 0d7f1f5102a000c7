// Package review は保存済み講座へのAIレビュー生成を提供する。
// OpenAI Chat Completions APIでレビューを生成し、厳密なJSON検証を通過した
// ものだけを永続化する。
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/courseman/internal/model"
	"github.com/hitoshi/courseman/internal/repository"
)

// PromptVersion は現行のプロンプトバージョン。
// プロンプト文面を変更したら上げる。
const PromptVersion = "1.0.0"

const (
	defaultMaxTokens   = 800
	defaultTemperature = 0.7
)

// systemPrompt はレビュー生成のシステムプロンプト。
const systemPrompt = `당신은 IT 교육 전문가이자 온라인 강의 리뷰어입니다.
강의 정보를 분석하여 공정하고 신뢰할 수 있는 리뷰를 작성합니다.
자연스러운 한국어로 작성하며, 과장된 표현은 피합니다.`

// ChatClient はChat Completions呼び出しのインターフェース。
// 本番では*openai.Clientがそのまま満たす。
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options はReviewerの構成項目。
type Options struct {
	// Model が空の場合はgpt-4o-miniを使う。
	Model string
	// BatchSize が0以下の場合は5。
	BatchSize int
	// BatchInterval はバッチ間の待機時間。0の場合は2秒。
	BatchInterval time.Duration
}

// Reviewer は講座レビューの生成と永続化を行う。
type Reviewer struct {
	client        ChatClient
	repo          repository.ReviewRepository
	logger        *slog.Logger
	model         string
	batchSize     int
	batchInterval time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	newID         func() string
	now           func() time.Time
}

// NewReviewer はReviewerを生成する。
func NewReviewer(client ChatClient, repo repository.ReviewRepository, logger *slog.Logger, opts Options) *Reviewer {
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = 2 * time.Second
	}
	return &Reviewer{
		client:        client,
		repo:          repo,
		logger:        logger,
		model:         opts.Model,
		batchSize:     opts.BatchSize,
		batchInterval: opts.BatchInterval,
		sleep:         sleepContext,
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
	}
}

// reviewPayload はモデル応答のJSON構造。
type reviewPayload struct {
	Review         string      `json:"review"`
	Rating         json.Number `json:"rating"`
	KeyStrengths   []string    `json:"key_strengths"`
	RecommendedFor []string    `json:"recommended_for"`
}

// GenerateOne は1講座のレビューを生成する。永続化は行わない。
// 応答の必須キー欠落、評点範囲外、空のレビュー本文はエラーになる。
func (r *Reviewer) GenerateOne(ctx context.Context, course model.Course) (model.CourseReview, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(course)},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return model.CourseReview{}, fmt.Errorf("レビュー生成APIの呼び出しに失敗しました: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.CourseReview{}, fmt.Errorf("レビュー生成APIが選択肢を返しませんでした")
	}

	var payload reviewPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return model.CourseReview{}, fmt.Errorf("応答JSONのパースに失敗しました: %w", err)
	}

	rating, err := validatePayload(payload)
	if err != nil {
		return model.CourseReview{}, fmt.Errorf("応答の検証に失敗しました: %w", err)
	}

	review := model.CourseReview{
		ID:             r.newID(),
		CourseURL:      course.URL,
		ReviewText:     payload.Review,
		Rating:         rating,
		KeyStrengths:   payload.KeyStrengths,
		RecommendedFor: payload.RecommendedFor,
		TokensUsed:     resp.Usage.TotalTokens,
		ModelVersion:   r.model,
		PromptVersion:  PromptVersion,
		CreatedAt:      r.now().UTC(),
	}

	r.logger.Info("レビューを生成しました",
		slog.String("url", course.URL),
		slog.Int("review_length", len([]rune(review.ReviewText))),
		slog.Int("tokens_used", review.TokensUsed),
	)
	return review, nil
}

// GenerateAndStore は講座一覧をバッチ単位で処理し、生成に成功した
// レビューを永続化する。1講座の失敗は記録してスキップし、処理を続行する。
// 戻り値は保存に成功したレビューの一覧。
func (r *Reviewer) GenerateAndStore(ctx context.Context, courses []model.Course) ([]model.CourseReview, error) {
	if len(courses) == 0 {
		return nil, nil
	}

	var stored []model.CourseReview
	failed := 0

	for start := 0; start < len(courses); start += r.batchSize {
		if start > 0 {
			if err := r.sleep(ctx, r.batchInterval); err != nil {
				return stored, err
			}
		}

		end := start + r.batchSize
		if end > len(courses) {
			end = len(courses)
		}

		for _, course := range courses[start:end] {
			if err := ctx.Err(); err != nil {
				return stored, err
			}

			review, err := r.GenerateOne(ctx, course)
			if err != nil {
				failed++
				r.logger.Error("レビュー生成に失敗しました",
					slog.String("url", course.URL),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := r.repo.Create(ctx, &review); err != nil {
				failed++
				r.logger.Error("レビューの保存に失敗しました",
					slog.String("url", course.URL),
					slog.String("error", err.Error()),
				)
				continue
			}
			stored = append(stored, review)
		}
	}

	cost, totalTokens := EstimateCost(stored)
	r.logger.Info("レビュー生成バッチが完了しました",
		slog.Int("input", len(courses)),
		slog.Int("stored", len(stored)),
		slog.Int("failed", failed),
		slog.Int("total_tokens", totalTokens),
		slog.Float64("estimated_cost_usd", cost),
	)
	return stored, nil
}

// buildPrompt は講座情報からユーザープロンプトを組み立てる。
// null値はプロンプト上では0として扱う。
func buildPrompt(c model.Course) string {
	originalPrice := int64(0)
	if c.OriginalPrice != nil {
		originalPrice = *c.OriginalPrice
	}
	salePrice := originalPrice
	if c.SalePrice != nil {
		salePrice = *c.SalePrice
	}
	rating := 0.0
	if c.Rating != nil {
		rating = *c.Rating
	}
	reviewCount := int64(0)
	if c.ReviewCount != nil {
		reviewCount = *c.ReviewCount
	}
	studentCount := int64(0)
	if c.StudentCount != nil {
		studentCount = *c.StudentCount
	}

	return fmt.Sprintf(`다음 인프런 강의에 대한 리뷰를 작성해주세요.

강의 정보:
- 제목: %s
- 강사: %s
- 가격: %d원 → %d원 (할인율: %d%%)
- 현재 평점: %.1f/5.0 (리뷰 %d개)
- 수강생: %d명

작성 지침:
1. 200-300자 분량의 리뷰를 작성하세요
2. 강의의 장점과 추천 대상을 구체적으로 언급하세요
3. 가격 대비 가치를 평가하세요
4. 자연스럽고 신뢰할 수 있는 톤을 유지하세요
5. "강력 추천", "최고의 강의" 같은 과장된 표현은 피하세요

출력 형식 (JSON):
{
  "review": "리뷰 텍스트 (200-300자)",
  "rating": 4.5,
  "key_strengths": ["장점1", "장점2", "장점3"],
  "recommended_for": ["대상1", "대상2"]
}`,
		c.Title, c.Instructor, originalPrice, salePrice, c.DiscountRate,
		rating, reviewCount, studentCount)
}

// validatePayload は応答の必須キーと値の範囲を検証し、評点を返す。
func validatePayload(p reviewPayload) (float64, error) {
	if p.Review == "" {
		return 0, fmt.Errorf("reviewが空です")
	}
	if p.Rating == "" {
		return 0, fmt.Errorf("ratingがありません")
	}
	rating, err := p.Rating.Float64()
	if err != nil {
		return 0, fmt.Errorf("ratingが数値ではありません: %q", p.Rating)
	}
	if rating < 0 || rating > 5 {
		return 0, fmt.Errorf("ratingが範囲外です: %v", rating)
	}
	if p.KeyStrengths == nil {
		return 0, fmt.Errorf("key_strengthsがありません")
	}
	if p.RecommendedFor == nil {
		return 0, fmt.Errorf("recommended_forがありません")
	}
	return rating, nil
}

// modelPricing はモデル別の1トークンあたり料金（USD）。
type modelPricing struct {
	input  float64
	output float64
}

// pricingTable はモデル別の概算料金表。
var pricingTable = map[string]modelPricing{
	"gpt-4o":        {input: 0.0025 / 1000, output: 0.01 / 1000},
	"gpt-4o-mini":   {input: 0.00015 / 1000, output: 0.0006 / 1000},
	"gpt-4-turbo":   {input: 0.01 / 1000, output: 0.03 / 1000},
	"gpt-4":         {input: 0.03 / 1000, output: 0.06 / 1000},
	"gpt-3.5-turbo": {input: 0.0005 / 1000, output: 0.0015 / 1000},
}

// EstimateCost はレビュー一覧の生成コスト（USD）と総トークン数を概算する。
// 入出力の内訳は記録していないため、入力40%・出力60%で按分する。
// 料金表にないモデルはgpt-3.5-turbo相当として扱う。
func EstimateCost(reviews []model.CourseReview) (float64, int) {
	totalCost := 0.0
	totalTokens := 0
	for _, review := range reviews {
		pricing, ok := pricingTable[review.ModelVersion]
		if !ok {
			pricing = pricingTable["gpt-3.5-turbo"]
		}
		tokens := float64(review.TokensUsed)
		totalCost += tokens*0.4*pricing.input + tokens*0.6*pricing.output
		totalTokens += review.TokensUsed
	}
	return totalCost, totalTokens
}

// sleepContext はコンテキストキャンセルに応答する待機。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
